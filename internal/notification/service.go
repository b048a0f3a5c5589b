package notification

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"VersatileShare/internal/auth"
	"VersatileShare/internal/realtime"
)

// TargetKind selects how a notification target is resolved.
type TargetKind string

const (
	TargetPrincipal   TargetKind = "principal"
	TargetDepartment  TargetKind = "department"
	TargetSemester    TargetKind = "semester"
	TargetAllStudents TargetKind = "all-students"
)

// Target is a logical recipient selector: one principal, one department's
// students, one semester's students, or every student.
type Target struct {
	Kind        TargetKind `json:"kind"`
	PrincipalID string     `json:"principalId,omitempty"`
	Department  string     `json:"department,omitempty"`
	Semester    int        `json:"semester,omitempty"`
}

func (t Target) Validate() error {
	switch t.Kind {
	case TargetPrincipal:
		if t.PrincipalID == "" {
			return errors.New("principal target requires a principal id")
		}
	case TargetDepartment:
		if t.Department == "" {
			return errors.New("department target requires a department name")
		}
	case TargetSemester:
		if t.Semester <= 0 {
			return errors.New("semester target requires a positive semester")
		}
	case TargetAllStudents:
	default:
		return fmt.Errorf("unknown target kind %q", t.Kind)
	}
	return nil
}

// GroupTag returns the registry tag for group-wide targets. Single-principal
// targets have no group channel; they are served by per-principal push alone.
func (t Target) GroupTag() (string, bool) {
	switch t.Kind {
	case TargetDepartment:
		return realtime.DepartmentTag(t.Department), true
	case TargetSemester:
		return realtime.SemesterTag(t.Semester), true
	case TargetAllStudents:
		return realtime.RoleTag(auth.RoleStudent), true
	}
	return "", false
}

// Directory resolves logical targets into principals. Implemented by the user
// repository; an empty result is valid.
type Directory interface {
	FindPrincipalsByRole(ctx context.Context, role string) ([]*auth.User, error)
	FindPrincipalsByRoleAndSemester(ctx context.Context, role string, semester int) ([]*auth.User, error)
	FindPrincipalsByRoleAndDepartment(ctx context.Context, role, department string) ([]*auth.User, error)
}

// Store persists durable notification records.
type Store interface {
	InsertMany(ctx context.Context, records []*Notification) error
	FindByRecipient(ctx context.Context, recipientID string, limit int64) ([]*Notification, error)
	MarkRead(ctx context.Context, ids []primitive.ObjectID, recipientID string) error
	MarkAllRead(ctx context.Context, recipientID string) error
}

// Pusher is the live-delivery half of fan-out: the connection registry.
type Pusher interface {
	PushToPrincipal(principalID, event string, payload interface{}) int
	PushToGroup(tag, event string, payload interface{}) int
}

// Emailer is the optional secondary channel for group announcements.
type Emailer interface {
	SendEmail(to, subject, body string) error
}

// Service is the fan-out dispatcher: resolve the target, write one durable
// record per recipient, then attempt live delivery. Durability is the only
// hard guarantee; live pushes are best-effort and unordered.
type Service struct {
	store     Store
	directory Directory
	pusher    Pusher
	emailer   Emailer
	logger    *zap.Logger
}

func NewService(store Store, directory Directory, pusher Pusher, emailer Emailer, logger *zap.Logger) *Service {
	return &Service{
		store:     store,
		directory: directory,
		pusher:    pusher,
		emailer:   emailer,
		logger:    logger.Named("dispatcher"),
	}
}

// NotifyNewResource fans a new-resource announcement out to the target.
// withEmail additionally mails each resolved recipient, best-effort.
func (s *Service) NotifyNewResource(ctx context.Context, target Target, message string, resource realtime.ResourceInfo, withEmail bool) error {
	payload := realtime.NewResourcePayload{
		Message:   message,
		Resource:  resource,
		Timestamp: time.Now(),
	}
	return s.dispatch(ctx, target, realtime.EventNewResource, payload, message, resource.ID, withEmail)
}

// NotifyResourceInteraction tells a resource's uploader that a student liked
// or commented on it.
func (s *Service) NotifyResourceInteraction(ctx context.Context, recipientID, message, resourceID, interactionType string, student realtime.StudentRef) error {
	payload := realtime.InteractionPayload{
		Message:         message,
		ResourceID:      resourceID,
		InteractionType: interactionType,
		Student:         student,
		Timestamp:       time.Now(),
	}
	target := Target{Kind: TargetPrincipal, PrincipalID: recipientID}
	return s.dispatch(ctx, target, realtime.EventResourceInteraction, payload, message, resourceID, false)
}

// principal is a resolved recipient. Email is present only when the directory
// was consulted.
type principal struct {
	ID    string
	Email string
}

func (s *Service) dispatch(ctx context.Context, target Target, event string, payload interface{}, message, resourceID string, withEmail bool) error {
	principals, err := s.resolve(ctx, target)
	if err != nil {
		// Resolution failures are the only errors that reach the caller.
		return fmt.Errorf("resolve target: %w", err)
	}
	if len(principals) == 0 {
		// Empty resolution is a successful no-op.
		return nil
	}

	now := time.Now()
	records := make([]*Notification, len(principals))
	for i, p := range principals {
		records[i] = &Notification{
			ID:                primitive.NewObjectID(),
			RecipientID:       p.ID,
			Message:           message,
			RelatedResourceID: resourceID,
			CreatedAt:         now,
		}
	}
	if err := s.store.InsertMany(ctx, records); err != nil {
		// The batch is unordered; whatever subset failed is logged and the
		// fan-out continues for everyone.
		s.logger.Warn("failed to persist some notification records",
			zap.String("event", event),
			zap.Int("recipients", len(records)),
			zap.Error(err))
	}

	delivered := 0
	for _, p := range principals {
		delivered += s.pusher.PushToPrincipal(p.ID, event, payload)
	}
	// Redundant second path for group-wide targets: a connected client may see
	// the same logical event twice and must dedupe.
	if tag, ok := target.GroupTag(); ok {
		s.pusher.PushToGroup(tag, event, payload)
	}
	s.logger.Info("notification dispatched",
		zap.String("event", event),
		zap.String("target", string(target.Kind)),
		zap.Int("recipients", len(principals)),
		zap.Int("live_deliveries", delivered))

	if withEmail && s.emailer != nil {
		s.sendEmails(principals, message)
	}
	return nil
}

// resolve turns a target into a concrete, deduplicated recipient set.
func (s *Service) resolve(ctx context.Context, target Target) ([]principal, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}

	if target.Kind == TargetPrincipal {
		return []principal{{ID: target.PrincipalID}}, nil
	}

	var users []*auth.User
	var err error
	switch target.Kind {
	case TargetDepartment:
		users, err = s.directory.FindPrincipalsByRoleAndDepartment(ctx, auth.RoleStudent, target.Department)
	case TargetSemester:
		users, err = s.directory.FindPrincipalsByRoleAndSemester(ctx, auth.RoleStudent, target.Semester)
	case TargetAllStudents:
		users, err = s.directory.FindPrincipalsByRole(ctx, auth.RoleStudent)
	}
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(users))
	principals := make([]principal, 0, len(users))
	for _, u := range users {
		id := u.ID.Hex()
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		principals = append(principals, principal{ID: id, Email: u.Email})
	}
	return principals, nil
}

// sendEmails mails each recipient best-effort; a bounce for one recipient
// never blocks the others.
func (s *Service) sendEmails(principals []principal, message string) {
	subject := os.Getenv("NOTIFICATION_EMAIL_SUBJECT")
	if subject == "" {
		subject = "New on VersatileShare"
	}
	for _, p := range principals {
		if p.Email == "" {
			continue
		}
		if err := s.emailer.SendEmail(p.Email, subject, message); err != nil {
			s.logger.Warn("failed to email notification",
				zap.String("recipient", p.ID),
				zap.Error(err))
		}
	}
}

// ListByRecipient returns the caller's durable records, newest first.
func (s *Service) ListByRecipient(ctx context.Context, recipientID string, limit int64) ([]*Notification, error) {
	return s.store.FindByRecipient(ctx, recipientID, limit)
}

// MarkRead flags the given records read for the recipient.
func (s *Service) MarkRead(ctx context.Context, ids []primitive.ObjectID, recipientID string) error {
	return s.store.MarkRead(ctx, ids, recipientID)
}

// MarkAllRead flags everything unread for the recipient.
func (s *Service) MarkAllRead(ctx context.Context, recipientID string) error {
	return s.store.MarkAllRead(ctx, recipientID)
}
