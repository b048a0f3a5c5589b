package notification

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"VersatileShare/internal/auth"
	"VersatileShare/internal/realtime"
)

type fakeDirectory struct {
	users map[string][]*auth.User // keyed by query shape
	err   error
}

func (d *fakeDirectory) FindPrincipalsByRole(_ context.Context, role string) ([]*auth.User, error) {
	return d.users["role:"+role], d.err
}

func (d *fakeDirectory) FindPrincipalsByRoleAndSemester(_ context.Context, role string, semester int) ([]*auth.User, error) {
	return d.users["semester"], d.err
}

func (d *fakeDirectory) FindPrincipalsByRoleAndDepartment(_ context.Context, role, department string) ([]*auth.User, error) {
	return d.users["department:"+department], d.err
}

type fakeStore struct {
	mu       sync.Mutex
	inserted []*Notification
	err      error
}

func (s *fakeStore) InsertMany(_ context.Context, records []*Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserted = append(s.inserted, records...)
	return s.err
}

func (s *fakeStore) FindByRecipient(_ context.Context, recipientID string, limit int64) ([]*Notification, error) {
	return nil, nil
}

func (s *fakeStore) MarkRead(_ context.Context, ids []primitive.ObjectID, recipientID string) error {
	return nil
}

func (s *fakeStore) MarkAllRead(_ context.Context, recipientID string) error {
	return nil
}

func (s *fakeStore) recordsFor(recipientID string) []*Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Notification
	for _, n := range s.inserted {
		if n.RecipientID == recipientID {
			out = append(out, n)
		}
	}
	return out
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inserted)
}

type fakePusher struct {
	mu              sync.Mutex
	online          map[string]int // live session count per principal
	principalPushes map[string]int
	groupPushes     map[string]int
}

func newFakePusher(online map[string]int) *fakePusher {
	if online == nil {
		online = map[string]int{}
	}
	return &fakePusher{
		online:          online,
		principalPushes: map[string]int{},
		groupPushes:     map[string]int{},
	}
}

func (p *fakePusher) PushToPrincipal(principalID, event string, payload interface{}) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.principalPushes[principalID]++
	return p.online[principalID]
}

func (p *fakePusher) PushToGroup(tag, event string, payload interface{}) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.groupPushes[tag]++
	return 0
}

type fakeEmailer struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (e *fakeEmailer) SendEmail(to, subject, body string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sent = append(e.sent, to)
	return e.err
}

func student(id, email string) *auth.User {
	oid, _ := primitive.ObjectIDFromHex(id)
	return &auth.User{ID: oid, Email: email, Role: auth.RoleStudent}
}

// hexID builds a deterministic 24-char object id from a suffix.
func hexID(n byte) string {
	id := []byte("000000000000000000000000")
	const digits = "0123456789abcdef"
	id[22] = digits[n/16]
	id[23] = digits[n%16]
	return string(id)
}

func TestNotifySinglePrincipalTwoTabs(t *testing.T) {
	store := &fakeStore{}
	pusher := newFakePusher(map[string]int{"u1": 2})
	svc := NewService(store, &fakeDirectory{}, pusher, nil, zap.NewNop())

	target := Target{Kind: TargetPrincipal, PrincipalID: "u1"}
	err := svc.NotifyNewResource(context.Background(), target, "X uploaded", realtime.ResourceInfo{ID: "r1"}, false)
	require.NoError(t, err)

	// Exactly one durable record even though two tabs are live.
	records := store.recordsFor("u1")
	require.Len(t, records, 1)
	assert.Equal(t, "X uploaded", records[0].Message)
	assert.Equal(t, "r1", records[0].RelatedResourceID)
	assert.False(t, records[0].Read)

	assert.Equal(t, 1, pusher.principalPushes["u1"])
	assert.Empty(t, pusher.groupPushes, "single-principal targets have no group channel")
}

func TestNotifySemesterFanout(t *testing.T) {
	// 50 students in semester 3, only 5 with live connections.
	var users []*auth.User
	online := map[string]int{}
	for i := 0; i < 50; i++ {
		u := student(hexID(byte(i)), "")
		users = append(users, u)
		if i < 5 {
			online[u.ID.Hex()] = 1
		}
	}
	store := &fakeStore{}
	pusher := newFakePusher(online)
	dir := &fakeDirectory{users: map[string][]*auth.User{"semester": users}}
	svc := NewService(store, dir, pusher, nil, zap.NewNop())

	target := Target{Kind: TargetSemester, Semester: 3}
	err := svc.NotifyNewResource(context.Background(), target, "Y uploaded", realtime.ResourceInfo{ID: "r2"}, false)
	require.NoError(t, err)

	assert.Equal(t, 50, store.count(), "every resolved student gets a durable record")
	assert.Len(t, pusher.principalPushes, 50, "live delivery attempted for everyone")
	assert.Equal(t, 1, pusher.groupPushes[realtime.SemesterTag(3)], "one redundant group push")
}

func TestNotifyEmptyResolutionIsSuccess(t *testing.T) {
	store := &fakeStore{}
	pusher := newFakePusher(nil)
	dir := &fakeDirectory{users: map[string][]*auth.User{}}
	svc := NewService(store, dir, pusher, nil, zap.NewNop())

	target := Target{Kind: TargetDepartment, Department: "Astrology"}
	err := svc.NotifyNewResource(context.Background(), target, "Z uploaded", realtime.ResourceInfo{ID: "r3"}, false)

	require.NoError(t, err)
	assert.Zero(t, store.count())
	assert.Empty(t, pusher.principalPushes)
	assert.Empty(t, pusher.groupPushes)
}

func TestNotifyResolutionErrorPropagates(t *testing.T) {
	store := &fakeStore{}
	dir := &fakeDirectory{err: errors.New("directory down")}
	svc := NewService(store, dir, newFakePusher(nil), nil, zap.NewNop())

	target := Target{Kind: TargetAllStudents}
	err := svc.NotifyNewResource(context.Background(), target, "msg", realtime.ResourceInfo{}, false)

	require.Error(t, err)
	assert.Zero(t, store.count())
}

func TestPersistenceFailureDoesNotBlockLiveDelivery(t *testing.T) {
	store := &fakeStore{err: errors.New("write concern failed")}
	pusher := newFakePusher(nil)
	dir := &fakeDirectory{users: map[string][]*auth.User{
		"semester": {student(hexID(1), ""), student(hexID(2), "")},
	}}
	svc := NewService(store, dir, pusher, nil, zap.NewNop())

	target := Target{Kind: TargetSemester, Semester: 1}
	err := svc.NotifyNewResource(context.Background(), target, "msg", realtime.ResourceInfo{ID: "r1"}, false)

	require.NoError(t, err, "durable-write failures never reach the caller")
	assert.Len(t, pusher.principalPushes, 2)
	assert.Equal(t, 1, pusher.groupPushes[realtime.SemesterTag(1)])
}

func TestResolutionDeduplicatesPrincipals(t *testing.T) {
	dup := student(hexID(7), "dup@uni.edu")
	store := &fakeStore{}
	dir := &fakeDirectory{users: map[string][]*auth.User{
		"department:CS": {dup, dup, student(hexID(8), "")},
	}}
	svc := NewService(store, dir, newFakePusher(nil), nil, zap.NewNop())

	target := Target{Kind: TargetDepartment, Department: "CS"}
	err := svc.NotifyNewResource(context.Background(), target, "msg", realtime.ResourceInfo{ID: "r1"}, false)

	require.NoError(t, err)
	assert.Equal(t, 2, store.count())
	assert.Len(t, store.recordsFor(dup.ID.Hex()), 1)
}

func TestConcurrentNotifiesKeepRecordInvariant(t *testing.T) {
	users := []*auth.User{student(hexID(1), ""), student(hexID(2), ""), student(hexID(3), "")}
	store := &fakeStore{}
	dir := &fakeDirectory{users: map[string][]*auth.User{"semester": users}}
	svc := NewService(store, dir, newFakePusher(nil), nil, zap.NewNop())

	const calls = 10
	var wg sync.WaitGroup
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			target := Target{Kind: TargetSemester, Semester: 3}
			err := svc.NotifyNewResource(context.Background(), target, "msg", realtime.ResourceInfo{ID: "r1"}, false)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// One record per resolved principal per call, never more, never fewer.
	assert.Equal(t, calls*len(users), store.count())
	for _, u := range users {
		assert.Len(t, store.recordsFor(u.ID.Hex()), calls)
	}
}

func TestNotifyResourceInteraction(t *testing.T) {
	store := &fakeStore{}
	pusher := newFakePusher(map[string]int{"faculty1": 1})
	svc := NewService(store, &fakeDirectory{}, pusher, nil, zap.NewNop())

	studentRef := realtime.StudentRef{ID: "u1", Name: "Ada"}
	err := svc.NotifyResourceInteraction(context.Background(), "faculty1", `Ada liked your resource "Graphs"`, "r9", realtime.InteractionLike, studentRef)
	require.NoError(t, err)

	require.Len(t, store.recordsFor("faculty1"), 1)
	assert.Equal(t, 1, pusher.principalPushes["faculty1"])
	assert.Empty(t, pusher.groupPushes)
}

func TestEmailChannelBestEffort(t *testing.T) {
	users := []*auth.User{student(hexID(1), "a@uni.edu"), student(hexID(2), ""), student(hexID(3), "c@uni.edu")}
	emailer := &fakeEmailer{err: errors.New("bounce")}
	store := &fakeStore{}
	dir := &fakeDirectory{users: map[string][]*auth.User{"role:student": users}}
	svc := NewService(store, dir, newFakePusher(nil), emailer, zap.NewNop())

	target := Target{Kind: TargetAllStudents}
	err := svc.NotifyNewResource(context.Background(), target, "msg", realtime.ResourceInfo{ID: "r1"}, true)

	require.NoError(t, err, "email failures never reach the caller")
	assert.ElementsMatch(t, []string{"a@uni.edu", "c@uni.edu"}, emailer.sent, "recipients without an address are skipped")
}

func TestTargetValidate(t *testing.T) {
	tests := []struct {
		name    string
		target  Target
		wantErr bool
	}{
		{name: "principal ok", target: Target{Kind: TargetPrincipal, PrincipalID: "u1"}},
		{name: "principal missing id", target: Target{Kind: TargetPrincipal}, wantErr: true},
		{name: "department ok", target: Target{Kind: TargetDepartment, Department: "CS"}},
		{name: "department missing name", target: Target{Kind: TargetDepartment}, wantErr: true},
		{name: "semester ok", target: Target{Kind: TargetSemester, Semester: 3}},
		{name: "semester zero", target: Target{Kind: TargetSemester}, wantErr: true},
		{name: "all students ok", target: Target{Kind: TargetAllStudents}},
		{name: "unknown kind", target: Target{Kind: "everyone"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.target.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTargetGroupTag(t *testing.T) {
	tag, ok := Target{Kind: TargetSemester, Semester: 3}.GroupTag()
	require.True(t, ok)
	assert.Equal(t, "semester:3", tag)

	tag, ok = Target{Kind: TargetDepartment, Department: "CS"}.GroupTag()
	require.True(t, ok)
	assert.Equal(t, "department:CS", tag)

	tag, ok = Target{Kind: TargetAllStudents}.GroupTag()
	require.True(t, ok)
	assert.Equal(t, "role:student", tag)

	_, ok = Target{Kind: TargetPrincipal, PrincipalID: "u1"}.GroupTag()
	assert.False(t, ok)
}
