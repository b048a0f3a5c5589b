package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"VersatileShare/internal/auth"
)

// Events pushed to clients.
const (
	EventConnected           = "connected"
	EventNewResource         = "new-resource"
	EventResourceInteraction = "resource-interaction"
	EventResourceUpdate      = "resource-update"
)

// Commands accepted from clients over the socket.
const (
	CmdJoinResource   = "join-resource"
	CmdLeaveResource  = "leave-resource"
	CmdResourceUpdate = "resource-update"
)

// Interaction types carried by resource-interaction events.
const (
	InteractionLike    = "like"
	InteractionComment = "comment"
)

// Envelope is the tagged wire frame: every message in either direction is an
// event name plus an event-specific payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals a payload into an outbound frame.
func NewEnvelope(event string, payload interface{}) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return Envelope{Event: event, Data: data}, nil
}

// ResourceInfo identifies the resource a notification is about.
type ResourceInfo struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Subject    string `json:"subject"`
	Semester   int    `json:"semester"`
	Type       string `json:"type"`
	UploadedBy string `json:"uploadedBy"`
}

// NewResourcePayload is the data of a new-resource event.
type NewResourcePayload struct {
	Message   string       `json:"message"`
	Resource  ResourceInfo `json:"resource"`
	Timestamp time.Time    `json:"timestamp"`
}

// StudentRef names the student who triggered an interaction.
type StudentRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// InteractionPayload is the data of a resource-interaction event.
type InteractionPayload struct {
	Message         string     `json:"message"`
	ResourceID      string     `json:"resourceId"`
	InteractionType string     `json:"interactionType"`
	Student         StudentRef `json:"student"`
	Timestamp       time.Time  `json:"timestamp"`
}

// ConnectedPayload confirms a completed handshake to the client.
type ConnectedPayload struct {
	SessionID string `json:"sessionId"`
}

// RoomCommand is the payload of every client command: a resource ID, plus an
// opaque patch for resource-update. The patch is re-broadcast verbatim.
type RoomCommand struct {
	ResourceID string          `json:"resourceId"`
	Patch      json.RawMessage `json:"patch,omitempty"`
}

var errUnknownCommand = errors.New("unknown command")

// ParseCommand validates an inbound frame at the boundary before any of it
// reaches the hub. Unknown events and commands without a resource ID are
// rejected here.
func ParseCommand(raw []byte) (string, RoomCommand, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", RoomCommand{}, fmt.Errorf("malformed frame: %w", err)
	}
	switch env.Event {
	case CmdJoinResource, CmdLeaveResource, CmdResourceUpdate:
	default:
		return "", RoomCommand{}, fmt.Errorf("%w: %q", errUnknownCommand, env.Event)
	}
	var cmd RoomCommand
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &cmd); err != nil {
			return "", RoomCommand{}, fmt.Errorf("malformed %s payload: %w", env.Event, err)
		}
	}
	if cmd.ResourceID == "" {
		return "", RoomCommand{}, fmt.Errorf("%s: missing resource id", env.Event)
	}
	return env.Event, cmd, nil
}

// Group tags a session can be subscribed to.
func UserTag(id string) string             { return "user:" + id }
func RoleTag(role string) string           { return "role:" + role }
func DepartmentTag(name string) string     { return "department:" + name }
func SemesterTag(n int) string             { return "semester:" + strconv.Itoa(n) }
func ResourceTag(resourceID string) string { return "resource:" + resourceID }

// GroupsForClaims resolves a principal's group memberships once, at
// connection-establishment time. The semester tag applies to students only.
func GroupsForClaims(claims *auth.JWTClaims) []string {
	groups := []string{UserTag(claims.UserID), RoleTag(claims.Role)}
	if claims.Department != "" {
		groups = append(groups, DepartmentTag(claims.Department))
	}
	if claims.Role == auth.RoleStudent && claims.Semester > 0 {
		groups = append(groups, SemesterTag(claims.Semester))
	}
	return groups
}
