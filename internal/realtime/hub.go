package realtime

import (
	"sync"

	"go.uber.org/zap"
)

// Hub is the connection registry: it maps every live session to its owning
// principal and group subscriptions, and fans frames out to them. All state is
// in-memory and process-local; durable fallback is the dispatcher's job.
type Hub struct {
	mu          sync.RWMutex
	sessions    map[*Session]struct{}
	byPrincipal map[string]map[*Session]struct{}
	byGroup     map[string]map[*Session]struct{}
	logger      *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		sessions:    make(map[*Session]struct{}),
		byPrincipal: make(map[string]map[*Session]struct{}),
		byGroup:     make(map[string]map[*Session]struct{}),
		logger:      logger.Named("hub"),
	}
}

// Register adds a session built from verified claims and subscribes it to its
// resolved groups. Credential verification happens before the session exists;
// the hub never sees an unauthenticated transport.
func (h *Hub) Register(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sessions[s] = struct{}{}
	if h.byPrincipal[s.PrincipalID] == nil {
		h.byPrincipal[s.PrincipalID] = make(map[*Session]struct{})
	}
	h.byPrincipal[s.PrincipalID][s] = struct{}{}
	for _, tag := range s.groups {
		h.subscribeLocked(s, tag)
	}
	h.logger.Info("session registered",
		zap.String("session_id", s.ID),
		zap.String("principal_id", s.PrincipalID),
		zap.Strings("groups", s.groups))
}

// Unregister removes a session from the registry. Idempotent: removing an
// unknown or already-removed session is a no-op.
func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.sessions[s]; !ok {
		return
	}
	delete(h.sessions, s)
	if peers := h.byPrincipal[s.PrincipalID]; peers != nil {
		delete(peers, s)
		if len(peers) == 0 {
			delete(h.byPrincipal, s.PrincipalID)
		}
	}
	for tag, members := range h.byGroup {
		delete(members, s)
		if len(members) == 0 {
			delete(h.byGroup, tag)
		}
	}
	h.logger.Info("session unregistered",
		zap.String("session_id", s.ID),
		zap.String("principal_id", s.PrincipalID))
}

// Subscribe adds a session to a group tag (resource rooms use this).
func (h *Hub) Subscribe(s *Session, tag string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[s]; !ok {
		return
	}
	h.subscribeLocked(s, tag)
}

// Unsubscribe removes a session from a group tag. No-op for unknown members.
func (h *Hub) Unsubscribe(s *Session, tag string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members := h.byGroup[tag]; members != nil {
		delete(members, s)
		if len(members) == 0 {
			delete(h.byGroup, tag)
		}
	}
}

func (h *Hub) subscribeLocked(s *Session, tag string) {
	if h.byGroup[tag] == nil {
		h.byGroup[tag] = make(map[*Session]struct{})
	}
	h.byGroup[tag][s] = struct{}{}
}

// PushToPrincipal delivers an event to every live session of the principal
// and reports how many accepted it. Zero live sessions is not an error; the
// caller's durable record covers offline recipients.
func (h *Hub) PushToPrincipal(principalID, event string, payload interface{}) int {
	env, err := NewEnvelope(event, payload)
	if err != nil {
		h.logger.Error("failed to encode push", zap.String("event", event), zap.Error(err))
		return 0
	}

	h.mu.RLock()
	targets := snapshot(h.byPrincipal[principalID])
	h.mu.RUnlock()

	return h.deliver(targets, env, nil)
}

// PushToGroup delivers an event to every session subscribed to the tag.
func (h *Hub) PushToGroup(tag, event string, payload interface{}) int {
	return h.pushToGroup(tag, event, payload, nil)
}

// pushToGroup optionally skips one session, used when re-broadcasting a
// client's own resource-update to the rest of the room.
func (h *Hub) pushToGroup(tag, event string, payload interface{}, except *Session) int {
	env, err := NewEnvelope(event, payload)
	if err != nil {
		h.logger.Error("failed to encode push", zap.String("event", event), zap.Error(err))
		return 0
	}

	h.mu.RLock()
	targets := snapshot(h.byGroup[tag])
	h.mu.RUnlock()

	return h.deliver(targets, env, except)
}

func (h *Hub) deliver(targets []*Session, env Envelope, except *Session) int {
	delivered := 0
	for _, s := range targets {
		if s == except {
			continue
		}
		if s.enqueue(env) {
			delivered++
		} else {
			// Slow client: frame dropped, durable record remains the fallback.
			h.logger.Warn("send buffer full, dropping frame",
				zap.String("session_id", s.ID),
				zap.String("event", env.Event))
		}
	}
	return delivered
}

// CloseAll tears down every live session, used on server shutdown.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	targets := snapshot(h.sessions)
	h.mu.RUnlock()
	for _, s := range targets {
		s.Close()
	}
}

// snapshot copies a session set so writes happen outside the registry lock.
func snapshot(set map[*Session]struct{}) []*Session {
	targets := make([]*Session, 0, len(set))
	for s := range set {
		targets = append(targets, s)
	}
	return targets
}
