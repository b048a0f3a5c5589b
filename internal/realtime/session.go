package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"VersatileShare/internal/auth"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 64
)

// Session is one live transport owned by the registry: one browser tab, one
// entry. The websocket handle is held exclusively here; nothing outside the
// session writes to it or outlives it.
type Session struct {
	ID          string
	PrincipalID string
	Claims      *auth.JWTClaims

	groups []string
	hub    *Hub
	conn   *websocket.Conn
	send   chan Envelope
	done   chan struct{}
	once   sync.Once
	logger *zap.Logger
}

// NewSession builds a registry entry from already-verified claims. Group
// memberships are resolved here, once, and not refreshed for the lifetime of
// the connection.
func NewSession(hub *Hub, conn *websocket.Conn, claims *auth.JWTClaims, logger *zap.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		ID:          id,
		PrincipalID: claims.UserID,
		Claims:      claims,
		groups:      GroupsForClaims(claims),
		hub:         hub,
		conn:        conn,
		send:        make(chan Envelope, sendBufferSize),
		done:        make(chan struct{}),
		logger:      logger.Named("session").With(zap.String("session_id", id)),
	}
}

// enqueue hands a frame to the write pump without blocking. A full buffer
// means a slow client; the frame is dropped and the caller decides what that
// means.
func (s *Session) enqueue(env Envelope) bool {
	select {
	case <-s.done:
		return false
	case s.send <- env:
		return true
	default:
		return false
	}
}

// Close tears the session down. Safe to call more than once and from either
// pump.
func (s *Session) Close() {
	s.once.Do(func() {
		close(s.done)
		if s.conn != nil {
			s.conn.Close()
		}
	})
}

// writePump serializes all writes to the transport: queued frames and
// keepalive pings. Transport timeouts here tear the entry down exactly as an
// explicit disconnect would.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.hub.Unregister(s)
		s.Close()
	}()

	for {
		select {
		case env := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(env); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// readPump consumes client commands until the transport closes or errors,
// then removes the registry entry.
func (s *Session) readPump() {
	defer func() {
		s.hub.Unregister(s)
		s.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		s.handleCommand(raw)
	}
}

func (s *Session) handleCommand(raw []byte) {
	event, cmd, err := ParseCommand(raw)
	if err != nil {
		s.logger.Warn("rejected client frame", zap.Error(err))
		return
	}
	switch event {
	case CmdJoinResource:
		s.hub.Subscribe(s, ResourceTag(cmd.ResourceID))
	case CmdLeaveResource:
		s.hub.Unsubscribe(s, ResourceTag(cmd.ResourceID))
	case CmdResourceUpdate:
		// Re-broadcast verbatim to the other subscribers of the resource.
		// The patch contents are not interpreted here.
		s.hub.pushToGroup(ResourceTag(cmd.ResourceID), EventResourceUpdate, cmd, s)
	}
}
