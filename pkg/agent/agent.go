// Package agent is the client half of the notification subsystem: it owns a
// single logical connection to the server, survives transient disconnects
// with capped exponential backoff, and surfaces each distinct server event as
// a user-visible alert exactly once.
package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"VersatileShare/internal/realtime"
)

// State of the logical connection.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateReady        State = "ready"
	StateTerminated   State = "terminated" // client asked for the close; sink until Connect is called again
	StateFailed       State = "failed"     // backoff cap hit; sink, manual intervention required
)

// ErrReconnectExhausted is surfaced once the configured number of consecutive
// handshake failures is reached. The agent stops retrying.
var ErrReconnectExhausted = errors.New("reconnect attempts exhausted")

// ErrNotReady is returned when a room command is attempted outside Ready.
var ErrNotReady = errors.New("connection not ready")

// Alert is one user-visible notification.
type Alert struct {
	Title      string
	Message    string
	ResourceID string
	ReceivedAt time.Time
}

type AlertHandler func(Alert)
type StateHandler func(State)
type UpdateHandler func(resourceID string, patch json.RawMessage)

// Config drives one Agent. URL is the socket endpoint; the bearer token is
// passed as the token query param.
type Config struct {
	URL   string
	Token string

	MaxAttempts int           // consecutive handshake failures before Failed
	BackoffBase time.Duration // first retry delay, doubled per failure
	BackoffMax  time.Duration // delay cap

	OnAlert  AlertHandler  // rendered alerts, at most once per dedupe tag
	OnState  StateHandler  // state transitions, including the Failed sink
	OnUpdate UpdateHandler // verbatim resource-update patches

	Logger *zap.Logger
}

const (
	defaultMaxAttempts = 5
	defaultBackoffBase = 500 * time.Millisecond
	defaultBackoffMax  = 30 * time.Second
)

type pendingAlert struct {
	alert Alert
	tag   string
}

// Agent maintains the logical connection. One instance per browser-session
// equivalent; the dedupe set lives for the life of the instance, across
// reconnects.
type Agent struct {
	cfg    Config
	dialer *websocket.Dialer
	logger *zap.Logger

	mu      sync.Mutex
	state   State
	conn    *websocket.Conn
	cancel  chan struct{}
	pending []pendingAlert
	seen    map[string]struct{}
	unread  int64
	running bool

	wg sync.WaitGroup
}

func New(cfg Config) *Agent {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = defaultBackoffBase
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = defaultBackoffMax
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Agent{
		cfg:    cfg,
		dialer: websocket.DefaultDialer,
		logger: cfg.Logger.Named("agent"),
		state:  StateDisconnected,
		seen:   make(map[string]struct{}),
	}
}

// State reports the current connection state.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// UnreadCount is the number of alert events received this session, including
// duplicates suppressed from rendering.
func (a *Agent) UnreadCount() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.unread
}

// ResetUnread clears the unread counter, e.g. when the user opens the feed.
func (a *Agent) ResetUnread() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.unread = 0
}

// Connect starts the connection loop. Valid from Disconnected and Terminated;
// a Failed agent needs manual intervention (a fresh instance) to escape.
func (a *Agent) Connect() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == StateFailed {
		return ErrReconnectExhausted
	}
	if a.running {
		return errors.New("already connected")
	}
	a.running = true
	a.cancel = make(chan struct{})
	a.wg.Add(1)
	go a.run(a.cancel)
	return nil
}

// Close terminates the logical connection. The agent moves to Terminated and
// stays there until Connect is called again.
func (a *Agent) Close() {
	a.mu.Lock()
	if !a.running || a.cancel == nil {
		a.mu.Unlock()
		return
	}
	close(a.cancel)
	a.cancel = nil
	if a.conn != nil {
		a.conn.Close()
	}
	a.mu.Unlock()
	a.wg.Wait()
}

// run is the connection loop: dial, wait for the handshake frame, consume
// events, and on loss schedule a retry with exponential backoff. It exits
// into one of the sink states.
func (a *Agent) run(cancel <-chan struct{}) {
	defer a.wg.Done()
	attempts := 0
	for {
		if cancelled(cancel) {
			a.finish(StateTerminated)
			return
		}
		a.setState(StateConnecting)

		conn, err := a.dial()
		if err != nil {
			attempts++
			a.logger.Warn("handshake failed",
				zap.Int("attempt", attempts),
				zap.Int("max_attempts", a.cfg.MaxAttempts),
				zap.Error(err))
			if attempts >= a.cfg.MaxAttempts {
				a.finish(StateFailed)
				return
			}
			a.setState(StateDisconnected)
			select {
			case <-cancel:
				a.finish(StateTerminated)
				return
			case <-time.After(a.backoff(attempts)):
			}
			continue
		}

		// Publish the conn under the same lock Close uses so a Close that
		// raced the dial is observed here, before readLoop can block on a
		// healthy transport.
		a.mu.Lock()
		if cancelled(cancel) {
			a.mu.Unlock()
			conn.Close()
			a.finish(StateTerminated)
			return
		}
		a.conn = conn
		a.mu.Unlock()

		confirmed := a.readLoop(conn)
		conn.Close()
		a.mu.Lock()
		a.conn = nil
		a.mu.Unlock()

		if cancelled(cancel) {
			a.finish(StateTerminated)
			return
		}
		if confirmed {
			// The handshake completed at some point on this transport, so the
			// failure streak starts over.
			attempts = 0
		} else {
			attempts++
			if attempts >= a.cfg.MaxAttempts {
				a.finish(StateFailed)
				return
			}
		}
		a.setState(StateDisconnected)
		select {
		case <-cancel:
			a.finish(StateTerminated)
			return
		case <-time.After(a.backoff(maxInt(attempts, 1))):
		}
	}
}

func (a *Agent) dial() (*websocket.Conn, error) {
	u, err := url.Parse(a.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("bad socket url: %w", err)
	}
	q := u.Query()
	q.Set("token", a.cfg.Token)
	u.RawQuery = q.Encode()

	conn, _, err := a.dialer.Dial(u.String(), nil)
	return conn, err
}

// readLoop consumes frames until the transport drops. Reports whether the
// server confirmed the handshake on this transport.
func (a *Agent) readLoop(conn *websocket.Conn) bool {
	confirmed := false
	for {
		var env realtime.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return confirmed
		}
		if env.Event == realtime.EventConnected {
			confirmed = true
			a.becomeReady()
			continue
		}
		a.handleEvent(env)
	}
}

// becomeReady flips to Ready and flushes every alert queued while the
// connection was unconfirmed.
func (a *Agent) becomeReady() {
	a.mu.Lock()
	queued := a.pending
	a.pending = nil
	a.mu.Unlock()

	a.setState(StateReady)
	for _, p := range queued {
		a.render(p.alert, p.tag)
	}
}

func (a *Agent) handleEvent(env realtime.Envelope) {
	switch env.Event {
	case realtime.EventNewResource:
		var payload realtime.NewResourcePayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			a.logger.Warn("malformed new-resource payload", zap.Error(err))
			return
		}
		alert := Alert{
			Title:      "New resource: " + payload.Resource.Title,
			Message:    payload.Message,
			ResourceID: payload.Resource.ID,
			ReceivedAt: time.Now(),
		}
		a.deliver(alert, dedupeTag(env.Event, payload.Resource.ID, alert.ReceivedAt))

	case realtime.EventResourceInteraction:
		var payload realtime.InteractionPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			a.logger.Warn("malformed resource-interaction payload", zap.Error(err))
			return
		}
		alert := Alert{
			Title:      "Resource " + payload.InteractionType,
			Message:    payload.Message,
			ResourceID: payload.ResourceID,
			ReceivedAt: time.Now(),
		}
		a.deliver(alert, dedupeTag(env.Event, payload.ResourceID, alert.ReceivedAt))

	case realtime.EventResourceUpdate:
		var cmd realtime.RoomCommand
		if err := json.Unmarshal(env.Data, &cmd); err != nil {
			a.logger.Warn("malformed resource-update payload", zap.Error(err))
			return
		}
		if a.cfg.OnUpdate != nil {
			a.cfg.OnUpdate(cmd.ResourceID, cmd.Patch)
		}

	default:
		a.logger.Warn("unknown server event", zap.String("event", env.Event))
	}
}

// deliver counts the event and either renders it now or, before the
// connection is confirmed, queues it for the Ready flush.
func (a *Agent) deliver(alert Alert, tag string) {
	a.mu.Lock()
	a.unread++
	if a.state != StateReady {
		a.pending = append(a.pending, pendingAlert{alert: alert, tag: tag})
		a.mu.Unlock()
		return
	}
	a.mu.Unlock()
	a.render(alert, tag)
}

// render shows the alert unless its tag was already seen this session. The
// dual delivery paths on the server (per-principal and per-group) make
// duplicate tags an expected, normal case.
func (a *Agent) render(alert Alert, tag string) {
	a.mu.Lock()
	if _, dup := a.seen[tag]; dup {
		a.mu.Unlock()
		return
	}
	a.seen[tag] = struct{}{}
	a.mu.Unlock()

	if a.cfg.OnAlert != nil {
		a.cfg.OnAlert(alert)
	}
}

// JoinResource subscribes this client to a resource room. Dropped with a
// warning outside Ready.
func (a *Agent) JoinResource(resourceID string) error {
	return a.sendCommand(realtime.CmdJoinResource, realtime.RoomCommand{ResourceID: resourceID})
}

// LeaveResource unsubscribes this client from a resource room.
func (a *Agent) LeaveResource(resourceID string) error {
	return a.sendCommand(realtime.CmdLeaveResource, realtime.RoomCommand{ResourceID: resourceID})
}

// SendResourceUpdate pushes a patch to the other subscribers of the resource.
func (a *Agent) SendResourceUpdate(resourceID string, patch json.RawMessage) error {
	return a.sendCommand(realtime.CmdResourceUpdate, realtime.RoomCommand{ResourceID: resourceID, Patch: patch})
}

func (a *Agent) sendCommand(event string, cmd realtime.RoomCommand) error {
	env, err := realtime.NewEnvelope(event, cmd)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateReady || a.conn == nil {
		a.logger.Warn("dropping command outside ready state",
			zap.String("command", event),
			zap.String("state", string(a.state)))
		return ErrNotReady
	}
	return a.conn.WriteJSON(env)
}

func (a *Agent) setState(next State) {
	a.mu.Lock()
	if a.state == next {
		a.mu.Unlock()
		return
	}
	a.state = next
	a.mu.Unlock()
	if a.cfg.OnState != nil {
		a.cfg.OnState(next)
	}
}

// finish enters a sink state and marks the loop stopped so Connect may be
// called again (Terminated) or refused (Failed). The sink state and the
// running flag flip under one lock; a Connect racing this must never see
// running false with the old state still in place.
func (a *Agent) finish(sink State) {
	a.mu.Lock()
	a.running = false
	changed := a.state != sink
	a.state = sink
	a.mu.Unlock()
	if changed && a.cfg.OnState != nil {
		a.cfg.OnState(sink)
	}
	if sink == StateFailed {
		a.logger.Error("giving up after repeated handshake failures",
			zap.Int("max_attempts", a.cfg.MaxAttempts))
	}
}

func (a *Agent) backoff(attempts int) time.Duration {
	delay := a.cfg.BackoffBase
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= a.cfg.BackoffMax {
			return a.cfg.BackoffMax
		}
	}
	if delay > a.cfg.BackoffMax {
		return a.cfg.BackoffMax
	}
	return delay
}

// dedupeTag derives the key used to suppress re-rendering. Events with no
// resource reference get a synthetic time-based tag and always render.
func dedupeTag(event, resourceID string, receivedAt time.Time) string {
	if resourceID == "" {
		return event + ":t:" + strconv.FormatInt(receivedAt.UnixNano(), 10)
	}
	return event + ":" + resourceID
}

func cancelled(cancel <-chan struct{}) bool {
	select {
	case <-cancel:
		return true
	default:
		return false
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
