package hubsocket

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the connection state of a Session.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
)

var stateNames = [...]string{
	Disconnected: "Disconnected",
	Connecting:   "Connecting",
	Connected:    "Connected",
	Reconnecting: "Reconnecting",
}

func (s State) String() string {
	if int(s) >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", s)
}

// Session is one logical connection to the hub. It is owned by the
// application; the Transport mutates it under the session's own lock.
type Session struct {
	id string

	mu              sync.Mutex
	state           State
	lastActiveAt    time.Time
	reconnectWindow time.Duration
	groupsToken     string
	messageID       string
	connectionToken string
	connectionID    string
	negotiation     *NegotiationResult
	stopCause       error

	now       func() time.Time
	observers []func(old, new State)
	hook      func(old, new State) // set by the transport driving the session
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithReconnectWindow sets the reconnect window used until a negotiation
// response supplies one.
func WithReconnectWindow(d time.Duration) SessionOption {
	return func(s *Session) {
		s.reconnectWindow = d
	}
}

// WithClock replaces the session's time source.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// WithStateObserver registers fn to be called after every state transition.
// fn runs on the goroutine that performed the transition.
func WithStateObserver(fn func(old, new State)) SessionOption {
	return func(s *Session) {
		if fn != nil {
			s.observers = append(s.observers, fn)
		}
	}
}

// NewSession creates a Disconnected session.
func NewSession(opts ...SessionOption) *Session {
	s := &Session{
		id:    uuid.New().String(),
		state: Disconnected,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the client-side identifier used to correlate log lines.
func (s *Session) ID() string {
	return s.id
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) LastActiveAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActiveAt
}

func (s *Session) ReconnectWindow() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnectWindow
}

// GroupsToken returns the last groups token sent by the server.
func (s *Session) GroupsToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.groupsToken
}

// MessageID returns the message-sequence cursor used to resume after a reconnect.
func (s *Session) MessageID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messageID
}

// ConnectionToken returns the resume token assigned during negotiation.
func (s *Session) ConnectionToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectionToken
}

// Negotiation returns the result of the last successful negotiation, or nil.
func (s *Session) Negotiation() *NegotiationResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.negotiation
}

// StopCause returns why the session last stopped. It is nil after an
// explicit Stop and ErrRestartFailed after a silent stop.
func (s *Session) StopCause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopCause
}

// changeState moves the session from old to new and reports whether it did.
func (s *Session) changeState(old, new State) bool {
	s.mu.Lock()
	if s.state != old {
		s.mu.Unlock()
		return false
	}
	s.state = new
	observers, hook := s.observers, s.hook
	s.mu.Unlock()

	notify(observers, hook, old, new)
	return true
}

// setState forces the session into st and returns the previous state.
func (s *Session) setState(st State) State {
	s.mu.Lock()
	old := s.state
	s.state = st
	observers, hook := s.observers, s.hook
	s.mu.Unlock()

	if old != st {
		notify(observers, hook, old, st)
	}
	return old
}

// ensureReconnecting moves a Connected session to Reconnecting and reports
// whether the session is now Reconnecting.
func (s *Session) ensureReconnecting() bool {
	s.changeState(Connected, Reconnecting)
	return s.State() == Reconnecting
}

func (s *Session) markActive() {
	s.mu.Lock()
	s.lastActiveAt = s.now()
	s.mu.Unlock()
}

// sinceActive returns the time elapsed since the last observed activity.
func (s *Session) sinceActive() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now().Sub(s.lastActiveAt)
}

func (s *Session) setGroupsToken(token string) {
	s.mu.Lock()
	s.groupsToken = token
	s.mu.Unlock()
}

func (s *Session) setMessageID(id string) {
	s.mu.Lock()
	s.messageID = id
	s.mu.Unlock()
}

func (s *Session) setStopCause(err error) {
	s.mu.Lock()
	s.stopCause = err
	s.mu.Unlock()
}

// applyNegotiation records a negotiation result and resets per-connection cursors.
func (s *Session) applyNegotiation(n *NegotiationResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.negotiation = n
	s.connectionToken = n.ConnectionToken
	s.connectionID = n.ConnectionID
	s.groupsToken = ""
	s.messageID = ""
	s.stopCause = nil
	if w := n.reconnectWindow(); w > 0 {
		s.reconnectWindow = w
	}
}

func (s *Session) setHook(fn func(old, new State)) {
	s.mu.Lock()
	s.hook = fn
	s.mu.Unlock()
}

func notify(observers []func(old, new State), hook func(old, new State), old, new State) {
	if hook != nil {
		hook(old, new)
	}
	for _, fn := range observers {
		fn(old, new)
	}
}

// defaultReconnectWindow sets the reconnect window when none was configured.
func (s *Session) defaultReconnectWindow(d time.Duration) {
	s.mu.Lock()
	if s.reconnectWindow <= 0 {
		s.reconnectWindow = d
	}
	s.mu.Unlock()
}
