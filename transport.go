package hubsocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Transport drives a Session over a WebSocket: negotiation, connect,
// reconnect, send dispatch and envelope decoding. The Consumer never sees
// the transport's internal retries, only payloads, reconnects and errors.
type Transport struct {
	cfg        Config
	consumer   Consumer
	httpClient *http.Client
	newSocket  SocketFactory
	log        zerolog.Logger
	metrics    *Metrics

	headerMu sync.Mutex
	headers  http.Header

	bindMu sync.Mutex // serializes binding a session in Start

	mu         sync.Mutex // protects the fields below
	session    *Session
	socket     Socket
	generation uint64
	disconnect context.Context
	stopFn     context.CancelFunc
	closed     bool

	reconnecting atomic.Bool
}

// NewTransport creates a transport for the given configuration. The
// consumer receives payloads and lifecycle events; it must not be nil.
func NewTransport(cfg Config, consumer Consumer, opts ...Option) (*Transport, error) {
	resolved, err := resolveConfig(cfg)
	if err != nil {
		return nil, err
	}
	if consumer == nil {
		return nil, errors.New("consumer must not be nil")
	}

	o := transportDefaults()
	for _, opt := range opts {
		opt(&o)
	}

	httpClient := o.httpClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if httpClient.Jar == nil && resolved.Jar != nil {
		c := *httpClient
		c.Jar = resolved.Jar
		httpClient = &c
	}

	headers := http.Header{}
	if resolved.Headers != nil {
		headers = resolved.Headers.Clone()
	}

	t := &Transport{
		cfg:        resolved,
		consumer:   consumer,
		httpClient: httpClient,
		newSocket:  o.socketFactory,
		log:        o.logger.With().Str("component", "transport").Logger(),
		metrics:    o.metrics,
		headers:    headers,
	}
	if t.newSocket == nil {
		t.newSocket = WebSocketFactory(WebSocketConfig{
			Dialer: &websocket.Dialer{
				Proxy:            http.ProxyFromEnvironment,
				HandshakeTimeout: resolved.HandshakeTimeout,
				Jar:              resolved.Jar,
			},
			QueueLimit: resolved.SendQueueLimit,
			Logger:     o.logger,
			Metrics:    o.metrics,
		})
	}
	return t, nil
}

// Start negotiates with the server and opens the first socket. It returns
// once the socket handshake completed; the session is then Connected.
// A failed negotiation leaves the session Disconnected with no socket.
// A transport drives one session at a time; starting another session while
// the bound one is active returns ErrTransportBusy.
func (t *Transport) Start(ctx context.Context, s *Session) error {
	if s == nil {
		return errors.New("session must not be nil")
	}
	if err := t.bind(s); err != nil {
		return err
	}
	s.markActive()
	s.defaultReconnectWindow(t.cfg.ReconnectWindow)
	log := t.sessionLog(s)

	neg, err := t.negotiate(ctx, s)
	if err != nil {
		s.setState(Disconnected)
		log.Error().Err(err).Msg("negotiation failed")
		return err
	}
	s.applyNegotiation(neg)

	connectURL, err := buildConnectURL(t.urlParams(s))
	if err != nil {
		s.setState(Disconnected)
		return &ConnectError{URL: t.cfg.URL, Cause: err}
	}

	disconnect := t.beginConnection()
	// The caller's ctx bounds the handshake; the socket itself lives until
	// the disconnect signal fires.
	abandon := context.AfterFunc(ctx, t.disposeSocket)
	cc, err := t.openSocket(disconnect, s, connectURL)
	abandon()
	if err == nil && cc.lost.Load() {
		// Dropped before the handshake finished.
		t.disposeSocket()
		err = ErrConnectionLost
	}
	if err != nil {
		t.endConnection()
		s.setState(Disconnected)
		t.metrics.connectError()
		log.Error().Err(err).Str("url", connectURL).Msg("connect failed")
		return &ConnectError{URL: connectURL, Cause: err}
	}

	s.markActive()
	if !s.changeState(Connecting, Connected) {
		// Stopped while the socket was opening.
		t.disposeSocket()
		return ErrSessionStopped
	}
	if cc.lost.Load() {
		cc.connectionLost()
	}
	if ka := neg.KeepAlive(); ka > 0 {
		go t.monitorKeepAlive(disconnect, s, ka)
	}
	log.Info().Str("connection_id", neg.ConnectionID).Msg("connected")
	return nil
}

// Send queues payload as a text frame on the current socket. A Disconnected
// session is started first. While a reconnect is in flight there is no
// socket; Send then returns ErrTransportUnavailable and reports it to the
// consumer.
func (t *Transport) Send(ctx context.Context, s *Session, payload string) error {
	if s == nil {
		return errors.New("session must not be nil")
	}
	if s.State() == Disconnected {
		if err := t.Start(ctx, s); err != nil && !errors.Is(err, ErrAlreadyStarted) {
			return err
		}
	}

	sock := t.currentSocket()
	if sock == nil {
		if s.State() != Disconnected {
			t.consumer.OnError(ErrTransportUnavailable)
		}
		return ErrTransportUnavailable
	}
	return sock.Enqueue(payload)
}

// Stop disconnects the session. The transport can start it again. Sessions
// the transport is not driving are left alone.
func (t *Transport) Stop(s *Session) {
	t.mu.Lock()
	bound := s != nil && t.session == s
	t.mu.Unlock()
	if !bound {
		return
	}
	t.stop(s, nil, "explicit")
}

// bind makes s the transport's session and moves it to Connecting.
func (t *Transport) bind(s *Session) error {
	t.bindMu.Lock()
	defer t.bindMu.Unlock()

	t.mu.Lock()
	closed, cur := t.closed, t.session
	t.mu.Unlock()
	if closed {
		return ErrTransportClosed
	}
	if cur != nil && cur != s && cur.State() != Disconnected {
		return ErrTransportBusy
	}

	s.setHook(t.metrics.stateChanged)
	if !s.changeState(Disconnected, Connecting) {
		return ErrAlreadyStarted
	}
	t.mu.Lock()
	t.session = s
	t.mu.Unlock()
	return nil
}

// Close stops the bound session, tells the server the connection is gone
// and makes the transport unusable.
func (t *Transport) Close(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	s := t.session
	t.mu.Unlock()

	if s == nil {
		return nil
	}
	wasActive := s.State() != Disconnected
	t.stop(s, nil, "closed")
	if wasActive && s.ConnectionToken() != "" {
		if err := t.abort(ctx, s); err != nil {
			t.sessionLog(s).Debug().Err(err).Msg("abort request failed")
		}
	}
	return nil
}

// stop moves the session to Disconnected and releases the socket. cause is
// reported to the consumer unless it is nil or ErrRestartFailed.
func (t *Transport) stop(s *Session, cause error, reason string) {
	t.endConnection()
	t.disposeSocket()
	s.setStopCause(cause)
	if old := s.setState(Disconnected); old == Disconnected {
		return
	}
	t.metrics.sessionStopped(reason)

	log := t.sessionLog(s)
	if cause == nil {
		log.Info().Str("reason", reason).Msg("stopped")
		return
	}
	log.Warn().Err(cause).Str("reason", reason).Msg("stopped")
	if !errors.Is(cause, ErrRestartFailed) {
		t.consumer.OnError(cause)
	}
}

// reconnect reopens the socket at the reconnect URL until it succeeds, the
// reconnect window is exceeded, the session leaves Reconnecting, or the
// connection is stopped. It returns the connection it opened, or nil.
func (t *Transport) reconnect(ctx context.Context, s *Session) *connectionHolder {
	if st := s.State(); st != Connected && st != Reconnecting {
		return nil
	}
	log := t.sessionLog(s)
	reconnectURL, err := buildReconnectURL(t.urlParams(s))
	if err != nil {
		t.stop(s, err, "error")
		return nil
	}

	t.disposeSocket()
	delay := newBackoff(t.cfg.ReconnectDelay, t.cfg.ReconnectMaxDelay)

	for t.verifyLastActive(s) && s.ensureReconnecting() && ctx.Err() == nil {
		t.metrics.reconnectAttempt()
		log.Debug().Str("url", reconnectURL).Msg("reconnecting")

		cc, err := t.openSocket(ctx, s, reconnectURL)
		if err == nil {
			s.markActive()
			if !s.changeState(Reconnecting, Connected) {
				t.disposeSocket()
				return nil
			}
			t.metrics.reconnected()
			log.Info().Msg("reconnected")
			return cc
		}
		if ctx.Err() != nil {
			return nil
		}

		t.metrics.connectError()
		t.consumer.OnError(&ConnectError{URL: reconnectURL, Cause: err})

		wait := delay.next()
		log.Debug().Err(err).Dur("delay", wait).Msg("reconnect attempt failed")
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil
		}
	}
	return nil
}

// verifyLastActive stops the session when no activity was observed within
// its reconnect window.
func (t *Transport) verifyLastActive(s *Session) bool {
	window := s.ReconnectWindow()
	if s.sinceActive() < window {
		return true
	}
	t.sessionLog(s).Warn().Msg("no active server connection for an extended period of time, stopping connection")
	t.stop(s, &ReconnectWindowExceededError{LastActiveAt: s.LastActiveAt(), Window: window}, "reconnect_window")
	return false
}

// lostConnection starts the reconnect loop unless one is already running,
// the session is not past its first connect, or the connection was stopped.
func (t *Transport) lostConnection(s *Session) {
	if st := s.State(); st != Connected && st != Reconnecting {
		return
	}
	ctx := t.disconnectContext()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	if !t.reconnecting.CompareAndSwap(false, true) {
		return
	}
	t.sessionLog(s).Info().Msg("connection lost")
	go func() {
		cc := t.reconnect(ctx, s)
		t.reconnecting.Store(false)
		if cc == nil {
			return
		}
		// A loss reported while the loop was still running was dropped.
		if cc.lost.Load() {
			cc.connectionLost()
		}
		t.consumer.OnReconnected()
	}()
}

// processResponse handles one inbound frame and reports whether the server
// asked the client to reconnect. Errors never escape it.
func (t *Transport) processResponse(s *Session, raw string) bool {
	s.markActive()

	env, err := decodeEnvelope(raw)
	if err != nil {
		t.metrics.decodeError()
		t.sessionLog(s).Debug().Err(err).Msg("dropping frame")
		t.consumer.OnError(&DecodeError{Raw: raw, Cause: err})
		return false
	}
	if env == nil {
		return false
	}
	if env.Init {
		t.consumer.OnPayload(json.RawMessage(raw))
		return false
	}

	if env.GroupsToken != nil {
		s.setGroupsToken(*env.GroupsToken)
	}
	if env.MessageID != nil {
		s.setMessageID(*env.MessageID)
	}
	for _, m := range env.Messages {
		t.consumer.OnPayload(m)
	}

	if env.Restart {
		t.restart(s)
	}
	if env.ShouldReconnect {
		t.lostConnection(s)
	}
	return env.ShouldReconnect
}

// restart re-sends the start request after the server restarted its
// keep-alive cycle. An unexpected acknowledgement stops the session
// without reporting an error.
func (t *Transport) restart(s *Session) {
	ctx := t.disconnectContext()
	if ctx == nil {
		return
	}
	ack, err := t.fetchStart(ctx, s)
	if err != nil {
		t.consumer.OnError(fmt.Errorf("restart handshake: %w", err))
		return
	}
	if ack != startAcknowledgement {
		t.sessionLog(s).Warn().Str("response", ack).Msg("restart not acknowledged")
		t.stop(s, ErrRestartFailed, "restart_failed")
	}
}

// openSocket creates a socket, installs it as the current one and connects
// it. It fails when another socket is still installed.
func (t *Transport) openSocket(ctx context.Context, s *Session, uri string) (*connectionHolder, error) {
	t.mu.Lock()
	t.generation++
	gen := t.generation
	t.mu.Unlock()

	cc := &connectionHolder{t: t, s: s, gen: gen}
	sock := t.newSocket(cc, &frameDispatcher{t: t, s: s})

	t.mu.Lock()
	if t.socket != nil || t.generation != gen {
		t.mu.Unlock()
		sock.Dispose()
		return nil, errors.New("another socket is active")
	}
	t.socket = sock
	t.mu.Unlock()

	t.prepareSocket(sock)
	if err := sock.Connect(ctx, uri); err != nil {
		t.releaseSocket(sock)
		return nil, err
	}
	return cc, nil
}

func (t *Transport) currentSocket() Socket {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.socket
}

func (t *Transport) isCurrent(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.socket != nil && t.generation == gen
}

// disposeSocket detaches the current socket and disposes it.
func (t *Transport) disposeSocket() {
	t.mu.Lock()
	sock := t.socket
	t.socket = nil
	t.mu.Unlock()

	if sock != nil {
		sock.Dispose()
	}
}

func (t *Transport) releaseSocket(sock Socket) {
	t.mu.Lock()
	if t.socket == sock {
		t.socket = nil
	}
	t.mu.Unlock()
	sock.Dispose()
}

// beginConnection replaces the connection-wide disconnect signal.
func (t *Transport) beginConnection() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	prev := t.stopFn
	t.disconnect, t.stopFn = ctx, cancel
	t.mu.Unlock()

	if prev != nil {
		prev()
	}
	return ctx
}

// endConnection fires the disconnect signal.
func (t *Transport) endConnection() {
	t.mu.Lock()
	cancel := t.stopFn
	t.disconnect, t.stopFn = nil, nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (t *Transport) disconnectContext() context.Context {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.disconnect
}

func (t *Transport) sessionLog(s *Session) *zerolog.Logger {
	l := t.log.With().Str("session", s.ID()).Logger()
	return &l
}

// connectionHolder is the ConnectionContext handed to each socket.
type connectionHolder struct {
	t   *Transport
	s   *Session
	gen uint64

	lost atomic.Bool
}

func (h *connectionHolder) AddHeader(key, value string) {
	h.t.addHeader(key, value)
}

// connectionLost reconnects the session if this connection is still current.
func (h *connectionHolder) connectionLost() {
	if h.t.isCurrent(h.gen) {
		h.t.lostConnection(h.s)
	}
}

func (h *connectionHolder) ReportError(err error) {
	if errors.Is(err, ErrConnectionLost) {
		h.lost.Store(true)
		h.connectionLost()
		return
	}
	h.t.sessionLog(h.s).Debug().Err(err).Msg("socket error")
	h.t.consumer.OnError(err)
}

// frameDispatcher feeds a socket's frames into the transport.
type frameDispatcher struct {
	t *Transport
	s *Session
}

func (d *frameDispatcher) OnFrame(text string) {
	d.t.processResponse(d.s, text)
}

func (d *frameDispatcher) OnKeepAlive() {
	d.s.markActive()
}
