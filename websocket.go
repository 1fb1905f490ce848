package hubsocket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	defaultUserAgent  = "hubsocket-go/1.0"
	readChunkSize     = 4096
	closeWriteTimeout = time.Second
)

// WebSocketConfig configures sockets created by WebSocketFactory.
type WebSocketConfig struct {
	// Dialer opens connections. A nil Dialer uses a copy of websocket.DefaultDialer.
	Dialer *websocket.Dialer
	// UserAgent is announced on the handshake and to the connection context.
	UserAgent string
	// QueueLimit bounds the outbound queue. Zero means unbounded.
	QueueLimit int
	Logger     zerolog.Logger
	Metrics    *Metrics
}

// WebSocketFactory returns a SocketFactory backed by gorilla/websocket.
func WebSocketFactory(cfg WebSocketConfig) SocketFactory {
	if cfg.Dialer == nil {
		d := *websocket.DefaultDialer
		cfg.Dialer = &d
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	return func(cc ConnectionContext, h FrameHandler) Socket {
		return newWebSocket(cfg, cc, h)
	}
}

// webSocket implements Socket. One worker goroutine owns reads
// dispatch and all writes; a read pump feeds it whole messages.
type webSocket struct {
	cfg     WebSocketConfig
	cc      ConnectionContext
	handler FrameHandler
	log     zerolog.Logger

	mu       sync.Mutex // protects the fields below
	header   http.Header
	conn     *websocket.Conn
	open     bool
	queue    []string
	cancel   context.CancelFunc
	disposed bool

	wake        chan struct{}
	lostOnce    sync.Once
	disposeOnce sync.Once
}

func newWebSocket(cfg WebSocketConfig, cc ConnectionContext, h FrameHandler) *webSocket {
	s := &webSocket{
		cfg:     cfg,
		cc:      cc,
		handler: h,
		log:     cfg.Logger.With().Str("component", "websocket").Logger(),
		header:  http.Header{},
		wake:    make(chan struct{}, 1),
	}
	s.header.Set("User-Agent", cfg.UserAgent)
	cc.AddHeader("User-Agent", cfg.UserAgent)
	return s
}

func (s *webSocket) AddHeader(key, value string) {
	s.mu.Lock()
	s.header.Set(key, value)
	s.mu.Unlock()
}

func (s *webSocket) Connect(ctx context.Context, uri string) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrSocketDisposed
	}
	if s.cancel != nil {
		// Already connecting or connected.
		s.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	header := s.header.Clone()
	s.mu.Unlock()

	s.log.Debug().Str("url", uri).Msg("dialing")
	dialer, unwatch := watchedDialer(ctx, s.cfg.Dialer)
	conn, resp, err := dialer.DialContext(ctx, uri, header)
	unwatch()
	if err != nil {
		cancel()
		if s.isDisposed() {
			return ErrSocketDisposed
		}
		if resp != nil {
			return fmt.Errorf("handshake rejected with %s: %w", resp.Status, err)
		}
		return err
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		conn.Close()
		return ErrSocketDisposed
	}
	s.conn = conn
	s.open = true
	s.mu.Unlock()

	go s.run(ctx, conn)
	return nil
}

// watchedDialer returns a copy of d whose connections are closed when ctx
// is done before the handshake finished, so a cancelled Connect does not
// wait on a stalled server. unwatch ends the watch.
func watchedDialer(ctx context.Context, d *websocket.Dialer) (*websocket.Dialer, func()) {
	var (
		mu   sync.Mutex
		stop []func() bool
	)
	dial := d.NetDialContext
	if dial == nil {
		var nd net.Dialer
		dial = nd.DialContext
	}
	watched := *d
	watched.NetDialContext = func(dialCtx context.Context, network, addr string) (net.Conn, error) {
		c, err := dial(dialCtx, network, addr)
		if err != nil {
			return nil, err
		}
		mu.Lock()
		stop = append(stop, context.AfterFunc(ctx, func() { c.Close() }))
		mu.Unlock()
		return c, nil
	}
	return &watched, func() {
		mu.Lock()
		defer mu.Unlock()
		for _, fn := range stop {
			fn()
		}
	}
}

func (s *webSocket) isDisposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

func (s *webSocket) Enqueue(message string) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrSocketDisposed
	}
	if s.cfg.QueueLimit > 0 && len(s.queue) >= s.cfg.QueueLimit {
		s.mu.Unlock()
		return ErrSendQueueFull
	}
	s.queue = append(s.queue, message)
	s.mu.Unlock()

	s.signal()
	return nil
}

func (s *webSocket) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *webSocket) Dispose() {
	s.disposeOnce.Do(func() {
		s.mu.Lock()
		s.disposed = true
		s.open = false
		s.queue = nil
		cancel := s.cancel
		conn := s.conn
		s.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if conn != nil {
			// WriteControl may run concurrently with the worker's writes.
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(closeWriteTimeout))
			_ = conn.Close()
		}
		s.log.Debug().Msg("disposed")
	})
}

func (s *webSocket) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// run is the socket's worker. It exits when ctx is done.
func (s *webSocket) run(ctx context.Context, conn *websocket.Conn) {
	frames := make(chan string)
	readErr := make(chan error, 1)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.readPump(gctx, conn, frames, readErr)
	})
	g.Go(func() error {
		return s.loop(gctx, conn, frames, readErr)
	})

	err := g.Wait()
	conn.Close()
	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Debug().Err(err).Msg("worker stopped")
	}
}

// loop suspends on the next ready event: a frame, a read failure, queued
// sends, or cancellation.
func (s *webSocket) loop(ctx context.Context, conn *websocket.Conn, frames <-chan string, readErr <-chan error) error {
	s.drain(conn)
	for {
		select {
		case <-ctx.Done():
			conn.Close()
			return ctx.Err()
		case text := <-frames:
			s.dispatch(text)
		case err := <-readErr:
			readErr = nil
			s.connectionLost(conn, err)
		case <-s.wake:
			s.drain(conn)
		}
	}
}

func (s *webSocket) dispatch(text string) {
	s.cfg.Metrics.frameReceived()
	if text == heartbeatFrame {
		s.handler.OnKeepAlive()
		return
	}
	s.handler.OnFrame(text)
}

// drain writes queued messages in FIFO order while the connection is open.
// Messages stay queued when it is not.
func (s *webSocket) drain(conn *websocket.Conn) {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		if !s.open {
			s.mu.Unlock()
			s.cc.ReportError(ErrSocketNotOpen)
			return
		}
		msg := s.queue[0]
		s.mu.Unlock()

		if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			s.connectionLost(conn, err)
			return
		}
		s.cfg.Metrics.frameSent()

		s.mu.Lock()
		// Dispose may have cleared the queue during the write.
		if len(s.queue) > 0 {
			s.queue = s.queue[1:]
		}
		s.mu.Unlock()
	}
}

func (s *webSocket) connectionLost(conn *websocket.Conn, cause error) {
	s.mu.Lock()
	s.open = false
	disposed := s.disposed
	s.mu.Unlock()
	conn.Close()

	if disposed {
		return
	}
	s.lostOnce.Do(func() {
		s.log.Debug().Err(cause).Msg("connection lost")
		s.cc.ReportError(fmt.Errorf("%w: %v", ErrConnectionLost, cause))
	})
}

// readPump reassembles each inbound message from its fragments and hands
// text messages to the worker.
func (s *webSocket) readPump(ctx context.Context, conn *websocket.Conn, frames chan<- string, readErr chan<- error) error {
	buf := make([]byte, readChunkSize)
	for {
		typ, r, err := conn.NextReader()
		if err != nil {
			readErr <- err
			return nil
		}
		if typ != websocket.TextMessage {
			_, _ = io.Copy(io.Discard, r)
			continue
		}

		var sb strings.Builder
		for {
			n, err := r.Read(buf)
			sb.Write(buf[:n])
			if err == io.EOF {
				break
			}
			if err != nil {
				readErr <- err
				return nil
			}
		}

		select {
		case frames <- sb.String():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
