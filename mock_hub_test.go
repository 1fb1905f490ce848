package hubsocket

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// mockHub simulates a hub endpoint: negotiate, start and abort over HTTP,
// connect and reconnect over WebSocket.
type mockHub struct {
	upgrader websocket.Upgrader

	mu            sync.Mutex
	negotiation   string
	startResponse string
	rejected      map[string]bool
	commands      []string
	queries       map[string]url.Values
	headers       map[string]http.Header
	conns         []*websocket.Conn
	received      []string

	connected chan *websocket.Conn
}

func newMockHub() *mockHub {
	return &mockHub{
		upgrader:      websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		negotiation:   negotiationBody("null", 30),
		startResponse: `{"Response":"started"}`,
		rejected:      map[string]bool{},
		queries:       map[string]url.Values{},
		headers:       map[string]http.Header{},
		connected:     make(chan *websocket.Conn, 16),
	}
}

// negotiationBody renders a negotiation response. keepAlive is a JSON
// number of seconds or "null".
func negotiationBody(keepAlive string, disconnect float64) string {
	return fmt.Sprintf(`{"Url":"/signalr","ConnectionToken":"tok+en/1","ConnectionId":"conn-1",`+
		`"KeepAliveTimeout":%s,"DisconnectTimeout":%g,"ConnectionTimeout":110,`+
		`"TryWebSockets":true,"ProtocolVersion":"1.5","TransportConnectTimeout":5}`, keepAlive, disconnect)
}

func setupMockHub(t *testing.T) (*mockHub, string) {
	t.Helper()
	hub := newMockHub()
	server := httptest.NewServer(http.HandlerFunc(hub.handler))
	t.Cleanup(func() {
		hub.closeAll()
		server.Close()
	})
	return hub, server.URL + "/signalr"
}

func (h *mockHub) handler(w http.ResponseWriter, r *http.Request) {
	command := path.Base(r.URL.Path)

	h.mu.Lock()
	h.commands = append(h.commands, command)
	h.queries[command] = r.URL.Query()
	h.headers[command] = r.Header.Clone()
	negotiation, start, reject := h.negotiation, h.startResponse, h.rejected[command]
	h.mu.Unlock()

	if reject {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}

	switch command {
	case "negotiate":
		io.WriteString(w, negotiation)
	case "start":
		io.WriteString(w, start)
	case "abort":
		w.WriteHeader(http.StatusOK)
	case "connect", "reconnect":
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		h.mu.Lock()
		h.conns = append(h.conns, conn)
		h.mu.Unlock()
		select {
		case h.connected <- conn:
		default:
		}
		h.readLoop(conn)
	default:
		http.NotFound(w, r)
	}
}

func (h *mockHub) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		h.mu.Lock()
		h.received = append(h.received, string(data))
		h.mu.Unlock()
	}
}

func (h *mockHub) set(fn func(h *mockHub)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(h)
}

// nextConn waits for the next accepted WebSocket connection.
func (h *mockHub) nextConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-h.connected:
		return conn
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a socket connection")
		return nil
	}
}

func (h *mockHub) count(command string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, c := range h.commands {
		if c == command {
			n++
		}
	}
	return n
}

func (h *mockHub) query(command string) url.Values {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.queries[command]
}

func (h *mockHub) header(command string) http.Header {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.headers[command]
}

func (h *mockHub) getReceived() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	cp := make([]string, len(h.received))
	copy(cp, h.received)
	return cp
}

func (h *mockHub) closeAll() {
	h.mu.Lock()
	conns := h.conns
	h.conns = nil
	h.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
}

// recordingConsumer records everything a Transport reports.
type recordingConsumer struct {
	mu         sync.Mutex
	payloads   []string
	reconnects int
	errs       []error
}

func (c *recordingConsumer) OnPayload(message json.RawMessage) {
	c.mu.Lock()
	c.payloads = append(c.payloads, string(message))
	c.mu.Unlock()
}

func (c *recordingConsumer) OnReconnected() {
	c.mu.Lock()
	c.reconnects++
	c.mu.Unlock()
}

func (c *recordingConsumer) OnError(err error) {
	c.mu.Lock()
	c.errs = append(c.errs, err)
	c.mu.Unlock()
}

func (c *recordingConsumer) getPayloads() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]string, len(c.payloads))
	copy(cp, c.payloads)
	return cp
}

func (c *recordingConsumer) reconnectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnects
}

func (c *recordingConsumer) getErrors() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]error, len(c.errs))
	copy(cp, c.errs)
	return cp
}

// stateRecorder collects session state transitions.
type stateRecorder struct {
	mu          sync.Mutex
	transitions []string
}

func (r *stateRecorder) observe(old, new State) {
	r.mu.Lock()
	r.transitions = append(r.transitions, old.String()+"->"+new.String())
	r.mu.Unlock()
}

func (r *stateRecorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]string, len(r.transitions))
	copy(cp, r.transitions)
	return cp
}
