package hubsocket

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Default configuration values.
const (
	defaultTransportName    = "webSockets"
	defaultClientProtocol   = "1.5"
	defaultReconnectDelay   = 5 * time.Second
	defaultReconnectWindow  = 30 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
	defaultRequestTimeout   = 10 * time.Second
)

// Config holds the configuration for a Transport.
type Config struct {
	// URL is the base HTTP(S) URL of the hub endpoint, e.g. "https://chat.example.com/signalr".
	// Fallback: HUBSOCKET_URL environment variable.
	URL string

	// ConnectionData is the opaque connection-data parameter sent with every
	// request (typically the JSON list of hubs).
	// Fallback: HUBSOCKET_CONNECTION_DATA environment variable.
	ConnectionData string

	// QueryString is appended to every URL built by the transport.
	QueryString map[string]string

	// Headers are sent with the negotiation request and the socket handshake.
	Headers http.Header

	// Jar is shared between HTTP requests and the socket handshake.
	Jar http.CookieJar

	// TransportName is sent as the transport parameter. Defaults to "webSockets".
	TransportName string

	// ClientProtocol is the hub protocol version the client speaks. Defaults to "1.5".
	ClientProtocol string

	// ReconnectDelay is the wait after a failed reconnect attempt. Defaults to 5s.
	ReconnectDelay time.Duration

	// ReconnectMaxDelay enables exponential growth of the reconnect delay up to
	// this cap when larger than ReconnectDelay. Zero keeps the delay fixed.
	ReconnectMaxDelay time.Duration

	// ReconnectWindow is used when the negotiation response does not define one.
	// Defaults to 30s.
	ReconnectWindow time.Duration

	// HandshakeTimeout bounds the socket opening handshake. Defaults to 10s.
	HandshakeTimeout time.Duration

	// RequestTimeout bounds negotiation, start and abort requests. Defaults to 10s.
	RequestTimeout time.Duration

	// SendQueueLimit bounds each socket's outbound queue. Zero means unbounded.
	SendQueueLimit int
}

// resolveConfig fills empty fields from environment variables and defaults,
// and validates required fields.
func resolveConfig(cfg Config) (Config, error) {
	if cfg.URL == "" {
		cfg.URL = os.Getenv("HUBSOCKET_URL")
	}
	if cfg.ConnectionData == "" {
		cfg.ConnectionData = os.Getenv("HUBSOCKET_CONNECTION_DATA")
	}

	if cfg.URL == "" {
		return cfg, fmt.Errorf("URL is required (set in Config or HUBSOCKET_URL env)")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return cfg, fmt.Errorf("parse URL: %w", err)
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return cfg, fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}

	if cfg.TransportName == "" {
		cfg.TransportName = defaultTransportName
	}
	if cfg.ClientProtocol == "" {
		cfg.ClientProtocol = defaultClientProtocol
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.ReconnectWindow <= 0 {
		cfg.ReconnectWindow = defaultReconnectWindow
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.SendQueueLimit < 0 {
		return cfg, fmt.Errorf("SendQueueLimit must not be negative")
	}
	if v := os.Getenv("HUBSOCKET_SEND_QUEUE_LIMIT"); v != "" && cfg.SendQueueLimit == 0 {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return cfg, fmt.Errorf("invalid HUBSOCKET_SEND_QUEUE_LIMIT %q", v)
		}
		cfg.SendQueueLimit = n
	}

	return cfg, nil
}

// fileConfig is the TOML representation of Config.
type fileConfig struct {
	URL               string            `toml:"url"`
	ConnectionData    string            `toml:"connection_data"`
	QueryString       map[string]string `toml:"query"`
	Headers           map[string]string `toml:"headers"`
	TransportName     string            `toml:"transport"`
	ClientProtocol    string            `toml:"client_protocol"`
	ReconnectDelay    string            `toml:"reconnect_delay"`
	ReconnectMaxDelay string            `toml:"reconnect_max_delay"`
	ReconnectWindow   string            `toml:"reconnect_window"`
	HandshakeTimeout  string            `toml:"handshake_timeout"`
	RequestTimeout    string            `toml:"request_timeout"`
	SendQueueLimit    int               `toml:"send_queue_limit"`
}

// LoadConfig reads a Config from a TOML file. Durations are Go duration
// strings ("5s", "1m30s"). Unset fields keep their zero value and are
// defaulted by NewTransport.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return parseConfig(data)
}

func parseConfig(data []byte) (Config, error) {
	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	cfg := Config{
		URL:            fc.URL,
		ConnectionData: fc.ConnectionData,
		QueryString:    fc.QueryString,
		TransportName:  fc.TransportName,
		ClientProtocol: fc.ClientProtocol,
		SendQueueLimit: fc.SendQueueLimit,
	}
	if len(fc.Headers) > 0 {
		cfg.Headers = make(http.Header, len(fc.Headers))
		for k, v := range fc.Headers {
			cfg.Headers.Set(k, v)
		}
	}

	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"reconnect_delay", fc.ReconnectDelay, &cfg.ReconnectDelay},
		{"reconnect_max_delay", fc.ReconnectMaxDelay, &cfg.ReconnectMaxDelay},
		{"reconnect_window", fc.ReconnectWindow, &cfg.ReconnectWindow},
		{"handshake_timeout", fc.HandshakeTimeout, &cfg.HandshakeTimeout},
		{"request_timeout", fc.RequestTimeout, &cfg.RequestTimeout},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse config: %s: %w", d.name, err)
		}
		*d.dst = v
	}

	return cfg, nil
}
