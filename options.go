package hubsocket

import (
	"net/http"

	"github.com/rs/zerolog"
)

// Option configures a Transport.
type Option func(*transportOptions)

type transportOptions struct {
	logger        zerolog.Logger
	httpClient    *http.Client
	socketFactory SocketFactory
	metrics       *Metrics
}

func transportDefaults() transportOptions {
	return transportOptions{
		logger: zerolog.Nop(),
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *transportOptions) {
		o.logger = logger
	}
}

// WithHTTPClient sets the client used for negotiation, start and abort
// requests. Config.Jar is applied to it when it has no jar of its own.
func WithHTTPClient(c *http.Client) Option {
	return func(o *transportOptions) {
		o.httpClient = c
	}
}

// WithSocketFactory replaces the gorilla/websocket socket implementation.
func WithSocketFactory(f SocketFactory) Option {
	return func(o *transportOptions) {
		o.socketFactory = f
	}
}

// WithMetrics records transport activity to m.
func WithMetrics(m *Metrics) Option {
	return func(o *transportOptions) {
		o.metrics = m
	}
}
