package hubsocket

import (
	"net/http"
	"testing"

	"github.com/rs/zerolog"
)

func TestTransportDefaults(t *testing.T) {
	opts := transportDefaults()
	if opts.httpClient != nil {
		t.Error("default httpClient should be nil (created by NewTransport)")
	}
	if opts.socketFactory != nil {
		t.Error("default socketFactory should be nil (gorilla/websocket used)")
	}
	if opts.metrics != nil {
		t.Error("default metrics should be nil")
	}
}

func TestWithHTTPClient(t *testing.T) {
	c := &http.Client{}
	opts := transportDefaults()
	WithHTTPClient(c)(&opts)
	if opts.httpClient != c {
		t.Error("WithHTTPClient should set httpClient")
	}
}

func TestWithLogger(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.WarnLevel)
	opts := transportDefaults()
	WithLogger(logger)(&opts)
	if opts.logger.GetLevel() != zerolog.WarnLevel {
		t.Errorf("logger level = %v, want warn", opts.logger.GetLevel())
	}
}

func TestWithSocketFactory(t *testing.T) {
	called := false
	opts := transportDefaults()
	WithSocketFactory(func(ConnectionContext, FrameHandler) Socket {
		called = true
		return nil
	})(&opts)
	if opts.socketFactory == nil {
		t.Fatal("WithSocketFactory should set socketFactory")
	}
	opts.socketFactory(nil, nil)
	if !called {
		t.Error("socketFactory should be the provided func")
	}
}
