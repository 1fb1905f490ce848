package hubsocket

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestResolveConfig_ExplicitValues(t *testing.T) {
	cfg := Config{
		URL:            "https://hub.example.com/signalr",
		ConnectionData: `[{"name":"chathub"}]`,
		ReconnectDelay: 2 * time.Second,
	}
	resolved, err := resolveConfig(cfg)
	if err != nil {
		t.Fatalf("resolveConfig() error: %v", err)
	}
	if resolved.URL != "https://hub.example.com/signalr" {
		t.Errorf("URL = %q, want explicit value", resolved.URL)
	}
	if resolved.ConnectionData != `[{"name":"chathub"}]` {
		t.Errorf("ConnectionData = %q, want explicit value", resolved.ConnectionData)
	}
	if resolved.ReconnectDelay != 2*time.Second {
		t.Errorf("ReconnectDelay = %v, want 2s", resolved.ReconnectDelay)
	}
}

func TestResolveConfig_Defaults(t *testing.T) {
	resolved, err := resolveConfig(Config{URL: "http://localhost:8080/signalr"})
	if err != nil {
		t.Fatalf("resolveConfig() error: %v", err)
	}
	if resolved.TransportName != "webSockets" {
		t.Errorf("TransportName = %q, want webSockets", resolved.TransportName)
	}
	if resolved.ClientProtocol != "1.5" {
		t.Errorf("ClientProtocol = %q, want 1.5", resolved.ClientProtocol)
	}
	if resolved.ReconnectDelay != 5*time.Second {
		t.Errorf("ReconnectDelay = %v, want 5s", resolved.ReconnectDelay)
	}
	if resolved.ReconnectWindow != 30*time.Second {
		t.Errorf("ReconnectWindow = %v, want 30s", resolved.ReconnectWindow)
	}
	if resolved.HandshakeTimeout != 10*time.Second {
		t.Errorf("HandshakeTimeout = %v, want 10s", resolved.HandshakeTimeout)
	}
	if resolved.SendQueueLimit != 0 {
		t.Errorf("SendQueueLimit = %d, want 0 (unbounded)", resolved.SendQueueLimit)
	}
}

func TestResolveConfig_EnvFallback(t *testing.T) {
	t.Setenv("HUBSOCKET_URL", "https://env-host/signalr")
	t.Setenv("HUBSOCKET_CONNECTION_DATA", `[{"name":"envhub"}]`)
	t.Setenv("HUBSOCKET_SEND_QUEUE_LIMIT", "64")

	resolved, err := resolveConfig(Config{})
	if err != nil {
		t.Fatalf("resolveConfig() error: %v", err)
	}
	if resolved.URL != "https://env-host/signalr" {
		t.Errorf("URL = %q, want env value", resolved.URL)
	}
	if resolved.ConnectionData != `[{"name":"envhub"}]` {
		t.Errorf("ConnectionData = %q, want env value", resolved.ConnectionData)
	}
	if resolved.SendQueueLimit != 64 {
		t.Errorf("SendQueueLimit = %d, want 64", resolved.SendQueueLimit)
	}
}

func TestResolveConfig_ExplicitOverridesEnv(t *testing.T) {
	t.Setenv("HUBSOCKET_URL", "https://env-host/signalr")

	resolved, err := resolveConfig(Config{URL: "https://explicit/signalr"})
	if err != nil {
		t.Fatalf("resolveConfig() error: %v", err)
	}
	if resolved.URL != "https://explicit/signalr" {
		t.Errorf("URL = %q, want explicit value over env", resolved.URL)
	}
}

func TestResolveConfig_MissingURL(t *testing.T) {
	t.Setenv("HUBSOCKET_URL", "")
	_, err := resolveConfig(Config{})
	if err == nil {
		t.Fatal("resolveConfig() should error when URL is missing")
	}
}

func TestResolveConfig_RejectsWebSocketScheme(t *testing.T) {
	_, err := resolveConfig(Config{URL: "ws://localhost:4000/signalr"})
	if err == nil {
		t.Fatal("resolveConfig() should require an http(s) base URL")
	}
}

func TestResolveConfig_InvalidQueueLimitEnv(t *testing.T) {
	t.Setenv("HUBSOCKET_SEND_QUEUE_LIMIT", "many")
	_, err := resolveConfig(Config{URL: "http://localhost/signalr"})
	if err == nil {
		t.Fatal("resolveConfig() should reject a non-numeric HUBSOCKET_SEND_QUEUE_LIMIT")
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hub.toml")
	data := []byte(`
url = "https://hub.example.com/signalr"
connection_data = '[{"name":"chathub"}]'
reconnect_delay = "2s"
reconnect_max_delay = "30s"
reconnect_window = "1m"
send_queue_limit = 128

[query]
tenant = "acme"

[headers]
Authorization = "Bearer token"
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.URL != "https://hub.example.com/signalr" {
		t.Errorf("URL = %q", cfg.URL)
	}
	if cfg.ReconnectDelay != 2*time.Second {
		t.Errorf("ReconnectDelay = %v, want 2s", cfg.ReconnectDelay)
	}
	if cfg.ReconnectMaxDelay != 30*time.Second {
		t.Errorf("ReconnectMaxDelay = %v, want 30s", cfg.ReconnectMaxDelay)
	}
	if cfg.ReconnectWindow != time.Minute {
		t.Errorf("ReconnectWindow = %v, want 1m", cfg.ReconnectWindow)
	}
	if cfg.SendQueueLimit != 128 {
		t.Errorf("SendQueueLimit = %d, want 128", cfg.SendQueueLimit)
	}
	if cfg.QueryString["tenant"] != "acme" {
		t.Errorf("QueryString = %v, want tenant=acme", cfg.QueryString)
	}
	if got := cfg.Headers.Get("Authorization"); got != "Bearer token" {
		t.Errorf("Authorization header = %q", got)
	}
}

func TestLoadConfig_BadDuration(t *testing.T) {
	_, err := parseConfig([]byte(`reconnect_delay = "soon"`))
	if err == nil {
		t.Fatal("parseConfig() should reject an invalid duration")
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml"))
	if err == nil {
		t.Fatal("LoadConfig() should error for a missing file")
	}
}
