package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestInvocation(t *testing.T) {
	frame, err := invocation("chathub", "send", `hello "world"`, 7)
	require.NoError(t, err)

	m := gjson.Parse(frame)
	assert.Equal(t, "chathub", m.Get("H").String())
	assert.Equal(t, "send", m.Get("M").String())
	assert.Equal(t, `hello "world"`, m.Get("A.0").String())
	assert.Equal(t, "7", m.Get("I").String())
}

func TestConnectionData(t *testing.T) {
	data, err := connectionData("chathub")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"name":"chathub"}]`, data)
}

func TestFormatPayload(t *testing.T) {
	assert.Equal(t, `chathub.broadcast: ["bob","hi"]`,
		formatPayload([]byte(`{"H":"chathub","M":"broadcast","A":["bob","hi"]}`)))
	assert.Equal(t, `{"R":42,"I":"1"}`, formatPayload([]byte(`{"R":42,"I":"1"}`)))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, parseLevel("WARN"))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("bogus"))
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hubchat.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
url = "https://file.example.com/signalr"
reconnect_delay = "3s"
`), 0o600))

	cfg, err := loadConfig(flags{
		configPath:     path,
		url:            "https://flag.example.com/signalr",
		hub:            "chathub",
		reconnectDelay: time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, "https://flag.example.com/signalr", cfg.URL)
	assert.Equal(t, time.Second, cfg.ReconnectDelay)
	assert.JSONEq(t, `[{"name":"chathub"}]`, cfg.ConnectionData)
}

func TestLoadConfig_KeepsFileConnectionData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hubchat.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
url = "https://file.example.com/signalr"
connection_data = '[{"name":"other"}]'
`), 0o600))

	cfg, err := loadConfig(flags{configPath: path, hub: "chathub"})
	require.NoError(t, err)
	assert.Equal(t, `[{"name":"other"}]`, cfg.ConnectionData)
	assert.Equal(t, time.Duration(0), cfg.ReconnectDelay)
}
