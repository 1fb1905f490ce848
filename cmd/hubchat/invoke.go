package main

import (
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// connectionData renders the connection-data parameter naming the hub.
func connectionData(hub string) (string, error) {
	entry, err := sjson.Set("{}", "name", hub)
	if err != nil {
		return "", fmt.Errorf("connection data: %w", err)
	}
	return "[" + entry + "]", nil
}

// invocation renders a hub method call carrying one string argument.
func invocation(hub, method, arg string, id int) (string, error) {
	out := "{}"
	var err error
	for _, kv := range []struct {
		key string
		val any
	}{
		{"H", hub},
		{"M", method},
		{"A", []string{arg}},
		{"I", fmt.Sprint(id)},
	} {
		if out, err = sjson.Set(out, kv.key, kv.val); err != nil {
			return "", fmt.Errorf("invocation: %w", err)
		}
	}
	return out, nil
}

// formatPayload renders a hub message as "hub.method: args" when it has that
// shape and as raw JSON otherwise.
func formatPayload(raw []byte) string {
	m := gjson.ParseBytes(raw)
	hub, method := m.Get("H"), m.Get("M")
	if !hub.Exists() || !method.Exists() {
		return string(raw)
	}
	return fmt.Sprintf("%s.%s: %s", hub.String(), method.String(), m.Get("A").Raw)
}
