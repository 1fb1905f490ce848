package hubsocket

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Wire keys of the hub envelope.
const (
	keyInit        = "I"
	keyReconnect   = "T"
	keyGroupsToken = "G"
	keyCursor      = "C"
	keyMessages    = "M"
	keyRestart     = "S"
)

// heartbeatFrame is the reserved keep-alive frame. It never reaches the codec.
const heartbeatFrame = "{}"

// Envelope is one decoded inbound frame. Pointer fields are nil when the
// corresponding key was absent.
type Envelope struct {
	// Init is set when the frame carries the handshake-complete marker.
	// No other field is decoded in that case.
	Init bool

	ShouldReconnect bool
	GroupsToken     *string
	MessageID       *string
	Messages        []json.RawMessage
	Restart         bool
}

// decodeEnvelope parses a frame. An empty frame or an object with no keys
// decodes to a nil envelope and no error.
func decodeEnvelope(raw string) (*Envelope, error) {
	if raw == "" {
		return nil, nil
	}
	if !gjson.Valid(raw) {
		return nil, errors.New("malformed JSON")
	}

	root := gjson.Parse(raw)
	if !root.IsObject() {
		return nil, fmt.Errorf("envelope must be a JSON object, got %s", root.Type)
	}
	if len(root.Map()) == 0 {
		return nil, nil
	}

	env := &Envelope{}
	if root.Get(keyInit).Exists() {
		env.Init = true
		return env, nil
	}

	var err error
	if env.ShouldReconnect, err = flag(root, keyReconnect); err != nil {
		return nil, err
	}
	if env.GroupsToken, err = optString(root, keyGroupsToken); err != nil {
		return nil, err
	}
	if env.MessageID, err = optString(root, keyCursor); err != nil {
		return nil, err
	}

	if m := root.Get(keyMessages); m.Exists() && m.Type != gjson.Null {
		if !m.IsArray() {
			return nil, fmt.Errorf("field %q must be an array, got %s", keyMessages, m.Type)
		}
		items := m.Array()
		env.Messages = make([]json.RawMessage, 0, len(items))
		for _, item := range items {
			env.Messages = append(env.Messages, json.RawMessage(item.Raw))
		}
	}

	if env.Restart, err = flag(root, keyRestart); err != nil {
		return nil, err
	}
	return env, nil
}

// flag reports whether key holds the number 1.
func flag(root gjson.Result, key string) (bool, error) {
	v := root.Get(key)
	switch v.Type {
	case gjson.Null:
		return false, nil
	case gjson.Number:
		return v.Int() == 1, nil
	default:
		return false, fmt.Errorf("field %q must be a number, got %s", key, v.Type)
	}
}

func optString(root gjson.Result, key string) (*string, error) {
	v := root.Get(key)
	switch v.Type {
	case gjson.Null:
		return nil, nil
	case gjson.String:
		s := v.String()
		return &s, nil
	default:
		return nil, fmt.Errorf("field %q must be a string, got %s", key, v.Type)
	}
}

// Encode renders the envelope in wire form.
func (e *Envelope) Encode() (string, error) {
	out := heartbeatFrame
	var err error
	set := func(key string, v any) {
		if err != nil {
			return
		}
		out, err = sjson.Set(out, key, v)
	}
	setRaw := func(key, raw string) {
		if err != nil {
			return
		}
		out, err = sjson.SetRaw(out, key, raw)
	}

	if e.Init {
		set(keyInit, "0")
		return out, err
	}
	if e.MessageID != nil {
		set(keyCursor, *e.MessageID)
	}
	if e.ShouldReconnect {
		set(keyReconnect, 1)
	}
	if e.GroupsToken != nil {
		set(keyGroupsToken, *e.GroupsToken)
	}
	if e.Messages != nil {
		setRaw(keyMessages, "[]")
		for _, m := range e.Messages {
			setRaw(keyMessages+".-1", string(m))
		}
	}
	if e.Restart {
		set(keyRestart, 1)
	}
	if err != nil {
		return "", fmt.Errorf("encode envelope: %w", err)
	}
	return out, nil
}
