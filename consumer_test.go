package hubsocket

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestConsumerFuncs_NilFieldsAreSkipped(t *testing.T) {
	var c Consumer = ConsumerFuncs{}
	c.OnPayload(json.RawMessage(`{}`))
	c.OnReconnected()
	c.OnError(errors.New("ignored"))
}

func TestConsumerFuncs_Dispatch(t *testing.T) {
	var payload string
	reconnects := 0
	var got error

	c := ConsumerFuncs{
		Payload:     func(m json.RawMessage) { payload = string(m) },
		Reconnected: func() { reconnects++ },
		Error:       func(err error) { got = err },
	}
	c.OnPayload(json.RawMessage(`{"n":1}`))
	c.OnReconnected()
	c.OnError(ErrTransportUnavailable)

	if payload != `{"n":1}` {
		t.Errorf("payload = %q", payload)
	}
	if reconnects != 1 {
		t.Errorf("reconnects = %d, want 1", reconnects)
	}
	if !errors.Is(got, ErrTransportUnavailable) {
		t.Errorf("error = %v, want ErrTransportUnavailable", got)
	}
}
