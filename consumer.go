package hubsocket

import "encoding/json"

// Consumer is the upper protocol layer fed by a Transport. Methods are
// called from the transport's worker goroutines; implementations must not
// assume a particular goroutine and must not block for long.
type Consumer interface {
	// OnPayload receives each payload message in arrival order. Init frames
	// are delivered whole.
	OnPayload(message json.RawMessage)
	// OnReconnected is called once per successful reconnect.
	OnReconnected()
	// OnError receives errors the transport could not return to a caller.
	OnError(err error)
}

// ConsumerFuncs adapts plain functions to Consumer. Nil fields are skipped.
type ConsumerFuncs struct {
	Payload     func(message json.RawMessage)
	Reconnected func()
	Error       func(err error)
}

func (c ConsumerFuncs) OnPayload(message json.RawMessage) {
	if c.Payload != nil {
		c.Payload(message)
	}
}

func (c ConsumerFuncs) OnReconnected() {
	if c.Reconnected != nil {
		c.Reconnected()
	}
}

func (c ConsumerFuncs) OnError(err error) {
	if c.Error != nil {
		c.Error(err)
	}
}
