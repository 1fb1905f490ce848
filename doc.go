// Package hubsocket is the client-side WebSocket transport for a
// persistent session with a message hub.
//
// A Transport negotiates a session with the hub over HTTP, opens a
// WebSocket, frames outgoing text messages and decodes incoming envelopes.
// When the socket drops it reconnects with the session's resume token and
// message cursor for as long as the reconnect window allows. The upper
// layer only sees what it registered a Consumer for:
//
//   - OnPayload: each decoded payload message, in arrival order
//   - OnReconnected: a successful reconnect
//   - OnError: errors no caller could receive (decode failures, failed reconnect attempts)
//
// Basic usage:
//
//	t, err := hubsocket.NewTransport(hubsocket.Config{
//	    URL:            "https://chat.example.com/signalr",
//	    ConnectionData: `[{"name":"chathub"}]`,
//	}, hubsocket.ConsumerFuncs{
//	    Payload: func(m json.RawMessage) { fmt.Println(string(m)) },
//	    Error:   hubsocket.LogErrors(log.Logger),
//	})
//	if err != nil {
//	    log.Fatal().Err(err).Send()
//	}
//
//	session := hubsocket.NewSession()
//	if err := t.Start(ctx, session); err != nil {
//	    log.Fatal().Err(err).Send()
//	}
//	defer t.Close(context.Background())
//
//	_ = t.Send(ctx, session, `{"H":"chathub","M":"send","A":["hello"],"I":0}`)
//
// The physical socket sits behind the Socket interface. WebSocketFactory
// provides the gorilla/websocket implementation; WithSocketFactory swaps it.
package hubsocket
