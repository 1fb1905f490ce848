package hubsocket

import (
	"fmt"
	"net/url"
	"strings"
)

// urlParams carries everything the URL builders read. Builders are pure
// functions of their inputs.
type urlParams struct {
	base            string
	transport       string
	clientProtocol  string
	connectionData  string
	connectionToken string
	messageID       string
	groupsToken     string
	queryString     map[string]string
}

func (t *Transport) urlParams(s *Session) urlParams {
	p := urlParams{
		base:           t.cfg.URL,
		transport:      t.cfg.TransportName,
		clientProtocol: t.cfg.ClientProtocol,
		connectionData: t.cfg.ConnectionData,
		queryString:    t.cfg.QueryString,
	}
	if s != nil {
		p.connectionToken = s.ConnectionToken()
		p.messageID = s.MessageID()
		p.groupsToken = s.GroupsToken()
	}
	return p
}

func buildNegotiateURL(p urlParams) (string, error) {
	q := url.Values{}
	q.Set("clientProtocol", p.clientProtocol)
	if p.connectionData != "" {
		q.Set("connectionData", p.connectionData)
	}
	return buildURL(p, "negotiate", q)
}

// buildConnectURL returns the WebSocket URL for the first connect.
func buildConnectURL(p urlParams) (string, error) {
	u, err := buildURL(p, "connect", transportQuery(p))
	if err != nil {
		return "", err
	}
	return toWebSocketURL(u)
}

// buildReconnectURL returns the WebSocket URL for a reconnect. It carries
// the message cursor and groups token so the server can resume the stream.
func buildReconnectURL(p urlParams) (string, error) {
	q := transportQuery(p)
	if p.messageID != "" {
		q.Set("messageId", p.messageID)
	}
	if p.groupsToken != "" {
		q.Set("groupsToken", p.groupsToken)
	}
	u, err := buildURL(p, "reconnect", q)
	if err != nil {
		return "", err
	}
	return toWebSocketURL(u)
}

func buildStartURL(p urlParams) (string, error) {
	return buildURL(p, "start", transportQuery(p))
}

func buildAbortURL(p urlParams) (string, error) {
	return buildURL(p, "abort", transportQuery(p))
}

func transportQuery(p urlParams) url.Values {
	q := url.Values{}
	q.Set("transport", p.transport)
	q.Set("clientProtocol", p.clientProtocol)
	if p.connectionToken != "" {
		q.Set("connectionToken", p.connectionToken)
	}
	if p.connectionData != "" {
		q.Set("connectionData", p.connectionData)
	}
	return q
}

func buildURL(p urlParams, command string, q url.Values) (string, error) {
	u, err := url.Parse(p.base)
	if err != nil {
		return "", fmt.Errorf("parse URL: %w", err)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + command
	for k, v := range p.queryString {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// toWebSocketURL rewrites an http(s) URL to the matching ws(s) scheme.
func toWebSocketURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}
	return u.String(), nil
}
