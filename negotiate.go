package hubsocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// startAcknowledgement is the Response value the server returns from a
// successful start request.
const startAcknowledgement = "started"

// NegotiationResult is the server's answer to the negotiation request.
// Timeouts are in seconds, as sent on the wire.
type NegotiationResult struct {
	URL                     string   `json:"Url"`
	ConnectionToken         string   `json:"ConnectionToken"`
	ConnectionID            string   `json:"ConnectionId"`
	KeepAliveTimeout        *float64 `json:"KeepAliveTimeout"`
	DisconnectTimeout       float64  `json:"DisconnectTimeout"`
	ConnectionTimeout       float64  `json:"ConnectionTimeout"`
	TryWebSockets           bool     `json:"TryWebSockets"`
	ProtocolVersion         string   `json:"ProtocolVersion"`
	TransportConnectTimeout float64  `json:"TransportConnectTimeout"`
}

// KeepAlive returns the keep-alive timeout, or zero when the server disabled keep-alive.
func (n *NegotiationResult) KeepAlive() time.Duration {
	if n.KeepAliveTimeout == nil {
		return 0
	}
	return seconds(*n.KeepAliveTimeout)
}

// reconnectWindow is the disconnect timeout plus the keep-alive timeout.
func (n *NegotiationResult) reconnectWindow() time.Duration {
	if n.DisconnectTimeout <= 0 {
		return 0
	}
	return seconds(n.DisconnectTimeout) + n.KeepAlive()
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// negotiate fetches and validates the negotiation response.
func (t *Transport) negotiate(ctx context.Context, s *Session) (*NegotiationResult, error) {
	negotiateURL, err := buildNegotiateURL(t.urlParams(s))
	if err != nil {
		return nil, &NegotiationError{URL: t.cfg.URL, Reason: "invalid URL", Cause: err}
	}

	body, err := t.get(ctx, negotiateURL)
	if err != nil {
		return nil, &NegotiationError{URL: negotiateURL, Reason: "request failed", Cause: err}
	}
	if strings.TrimSpace(body) == "" {
		return nil, &NegotiationError{URL: negotiateURL, Reason: "empty response"}
	}

	var result NegotiationResult
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		return nil, &NegotiationError{URL: negotiateURL, Reason: "invalid response", Cause: err}
	}
	if result.ConnectionToken == "" {
		return nil, &NegotiationError{URL: negotiateURL, Reason: "response has no connection token"}
	}
	if result.ProtocolVersion != t.cfg.ClientProtocol {
		return nil, &NegotiationError{URL: negotiateURL,
			Reason: fmt.Sprintf("incompatible protocol version %q, client speaks %q", result.ProtocolVersion, t.cfg.ClientProtocol)}
	}
	if !result.TryWebSockets {
		return nil, &NegotiationError{URL: negotiateURL, Reason: "server does not support websockets"}
	}
	return &result, nil
}

// fetchStart sends the start request and returns the acknowledgement text.
func (t *Transport) fetchStart(ctx context.Context, s *Session) (string, error) {
	startURL, err := buildStartURL(t.urlParams(s))
	if err != nil {
		return "", err
	}
	body, err := t.get(ctx, startURL)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(body) == "" {
		return "", errors.New("empty start response")
	}

	var resp struct {
		Response string `json:"Response"`
	}
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return "", fmt.Errorf("parse start response: %w", err)
	}
	return resp.Response, nil
}

// abort tells the server the connection is going away. Errors are returned
// for logging only.
func (t *Transport) abort(ctx context.Context, s *Session) error {
	abortURL, err := buildAbortURL(t.urlParams(s))
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, abortURL, nil)
	if err != nil {
		return err
	}
	t.prepareRequest(req)
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (t *Transport) get(ctx context.Context, rawURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	t.prepareRequest(req)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("unexpected status %s", resp.Status)
	}
	return string(data), nil
}

// prepareRequest copies the transport's headers onto an HTTP request.
func (t *Transport) prepareRequest(req *http.Request) {
	for k, vs := range t.headerSnapshot() {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
}

// prepareSocket copies the transport's headers onto a new socket before it connects.
func (t *Transport) prepareSocket(sock Socket) {
	for k, vs := range t.headerSnapshot() {
		for _, v := range vs {
			sock.AddHeader(k, v)
		}
	}
}

func (t *Transport) headerSnapshot() http.Header {
	t.headerMu.Lock()
	defer t.headerMu.Unlock()
	return t.headers.Clone()
}

func (t *Transport) addHeader(key, value string) {
	t.headerMu.Lock()
	t.headers.Set(key, value)
	t.headerMu.Unlock()
}
