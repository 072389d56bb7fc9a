// Package coordinator implements the signed HTTP link to the pool server.
//
// State-changing calls are POSTs under /rpc/ carrying signed envelopes in
// both directions. Read-only calls are plain GETs against the server's
// public API.
package coordinator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrUnreachable wraps connection-level failures talking to the pool server.
var ErrUnreachable = errors.New("pool server unreachable")

// StatusError reports a non-200 response from the pool server.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("pool server status %d: %s", e.Code, body)
}

// Transport is the pool server surface the settlement engine consumes.
type Transport interface {
	// Post signs payload, delivers it to the named RPC endpoint and
	// decodes the verified response into result.
	Post(ctx context.Context, path string, payload, result interface{}) error

	// Get fetches a public API path (query string included) and decodes
	// the plain JSON response into result.
	Get(ctx context.Context, path string, result interface{}) error
}

// requestTimeout leaves room for the pool server's slow aggregate queries.
const requestTimeout = 270 * time.Second

// Client talks to the pool server over signed HTTP.
type Client struct {
	baseURL    string
	signer     *Signer
	httpClient *http.Client
}

var _ Transport = (*Client)(nil)

// NewClient builds a client for the pool server at baseURL. The secret and
// maxAge parameterize the envelope signer on both directions.
func NewClient(baseURL, secret string, maxAge time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		signer:  NewSigner(secret, maxAge),
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// Post implements Transport.
func (c *Client) Post(ctx context.Context, path string, payload, result interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST",
		c.baseURL+"/rpc/"+path, bytes.NewReader(c.signer.Seal(body)))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return &StatusError{Code: resp.StatusCode, Body: string(raw)}
	}

	verified, err := c.signer.Open(raw)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(verified, result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Get implements Transport.
func (c *Client) Get(ctx context.Context, path string, result interface{}) error {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
