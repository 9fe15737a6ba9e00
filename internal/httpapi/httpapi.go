// Package httpapi holds the small HTTP plumbing shared by the identity
// provider clients: JSON request/response helpers, the provider error type and
// timeout classification.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// DefaultTimeout bounds each provider request. Hops carry independent
// timeouts; a timed-out hop commits no partial state.
const DefaultTimeout = 5 * time.Second

var (
	// ErrTimeout marks a provider request that exceeded its deadline.
	ErrTimeout = errors.New("provider request timed out")

	// ErrProtocol marks a provider response whose shape does not match the
	// documented contract (missing tokens, absent profile, unparseable body).
	ErrProtocol = errors.New("unexpected provider response")
)

// Error is a non-success provider response, carrying the provider's structured
// error message when one was present.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("provider returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider returned %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// NewClient returns an http.Client with the per-hop default timeout.
func NewClient() *http.Client {
	return &http.Client{Timeout: DefaultTimeout}
}

// ClassifyTimeout wraps err with ErrTimeout when it is a deadline or network
// timeout failure; other errors pass through unchanged.
func ClassifyTimeout(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return err
}

// PostJSON sends body as JSON and decodes a 2xx response into out (skipped
// when out is nil). Non-2xx responses return the status code and the raw body
// for caller-specific error mapping.
func PostJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body, out any) (int, []byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return do(client, req, out)
}

// GetJSON issues a GET and decodes a 2xx response into out (skipped when out
// is nil). Non-2xx responses return the status code and raw body.
func GetJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, out any) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return do(client, req, out)
}

func do(client *http.Client, req *http.Request, out any) (int, []byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, ClassifyTimeout(err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, ClassifyTimeout(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, raw, nil
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, raw, fmt.Errorf("%w: decoding body: %w", ErrProtocol, err)
		}
	}
	return resp.StatusCode, raw, nil
}
