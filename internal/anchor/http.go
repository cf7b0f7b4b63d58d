package anchor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"casechain.org/internal/fingerprint"
)

const (
	defaultCallTimeout = 5 * time.Second
	defaultAttempts    = 3
	defaultBackoff     = 200 * time.Millisecond
)

// HTTPClient implements Client against the anchoring gateway's JSON API.
// Retries are bounded and idempotent: the gateway dedupes by record id.
type HTTPClient struct {
	base     string
	client   *http.Client
	timeout  time.Duration
	attempts int
	backoff  time.Duration
}

// HTTPOption configures HTTPClient.
type HTTPOption func(*HTTPClient)

// WithHTTPClient swaps the underlying transport (tests).
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPClient) {
		if c != nil {
			h.client = c
		}
	}
}

// WithCallTimeout bounds every ledger call.
func WithCallTimeout(d time.Duration) HTTPOption {
	return func(h *HTTPClient) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// WithRetry overrides attempt count and base backoff.
func WithRetry(attempts int, backoff time.Duration) HTTPOption {
	return func(h *HTTPClient) {
		if attempts > 0 {
			h.attempts = attempts
		}
		if backoff > 0 {
			h.backoff = backoff
		}
	}
}

// NewHTTPClient builds a client for the given gateway base URL.
func NewHTTPClient(base string, opts ...HTTPOption) (*HTTPClient, error) {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return nil, errors.New("anchor: base URL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("anchor: invalid base URL: %w", err)
	}
	h := &HTTPClient{
		base:     base,
		client:   &http.Client{},
		timeout:  defaultCallTimeout,
		attempts: defaultAttempts,
		backoff:  defaultBackoff,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

type anchorRequest struct {
	RecordID    string `json:"record_id"`
	Fingerprint string `json:"fingerprint"`
}

type anchorResponse struct {
	TxRef string `json:"tx_ref"`
}

type readResponse struct {
	Fingerprint string `json:"fingerprint"`
}

func (h *HTTPClient) Anchor(ctx context.Context, recordID string, fp fingerprint.Digest) (TxRef, error) {
	recordID = strings.TrimSpace(recordID)
	if recordID == "" || fp.IsZero() {
		return "", errors.New("anchor: record id and fingerprint are required")
	}
	body, err := json.Marshal(anchorRequest{RecordID: recordID, Fingerprint: fp.String()})
	if err != nil {
		return "", err
	}

	var resp anchorResponse
	err = h.do(ctx, http.MethodPost, "/v1/anchors", body, &resp)
	if err != nil {
		return "", err
	}
	if resp.TxRef == "" {
		return "", fmt.Errorf("%w: empty tx_ref", ErrUnavailable)
	}
	return TxRef(resp.TxRef), nil
}

func (h *HTTPClient) Read(ctx context.Context, ref TxRef) (fingerprint.Digest, error) {
	if ref.IsZero() {
		return "", ErrNotFound
	}
	var resp readResponse
	if err := h.do(ctx, http.MethodGet, "/v1/anchors/"+url.PathEscape(string(ref)), nil, &resp); err != nil {
		return "", err
	}
	return fingerprint.Parse(resp.Fingerprint)
}

// do runs one logical call with bounded retries. Only transport errors
// and 5xx responses are retried; 4xx map to terminal errors.
func (h *HTTPClient) do(ctx context.Context, method, path string, body []byte, out any) error {
	var lastErr error
	for attempt := 0; attempt < h.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
			case <-time.After(h.backoff << (attempt - 1)):
			}
		}
		err := h.once(ctx, method, path, body, out)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrNotFound) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

func (h *HTTPClient) once(ctx context.Context, method, path string, body []byte, out any) error {
	callCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(callCtx, method, h.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: gateway returned %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("anchor: gateway rejected request: %d %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	return nil
}

// WithTimeout returns a context with a default timeout useful for CLI tools.
func WithTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(parent, d)
}
