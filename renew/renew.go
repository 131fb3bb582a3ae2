// Package renew provides the HTTP adapter for the external renewal
// endpoint: the renewal value is posted as JSON and a fresh credential
// pair comes back. Failures are classified so the token manager can
// decide between retrying and giving up.
package renew

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	authsession "github.com/chimerakang/authsession-go"
)

// Client implements authsession.RenewalBackend against an HTTP endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

var _ authsession.RenewalBackend = (*Client)(nil)

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client for renewal requests.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Client) { r.httpClient = c }
}

// New creates a renewal client for the given endpoint URL.
func New(endpoint string, opts ...Option) *Client {
	r := &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// renewRequest is the JSON body sent to the renewal endpoint.
type renewRequest struct {
	RenewalValue string `json:"renewal_value"`
}

// renewResponse is the JSON body returned by the renewal endpoint.
type renewResponse struct {
	Credential *authsession.Credential `json:"credential"`
}

// Renew posts the renewal value and returns the fresh credential pair.
// Non-2xx responses come back as *authsession.BackendError carrying the
// status code; transport failures carry status code zero. Both leave the
// transient/permanent decision to the caller's classifier.
func (r *Client) Renew(ctx context.Context, renewalValue string) (*authsession.Credential, error) {
	payload, err := json.Marshal(renewRequest{RenewalValue: renewalValue})
	if err != nil {
		return nil, fmt.Errorf("authsession/renew: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("authsession/renew: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &authsession.BackendError{StatusCode: 0, Body: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &authsession.BackendError{StatusCode: 0, Body: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &authsession.BackendError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	var renewResp renewResponse
	if err := json.Unmarshal(body, &renewResp); err != nil {
		return nil, fmt.Errorf("authsession/renew: decode response: %w", err)
	}
	if renewResp.Credential == nil || renewResp.Credential.AccessValue == "" {
		return nil, fmt.Errorf("authsession/renew: empty credential in response")
	}

	return renewResp.Credential, nil
}
