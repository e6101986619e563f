package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	defaultBaseURL = "https://api.github.com"
	callTimeout    = 30 * time.Second
	maxRetries     = 3
)

// Client is the Registry Adapter: a thin, retrying HTTP client over the
// remote workflow service's REST API, scoped to one repository or
// organization (spec.md §4.1).
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	scope      string // "repos/owner/name" or "orgs/name", matches config.Scope.String()
	isOrg      bool
	prefix     string // identity prefix: list_workers filters to this
}

// New builds a Registry Adapter client for the given scope path (as
// produced by config.Scope.String()) and identity prefix.
func New(token, scope string, isOrg bool, prefix string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: callTimeout},
		baseURL:    defaultBaseURL,
		token:      token,
		scope:      scope,
		isOrg:      isOrg,
		prefix:     prefix,
	}
}

func (c *Client) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxElapsedTime = callTimeout
	return backoff.WithMaxRetries(b, maxRetries)
}

// do executes a request with retry-on-transient-failure semantics:
// network errors and 5xx/429 responses are retried with exponential
// backoff, honoring Retry-After when the server sends one. 401/403 are
// never retried — they are classified ErrorClassAuth so callers can
// treat them as fatal (spec.md §4.1/§7).
func (c *Client) do(ctx context.Context, op, method, path string, body any) (*http.Response, error) {
	var bodyBytes []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, &Error{Class: ErrorClassTransient, Op: op, Err: err}
		}
		bodyBytes = b
	}

	var resp *http.Response
	operation := func() error {
		var bodyReader io.Reader
		if bodyBytes != nil {
			bodyReader = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "token "+c.token)
		req.Header.Set("Accept", "application/vnd.github+json")
		if bodyBytes != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		r, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}

		switch {
		case r.StatusCode == http.StatusUnauthorized || r.StatusCode == http.StatusForbidden:
			resp = r
			return backoff.Permanent(&Error{Class: ErrorClassAuth, Op: op, Err: fmt.Errorf("status %d", r.StatusCode)})
		case r.StatusCode == http.StatusTooManyRequests:
			r.Body.Close()
			if wait := retryAfter(r); wait > 0 {
				time.Sleep(wait)
			}
			return &Error{Class: ErrorClassRateLimit, Op: op, Err: fmt.Errorf("status %d", r.StatusCode)}
		case r.StatusCode >= 500:
			r.Body.Close()
			return &Error{Class: ErrorClassTransient, Op: op, Err: fmt.Errorf("status %d", r.StatusCode)}
		default:
			resp = r
			return nil
		}
	}

	if err := backoff.Retry(operation, backoff.WithContext(c.newBackOff(), ctx)); err != nil {
		return nil, err
	}
	return resp, nil
}

func retryAfter(r *http.Response) time.Duration {
	v := r.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return time.Duration(secs) * time.Second
}
