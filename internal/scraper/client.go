package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

var (
	// ErrRateLimited is returned when the upstream answers 429.
	ErrRateLimited = errors.New("upstream rate limited")
	// ErrMalformedResponse means a 2xx body that could not be decoded.
	ErrMalformedResponse = errors.New("malformed upstream response")
)

// StatusError is a non-2xx answer other than 429.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Code, e.URL)
}

// Sleeper blocks for d or until ctx is done. Every pause in this package
// goes through one so tests can run without real delays.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the real Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Client is the shared GET helper for the marketplace APIs.
type Client struct {
	HTTP      *http.Client
	Limiter   *rate.Limiter // nil means unpaced
	UserAgent string
}

// NewClient builds a Client. rps <= 0 disables request pacing.
func NewClient(userAgent string, rps float64) *Client {
	c := &Client{
		HTTP:      &http.Client{},
		UserAgent: userAgent,
	}
	if rps > 0 {
		c.Limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return c
}

// get performs one GET with its own timeout and returns status and body.
// Transport failures come back as err with status 0.
func (c *Client) get(ctx context.Context, rawURL string, params url.Values, timeout time.Duration) (int, []byte, error) {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return 0, nil, err
		}
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return 0, nil, fmt.Errorf("parse url: %w", err)
	}
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	req.Header.Set("Accept", "application/json")

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read body: %w", err)
	}
	return resp.StatusCode, body, nil
}

func is2xx(code int) bool {
	return code >= 200 && code < 300
}
