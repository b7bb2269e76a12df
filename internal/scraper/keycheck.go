package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"
)

// ErrInvalidKey is returned when the marketplace rejects an API key.
var ErrInvalidKey = errors.New("invalid api key")

// KeyValidator checks a user-supplied marketplace API key.
type KeyValidator struct {
	Client  *Client
	URL     string
	Timeout time.Duration
}

// Validate returns nil for a valid key, ErrInvalidKey on 403, and a
// StatusError or transport error otherwise.
func (v *KeyValidator) Validate(ctx context.Context, key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	timeout := v.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	status, _, err := v.Client.get(ctx, v.URL, url.Values{"key": {key}}, timeout)
	if err != nil {
		return fmt.Errorf("validate key: %w", err)
	}
	switch {
	case is2xx(status):
		return nil
	case status == 401 || status == 403:
		return ErrInvalidKey
	default:
		return &StatusError{Code: status, URL: v.URL}
	}
}
