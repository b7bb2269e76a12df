package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"locscout/internal/logging"
)

// ErrDetailUnavailable means the attempt budget ran out. The listing may
// well still exist; callers treat it as temporarily unavailable.
var ErrDetailUnavailable = errors.New("app details unavailable")

// Description is the {description} element of genres and categories.
type Description struct {
	ID          json.RawMessage `json:"id,omitempty"`
	Description string          `json:"description"`
}

// AppData is the subset of the detail payload we consume.
type AppData struct {
	Type               string        `json:"type"`
	Name               string        `json:"name"`
	SupportedLanguages string        `json:"supported_languages"`
	Genres             []Description `json:"genres"`
	Categories         []Description `json:"categories"`
}

// DetailEntry is the per-id object of the detail response. Data stays raw
// until Success has been checked; failed entries often carry "data": [].
type DetailEntry struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// DetailPayload is the decoded detail response, keyed by app id.
type DetailPayload map[string]DetailEntry

// App validates the entry for id and decodes its data object. It returns
// false when the payload is unsuccessful or the data is missing or malformed.
func (p DetailPayload) App(id int64) (*AppData, bool) {
	entry, ok := p[strconv.FormatInt(id, 10)]
	if !ok || !entry.Success || len(entry.Data) == 0 {
		return nil, false
	}
	var data AppData
	if err := json.Unmarshal(entry.Data, &data); err != nil {
		return nil, false
	}
	return &data, true
}

// DetailFetcher retrieves per-listing detail with retry. A 429 costs one
// attempt plus the long cooldown; any other failure costs one attempt plus a
// linear backoff of BackoffStep times the attempt number.
type DetailFetcher struct {
	Client      *Client
	BaseURL     string
	Timeout     time.Duration
	MaxAttempts int
	Cooldown    time.Duration
	BackoffStep time.Duration
	Sleep       Sleeper
	Log         *slog.Logger
}

type DetailOptions struct {
	BaseURL     string
	Timeout     time.Duration
	MaxAttempts int
	Cooldown    time.Duration
	BackoffStep time.Duration
}

func NewDetailFetcher(client *Client, opts DetailOptions, log *slog.Logger) *DetailFetcher {
	f := &DetailFetcher{
		Client:      client,
		BaseURL:     opts.BaseURL,
		Timeout:     opts.Timeout,
		MaxAttempts: opts.MaxAttempts,
		Cooldown:    opts.Cooldown,
		BackoffStep: opts.BackoffStep,
		Sleep:       Sleep,
		Log:         logging.OrDefault(log),
	}
	if f.MaxAttempts <= 0 {
		f.MaxAttempts = 3
	}
	if f.Timeout <= 0 {
		f.Timeout = 20 * time.Second
	}
	if f.Cooldown <= 0 {
		f.Cooldown = 300 * time.Second
	}
	if f.BackoffStep <= 0 {
		f.BackoffStep = 5 * time.Second
	}
	return f
}

// FetchDetail returns the decoded payload of the first 2xx answer. It does
// not look at the success flag. After MaxAttempts failures it returns an
// error wrapping ErrDetailUnavailable and the last failure. A 2xx body that
// is not JSON counts as a failed attempt like any bad status. Only ctx
// cancellation returns early.
func (f *DetailFetcher) FetchDetail(ctx context.Context, id int64) (DetailPayload, error) {
	params := url.Values{}
	params.Set("appids", strconv.FormatInt(id, 10))
	params.Set("l", "english")

	var lastErr error
	for attempt := 1; attempt <= f.MaxAttempts; attempt++ {
		status, body, err := f.Client.get(ctx, f.BaseURL, params, f.Timeout)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		var wait time.Duration
		switch {
		case err != nil:
			lastErr = err
			wait = f.BackoffStep * time.Duration(attempt)
			f.Log.Warn("detail request failed", "app_id", id, "attempt", attempt, "retry_in", wait, "err", err)
		case status == 429:
			lastErr = ErrRateLimited
			wait = f.Cooldown
			f.Log.Warn("detail request rate limited", "app_id", id, "attempt", attempt, "retry_in", wait)
		case is2xx(status):
			var payload DetailPayload
			decodeErr := json.Unmarshal(body, &payload)
			if decodeErr == nil {
				return payload, nil
			}
			lastErr = fmt.Errorf("%w: %v", ErrMalformedResponse, decodeErr)
			wait = f.BackoffStep * time.Duration(attempt)
			f.Log.Warn("detail response malformed", "app_id", id, "attempt", attempt, "retry_in", wait, "err", lastErr)
		default:
			lastErr = &StatusError{Code: status, URL: f.BaseURL}
			wait = f.BackoffStep * time.Duration(attempt)
			f.Log.Warn("detail request bad status", "app_id", id, "attempt", attempt, "status", status, "retry_in", wait)
		}

		// the 429 cooldown is served even after the last attempt
		if attempt == f.MaxAttempts && !errors.Is(lastErr, ErrRateLimited) {
			break
		}
		if err := f.Sleep(ctx, wait); err != nil {
			return nil, err
		}
	}

	f.Log.Warn("detail fetch exhausted retries", "app_id", id, "attempts", f.MaxAttempts)
	return nil, fmt.Errorf("app %d after %d attempts: %w (last: %w)", id, f.MaxAttempts, ErrDetailUnavailable, lastErr)
}
