package scraper

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"locscout/internal/logging"
)

const (
	PurchaseAll   = "all"
	PurchaseSteam = "steam"
	LanguageAll   = "all"
)

// ReviewStatus tags a review-count lookup.
type ReviewStatus int

const (
	ReviewOK ReviewStatus = iota
	ReviewFetchFailed
	ReviewRateLimited
)

// ReviewResult is Ok(count) or a failure. Count() collapses failures to 0,
// which is what gets persisted.
type ReviewResult struct {
	Status ReviewStatus
	Total  int
}

func (r ReviewResult) OK() bool { return r.Status == ReviewOK }

func (r ReviewResult) Count() int {
	if r.Status != ReviewOK {
		return 0
	}
	return r.Total
}

type reviewResponse struct {
	Success      json.RawMessage `json:"success"`
	QuerySummary *struct {
		TotalReviews *int `json:"total_reviews"`
	} `json:"query_summary"`
}

// truthy accepts 1, true and "1" as the success indicator.
func truthy(raw json.RawMessage) bool {
	switch strings.TrimSpace(string(raw)) {
	case "1", "true", `"1"`, `"true"`:
		return true
	}
	return false
}

// ReviewAggregator looks up review counts per language and purchase type.
// One attempt per call, no retry. A 429 arms a cooldown that the next call
// waits out before touching the API again.
type ReviewAggregator struct {
	Client   *Client
	BaseURL  string
	Timeout  time.Duration
	Cooldown time.Duration
	Sleep    Sleeper
	Now      func() time.Time
	Log      *slog.Logger

	mu            sync.Mutex
	cooldownUntil time.Time
}

func NewReviewAggregator(client *Client, baseURL string, timeout, cooldown time.Duration, log *slog.Logger) *ReviewAggregator {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if cooldown <= 0 {
		cooldown = 300 * time.Second
	}
	return &ReviewAggregator{
		Client:   client,
		BaseURL:  strings.TrimRight(baseURL, "/"),
		Timeout:  timeout,
		Cooldown: cooldown,
		Sleep:    Sleep,
		Now:      time.Now,
		Log:      logging.OrDefault(log),
	}
}

// ReviewCount fetches total_reviews for one facet. It never returns an
// error: transport failures, non-2xx answers, a falsy success flag and
// missing fields all come back as a failed result. A credential, when
// given, is forwarded as the key parameter.
func (a *ReviewAggregator) ReviewCount(ctx context.Context, id int64, language, purchaseType, credential string) ReviewResult {
	if err := a.waitCooldown(ctx); err != nil {
		return ReviewResult{Status: ReviewFetchFailed}
	}

	params := url.Values{}
	params.Set("json", "1")
	params.Set("language", language)
	params.Set("purchase_type", purchaseType)
	if credential != "" {
		params.Set("key", credential)
	}

	endpoint := a.BaseURL + "/" + strconv.FormatInt(id, 10)
	status, body, err := a.Client.get(ctx, endpoint, params, a.Timeout)
	switch {
	case err != nil:
		a.Log.Debug("review request failed", "app_id", id, "language", language, "err", err)
		return ReviewResult{Status: ReviewFetchFailed}
	case status == 429:
		a.armCooldown()
		a.Log.Warn("review request rate limited", "app_id", id, "language", language, "cooldown", a.Cooldown)
		return ReviewResult{Status: ReviewRateLimited}
	case !is2xx(status):
		a.Log.Debug("review request bad status", "app_id", id, "language", language, "status", status)
		return ReviewResult{Status: ReviewFetchFailed}
	}

	var resp reviewResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return ReviewResult{Status: ReviewFetchFailed}
	}
	if !truthy(resp.Success) || resp.QuerySummary == nil || resp.QuerySummary.TotalReviews == nil {
		return ReviewResult{Status: ReviewFetchFailed}
	}
	total := *resp.QuerySummary.TotalReviews
	if total < 0 {
		return ReviewResult{Status: ReviewFetchFailed}
	}
	return ReviewResult{Status: ReviewOK, Total: total}
}

func (a *ReviewAggregator) armCooldown() {
	a.mu.Lock()
	a.cooldownUntil = a.Now().Add(a.Cooldown)
	a.mu.Unlock()
}

func (a *ReviewAggregator) waitCooldown(ctx context.Context) error {
	a.mu.Lock()
	remaining := a.cooldownUntil.Sub(a.Now())
	a.mu.Unlock()
	if remaining <= 0 {
		return nil
	}
	a.Log.Info("waiting out review cooldown", "remaining", remaining)
	return a.Sleep(ctx, remaining)
}
