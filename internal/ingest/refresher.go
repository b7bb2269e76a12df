package ingest

import (
	"context"
	"log/slog"
	"time"

	"locscout/internal/logging"
	"locscout/internal/scraper"
	"locscout/pkg/models"
)

// DetailSource is the detail fetcher as the refresher sees it.
type DetailSource interface {
	FetchDetail(ctx context.Context, id int64) (scraper.DetailPayload, error)
}

// ReviewSource is the review aggregator as the refresher sees it.
type ReviewSource interface {
	ReviewCount(ctx context.Context, id int64, language, purchaseType, credential string) scraper.ReviewResult
}

// RefreshOptions scopes one refresh.
type RefreshOptions struct {
	// Languages to rescan. nil means the core set; an empty non-nil slice
	// scans none.
	Languages    []string
	ForceDetails bool
	Credential   string
}

// Refresher composes detail, normalization and review lookups into one
// per-item update. It never persists; the caller saves the returned item.
type Refresher struct {
	Details       DetailSource
	Reviews       ReviewSource
	CoreLanguages []string
	ReviewPause   time.Duration // between the two total-review lookups
	LanguagePause time.Duration // after each per-language lookup
	Sleep         scraper.Sleeper
	Now           func() time.Time
	Log           *slog.Logger
}

func NewRefresher(details DetailSource, reviews ReviewSource, log *slog.Logger) *Refresher {
	return &Refresher{
		Details:       details,
		Reviews:       reviews,
		CoreLanguages: scraper.CoreLanguages,
		ReviewPause:   200 * time.Millisecond,
		LanguagePause: 1500 * time.Millisecond,
		Sleep:         scraper.Sleep,
		Now:           time.Now,
		Log:           logging.OrDefault(log),
	}
}

// Outcome says how far a refresh got.
type Outcome string

const (
	OutcomeRefreshed    Outcome = "refreshed"
	OutcomeDetailFailed Outcome = "detail_failed"
	OutcomeExcluded     Outcome = "excluded"
)

// Refresh returns an updated copy of item. LastScanned is stamped on every
// path, including detail failure and type exclusion. Tags and languages are
// only replaced by a successful detail fetch. The only error is ctx
// cancellation, in which case the copy must be discarded.
func (r *Refresher) Refresh(ctx context.Context, item models.CatalogItem, opts RefreshOptions) (models.CatalogItem, Outcome, error) {
	it := item.Clone()
	if it.Type == "" {
		it.Type = models.ItemTypeUnknown
	}
	log := r.Log.With("app_id", it.ID)

	if opts.ForceDetails || it.LastScanned == nil {
		payload, err := r.Details.FetchDetail(ctx, it.ID)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return item, "", ctxErr
		}
		app, ok := payload.App(it.ID)
		if err != nil || !ok {
			log.Info("detail unavailable, keeping stored details", "err", err)
			r.stamp(&it)
			return it, OutcomeDetailFailed, nil
		}

		it.Type = models.ParseItemType(app.Type)
		if !it.Type.Enrichable() {
			log.Info("excluded by type", "type", app.Type)
			r.stamp(&it)
			return it, OutcomeExcluded, nil
		}

		it.SupportedLanguages = scraper.NormalizeLanguages(app.SupportedLanguages)
		it.Tags = scraper.NormalizeTags(app.Genres, app.Categories)

		it.TotalReviewsAll = r.Reviews.ReviewCount(ctx, it.ID, scraper.LanguageAll, scraper.PurchaseAll, opts.Credential).Count()
		if err := r.Sleep(ctx, r.ReviewPause); err != nil {
			return item, "", err
		}
		it.TotalReviewsStore = r.Reviews.ReviewCount(ctx, it.ID, scraper.LanguageAll, scraper.PurchaseSteam, opts.Credential).Count()
		log.Debug("details refreshed", "type", it.Type, "tags", len(it.Tags), "languages", len(it.SupportedLanguages), "total_reviews", it.TotalReviewsAll)
	} else if !it.Type.Enrichable() {
		r.stamp(&it)
		return it, OutcomeExcluded, nil
	}

	scan := opts.Languages
	if scan == nil {
		scan = r.CoreLanguages
	}
	if it.LanguageReviews == nil {
		it.LanguageReviews = make(map[string]int, len(scan))
	}
	for _, code := range scan {
		if !scraper.IsKnownLanguage(code) {
			log.Debug("skipping unknown language code", "language", code)
			continue
		}
		res := r.Reviews.ReviewCount(ctx, it.ID, code, scraper.PurchaseAll, opts.Credential)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return item, "", ctxErr
		}
		it.LanguageReviews[code] = res.Count()
		if err := r.Sleep(ctx, r.LanguagePause); err != nil {
			return item, "", err
		}
	}

	r.stamp(&it)
	return it, OutcomeRefreshed, nil
}

func (r *Refresher) stamp(it *models.CatalogItem) {
	now := r.Now().UTC()
	it.LastScanned = &now
}
