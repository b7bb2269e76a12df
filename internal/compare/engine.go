package compare

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"locscout/internal/catalog"
	"locscout/internal/logging"
	"locscout/internal/scraper"
	"locscout/pkg/models"
)

var (
	ErrEmptyTags          = errors.New("tag list is empty")
	ErrNoTags             = errors.New("item has no tags to compare on")
	ErrCredentialRequired = errors.New("an api key is required for this language")
)

// MinReviews is the pool threshold; peers need strictly more reviews.
const MinReviews = 10

const examplesPerSide = 3

// Store is the read side of the catalog.
type Store interface {
	Get(ctx context.Context, id int64) (*models.CatalogItem, error)
	TagPeers(ctx context.Context, q catalog.PeerQuery) ([]models.CatalogItem, error)
}

// Refresher performs an on-demand, single-language refresh and persists it.
type Refresher interface {
	RefreshOne(ctx context.Context, ids []int64, language, credential string) ([]models.CatalogItem, error)
}

type Example struct {
	AppID           int64  `json:"app_id"`
	Name            string `json:"name"`
	TotalReviews    int    `json:"total_reviews_all_purchase_types"`
	LanguageReviews int    `json:"language_specific_reviews"`
}

// Comparison holds the two partitions of a peer pool for one language.
type Comparison struct {
	Language        string    `json:"analyzed_language"`
	AvgWith         float64   `json:"avg_reviews_with_language"`
	AvgWithout      float64   `json:"avg_reviews_without_language"`
	WithExamples    []Example `json:"with_language_examples"`
	WithoutExamples []Example `json:"without_language_examples"`
	WithCount       int       `json:"with_language_count"`
	WithoutCount    int       `json:"without_language_count"`
}

// Target is the by-item breakdown of the item being analyzed.
type Target struct {
	AppID              int64          `json:"app_id"`
	Name               string         `json:"name"`
	Tags               []string       `json:"tags"`
	HasTargetLanguage  bool           `json:"has_target_language"`
	SupportedLanguages []string       `json:"supported_languages"`
	TotalReviews       int            `json:"total_reviews_all_purchase_types"`
	LanguageReviews    map[string]int `json:"language_reviews"`
}

type Query struct {
	Tags     []string `json:"tags"`
	Language string   `json:"language"`
}

type Result struct {
	Query      Query      `json:"query"`
	Target     *Target    `json:"target_game,omitempty"`
	Comparison Comparison `json:"comparison"`
}

// Compare partitions pool by support for language and summarizes both sides.
// Items without tags, with MinReviews or fewer reviews, sharing no tag with
// targetTags, or carrying excludeID are left out. It never fails.
func Compare(pool []models.CatalogItem, targetTags []string, excludeID int64, language string) Comparison {
	want := make(map[string]struct{}, len(targetTags))
	for _, t := range targetTags {
		want[t] = struct{}{}
	}
	needle := strings.ToLower(scraper.CanonicalName(language))

	var with, without []models.CatalogItem
	for _, it := range pool {
		if excludeID != 0 && it.ID == excludeID {
			continue
		}
		if len(it.Tags) == 0 || it.TotalReviewsAll <= MinReviews || !sharesTag(it.Tags, want) {
			continue
		}
		if strings.Contains(strings.ToLower(scraper.JoinList(it.SupportedLanguages)), needle) {
			with = append(with, it)
		} else {
			without = append(without, it)
		}
	}

	return Comparison{
		Language:        language,
		AvgWith:         average(with),
		AvgWithout:      average(without),
		WithExamples:    topExamples(with, language),
		WithoutExamples: topExamples(without, language),
		WithCount:       len(with),
		WithoutCount:    len(without),
	}
}

func sharesTag(tags []string, want map[string]struct{}) bool {
	for _, t := range tags {
		if _, ok := want[t]; ok {
			return true
		}
	}
	return false
}

func average(items []models.CatalogItem) float64 {
	if len(items) == 0 {
		return 0
	}
	sum := 0
	for _, it := range items {
		sum += it.TotalReviewsAll
	}
	return float64(sum) / float64(len(items))
}

// topExamples ranks by total reviews descending, then id ascending.
func topExamples(items []models.CatalogItem, language string) []Example {
	ranked := append([]models.CatalogItem(nil), items...)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].TotalReviewsAll != ranked[j].TotalReviewsAll {
			return ranked[i].TotalReviewsAll > ranked[j].TotalReviewsAll
		}
		return ranked[i].ID < ranked[j].ID
	})
	if len(ranked) > examplesPerSide {
		ranked = ranked[:examplesPerSide]
	}

	out := make([]Example, 0, len(ranked))
	for _, it := range ranked {
		out = append(out, Example{
			AppID:           it.ID,
			Name:            it.Name,
			TotalReviews:    it.TotalReviewsAll,
			LanguageReviews: it.LanguageReviewCount(language),
		})
	}
	return out
}

// Engine answers comparison queries against the catalog.
type Engine struct {
	Store     Store
	Refresher Refresher // optional; without it credentials never trigger refreshes
	Log       *slog.Logger
}

func NewEngine(store Store, refresher Refresher, log *slog.Logger) *Engine {
	return &Engine{Store: store, Refresher: refresher, Log: logging.OrDefault(log)}
}

// CompareByTags compares catalog items sharing any tag in tagList, which is
// a comma or semicolon separated list.
func (e *Engine) CompareByTags(ctx context.Context, tagList, language string) (Result, error) {
	tags := scraper.SplitList(tagList)
	if len(tags) == 0 {
		return Result{}, ErrEmptyTags
	}
	pool, err := e.Store.TagPeers(ctx, catalog.PeerQuery{Tags: tags, MinReviews: MinReviews})
	if err != nil {
		return Result{}, fmt.Errorf("load peers: %w", err)
	}
	return Result{
		Query:      Query{Tags: tags, Language: language},
		Comparison: Compare(pool, tags, 0, language),
	}, nil
}

// CompareByItem compares item id against its tag peers. With a credential
// the target and the current top examples are refreshed for language first.
// Without one, only core languages may be analyzed.
func (e *Engine) CompareByItem(ctx context.Context, id int64, language, credential string) (Result, error) {
	if credential == "" && !scraper.IsCoreLanguage(language) {
		return Result{}, ErrCredentialRequired
	}
	live := credential != "" && e.Refresher != nil
	log := e.Log.With("app_id", id, "language", language)

	target, err := e.Store.Get(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if len(target.Tags) == 0 && live {
		log.Info("target has no tags, refreshing first")
		if _, err := e.Refresher.RefreshOne(ctx, []int64{id}, language, credential); err != nil {
			return Result{}, fmt.Errorf("refresh target: %w", err)
		}
		if target, err = e.Store.Get(ctx, id); err != nil {
			return Result{}, err
		}
	}
	if len(target.Tags) == 0 {
		return Result{}, ErrNoTags
	}

	q := catalog.PeerQuery{Tags: target.Tags, MinReviews: MinReviews, ExcludeID: id}
	pool, err := e.Store.TagPeers(ctx, q)
	if err != nil {
		return Result{}, fmt.Errorf("load peers: %w", err)
	}

	if live {
		pre := Compare(pool, target.Tags, id, language)
		ids := []int64{id}
		for _, ex := range append(pre.WithExamples, pre.WithoutExamples...) {
			ids = append(ids, ex.AppID)
		}
		log.Info("refreshing target and examples", "count", len(ids))
		if _, err := e.Refresher.RefreshOne(ctx, ids, language, credential); err != nil {
			return Result{}, fmt.Errorf("refresh examples: %w", err)
		}
		if target, err = e.Store.Get(ctx, id); err != nil {
			return Result{}, err
		}
		if pool, err = e.Store.TagPeers(ctx, q); err != nil {
			return Result{}, fmt.Errorf("reload peers: %w", err)
		}
	}

	return Result{
		Query:      Query{Tags: target.Tags, Language: language},
		Target:     describeTarget(*target, language),
		Comparison: Compare(pool, target.Tags, id, language),
	}, nil
}

func describeTarget(it models.CatalogItem, language string) *Target {
	name := strings.ToLower(scraper.CanonicalName(language))
	langs := make([]string, 0, len(it.SupportedLanguages))
	has := false
	for _, l := range it.SupportedLanguages {
		l = strings.ToLower(l)
		langs = append(langs, l)
		if l == name {
			has = true
		}
	}
	reviews := it.LanguageReviews
	if reviews == nil {
		reviews = map[string]int{}
	}
	return &Target{
		AppID:              it.ID,
		Name:               it.Name,
		Tags:               it.Tags,
		HasTargetLanguage:  has,
		SupportedLanguages: langs,
		TotalReviews:       it.TotalReviewsAll,
		LanguageReviews:    reviews,
	}
}
