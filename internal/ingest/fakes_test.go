package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"locscout/internal/scraper"
	"locscout/pkg/models"
)

type fakeDetails struct {
	mu       sync.Mutex
	payloads map[int64]scraper.DetailPayload
	errs     map[int64]error
	calls    []int64
	onFetch  func(id int64)
}

func (f *fakeDetails) FetchDetail(_ context.Context, id int64) (scraper.DetailPayload, error) {
	if f.onFetch != nil {
		f.onFetch(id)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, id)
	if err := f.errs[id]; err != nil {
		return nil, err
	}
	if p, ok := f.payloads[id]; ok {
		return p, nil
	}
	return nil, scraper.ErrDetailUnavailable
}

func gamePayload(id int64, typ, languages string, genres ...string) scraper.DetailPayload {
	descs := make([]scraper.Description, 0, len(genres))
	for _, g := range genres {
		descs = append(descs, scraper.Description{Description: g})
	}
	data, _ := json.Marshal(scraper.AppData{Type: typ, SupportedLanguages: languages, Genres: descs})
	return scraper.DetailPayload{strconv.FormatInt(id, 10): {Success: true, Data: data}}
}

type reviewCall struct {
	ID       int64
	Language string
	Purchase string
	Key      string
}

type fakeReviews struct {
	mu     sync.Mutex
	counts map[string]scraper.ReviewResult // keyed by language+"/"+purchase
	calls  []reviewCall
}

func (f *fakeReviews) ReviewCount(_ context.Context, id int64, language, purchaseType, credential string) scraper.ReviewResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, reviewCall{ID: id, Language: language, Purchase: purchaseType, Key: credential})
	if r, ok := f.counts[language+"/"+purchaseType]; ok {
		return r
	}
	return scraper.ReviewResult{Status: scraper.ReviewFetchFailed}
}

func ok(n int) scraper.ReviewResult { return scraper.ReviewResult{Status: scraper.ReviewOK, Total: n} }

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return ctx.Err()
}

type memStore struct {
	mu        sync.Mutex
	items     map[int64]models.CatalogItem
	failSave  map[int64]bool
	saved     []int64
	selectErr error
}

func newMemStore(items ...models.CatalogItem) *memStore {
	s := &memStore{items: map[int64]models.CatalogItem{}, failSave: map[int64]bool{}}
	for _, it := range items {
		s.items[it.ID] = it
	}
	return s
}

func (s *memStore) Get(_ context.Context, id int64) (*models.CatalogItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return nil, errors.New("not found")
	}
	c := it.Clone()
	return &c, nil
}

func (s *memStore) sorted(keep func(models.CatalogItem) bool, less func(a, b models.CatalogItem) bool, limit int) []models.CatalogItem {
	var out []models.CatalogItem
	for _, it := range s.items {
		if keep(it) {
			out = append(out, it.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *memStore) NeverScanned(_ context.Context, limit int) ([]models.CatalogItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selectErr != nil {
		return nil, s.selectErr
	}
	return s.sorted(
		func(it models.CatalogItem) bool { return it.LastScanned == nil },
		func(a, b models.CatalogItem) bool { return a.ID < b.ID },
		limit,
	), nil
}

func (s *memStore) ScannedBefore(_ context.Context, cutoff time.Time, limit int) ([]models.CatalogItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(
		func(it models.CatalogItem) bool { return it.LastScanned != nil && it.LastScanned.Before(cutoff) },
		func(a, b models.CatalogItem) bool { return a.LastScanned.Before(*b.LastScanned) },
		limit,
	), nil
}

func (s *memStore) Save(_ context.Context, it models.CatalogItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSave[it.ID] {
		return errors.New("disk full")
	}
	s.items[it.ID] = it.Clone()
	s.saved = append(s.saved, it.ID)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(v any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := v.(Event); ok {
		p.events = append(p.events, e)
	}
}
