package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"locscout/internal/logging"
	"locscout/internal/scraper"
	"locscout/pkg/models"
)

// Store is the slice of the catalog the scheduler reads and writes.
type Store interface {
	Get(ctx context.Context, id int64) (*models.CatalogItem, error)
	NeverScanned(ctx context.Context, limit int) ([]models.CatalogItem, error)
	ScannedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.CatalogItem, error)
	Save(ctx context.Context, it models.CatalogItem) error
}

// Publisher receives one event per persisted refresh.
type Publisher interface {
	Publish(v any)
}

// Event is what Publisher receives.
type Event struct {
	Type     string          `json:"type"`
	AppID    int64           `json:"app_id"`
	Name     string          `json:"name"`
	ItemType models.ItemType `json:"item_type"`
	Outcome  Outcome         `json:"outcome"`
	Source   string          `json:"source"` // "never_scanned", "stale" or "on_demand"
	At       time.Time       `json:"at"`
}

// ErrPersistence marks saves the store kept refusing.
var ErrPersistence = errors.New("catalog persistence failed")

type Queue string

const (
	QueueNone         Queue = ""
	QueueNeverScanned Queue = "never_scanned"
	QueueStale        Queue = "stale"
)

// Scheduler keeps the catalog fresh: never-scanned items first, then items
// older than StaleAfter, oldest first, otherwise it idles.
//
// Batch items and RefreshOne run one at a time under mu, and each batch item
// is reloaded before its refresh, so an on-demand write made while a batch is
// pending is never overwritten by the batch's older snapshot.
type Scheduler struct {
	Store        Store
	Refresher    *Refresher
	Events       Publisher
	BatchSize    int
	StaleAfter   time.Duration
	IdleInterval time.Duration
	ItemPause    time.Duration
	Languages    []string // nil means the refresher's core set
	// StopOnPersistError makes any failed save fatal. By default a failed
	// save skips the item, and Run stops only after MaxSaveFailures saves in
	// a row have failed, counted across batches.
	StopOnPersistError bool
	MaxSaveFailures    int
	// FailurePause is waited out after a batch in which nothing was saved.
	FailurePause time.Duration
	Sleep        scraper.Sleeper
	Now          func() time.Time
	Log          *slog.Logger

	mu           sync.Mutex
	saveFailures int
}

func NewScheduler(store Store, refresher *Refresher, log *slog.Logger) *Scheduler {
	return &Scheduler{
		Store:           store,
		Refresher:       refresher,
		BatchSize:       100,
		StaleAfter:      7 * 24 * time.Hour,
		IdleInterval:    time.Hour,
		ItemPause:       1500 * time.Millisecond,
		MaxSaveFailures: 20,
		FailurePause:    time.Minute,
		Sleep:           scraper.Sleep,
		Now:             time.Now,
		Log:             logging.OrDefault(log),
	}
}

// Run loops until ctx is cancelled (returns nil) or a fatal store error.
func (s *Scheduler) Run(ctx context.Context) error {
	s.Log.Info("scheduler started", "batch_size", s.BatchSize, "stale_after", s.StaleAfter)
	for {
		queue, n, err := s.Tick(ctx)
		if ctx.Err() != nil {
			s.Log.Info("scheduler stopped")
			return nil
		}
		if err != nil {
			return err
		}
		if queue != QueueNone && n > 0 {
			s.Log.Info("batch done", "queue", queue, "batch", n)
			continue
		}
		if queue != QueueNone {
			s.Log.Warn("nothing saved in batch, pausing", "queue", queue, "for", s.FailurePause)
			if err := s.Sleep(ctx, s.FailurePause); err != nil {
				s.Log.Info("scheduler stopped")
				return nil
			}
			continue
		}

		s.Log.Info("catalog is fresh, idling", "for", s.IdleInterval)
		if err := s.Sleep(ctx, s.IdleInterval); err != nil {
			s.Log.Info("scheduler stopped")
			return nil
		}
	}
}

// Tick processes at most one batch and reports which queue it came from.
// QueueNone means there was nothing to do.
func (s *Scheduler) Tick(ctx context.Context) (Queue, int, error) {
	never, err := s.Store.NeverScanned(ctx, s.BatchSize)
	if err != nil {
		return QueueNone, 0, fmt.Errorf("select never scanned: %w", err)
	}
	if len(never) > 0 {
		n, err := s.processBatch(ctx, QueueNeverScanned, never)
		return QueueNeverScanned, n, err
	}

	cutoff := s.Now().Add(-s.StaleAfter)
	stale, err := s.Store.ScannedBefore(ctx, cutoff, s.BatchSize)
	if err != nil {
		return QueueNone, 0, fmt.Errorf("select stale: %w", err)
	}
	if len(stale) > 0 {
		n, err := s.processBatch(ctx, QueueStale, stale)
		return QueueStale, n, err
	}
	return QueueNone, 0, nil
}

// processBatch refreshes and saves items one at a time, in order. The
// cancellation check sits between items; a refresh interrupted by ctx is
// dropped without saving.
func (s *Scheduler) processBatch(ctx context.Context, queue Queue, items []models.CatalogItem) (int, error) {
	s.Log.Info("processing batch", "queue", queue, "batch", len(items))
	saved := 0

	for i, item := range items {
		if ctx.Err() != nil {
			return saved, nil
		}

		done, err := s.processItem(ctx, queue, item)
		if err != nil {
			return saved, err
		}
		if !done && ctx.Err() != nil {
			return saved, nil
		}
		if done {
			saved++
		}

		if i < len(items)-1 {
			if err := s.Sleep(ctx, s.ItemPause); err != nil {
				return saved, nil
			}
		}
	}
	return saved, nil
}

// processItem refreshes the current stored state of item and saves it. It
// reports whether the save went through; the error is fatal.
func (s *Scheduler) processItem(ctx context.Context, queue Queue, item models.CatalogItem) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, err := s.Store.Get(ctx, item.ID); err == nil {
		item = *current
	} else if ctx.Err() != nil {
		return false, nil
	} else {
		s.Log.Warn("reload failed, using batch snapshot", "app_id", item.ID, "err", err)
	}

	updated, outcome, err := s.Refresher.Refresh(ctx, item, RefreshOptions{
		Languages:    s.Languages,
		ForceDetails: true,
	})
	if err != nil {
		// cancelled mid-item
		return false, nil
	}

	if err := s.Store.Save(ctx, updated); err != nil {
		if ctx.Err() != nil {
			return false, nil
		}
		s.saveFailures++
		s.Log.Error("save failed", "app_id", item.ID, "failures_in_a_row", s.saveFailures, "err", err)
		if s.StopOnPersistError {
			return false, fmt.Errorf("%w: app %d: %v", ErrPersistence, item.ID, err)
		}
		if s.MaxSaveFailures > 0 && s.saveFailures >= s.MaxSaveFailures {
			return false, fmt.Errorf("%w: %d saves in a row failed, last: app %d: %v", ErrPersistence, s.saveFailures, item.ID, err)
		}
		return false, nil
	}
	s.saveFailures = 0
	s.publish(updated, outcome, string(queue))
	return true, nil
}

// RefreshOne is the on-demand path: force a refresh of ids scoped to one
// language and save each. Unknown ids are skipped. It ignores queue
// priority and idling entirely, but waits for a batch item in progress.
func (s *Scheduler) RefreshOne(ctx context.Context, ids []int64, language, credential string) ([]models.CatalogItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.CatalogItem, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		item, err := s.Store.Get(ctx, id)
		if err != nil {
			s.Log.Warn("on-demand refresh skipped", "app_id", id, "err", err)
			continue
		}

		updated, outcome, err := s.Refresher.Refresh(ctx, *item, RefreshOptions{
			Languages:    []string{language},
			ForceDetails: true,
			Credential:   credential,
		})
		if err != nil {
			return out, err
		}
		if err := s.Store.Save(ctx, updated); err != nil {
			return out, fmt.Errorf("%w: app %d: %v", ErrPersistence, id, err)
		}
		s.publish(updated, outcome, "on_demand")
		out = append(out, updated)
	}
	return out, nil
}

func (s *Scheduler) publish(it models.CatalogItem, outcome Outcome, source string) {
	if s.Events == nil {
		return
	}
	s.Events.Publish(Event{
		Type:     "item.refreshed",
		AppID:    it.ID,
		Name:     it.Name,
		ItemType: it.Type,
		Outcome:  outcome,
		Source:   source,
		At:       s.Now().UTC(),
	})
}
