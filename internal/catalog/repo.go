package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sahilm/fuzzy"

	"locscout/pkg/database"
	"locscout/pkg/models"
)

var ErrNotFound = errors.New("catalog item not found")

// Repo is the catalog store. Every write runs in its own transaction.
type Repo struct {
	DB *database.DB
}

func NewRepo(db *database.DB) *Repo {
	return &Repo{DB: db}
}

const selectColumns = `
	SELECT app_id, name, item_type, tags, supported_languages, language_reviews,
	       total_reviews_all, total_reviews_storefront, last_scanned
	FROM catalog_items
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (models.CatalogItem, error) {
	var (
		it          models.CatalogItem
		itemType    string
		tags        string
		languages   string
		reviewsJSON string
		lastScanned sql.NullTime
	)
	if err := row.Scan(
		&it.ID, &it.Name, &itemType, &tags, &languages, &reviewsJSON,
		&it.TotalReviewsAll, &it.TotalReviewsStore, &lastScanned,
	); err != nil {
		return models.CatalogItem{}, err
	}

	it.Type = models.ItemType(itemType)
	if it.Type == "" {
		it.Type = models.ItemTypeUnknown
	}
	it.Tags = splitStored(tags)
	it.SupportedLanguages = splitStored(languages)
	it.LanguageReviews = map[string]int{}
	// a corrupt blob reads as empty, same as a never-scanned row
	_ = json.Unmarshal([]byte(reviewsJSON), &it.LanguageReviews)
	if it.LanguageReviews == nil {
		it.LanguageReviews = map[string]int{}
	}
	if lastScanned.Valid {
		ts := lastScanned.Time.UTC()
		it.LastScanned = &ts
	}
	return it, nil
}

func splitStored(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (r *Repo) queryItems(ctx context.Context, query string, args ...any) ([]models.CatalogItem, error) {
	rows, err := r.DB.QueryContext(ctx, r.DB.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query catalog: %w", err)
	}
	defer rows.Close()

	var out []models.CatalogItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan catalog row: %w", err)
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

func (r *Repo) Get(ctx context.Context, id int64) (*models.CatalogItem, error) {
	row := r.DB.QueryRowContext(ctx, r.DB.Rebind(selectColumns+` WHERE app_id = ?`), id)
	it, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan get %d: %w", id, err)
	}
	return &it, nil
}

// NeverScanned returns up to limit items that were never processed, in id
// order.
func (r *Repo) NeverScanned(ctx context.Context, limit int) ([]models.CatalogItem, error) {
	return r.queryItems(ctx, selectColumns+`
		WHERE last_scanned IS NULL
		ORDER BY app_id ASC
		LIMIT ?`, limit)
}

// ScannedBefore returns up to limit items last scanned before cutoff,
// oldest first.
func (r *Repo) ScannedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.CatalogItem, error) {
	return r.queryItems(ctx, selectColumns+`
		WHERE last_scanned IS NOT NULL AND last_scanned < ?
		ORDER BY last_scanned ASC, app_id ASC
		LIMIT ?`, cutoff.UTC(), limit)
}

// Save writes every mutable field of it in one transaction. The name is
// owned by bootstrap and left alone.
func (r *Repo) Save(ctx context.Context, it models.CatalogItem) error {
	reviews := it.LanguageReviews
	if reviews == nil {
		reviews = map[string]int{}
	}
	reviewsJSON, err := json.Marshal(reviews)
	if err != nil {
		return fmt.Errorf("marshal language reviews for %d: %w", it.ID, err)
	}

	var lastScanned any
	if it.LastScanned != nil {
		lastScanned = it.LastScanned.UTC()
	}
	itemType := it.Type
	if itemType == "" {
		itemType = models.ItemTypeUnknown
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, r.DB.Rebind(`
		UPDATE catalog_items SET
		  item_type = ?,
		  tags = ?,
		  supported_languages = ?,
		  language_reviews = ?,
		  total_reviews_all = ?,
		  total_reviews_storefront = ?,
		  last_scanned = ?
		WHERE app_id = ?
	`),
		string(itemType),
		strings.Join(it.Tags, ","),
		strings.Join(it.SupportedLanguages, ","),
		string(reviewsJSON),
		it.TotalReviewsAll,
		it.TotalReviewsStore,
		lastScanned,
		it.ID,
	)
	if err != nil {
		return fmt.Errorf("update %d: %w", it.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update %d: %w", it.ID, ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// InsertNew adds id+name pairs that are not in the catalog yet and reports
// how many rows were created. Existing rows are never touched.
func (r *Repo) InsertNew(ctx context.Context, apps []models.AppListEntry) (int, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, r.DB.Rebind(`
		INSERT INTO catalog_items (app_id, name)
		VALUES (?, ?)
		ON CONFLICT (app_id) DO NOTHING
	`))
	if err != nil {
		return 0, fmt.Errorf("prepare stmt: %w", err)
	}
	defer stmt.Close()

	added := 0
	for _, app := range apps {
		res, err := stmt.ExecContext(ctx, app.ID, app.Name)
		if err != nil {
			return 0, fmt.Errorf("insert %d: %w", app.ID, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			added += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return added, nil
}

// PeerQuery selects the comparison pool.
type PeerQuery struct {
	Tags       []string
	MinReviews int   // strictly greater than
	ExcludeID  int64 // 0 excludes nothing
}

// TagPeers returns items with non-empty tags, more than MinReviews reviews
// and at least one tag in common with q.Tags. The SQL narrows the pool with
// a delimiter-aware LIKE; the exact set intersection is checked here.
func (r *Repo) TagPeers(ctx context.Context, q PeerQuery) ([]models.CatalogItem, error) {
	want := make(map[string]struct{}, len(q.Tags))
	var likes []string
	args := []any{q.MinReviews, q.ExcludeID}
	for _, tag := range q.Tags {
		if tag == "" {
			continue
		}
		if _, dup := want[tag]; dup {
			continue
		}
		want[tag] = struct{}{}
		likes = append(likes, `(',' || tags || ',') LIKE ? ESCAPE '\'`)
		args = append(args, "%,"+escapeLike(tag)+",%")
	}
	if len(likes) == 0 {
		return nil, nil
	}

	candidates, err := r.queryItems(ctx, selectColumns+`
		WHERE tags <> '' AND total_reviews_all > ? AND app_id <> ?
		  AND (`+strings.Join(likes, " OR ")+`)
		ORDER BY app_id ASC`, args...)
	if err != nil {
		return nil, err
	}

	out := candidates[:0]
	for _, it := range candidates {
		for _, tag := range it.Tags {
			if _, ok := want[tag]; ok {
				out = append(out, it)
				break
			}
		}
	}
	return out, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// NameMatch is one search hit.
type NameMatch struct {
	Name  string `json:"name"`
	AppID int64  `json:"appid"`
}

type nameSource []NameMatch

func (s nameSource) String(i int) string { return s[i].Name }
func (s nameSource) Len() int            { return len(s) }

// SearchByName finds up to limit items whose name contains q
// (case-insensitive), best fuzzy match first.
func (r *Repo) SearchByName(ctx context.Context, q string, limit int) ([]NameMatch, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return []NameMatch{}, nil
	}
	if limit <= 0 || limit > 50 {
		limit = 10
	}

	rows, err := r.DB.QueryContext(ctx, r.DB.Rebind(`
		SELECT app_id, name FROM catalog_items
		WHERE LOWER(name) LIKE ? ESCAPE '\'
		ORDER BY app_id ASC
		LIMIT 200
	`), "%"+escapeLike(strings.ToLower(q))+"%")
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()

	var candidates nameSource
	for rows.Next() {
		var m NameMatch
		if err := rows.Scan(&m.AppID, &m.Name); err != nil {
			return nil, fmt.Errorf("search scan: %w", err)
		}
		candidates = append(candidates, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}

	out := make([]NameMatch, 0, limit)
	for _, hit := range fuzzy.FindFrom(q, candidates) {
		out = append(out, candidates[hit.Index])
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// Stats summarizes scan coverage.
type Stats struct {
	Total        int `json:"total"`
	NeverScanned int `json:"never_scanned"`
	Stale        int `json:"stale"`
}

func (r *Repo) Stats(ctx context.Context, staleCutoff time.Time) (Stats, error) {
	var s Stats
	row := r.DB.QueryRowContext(ctx, r.DB.Rebind(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN last_scanned IS NULL THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN last_scanned < ? THEN 1 ELSE 0 END), 0)
		FROM catalog_items
	`), staleCutoff.UTC())
	if err := row.Scan(&s.Total, &s.NeverScanned, &s.Stale); err != nil {
		return Stats{}, fmt.Errorf("stats scan: %w", err)
	}
	return s, nil
}
