package catalog

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"locscout/internal/scraper"
	"locscout/pkg/models"
)

var exportHeader = []string{
	"app_id", "name", "item_type", "tags", "supported_languages", "language_reviews",
	"total_reviews_all_purchase_types", "total_reviews_storefront_only", "last_scanned",
}

// ExportCSV writes the whole catalog, ordered by app_id, and returns the
// number of rows written.
func (r *Repo) ExportCSV(ctx context.Context, out io.Writer) (int, error) {
	items, err := r.queryItems(ctx, selectColumns+` ORDER BY app_id ASC`)
	if err != nil {
		return 0, err
	}

	w := csv.NewWriter(out)
	if err := w.Write(exportHeader); err != nil {
		return 0, err
	}
	for _, it := range items {
		reviews, err := json.Marshal(it.LanguageReviews)
		if err != nil {
			return 0, fmt.Errorf("encode reviews for %d: %w", it.ID, err)
		}
		scanned := ""
		if it.LastScanned != nil {
			scanned = it.LastScanned.UTC().Format(time.RFC3339)
		}
		if err := w.Write([]string{
			strconv.FormatInt(it.ID, 10),
			it.Name,
			string(it.Type),
			scraper.JoinList(it.Tags),
			scraper.JoinList(it.SupportedLanguages),
			string(reviews),
			strconv.Itoa(it.TotalReviewsAll),
			strconv.Itoa(it.TotalReviewsStore),
			scanned,
		}); err != nil {
			return 0, err
		}
	}

	w.Flush()
	return len(items), w.Error()
}

// ReadAppListCSV parses an offline app list with an "app_id" (or "appid")
// and a "name" column. Rows without a positive id or a name are skipped.
func ReadAppListCSV(in io.Reader) ([]models.AppListEntry, error) {
	r := csv.NewReader(in)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty csv")
		}
		return nil, err
	}
	idCol, nameCol := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "app_id", "appid":
			idCol = i
		case "name":
			nameCol = i
		}
	}
	if idCol < 0 || nameCol < 0 {
		return nil, fmt.Errorf("csv header needs app_id and name columns")
	}

	var out []models.AppListEntry
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if idCol >= len(row) || nameCol >= len(row) {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSpace(row[idCol]), 10, 64)
		name := strings.TrimSpace(row[nameCol])
		if err != nil || id <= 0 || name == "" {
			continue
		}
		out = append(out, models.AppListEntry{ID: id, Name: name})
	}
	return out, nil
}
