package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"locscout/pkg/models"
)

// AppListSource fetches the bulk id+name listing used to seed the catalog.
type AppListSource struct {
	Client  *Client
	URL     string
	Timeout time.Duration
}

func NewAppListSource(client *Client, url string, timeout time.Duration) *AppListSource {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &AppListSource{Client: client, URL: url, Timeout: timeout}
}

// FetchAll returns every listing that has an id and a non-blank name.
//
//	GET {URL}
//	{"applist": {"apps": [{"appid": 10, "name": "Counter-Strike"}, ...]}}
func (s *AppListSource) FetchAll(ctx context.Context) ([]models.AppListEntry, error) {
	status, body, err := s.Client.get(ctx, s.URL, nil, s.Timeout)
	if err != nil {
		return nil, fmt.Errorf("applist: %w", err)
	}
	if status == 429 {
		return nil, fmt.Errorf("applist: %w", ErrRateLimited)
	}
	if !is2xx(status) {
		return nil, fmt.Errorf("applist: %w", &StatusError{Code: status, URL: s.URL})
	}

	var raw struct {
		AppList struct {
			Apps []models.AppListEntry `json:"apps"`
		} `json:"applist"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("applist: %w: %v", ErrMalformedResponse, err)
	}

	out := make([]models.AppListEntry, 0, len(raw.AppList.Apps))
	for _, app := range raw.AppList.Apps {
		name := strings.TrimSpace(app.Name)
		if app.ID <= 0 || name == "" {
			continue
		}
		out = append(out, models.AppListEntry{ID: app.ID, Name: name})
	}
	return out, nil
}
