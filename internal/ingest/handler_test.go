package ingest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"locscout/internal/scraper"
	"locscout/pkg/models"
)

func newRefreshRouter(s *Scheduler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(s).RegisterRoutes(r.Group("/admin"))
	return r
}

func TestHandler_Refresh(t *testing.T) {
	clock := &fakeClock{now: start}
	store := newMemStore(models.CatalogItem{ID: 5, Name: "Five"})
	reviews := &fakeReviews{counts: map[string]scraper.ReviewResult{"french/all": ok(12)}}
	router := newRefreshRouter(newTestScheduler(store, allGames(5), reviews, clock))

	tests := []struct {
		name string
		body string
		code int
	}{
		{"bad json", `{"ids":`, http.StatusBadRequest},
		{"no ids", `{"ids":[],"language":"french"}`, http.StatusBadRequest},
		{"unknown language", `{"ids":[5],"language":"klingon"}`, http.StatusBadRequest},
		{"ok", `{"ids":[5],"language":"french"}`, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/admin/refresh", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			router.ServeHTTP(w, req)
			if w.Code != tt.code {
				t.Fatalf("code = %d, want %d (%s)", w.Code, tt.code, w.Body.String())
			}
		})
	}

	if got := store.items[5].LanguageReviews["french"]; got != 12 {
		t.Fatalf("french reviews = %d, want 12", got)
	}
}

func TestHandler_RefreshTooManyIDs(t *testing.T) {
	router := newRefreshRouter(newTestScheduler(newMemStore(), &fakeDetails{}, &fakeReviews{}, &fakeClock{now: start}))
	ids := make([]int64, 51)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	body, _ := json.Marshal(map[string]any{"ids": ids, "language": "french"})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/admin/refresh", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("code = %d, want 400", w.Code)
	}
}
