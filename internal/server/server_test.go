package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"locscout/internal/auth"
	"locscout/internal/catalog"
	"locscout/internal/compare"
	"locscout/internal/feed"
	"locscout/internal/ingest"
	"locscout/internal/logging"
	"locscout/internal/scraper"
	"locscout/pkg/database"
	"locscout/pkg/models"
)

type noDetails struct{}

func (noDetails) FetchDetail(context.Context, int64) (scraper.DetailPayload, error) {
	return nil, scraper.ErrDetailUnavailable
}

type fixedReviews int

func (n fixedReviews) ReviewCount(context.Context, int64, string, string, string) scraper.ReviewResult {
	return scraper.ReviewResult{Status: scraper.ReviewOK, Total: int(n)}
}

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func newTestServer(t *testing.T) (*gin.Engine, *catalog.Repo, auth.TokenService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Open(database.Config{Driver: database.DriverSQLite, Path: filepath.Join(t.TempDir(), "catalog.db")})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	log := logging.Discard()
	repo := catalog.NewRepo(db)
	ref := ingest.NewRefresher(noDetails{}, fixedReviews(7), log)
	ref.Sleep = noSleep
	sched := ingest.NewScheduler(repo, ref, log)
	sched.Sleep = noSleep

	hash, err := bcrypt.GenerateFromPassword([]byte("operator-pass"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	tokens := auth.TokenService{Secret: []byte("s3cret"), Issuer: "locscout", Duration: time.Hour}
	hub := feed.NewHub(log)
	sched.Events = hub

	router := NewRouter(Deps{
		DB:             db,
		Catalog:        catalog.NewHandler(repo, nil, 7*24*time.Hour, log),
		Compare:        compare.NewHandler(compare.NewEngine(repo, sched, log)),
		Refresh:        ingest.NewHandler(sched),
		Auth:           auth.NewHandler(string(hash), tokens),
		Tokens:         tokens,
		Hub:            hub,
		AllowedOrigins: []string{"http://localhost"},
		Log:            log,
	})
	return router, repo, tokens
}

func do(r http.Handler, method, url, body, bearer string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, url, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestRouter_PublicRoutes(t *testing.T) {
	router, _, _ := newTestServer(t)

	for _, url := range []string{"/health", "/ready", "/languages", "/search?query=x"} {
		if w := do(router, http.MethodGet, url, "", ""); w.Code != http.StatusOK {
			t.Fatalf("%s: code = %d", url, w.Code)
		}
	}
	if w := do(router, http.MethodGet, "/analyze/tags?tags=RPG&language=french", "", ""); w.Code != http.StatusOK {
		t.Fatalf("analyze: code = %d (%s)", w.Code, w.Body.String())
	}
}

func TestRouter_AdminRefresh(t *testing.T) {
	router, repo, tokens := newTestServer(t)
	ctx := context.Background()
	if _, err := repo.InsertNew(ctx, []models.AppListEntry{{ID: 70, Name: "Seventy"}}); err != nil {
		t.Fatalf("InsertNew: %v", err)
	}

	body := `{"ids":[70],"language":"german","api_key":"k"}`
	if w := do(router, http.MethodPost, "/admin/refresh", body, ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated code = %d", w.Code)
	}

	w := do(router, http.MethodPost, "/auth/login", `{"password":"operator-pass"}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("login code = %d", w.Code)
	}
	var login struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &login); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	if _, err := tokens.Parse(login.Token); err != nil {
		t.Fatalf("issued token does not parse: %v", err)
	}

	if w := do(router, http.MethodPost, "/admin/refresh", body, login.Token); w.Code != http.StatusOK {
		t.Fatalf("refresh code = %d (%s)", w.Code, w.Body.String())
	}

	it, err := repo.Get(ctx, 70)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if it.LastScanned == nil {
		t.Fatal("refresh did not stamp the item")
	}
	if it.LanguageReviews["german"] != 0 {
		t.Fatalf("detail failure must skip language scans, got %v", it.LanguageReviews)
	}
}

func TestServe_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, "127.0.0.1:0", http.NotFoundHandler(), logging.Discard())
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
