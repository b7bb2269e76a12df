package cli

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

// fakeMarketplace serves the app list, detail and review endpoints.
func fakeMarketplace(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/applist", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"applist":{"apps":[{"appid":10,"name":"Ten"},{"appid":20,"name":"Twenty"},{"appid":30,"name":"  "}]}}`)
	})
	mux.HandleFunc("/appdetails", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("appids")
		typ := "game"
		if id == "20" {
			typ = "dlc"
		}
		fmt.Fprintf(w, `{%q:{"success":true,"data":{"type":%q,"name":"x",
			"supported_languages":"English<strong>*</strong>, French<br><strong>*</strong>languages with full audio support",
			"genres":[{"id":"1","description":"RPG"}],"categories":[{"id":2,"description":"Single-player"}]}}}`, id, typ)
	})
	mux.HandleFunc("/appreviews/", func(w http.ResponseWriter, r *http.Request) {
		n := 100
		if r.URL.Query().Get("language") == "french" {
			n = 12
		}
		fmt.Fprintf(w, `{"success":1,"query_summary":{"total_reviews":%d}}`, n)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, upstream string) string {
	t.Helper()
	dir := t.TempDir()
	cfg := fmt.Sprintf(`database:
  path: %s
steam:
  details_url: %s/appdetails
  reviews_url: %s/appreviews
  applist_url: %s/applist
scanner:
  item_pause: 0s
  language_pause: 0s
  review_pause: 0s
log:
  level: error
`, filepath.Join(dir, "catalog.db"), upstream, upstream, upstream)
	path := filepath.Join(dir, "locscout.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("%v: %v\n%s", args, err, out.String())
	}
	return out.String()
}

func TestBootstrapTickAndScanOne(t *testing.T) {
	cfg := writeConfig(t, fakeMarketplace(t).URL)

	if out := run(t, "bootstrap", "--config", cfg); !strings.Contains(out, "listed 2, added 2") {
		t.Fatalf("bootstrap output = %q", out)
	}
	if out := run(t, "stats", "--config", cfg); !strings.Contains(out, "never scanned: 2") {
		t.Fatalf("stats output = %q", out)
	}
	if out := run(t, "tick", "--config", cfg); !strings.Contains(out, "refreshed 2 item(s) from the never_scanned queue") {
		t.Fatalf("tick output = %q", out)
	}
	if out := run(t, "tick", "--config", cfg); !strings.Contains(out, "nothing to do") {
		t.Fatalf("second tick output = %q", out)
	}

	out := run(t, "scan-one", "10", "--config", cfg, "--language", "french")
	for _, want := range []string{"refreshed", "RPG,Single-player", "English,French", "french:", "12"} {
		if !strings.Contains(out, want) {
			t.Fatalf("scan-one output missing %q:\n%s", want, out)
		}
	}

	out = run(t, "scan-one", "20", "--config", cfg, "--language", "french")
	if !strings.Contains(out, "excluded") {
		t.Fatalf("dlc should be excluded:\n%s", out)
	}
}

func TestScanOneRejectsBadInput(t *testing.T) {
	cfg := writeConfig(t, "http://127.0.0.1:1")
	for _, args := range [][]string{
		{"scan-one", "abc", "--config", cfg},
		{"scan-one", "5", "--config", cfg, "--language", "klingon"},
	} {
		rootCmd.SetArgs(args)
		rootCmd.SetOut(&bytes.Buffer{})
		rootCmd.SetErr(&bytes.Buffer{})
		if err := rootCmd.Execute(); err == nil {
			t.Fatalf("%v: expected error", args)
		}
	}
}

func TestHashPassword(t *testing.T) {
	out := strings.TrimSpace(run(t, "hash-password", "correct horse"))
	if err := bcrypt.CompareHashAndPassword([]byte(out), []byte("correct horse")); err != nil {
		t.Fatalf("printed hash does not verify: %v", err)
	}
}

func TestImportThenExportCSV(t *testing.T) {
	cfg := writeConfig(t, "http://127.0.0.1:1")
	dir := t.TempDir()
	in := filepath.Join(dir, "apps.csv")
	if err := os.WriteFile(in, []byte("app_id,name\n7,Seven\n8,Eight\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if out := run(t, "import-csv", in, "--config", cfg); !strings.Contains(out, "read 2, added 2") {
		t.Fatalf("import output = %q", out)
	}

	outPath := filepath.Join(dir, "out", "catalog.csv")
	if out := run(t, "export-csv", "--config", cfg, "--out", outPath); !strings.Contains(out, "exported 2 item(s)") {
		t.Fatalf("export output = %q", out)
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "7,Seven,unknown") {
		t.Fatalf("export content = %s", data)
	}
}
