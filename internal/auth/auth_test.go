package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

func testTokens() TokenService {
	return TokenService{Secret: []byte("test-secret"), Issuer: "locscout", Duration: time.Hour}
}

func TestTokenRoundTrip(t *testing.T) {
	ts := testTokens()
	tok, exp, err := ts.Sign()
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Fatalf("expiry in the past: %v", exp)
	}
	claims, err := ts.Parse(tok)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Subject != OperatorSubject || claims.ID == "" {
		t.Fatalf("claims = %+v", claims)
	}

	other, _, _ := ts.Sign()
	if other == tok {
		t.Fatal("tokens should carry distinct ids")
	}
}

func TestTokenRejections(t *testing.T) {
	ts := testTokens()
	tok, _, err := ts.Sign()
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	wrongKey := ts
	wrongKey.Secret = []byte("other")
	if _, err := wrongKey.Parse(tok); err == nil {
		t.Fatal("token accepted with the wrong secret")
	}

	wrongIssuer := ts
	wrongIssuer.Issuer = "someone-else"
	if _, err := wrongIssuer.Parse(tok); err == nil {
		t.Fatal("token accepted from another issuer")
	}

	later := ts
	later.Now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := later.Parse(tok); err == nil {
		t.Fatal("expired token accepted")
	}

	if _, _, err := (TokenService{}).Sign(); !errors.Is(err, ErrNoSecret) {
		t.Fatalf("err = %v, want ErrNoSecret", err)
	}
}

func TestHashPassword(t *testing.T) {
	if _, err := HashPassword("short"); err == nil {
		t.Fatal("short password accepted")
	}
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte("correct horse")) != nil {
		t.Fatal("hash does not verify")
	}
}

func newAuthRouter(t *testing.T, hash string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	tokens := testTokens()
	NewHandler(hash, tokens).RegisterRoutes(r.Group("/auth"))
	r.GET("/admin/ping", RequireOperator(tokens), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"sub": MustGetClaims(c).Subject})
	})
	return r
}

func TestLoginAndProtectedRoute(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	router := newAuthRouter(t, string(hash))

	login := func(body string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)
		return w
	}

	if w := login(`{"password":"nope nope"}`); w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password code = %d", w.Code)
	}
	if w := login(`{}`); w.Code != http.StatusBadRequest {
		t.Fatalf("empty password code = %d", w.Code)
	}

	w := login(`{"password":"correct horse"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("login code = %d (%s)", w.Code, w.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.Token == "" {
		t.Fatalf("login body = %s", w.Body.String())
	}

	tests := []struct {
		name   string
		header string
		code   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"garbage", "Bearer abc.def.ghi", http.StatusUnauthorized},
		{"valid", "Bearer " + resp.Token, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			router.ServeHTTP(w, req)
			if w.Code != tt.code {
				t.Fatalf("code = %d, want %d", w.Code, tt.code)
			}
		})
	}
}

func TestLoginDisabledWithoutHash(t *testing.T) {
	router := newAuthRouter(t, "")
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"password":"whatever1"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("code = %d", w.Code)
	}
}
