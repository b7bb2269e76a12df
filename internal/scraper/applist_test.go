package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAppListFetchAll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"applist":{"apps":[{"appid":10,"name":"Counter-Strike"},{"appid":20,"name":"  "},{"appid":0,"name":"x"},{"appid":30,"name":"Team Fortress"}]}}`)
	}))
	defer srv.Close()

	apps, err := NewAppListSource(NewClient("test", 0), srv.URL, time.Second).FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(apps) != 2 || apps[0].ID != 10 || apps[1].Name != "Team Fortress" {
		t.Fatalf("apps = %+v", apps)
	}
}

func TestAppListFetchAll_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewAppListSource(NewClient("test", 0), srv.URL, time.Second).FetchAll(context.Background())
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusServiceUnavailable {
		t.Fatalf("err = %v, want StatusError 503", err)
	}
}

func TestKeyValidator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("key") {
		case "good":
			fmt.Fprint(w, `{}`)
		case "bad":
			w.WriteHeader(http.StatusForbidden)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	v := &KeyValidator{Client: NewClient("test", 0), URL: srv.URL}
	if err := v.Validate(context.Background(), "good"); err != nil {
		t.Fatalf("good key: %v", err)
	}
	if err := v.Validate(context.Background(), "bad"); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("bad key err = %v", err)
	}
	var se *StatusError
	if err := v.Validate(context.Background(), "flaky"); !errors.As(err, &se) {
		t.Fatalf("flaky key err = %v", err)
	}
}
