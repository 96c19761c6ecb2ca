package mapper

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealth(t *testing.T) {
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(status)
	}))
	defer srv.Close()

	c := New(&Config{BaseURL: srv.URL + "/"}, nil)
	if err := c.Health(context.Background()); err != nil {
		t.Fatalf("healthy: %v", err)
	}
	status = http.StatusServiceUnavailable
	if err := c.Health(context.Background()); !errors.Is(err, ErrMapperUnavailable) {
		t.Errorf("err = %v, want ErrMapperUnavailable", err)
	}
}

func TestHealth_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	if err := New(&Config{BaseURL: base}, nil).Health(context.Background()); !errors.Is(err, ErrMapperUnavailable) {
		t.Errorf("err = %v", err)
	}
}

func TestMap(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/map" {
			http.Error(w, "bad route", http.StatusNotFound)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"pages":[
			{"url":"https://d.org/bell-schedule","depth":1,"title":"Bell Schedule","timePatternCount":24,"hasDocumentLink":true},
			{"url":"https://d.org/athletics/","depth":1,"title":"Athletics"}
		],"stats":{"visited":2}}`))
	}))
	defer srv.Close()

	c := New(&Config{BaseURL: srv.URL, MaxDepth: 3}, nil)
	res, err := c.Map(context.Background(), Request{URL: "https://d.org", ExcludeGlobs: []string{"**/*menu*"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Pages) != 2 || res.Pages[0].TimePatternCount != 24 || !res.Pages[0].HasDocumentLink {
		t.Errorf("pages = %+v", res.Pages)
	}
	if got.MaxDepth != 3 || got.MaxRequests != 200 || len(got.ExcludeGlobs) != 1 {
		t.Errorf("request = %+v", got)
	}
}

func TestMap_Unsuccessful(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"error":"dns failure"}`))
	}))
	defer srv.Close()

	_, err := New(&Config{BaseURL: srv.URL}, nil).Map(context.Background(), Request{URL: "https://nope.invalid"})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestMap_Unavailable(t *testing.T) {
	// WHAT: transport failures and 5xx replies from /map are ErrMapperUnavailable.
	// WHY: the orchestrator reports an upstream outage differently from a bad reply.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(&Config{BaseURL: srv.URL}, nil).Map(context.Background(), Request{URL: "https://d.org"})
	if !errors.Is(err, ErrMapperUnavailable) {
		t.Errorf("5xx: err = %v, want ErrMapperUnavailable", err)
	}

	down := httptest.NewServer(http.NotFoundHandler())
	base := down.URL
	down.Close()
	_, err = New(&Config{BaseURL: base}, nil).Map(context.Background(), Request{URL: "https://d.org"})
	if !errors.Is(err, ErrMapperUnavailable) {
		t.Errorf("unreachable: err = %v, want ErrMapperUnavailable", err)
	}
}

func TestMap_ClientErrorIsNotUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := New(&Config{BaseURL: srv.URL}, nil).Map(context.Background(), Request{URL: "https://d.org"})
	if err == nil || errors.Is(err, ErrMapperUnavailable) {
		t.Errorf("err = %v", err)
	}
}
