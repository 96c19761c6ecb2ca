package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hazyhaar/bellscout/acquire"
	"github.com/hazyhaar/bellscout/dbopen"
	"github.com/hazyhaar/bellscout/render"
)

func newService(t *testing.T) *acquire.Service {
	t.Helper()
	db := dbopen.OpenMemory(t)
	cfg := &acquire.Config{
		OutputRoot: t.TempDir(),
		Render:     render.Config{Mode: "none"},
	}
	svc, err := acquire.New(context.Background(), db, cfg, nil)
	if err != nil {
		t.Fatalf("acquire.New: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return svc
}

func TestRouter_ShieldHeaders(t *testing.T) {
	// WHAT: API responses carry the shield headers and a trace ID.
	// WHY: serve mode must never expose the acquisition API without the middleware stack.
	h := router(nil, newService(t))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", w.Code)
	}
	checks := map[string]string{
		"X-Frame-Options":        "DENY",
		"X-Content-Type-Options": "nosniff",
		"Cache-Control":          "no-store",
	}
	for header, expected := range checks {
		if got := w.Header().Get(header); got != expected {
			t.Errorf("%s: got %q, want %q", header, got, expected)
		}
	}
	if id := w.Header().Get("X-Trace-ID"); len(id) != 8 {
		t.Errorf("X-Trace-ID: got %q, want 8 hex chars", id)
	}
}

func TestRouter_KeepsIncomingTraceID(t *testing.T) {
	h := router(nil, newService(t))

	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	req.Header.Set("X-Trace-ID", "batch-42")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if got := w.Header().Get("X-Trace-ID"); got != "batch-42" {
		t.Errorf("X-Trace-ID: got %q, want batch-42", got)
	}
}

func TestResolveConfig_EnvFallback(t *testing.T) {
	// WHAT: Without a config file, paths and service URLs come from the environment.
	t.Setenv("BELLSCOUT_DB", "/tmp/x.db")
	t.Setenv("BELLSCOUT_MAPPER_URL", "http://mapper:3000")
	t.Setenv("BELLSCOUT_OUTPUT_ROOT", "")

	cfg, err := resolveConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DBPath != "/tmp/x.db" {
		t.Errorf("DBPath: got %q", cfg.DBPath)
	}
	if cfg.Mapper.BaseURL != "http://mapper:3000" {
		t.Errorf("Mapper.BaseURL: got %q", cfg.Mapper.BaseURL)
	}
	if cfg.OutputRoot != "output" {
		t.Errorf("OutputRoot: got %q, want default", cfg.OutputRoot)
	}
}

func TestResolveConfig_FileWins(t *testing.T) {
	// WHAT: Values set in the file are not overridden by the environment.
	path := filepath.Join(t.TempDir(), "bellscout.yaml")
	yml := "db_path: from-file.db\nmapper:\n  base_url: http://file:3000\n"
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BELLSCOUT_DB", "from-env.db")

	cfg, err := resolveConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DBPath != "from-file.db" {
		t.Errorf("DBPath: got %q", cfg.DBPath)
	}
	if !strings.HasPrefix(cfg.Mapper.BaseURL, "http://file") {
		t.Errorf("Mapper.BaseURL: got %q", cfg.Mapper.BaseURL)
	}
}
