package shield

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/bellscout/kit"
)

func router(h http.HandlerFunc) http.Handler {
	r := chi.NewRouter()
	for _, mw := range DefaultStack(slog.New(slog.NewTextHandler(io.Discard, nil))) {
		r.Use(mw)
	}
	r.Get("/x", h)
	r.Post("/x", h)
	return r
}

func TestDefaultStack_HeadersAndTrace(t *testing.T) {
	var trace string
	var sawLogger bool
	h := router(func(w http.ResponseWriter, r *http.Request) {
		trace = kit.GetTraceID(r.Context())
		sawLogger = GetLogger(r.Context()) != slog.Default()
		w.Write([]byte("ok"))
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	if rec.Header().Get("X-Content-Type-Options") != "nosniff" || rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Errorf("headers = %v", rec.Header())
	}
	if trace == "" || rec.Header().Get("X-Trace-ID") != trace {
		t.Errorf("trace = %q, header = %q", trace, rec.Header().Get("X-Trace-ID"))
	}
	if !sawLogger {
		t.Error("per-request logger not in context")
	}
}

func TestTraceID_KeepsIncoming(t *testing.T) {
	h := router(func(w http.ResponseWriter, r *http.Request) {})
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Trace-ID", "abc123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Trace-ID"); got != "abc123" {
		t.Errorf("trace = %q", got)
	}
}

func TestHeadToGet(t *testing.T) {
	h := router(func(w http.ResponseWriter, r *http.Request) {})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/x", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("HEAD = %d, want 200", rec.Code)
	}
}

func TestMaxBody(t *testing.T) {
	// WHAT: a body over the cap fails to read.
	// WHY: job requests are small JSON; anything bigger is abuse.
	var readErr error
	h := MaxBody(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"url":"https://d.org"}`)))
	if readErr == nil {
		t.Error("expected an error past the body cap")
	}
}
