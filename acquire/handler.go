// CLAUDE:SUMMARY chi routes for job control, attempt log, skip list and pattern administration.
package acquire

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/bellscout/patterns"
)

// Handler returns the HTTP surface of the service.
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/jobs", func(w http.ResponseWriter, r *http.Request) {
		jobs, err := s.Jobs(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if jobs == nil {
			jobs = []*Job{}
		}
		writeJSON(w, http.StatusOK, jobs)
	})

	r.Route("/jobs/{key}", func(r chi.Router) {
		r.Post("/", func(w http.ResponseWriter, r *http.Request) {
			var req Request
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			job, err := s.Start(r.Context(), chi.URLParam(r, "key"), req)
			switch {
			case errors.Is(err, ErrAlreadyRunning):
				writeError(w, http.StatusConflict, err)
			case errors.Is(err, ErrInvalidRequest):
				writeError(w, http.StatusBadRequest, err)
			case err != nil:
				writeError(w, http.StatusInternalServerError, err)
			default:
				writeJSON(w, http.StatusAccepted, job)
			}
		})

		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			job, err := s.Status(r.Context(), chi.URLParam(r, "key"))
			switch {
			case errors.Is(err, ErrNotFound):
				writeError(w, http.StatusNotFound, err)
			case err != nil:
				writeError(w, http.StatusInternalServerError, err)
			default:
				writeJSON(w, http.StatusOK, job)
			}
		})

		r.Get("/attempts", func(w http.ResponseWriter, r *http.Request) {
			as, err := s.Attempts(r.Context(), chi.URLParam(r, "key"))
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			if as == nil {
				as = []*Attempt{}
			}
			writeJSON(w, http.StatusOK, as)
		})
	})

	r.Get("/skiplist", func(w http.ResponseWriter, r *http.Request) {
		keys, err := s.SkipList(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, keys)
	})

	r.Route("/patterns", func(r chi.Router) {
		r.Get("/effective", func(w http.ResponseWriter, r *http.Request) {
			eff, err := s.patterns.Effective(r.Context())
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, eff)
		})

		r.Get("/review", func(w http.ResponseWriter, r *http.Request) {
			ps, err := s.patterns.Review(r.Context())
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			if ps == nil {
				ps = []*patterns.Pattern{}
			}
			writeJSON(w, http.StatusOK, ps)
		})

		r.Post("/learn", func(w http.ResponseWriter, r *http.Request) {
			var req patterns.LearnRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
				writeError(w, http.StatusBadRequest, errors.New("url is required"))
				return
			}
			p, err := s.patterns.Learn(r.Context(), req.URL, req.IsTarget, req.JobKey)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, p)
		})

		r.Post("/{pattern}/approve", func(w http.ResponseWriter, r *http.Request) {
			p, err := s.patterns.Approve(r.Context(), patternParam(r))
			switch {
			case errors.Is(err, patterns.ErrNotFound):
				writeError(w, http.StatusNotFound, err)
			case err != nil:
				writeError(w, http.StatusInternalServerError, err)
			default:
				writeJSON(w, http.StatusOK, p)
			}
		})

		r.Delete("/{pattern}", func(w http.ResponseWriter, r *http.Request) {
			if err := s.patterns.Reject(r.Context(), patternParam(r)); err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
	})

	return r
}

// patternParam returns the {pattern} segment. Globs contain '/', so
// clients send it escaped and chi hands it back raw.
func patternParam(r *http.Request) string {
	p := chi.URLParam(r, "pattern")
	if u, err := url.PathUnescape(p); err == nil {
		return u
	}
	return p
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
