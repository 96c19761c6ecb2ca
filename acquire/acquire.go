// CLAUDE:SUMMARY Job Orchestrator service — one-active-per-key claim, detached job goroutines, status/attempt queries, restart recovery.
// Package acquire runs acquisition jobs: map a district site, rank its
// pages, fetch the best candidates, extract and triage them, file them into
// tiers and feed the outcomes back into the pattern store.
//
// Usage:
//
//	svc, err := acquire.New(ctx, db, cfg, logger)
//	job, err := svc.Start(ctx, "0612345", acquire.Request{URL: "https://springfield.k12.ca.us", Name: "Springfield", State: "CA"})
//	svc.Wait("0612345")
//	job, err = svc.Status(ctx, "0612345")
package acquire

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/bellscout/acquire/internal/store"
	"github.com/hazyhaar/bellscout/extract"
	"github.com/hazyhaar/bellscout/fetch"
	"github.com/hazyhaar/bellscout/horosafe"
	"github.com/hazyhaar/bellscout/idgen"
	"github.com/hazyhaar/bellscout/llm"
	"github.com/hazyhaar/bellscout/mapper"
	"github.com/hazyhaar/bellscout/organize"
	"github.com/hazyhaar/bellscout/patterns"
	"github.com/hazyhaar/bellscout/rank"
	"github.com/hazyhaar/bellscout/render"
	"github.com/hazyhaar/bellscout/triage"
	"github.com/hazyhaar/bellscout/verify"
)

var (
	ErrAlreadyRunning = errors.New("acquire: job already running")
	ErrNotFound       = errors.New("acquire: job not found")
	ErrInvalidRequest = errors.New("acquire: invalid request")
)

// Job is an acquisition job record.
type Job = store.Job

// Attempt is an enrichment-attempt log record.
type Attempt = store.Attempt

// Status is a job lifecycle state.
type Status = store.Status

const (
	StatusInitializing          = store.StatusInitializing
	StatusCheckingMapper        = store.StatusCheckingMapper
	StatusMapping               = store.StatusMapping
	StatusRanking               = store.StatusRanking
	StatusCapturing             = store.StatusCapturing
	StatusTriaging              = store.StatusTriaging
	StatusPersisting            = store.StatusPersisting
	StatusCompleted             = store.StatusCompleted
	StatusCompletedNoCandidates = store.StatusCompletedNoCandidates
	StatusFailed                = store.StatusFailed
)

// Request starts a job. Zero limits take the configured defaults.
type Request struct {
	URL         string `json:"url"`
	Name        string `json:"name"`
	State       string `json:"state"`
	MaxRequests int    `json:"max_requests,omitempty"`
	MaxDepth    int    `json:"max_depth,omitempty"`
	TopN        int    `json:"top_n,omitempty"`
}

// Service is the job orchestrator.
type Service struct {
	store     *store.Store
	patterns  *patterns.Service
	mapper    *mapper.Client
	ranker    *rank.Ranker
	fetcher   *fetch.Engine
	extractor *extract.Extractor
	scorer    *triage.Scorer
	organizer *organize.Organizer
	renderer  render.Renderer
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	running map[string]chan struct{}
	wg      sync.WaitGroup
}

// Option configures a Service.
type Option func(*options)

type options struct {
	backend  *llm.Backend
	renderer render.Renderer
}

// WithBackend replaces the LLM backend built from Config.LLM.
func WithBackend(b *llm.Backend) Option { return func(o *options) { o.backend = b } }

// WithRenderer replaces the renderer built from Config.Render.
func WithRenderer(r render.Renderer) Option { return func(o *options) { o.renderer = r } }

// New wires the pipeline on db and fails any job a previous process left
// running.
func New(ctx context.Context, db *sql.DB, cfg *Config, logger *slog.Logger, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	st, err := store.New(db)
	if err != nil {
		return nil, err
	}
	ps, err := patterns.New(db, &cfg.Patterns, logger)
	if err != nil {
		return nil, err
	}
	if o.backend == nil {
		if o.backend, err = llm.New(ctx, &cfg.LLM, logger); err != nil {
			return nil, err
		}
	}
	if o.renderer == nil {
		if o.renderer, err = render.New(&cfg.Render, logger); err != nil {
			return nil, err
		}
	}
	var vision fetch.VisionExtractor
	if o.backend.Vision != nil {
		vision = o.backend.Vision
	}

	s := &Service{
		store:     st,
		patterns:  ps,
		mapper:    mapper.New(&cfg.Mapper, logger),
		ranker:    rank.New(o.backend, cfg.Prompts.Rank, logger),
		fetcher:   fetch.New(&cfg.Fetch, o.renderer, vision, logger),
		extractor: extract.New(&cfg.Extract, logger),
		scorer:    triage.New(o.backend, cfg.Prompts.Triage, cfg.TriageMaxChars, logger),
		organizer: organize.New(cfg.OutputRoot, logger),
		renderer:  o.renderer,
		cfg:       *cfg,
		logger:    logger,
		now:       time.Now,
		running:   make(map[string]chan struct{}),
	}

	n, err := st.FailActive(ctx, "interrupted", s.now().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("acquire: recover jobs: %w", err)
	}
	if n > 0 {
		logger.Warn("acquire: failed interrupted jobs", "count", n)
	}
	return s, nil
}

// Patterns returns the pattern store the jobs learn into.
func (s *Service) Patterns() *patterns.Service { return s.patterns }

// Config returns the configuration in force.
func (s *Service) Config() Config { return s.cfg }

// Start validates req, claims key and runs the job in the background. The
// job is detached from ctx and always reaches a terminal state.
func (s *Service) Start(ctx context.Context, key string, req Request) (*Job, error) {
	if err := s.validate(key, req); err != nil {
		return nil, err
	}

	now := s.now().UnixMilli()
	job := &Job{
		Key:       key,
		RunID:     idgen.New(),
		Name:      req.Name,
		State:     req.State,
		URL:       req.URL,
		Status:    StatusInitializing,
		Stage:     StatusInitializing,
		StartedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	if _, busy := s.running[key]; busy {
		s.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	if err := s.store.Claim(ctx, job); err != nil {
		s.mu.Unlock()
		if errors.Is(err, store.ErrActive) {
			return nil, ErrAlreadyRunning
		}
		return nil, fmt.Errorf("acquire: claim %s: %w", key, err)
	}
	done := make(chan struct{})
	s.running[key] = done
	s.wg.Add(1)
	s.mu.Unlock()

	snapshot := *job
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.running, key)
			s.mu.Unlock()
			close(done)
		}()
		s.run(job, req)
	}()
	return &snapshot, nil
}

func (s *Service) validate(key string, req Request) error {
	if err := horosafe.ValidateIdentifier(key); err != nil {
		return fmt.Errorf("%w: key: %v", ErrInvalidRequest, err)
	}
	check := horosafe.ValidateURL
	if s.cfg.AllowPrivateHosts {
		check = func(u string) error { _, err := horosafe.CheckScheme(u); return err }
	}
	if err := check(req.URL); err != nil {
		return fmt.Errorf("%w: url: %v", ErrInvalidRequest, err)
	}
	if req.MaxRequests < 0 || req.MaxDepth < 0 || req.TopN < 0 {
		return fmt.Errorf("%w: negative limit", ErrInvalidRequest)
	}
	return nil
}

// Status returns the latest job of key.
func (s *Service) Status(ctx context.Context, key string) (*Job, error) {
	j, err := s.store.GetJob(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("acquire: status: %w", err)
	}
	if j == nil {
		return nil, ErrNotFound
	}
	return j, nil
}

// Jobs lists every job, most recent first.
func (s *Service) Jobs(ctx context.Context) ([]*Job, error) {
	return s.store.ListJobs(ctx)
}

// Wait blocks until the in-process job of key, if any, has finished.
func (s *Service) Wait(key string) {
	s.mu.Lock()
	done := s.running[key]
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Attempts lists the attempt log of key, oldest first.
func (s *Service) Attempts(ctx context.Context, key string) ([]*Attempt, error) {
	return s.store.Attempts(ctx, key)
}

// RunAttempts implements verify.AttemptLog.
func (s *Service) RunAttempts(ctx context.Context, runID string) ([]verify.Attempt, error) {
	as, err := s.store.RunAttempts(ctx, runID)
	if err != nil {
		return nil, err
	}
	return toVerify(as), nil
}

// SkipList returns the keys whose latest run ended in a security block.
func (s *Service) SkipList(ctx context.Context) ([]string, error) {
	as, err := s.store.AllAttempts(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire: skip list: %w", err)
	}
	keys := verify.SkipList(toVerify(as))
	if keys == nil {
		keys = []string{}
	}
	return keys, nil
}

func toVerify(as []*Attempt) []verify.Attempt {
	out := make([]verify.Attempt, len(as))
	for i, a := range as {
		out[i] = verify.Attempt{JobKey: a.JobKey, RunID: a.RunID, Outcome: a.Outcome, Block: a.Block, CreatedAt: a.CreatedAt}
	}
	return out
}

// Close waits for running jobs, then releases the renderer.
func (s *Service) Close() error {
	s.wg.Wait()
	if c, ok := s.renderer.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
