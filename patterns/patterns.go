// CLAUDE:SUMMARY Pattern store service — observe/learn with per-pattern serialization, promotion, approve/reject, review queue, effective set.
// Package patterns learns which URL shapes lead to bell schedules.
//
// Every captured and triaged URL is reduced to a keyword glob
// ("**/*bell*schedule*"). Outcomes accumulate per glob across job keys and
// drive a promotion state machine:
//
//	learning → review → approved        (approve is a human action)
//	learning|review → flagged           (sustained poor success rate)
//	any → deleted                       (reject is a human action)
//
// The effective set handed to the mapper and ranker is recomputed from the
// table on every call.
//
// Usage:
//
//	ps, err := patterns.New(db, &patterns.Config{}, logger)
//	eff, err := ps.Effective(ctx)
//	ps.Learn(ctx, "https://d.org/bell-schedule.pdf", true, "ca-0612345")
package patterns

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/hazyhaar/bellscout/patterns/internal/store"
)

// ErrNotFound is returned when a pattern does not exist.
var ErrNotFound = errors.New("patterns: not found")

// Service is the pattern store and learning feedback loop.
type Service struct {
	store  *store.Store
	cfg    Config
	logger *slog.Logger
	locks  *keyLock
	now    func() time.Time
}

// New applies the schema on db and returns the service.
func New(db *sql.DB, cfg *Config, logger *slog.Logger) (*Service, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	s, err := store.New(db)
	if err != nil {
		return nil, err
	}
	return &Service{
		store:  s,
		cfg:    *cfg,
		logger: logger,
		locks:  newKeyLock(),
		now:    time.Now,
	}, nil
}

// Policy returns the thresholds in force.
func (s *Service) Policy() Policy { return s.cfg.Policy }

// Learn records whether rawURL turned out to be a target.
func (s *Service) Learn(ctx context.Context, rawURL string, isTarget bool, jobKey string) (*Pattern, error) {
	if isTarget {
		return s.Observe(ctx, rawURL, Confirmed, jobKey)
	}
	return s.Observe(ctx, rawURL, Rejected, jobKey)
}

// Observe folds one observation of rawURL into its pattern. It returns nil
// when the URL carries no vocabulary keyword.
//
// For exclude patterns the outcome is inverted: a non-target URL confirms
// that the exclusion was right.
func (s *Service) Observe(ctx context.Context, rawURL string, outcome Outcome, jobKey string) (*Pattern, error) {
	cand, ok := CandidateFor(rawURL)
	if !ok {
		return nil, nil
	}
	if cand.Kind == KindExclude {
		outcome = invert(outcome)
	}

	unlock := s.locks.Lock(cand.Pattern)
	defer unlock()

	var (
		result *Pattern
		prev   string
	)
	err := s.store.Update(ctx, cand.Pattern, func(p *Pattern) (*Pattern, error) {
		now := s.now().UnixMilli()
		if p == nil {
			p = &Pattern{
				Pattern:   cand.Pattern,
				Kind:      cand.Kind,
				Keywords:  cand.Keywords,
				Status:    StatusLearning,
				CreatedAt: now,
			}
		}
		prev = p.Status

		p.Matches++
		switch outcome {
		case Confirmed:
			p.Confirmed++
		case Rejected:
			p.Rejected++
		default:
			p.Pending++
		}
		p.AddJobKey(jobKey)
		if p.Decided() {
			p.SuccessRate = float64(p.Confirmed) / float64(p.Confirmed+p.Rejected)
		}
		p.Status = s.cfg.Policy.Next(p)
		p.UpdatedAt = now
		result = p
		return p, nil
	})
	if err != nil {
		return nil, fmt.Errorf("patterns: observe %s: %w", cand.Pattern, err)
	}

	if prev != "" && prev != result.Status {
		s.logger.Info("patterns: status changed",
			"pattern", result.Pattern, "from", prev, "to", result.Status,
			"districts", result.Districts(), "success_rate", result.SuccessRate)
	}
	return result, nil
}

func invert(o Outcome) Outcome {
	switch o {
	case Confirmed:
		return Rejected
	case Rejected:
		return Confirmed
	}
	return o
}

// Approve marks pattern approved. Approving twice only refreshes the
// timestamps.
func (s *Service) Approve(ctx context.Context, pattern string) (*Pattern, error) {
	unlock := s.locks.Lock(pattern)
	defer unlock()

	var result *Pattern
	err := s.store.Update(ctx, pattern, func(p *Pattern) (*Pattern, error) {
		if p == nil {
			return nil, ErrNotFound
		}
		now := s.now().UnixMilli()
		p.Status = StatusApproved
		p.ApprovedAt = now
		p.UpdatedAt = now
		result = p
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("patterns: approved", "pattern", pattern)
	return result, nil
}

// Reject deletes pattern. Rejecting an absent pattern is a no-op.
func (s *Service) Reject(ctx context.Context, pattern string) error {
	unlock := s.locks.Lock(pattern)
	defer unlock()

	deleted, err := s.store.DeletePattern(ctx, pattern)
	if err != nil {
		return fmt.Errorf("patterns: reject %s: %w", pattern, err)
	}
	if deleted {
		s.logger.Info("patterns: rejected", "pattern", pattern)
	}
	return nil
}

// Get returns one pattern or ErrNotFound.
func (s *Service) Get(ctx context.Context, pattern string) (*Pattern, error) {
	p, err := s.store.GetPattern(ctx, pattern)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNotFound
	}
	return p, nil
}

// List returns every stored pattern.
func (s *Service) List(ctx context.Context) ([]*Pattern, error) {
	return s.store.ListPatterns(ctx)
}

// Review returns the patterns awaiting human judgment: review first, then
// flagged, then learning; within a status, more districts and a higher
// success rate come first.
func (s *Service) Review(ctx context.Context) ([]*Pattern, error) {
	ps, err := s.store.ListPatterns(ctx, StatusReview, StatusFlagged, StatusLearning)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(ps, func(a, b *Pattern) int {
		return cmp.Or(
			cmp.Compare(priority(a.Status), priority(b.Status)),
			cmp.Compare(b.Districts(), a.Districts()),
			cmp.Compare(b.SuccessRate, a.SuccessRate),
			cmp.Compare(a.Pattern, b.Pattern),
		)
	})
	return ps, nil
}

// Effective computes base ∪ approved ∪ trusted learning/review patterns.
// Nothing is cached: a mutation is visible to the next call.
func (s *Service) Effective(ctx context.Context) (Effective, error) {
	eff := Effective{
		IncludeGlobs: slices.Clone(s.cfg.BaseInclude),
		ExcludeGlobs: slices.Clone(s.cfg.BaseExclude),
	}
	ps, err := s.store.ListPatterns(ctx, StatusApproved, StatusLearning, StatusReview)
	if err != nil {
		return Effective{}, fmt.Errorf("patterns: effective: %w", err)
	}
	for _, p := range ps {
		if p.Status != StatusApproved && !s.cfg.Policy.trusted(p) {
			continue
		}
		if p.Kind == KindExclude {
			eff.ExcludeGlobs = appendUnique(eff.ExcludeGlobs, p.Pattern)
		} else {
			eff.IncludeGlobs = appendUnique(eff.IncludeGlobs, p.Pattern)
		}
	}
	return eff, nil
}

// Matcher compiles the current effective set.
func (s *Service) Matcher(ctx context.Context) (*Matcher, error) {
	eff, err := s.Effective(ctx)
	if err != nil {
		return nil, err
	}
	return NewMatcher(eff)
}

func appendUnique(s []string, v string) []string {
	if slices.Contains(s, v) {
		return s
	}
	return append(s, v)
}
