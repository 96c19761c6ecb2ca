// CLAUDE:SUMMARY Ordered strategy chain shared by the URL ranker and the triage scorer — first complete strategy wins, results clamped and stably sorted.
// Package scoring runs an ordered list of scoring strategies over a batch
// of items. The first strategy that scores every item wins; the reasons
// the others failed are collected for diagnostics. The last strategy of a
// chain is a deterministic heuristic that cannot fail, so a chain always
// produces a score for every item.
package scoring

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
)

// Sources.
const (
	SourceLLM       = "llm"
	SourceHeuristic = "heuristic"
)

// ErrIncomplete is reported when a strategy leaves items unscored.
var ErrIncomplete = errors.New("scoring: strategy did not score every item")

// Result is one scored item.
type Result struct {
	Key    string  `json:"key"`
	Index  int     `json:"index"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
	Source string  `json:"source"`
}

// Strategy scores a batch. Results carry the input Index of each item.
type Strategy[T any] interface {
	Name() string
	Score(ctx context.Context, items []T) ([]Result, error)
}

// Failure records why a strategy was skipped.
type Failure struct {
	Strategy string `json:"strategy"`
	Err      string `json:"error"`
}

// Chain runs strategies in order.
type Chain[T any] struct {
	strategies []Strategy[T]
	logger     *slog.Logger
}

// NewChain builds a chain. Put the heuristic last.
func NewChain[T any](logger *slog.Logger, strategies ...Strategy[T]) *Chain[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain[T]{strategies: strategies, logger: logger}
}

// Run scores items with the first strategy that covers all of them. The
// output is clamped to [0,1], sorted by score descending, ties in input order.
func (c *Chain[T]) Run(ctx context.Context, items []T) ([]Result, []Failure) {
	if len(items) == 0 {
		return nil, nil
	}
	var failures []Failure
	for _, s := range c.strategies {
		res, err := s.Score(ctx, items)
		if err == nil {
			err = checkCoverage(res, len(items))
		}
		if err != nil {
			failures = append(failures, Failure{Strategy: s.Name(), Err: err.Error()})
			c.logger.Warn("scoring: strategy failed, falling through",
				"strategy", s.Name(), "items", len(items), "error", err)
			continue
		}
		return Finalize(res), failures
	}

	// Only reachable with a chain missing its heuristic.
	res := make([]Result, len(items))
	for i := range items {
		res[i] = Result{Index: i, Reason: "unscored: every strategy failed", Source: SourceHeuristic}
	}
	return Finalize(res), failures
}

func checkCoverage(res []Result, n int) error {
	if len(res) != n {
		return fmt.Errorf("%w (%d of %d)", ErrIncomplete, len(res), n)
	}
	seen := make([]bool, n)
	for _, r := range res {
		if r.Index < 0 || r.Index >= n || seen[r.Index] {
			return fmt.Errorf("%w (bad index %d)", ErrIncomplete, r.Index)
		}
		seen[r.Index] = true
	}
	return nil
}

// Finalize clamps scores, fills empty reasons and sorts.
func Finalize(res []Result) []Result {
	for i := range res {
		res[i].Score = Clamp(res[i].Score)
		if strings.TrimSpace(res[i].Reason) == "" {
			src := res[i].Source
			if src == "" {
				src = "unknown"
			}
			res[i].Reason = src + ": no reason given"
		}
	}
	slices.SortFunc(res, func(a, b Result) int { return cmp.Compare(a.Index, b.Index) })
	slices.SortStableFunc(res, func(a, b Result) int { return cmp.Compare(b.Score, a.Score) })
	return res
}

// Clamp bounds s to [0,1]. NaN becomes 0.
func Clamp(s float64) float64 {
	switch {
	case s != s, s < 0:
		return 0
	case s > 1:
		return 1
	}
	return s
}

// Bucket maps a count to the >50/>10/>3 contributions shared by both
// heuristics.
func Bucket(count int) float64 {
	switch {
	case count > 50:
		return 0.5
	case count > 10:
		return 0.3
	case count > 3:
		return 0.15
	}
	return 0
}
