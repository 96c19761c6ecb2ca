package rank

import (
	"context"
	"fmt"
	"strings"

	"github.com/hazyhaar/bellscout/mapper"
	"github.com/hazyhaar/bellscout/patterns"
	"github.com/hazyhaar/bellscout/scoring"
)

// NegativeKeywords mark pages that are almost never schedules.
var NegativeKeywords = []string{
	"athletics", "sports", "menu", "lunch", "nutrition",
	"employment", "jobs", "board", "login", "calendar-of-events",
}

var timeWords = []string{"hours", "times", "daily", "period"}

// Heuristic is the deterministic page scorer. It cannot fail.
type Heuristic struct {
	Matcher *patterns.Matcher
}

// Name implements scoring.Strategy.
func (Heuristic) Name() string { return scoring.SourceHeuristic }

// Score implements scoring.Strategy.
func (h Heuristic) Score(_ context.Context, pages []mapper.Page) ([]scoring.Result, error) {
	out := make([]scoring.Result, len(pages))
	for i, p := range pages {
		s, reason := h.score(p)
		out[i] = scoring.Result{
			Key:    p.URL,
			Index:  i,
			Score:  scoring.Clamp(s),
			Reason: reason,
			Source: scoring.SourceHeuristic,
		}
	}
	return out, nil
}

func (h Heuristic) score(p mapper.Page) (float64, string) {
	var s float64
	var why []string
	add := func(v float64, format string, args ...any) {
		s += v
		why = append(why, fmt.Sprintf("%+.2f ", v)+fmt.Sprintf(format, args...))
	}

	if b := scoring.Bucket(p.TimePatternCount); b > 0 {
		add(b, "%d time patterns", p.TimePatternCount)
	}

	u := strings.ToLower(p.URL)
	if strings.Contains(u, "bell") {
		add(0.2, "url has bell")
	}
	if strings.Contains(u, "schedule") {
		add(0.15, "url has schedule")
	}
	for _, w := range timeWords {
		if strings.Contains(u, w) {
			add(0.1, "url has %s", w)
			break
		}
	}

	text := strings.ToLower(p.Title + " " + p.Heading)
	switch {
	case strings.Contains(text, "bell schedule"):
		add(0.2, "title says bell schedule")
	case strings.Contains(text, "schedule"), strings.Contains(text, "bell"):
		add(0.1, "title mentions schedule")
	}

	if p.KeywordMatches > 0 {
		add(min(0.02*float64(p.KeywordMatches), 0.1), "%d keyword matches", p.KeywordMatches)
	}
	if p.HasDocumentLink {
		add(0.05, "links a document")
	}

	for _, w := range NegativeKeywords {
		if strings.Contains(u, w) {
			add(-0.2, "url has %s", w)
			break
		}
	}

	if h.Matcher != nil {
		if g := h.Matcher.Included(p.URL); g != "" {
			add(0.1, "matches %s", g)
		}
		if g := h.Matcher.Excluded(p.URL); g != "" {
			add(-0.2, "excluded by %s", g)
		}
	}
	if p.Depth > 3 {
		add(-0.05, "depth %d", p.Depth)
	}

	if len(why) == 0 {
		return 0, "heuristic: no signal"
	}
	return s, "heuristic: " + strings.Join(why, ", ")
}
