package triage

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/hazyhaar/bellscout/scoring"
)

var (
	periodWords   = []string{"period", "homeroom", "dismissal", "passing", "advisory", "lunch"}
	negativeWords = []string{"athletic", "menu", "bus route", "tryout"}
)

// Heuristic scores extracted text. It cannot fail.
type Heuristic struct{}

// Name implements scoring.Strategy.
func (Heuristic) Name() string { return scoring.SourceHeuristic }

// Score implements scoring.Strategy.
func (Heuristic) Score(_ context.Context, docs []Document) ([]scoring.Result, error) {
	out := make([]scoring.Result, len(docs))
	for i, d := range docs {
		s, reason := score(d)
		out[i] = scoring.Result{Key: d.URL, Index: i, Score: scoring.Clamp(s), Reason: reason, Source: scoring.SourceHeuristic}
	}
	return out, nil
}

func score(d Document) (float64, string) {
	var s float64
	var why []string
	add := func(v float64, format string, args ...any) {
		s += v
		why = append(why, fmt.Sprintf("%+.2f ", v)+fmt.Sprintf(format, args...))
	}

	text := strings.ToLower(d.Text)
	if n := len(ExtractTimes(d.Text)); scoring.Bucket(n) > 0 {
		add(scoring.Bucket(n), "%d time literals", n)
	}
	if strings.Contains(text, "bell schedule") {
		add(0.2, "says bell schedule")
	}
	var hits int
	for _, w := range periodWords {
		if strings.Contains(text, w) {
			hits++
		}
	}
	if hits > 0 {
		add(min(0.05*float64(hits), 0.2), "%d period words", hits)
	}
	if strings.Contains(text, "schedule") {
		add(0.05, "says schedule")
	}
	if strings.Contains(strings.ToLower(d.URL), "bell") {
		add(0.1, "url has bell")
	}
	for _, w := range negativeWords {
		if strings.Contains(text, w) {
			add(-0.2, "mentions %s", w)
			break
		}
	}
	if len(why) == 0 {
		return 0, "heuristic: no signal"
	}
	return s, "heuristic: " + strings.Join(why, ", ")
}

// maxTimes caps ExtractTimes output.
const maxTimes = 200

var timeRe = regexp.MustCompile(`(?i)\b([01]?\d|2[0-3]):([0-5]\d)(?:\s*([ap])\.?\s*m\b\.?)?`)

// ExtractTimes returns the distinct h:mm literals of text in order of first
// appearance, normalised to "H:MM" with an optional " AM"/" PM" suffix.
func ExtractTimes(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range timeRe.FindAllStringSubmatch(text, -1) {
		h := strings.TrimLeft(m[1], "0")
		if h == "" {
			h = "0"
		}
		t := h + ":" + m[2]
		if m[3] != "" {
			t += " " + strings.ToUpper(m[3]) + "M"
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
		if len(out) == maxTimes {
			break
		}
	}
	return out
}
