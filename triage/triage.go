// CLAUDE:SUMMARY Content Triage Scorer: LLM-first relevance scoring of extracted text with a heuristic fallback, tier thresholds and time-literal extraction.
// Package triage scores extracted document text and assigns a quality tier.
package triage

import (
	"context"
	"log/slog"

	"github.com/hazyhaar/bellscout/llm"
	"github.com/hazyhaar/bellscout/scoring"
)

// Tiers.
const (
	TierActive     = "active"
	TierQuarantine = "quarantine"
	TierRejected   = "rejected"
)

// Tier thresholds.
const (
	ActiveMin     = 0.7
	QuarantineMin = 0.3
)

// Tiers lists every tier, in directory-creation order.
var Tiers = []string{TierActive, TierQuarantine, TierRejected}

// TierFor maps a score to its tier.
func TierFor(score float64) string {
	switch {
	case score >= ActiveMin:
		return TierActive
	case score >= QuarantineMin:
		return TierQuarantine
	}
	return TierRejected
}

// Document is one captured source to score.
type Document struct {
	URL  string
	Text string
}

// Result is the triage verdict for one document.
type Result struct {
	Score  float64  `json:"score"`
	Reason string   `json:"reason"`
	Source string   `json:"source"`
	Times  []string `json:"times"`
	Tier   string   `json:"tier"`
}

// Scorer runs the LLM strategy then the heuristic.
type Scorer struct {
	backend  *llm.Backend
	prompt   scoring.Prompt
	maxChars int
	logger   *slog.Logger
}

// New creates a Scorer. maxChars caps the text sent to the model
// (default 12000).
func New(backend *llm.Backend, prompt scoring.Prompt, maxChars int, logger *slog.Logger) *Scorer {
	if logger == nil {
		logger = slog.Default()
	}
	if prompt.User == "" {
		prompt = DefaultPrompt
	}
	if maxChars <= 0 {
		maxChars = 12000
	}
	return &Scorer{backend: backend, prompt: prompt, maxChars: maxChars, logger: logger}
}

// Score triages docs. Results are in input order; the tier is always
// derived from the clamped score.
func (s *Scorer) Score(ctx context.Context, docs []Document) ([]Result, []scoring.Failure) {
	var strategies []scoring.Strategy[Document]
	if s.backend != nil && s.backend.Client != nil {
		strategies = append(strategies, &scoring.LLMStrategy[Document]{
			Client:      s.backend.Client,
			Prompt:      s.prompt,
			Temperature: s.backend.Temperature,
			MaxTokens:   s.backend.MaxTokens,
			Key:         func(d Document) string { return d.URL },
			Data: func(items []Document) any {
				return promptData{Docs: items, MaxChars: s.maxChars}
			},
			Fill: Heuristic{},
		})
	}
	strategies = append(strategies, Heuristic{})

	scored, failures := scoring.NewChain(s.logger, strategies...).Run(ctx, docs)
	out := make([]Result, len(docs))
	for _, r := range scored {
		out[r.Index] = Result{
			Score:  r.Score,
			Reason: r.Reason,
			Source: r.Source,
			Times:  ExtractTimes(docs[r.Index].Text),
			Tier:   TierFor(r.Score),
		}
	}
	return out, failures
}

type promptData struct {
	Docs     []Document
	MaxChars int
}

// DefaultPrompt asks for one score per document, keyed by URL.
var DefaultPrompt = scoring.Prompt{
	System: `You judge whether documents captured from school district websites are bell schedules: tables of class periods with start and end times. Answer with JSON only.`,
	User: `{{range $i, $d := .Docs}}--- document {{$i}}: {{$d.URL}}
{{truncate $.MaxChars $d.Text}}
{{end}}
Return a JSON array with one object per document: {"url": "<document url>", "score": <0.0-1.0>, "reason": "<short reason>"}.`,
}
