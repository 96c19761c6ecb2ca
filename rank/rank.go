// CLAUDE:SUMMARY URL Ranker: scores mapped pages with the LLM and falls back to a weighted heuristic informed by effective URL patterns.
// Package rank scores the pages returned by the site mapper by how likely
// each one is to hold a bell schedule.
package rank

import (
	"context"
	"log/slog"

	"github.com/hazyhaar/bellscout/llm"
	"github.com/hazyhaar/bellscout/mapper"
	"github.com/hazyhaar/bellscout/patterns"
	"github.com/hazyhaar/bellscout/scoring"
)

// Context describes the site being ranked.
type Context struct {
	Name  string
	State string

	// Matcher holds the effective globs for this run. Nil means no
	// pattern bonus or penalty.
	Matcher *patterns.Matcher
}

// Ranker runs the LLM strategy then the heuristic.
type Ranker struct {
	backend *llm.Backend
	prompt  scoring.Prompt
	logger  *slog.Logger
}

// New creates a Ranker. A nil backend or a zero prompt disables the LLM
// path; the heuristic always runs.
func New(backend *llm.Backend, prompt scoring.Prompt, logger *slog.Logger) *Ranker {
	if logger == nil {
		logger = slog.Default()
	}
	if prompt.User == "" {
		prompt = DefaultPrompt
	}
	return &Ranker{backend: backend, prompt: prompt, logger: logger}
}

// Rank scores pages, best first. It never fails: strategy failures are
// returned for diagnostics only.
func (r *Ranker) Rank(ctx context.Context, pages []mapper.Page, rc Context) ([]scoring.Result, []scoring.Failure) {
	h := Heuristic{Matcher: rc.Matcher}
	var strategies []scoring.Strategy[mapper.Page]
	if r.backend != nil && r.backend.Client != nil {
		strategies = append(strategies, &scoring.LLMStrategy[mapper.Page]{
			Client:      r.backend.Client,
			Prompt:      r.prompt,
			Temperature: r.backend.Temperature,
			MaxTokens:   r.backend.MaxTokens,
			Key:         func(p mapper.Page) string { return p.URL },
			Data: func(items []mapper.Page) any {
				return promptData{Name: rc.Name, State: rc.State, Pages: items}
			},
			Fill: h,
		})
	}
	strategies = append(strategies, h)

	res, failures := scoring.NewChain(r.logger, strategies...).Run(ctx, pages)
	r.logger.Debug("rank: scored", "site", rc.Name, "pages", len(pages), "fallbacks", len(failures))
	return res, failures
}

type promptData struct {
	Name  string
	State string
	Pages []mapper.Page
}

// DefaultPrompt asks for a JSON array keyed by URL.
var DefaultPrompt = scoring.Prompt{
	System: `You rank web pages of a school district site by how likely each one contains the district's bell schedule (daily period start and end times). Answer with JSON only.`,
	User: `District: {{.Name}}{{if .State}} ({{.State}}){{end}}

Pages:
{{range $i, $p := .Pages}}{{$i}}. {{$p.URL}}
   title: {{truncate 160 $p.Title}}
   heading: {{truncate 160 $p.Heading}}
   time patterns: {{$p.TimePatternCount}}, keyword matches: {{$p.KeywordMatches}}, document link: {{$p.HasDocumentLink}}
{{end}}
Return a JSON array with one object per page: {"url": "<page url>", "score": <0.0-1.0>, "reason": "<short reason>"}.`,
}
