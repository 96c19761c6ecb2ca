// CLAUDE:SUMMARY Generic LLM strategy: render prompt templates, call the model, decode a scored JSON array, fill omitted items from the heuristic.
package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/hazyhaar/bellscout/llm"
)

// Prompt is a pair of text/template sources.
type Prompt struct {
	System string `json:"system" yaml:"system"`
	User   string `json:"user" yaml:"user"`
}

// Render executes both templates with data.
func (p Prompt) Render(data any) (system, user string, err error) {
	if system, err = render("system", p.System, data); err != nil {
		return "", "", err
	}
	if user, err = render("user", p.User, data); err != nil {
		return "", "", err
	}
	return system, user, nil
}

// truncate keeps the first n characters of s, never splitting a rune.
func truncate(n int, s string) string {
	i := 0
	for pos := range s {
		if i >= n {
			return s[:pos]
		}
		i++
	}
	return s
}

func render(name, src string, data any) (string, error) {
	t, err := template.New(name).Funcs(template.FuncMap{
		"json": func(v any) (string, error) {
			b, err := json.Marshal(v)
			return string(b), err
		},
		"truncate": truncate,
	}).Parse(src)
	if err != nil {
		return "", fmt.Errorf("scoring: parse %s prompt: %w", name, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("scoring: render %s prompt: %w", name, err)
	}
	return buf.String(), nil
}

// LLMStrategy asks a model to score the whole batch in one call.
type LLMStrategy[T any] struct {
	Client      llm.Client
	Prompt      Prompt
	Temperature float64
	MaxTokens   int

	// Key returns the identifier the model echoes back (the URL).
	Key func(item T) string

	// Data builds the template data for a batch.
	Data func(items []T) any

	// Fill scores items the model left out.
	Fill Strategy[T]
}

// Name implements Strategy.
func (s *LLMStrategy[T]) Name() string { return SourceLLM }

// Score implements Strategy.
func (s *LLMStrategy[T]) Score(ctx context.Context, items []T) ([]Result, error) {
	system, user, err := s.Prompt.Render(s.Data(items))
	if err != nil {
		return nil, err
	}
	reply, err := s.Client.Complete(ctx, llm.Request{
		System:      system,
		User:        user,
		Temperature: s.Temperature,
		MaxTokens:   s.MaxTokens,
	})
	if err != nil {
		return nil, err
	}
	raw, err := llm.ExtractJSON(reply)
	if err != nil {
		return nil, err
	}

	keys := make([]string, len(items))
	for i, it := range items {
		keys[i] = s.Key(it)
	}
	got, err := DecodeScores(raw, keys)
	if err != nil {
		return nil, err
	}
	if len(got) == 0 {
		return nil, fmt.Errorf("scoring: model reply matched no item")
	}

	out := make([]Result, 0, len(items))
	var missing []int
	for i := range items {
		if r, ok := got[i]; ok {
			out = append(out, r)
		} else {
			missing = append(missing, i)
		}
	}
	if len(missing) > 0 {
		if s.Fill == nil {
			return nil, fmt.Errorf("%w (%d omitted by model)", ErrIncomplete, len(missing))
		}
		sub := make([]T, len(missing))
		for j, i := range missing {
			sub[j] = items[i]
		}
		filled, err := s.Fill.Score(ctx, sub)
		if err != nil {
			return nil, err
		}
		for _, r := range filled {
			r.Index = missing[r.Index]
			out = append(out, r)
		}
	}
	return out, nil
}

type scoreEntry struct {
	URL    string      `json:"url"`
	Key    string      `json:"key"`
	Index  *int        `json:"index"`
	ID     *int        `json:"id"`
	Score  json.Number `json:"score"`
	Reason string      `json:"reason"`
}

// DecodeScores reads a model reply: either an array of entries or an
// object wrapping one under "results" or "scores", or a single entry when
// there is one key. Entries are matched by url/key, else by index/id.
// Entries with an unknown key or a non-numeric score are dropped.
func DecodeScores(raw []byte, keys []string) (map[int]Result, error) {
	entries, err := decodeEntries(raw, len(keys))
	if err != nil {
		return nil, err
	}
	byKey := make(map[string]int, len(keys))
	for i, k := range keys {
		if _, dup := byKey[k]; !dup {
			byKey[k] = i
		}
	}

	out := make(map[int]Result)
	for _, e := range entries {
		idx := -1
		switch {
		case e.URL != "":
			if i, ok := byKey[e.URL]; ok {
				idx = i
			}
		case e.Key != "":
			if i, ok := byKey[e.Key]; ok {
				idx = i
			}
		case e.Index != nil:
			idx = *e.Index
		case e.ID != nil:
			idx = *e.ID
		case len(keys) == 1:
			idx = 0
		}
		if idx < 0 || idx >= len(keys) {
			continue
		}
		score, err := e.Score.Float64()
		if err != nil {
			continue
		}
		out[idx] = Result{
			Key:    keys[idx],
			Index:  idx,
			Score:  Clamp(score),
			Reason: strings.TrimSpace(e.Reason),
			Source: SourceLLM,
		}
	}
	return out, nil
}

func decodeEntries(raw []byte, n int) ([]scoreEntry, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var entries []scoreEntry
		if err := json.Unmarshal(raw, &entries); err != nil {
			return nil, fmt.Errorf("scoring: decode reply: %w", err)
		}
		return entries, nil
	}
	var wrapper struct {
		Results []scoreEntry `json:"results"`
		Scores  []scoreEntry `json:"scores"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return nil, fmt.Errorf("scoring: decode reply: %w", err)
	}
	if len(wrapper.Results) > 0 {
		return wrapper.Results, nil
	}
	if len(wrapper.Scores) > 0 {
		return wrapper.Scores, nil
	}
	if n == 1 {
		var single scoreEntry
		if err := json.Unmarshal(raw, &single); err == nil && single.Score != "" {
			return []scoreEntry{single}, nil
		}
	}
	return nil, fmt.Errorf("scoring: reply has no score entries")
}
