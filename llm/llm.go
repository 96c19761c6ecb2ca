// CLAUDE:SUMMARY LLM collaborator contract (chat-style completion, image-to-text), sentinel errors, disabled client, JSON extraction from replies.
// Package llm talks to the language models used for ranking and triage.
//
// Every failure here is expected: callers fall back to heuristics on any
// error, so clients report problems and never retry on their own.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

var (
	// ErrUnavailable is returned when no model can be reached (disabled
	// client, open breaker, non-2xx reply).
	ErrUnavailable = errors.New("llm: unavailable")

	// ErrNoJSON is returned when a reply holds no parsable JSON value.
	ErrNoJSON = errors.New("llm: no JSON in response")
)

// Request is one chat-style completion.
type Request struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

// Client completes prompts.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Vision reads text out of an image.
type Vision interface {
	ImageText(ctx context.Context, prompt string, image []byte, mimeType string) (string, error)
}

// Disabled is a Client that is never available.
type Disabled struct{}

// Complete always fails with ErrUnavailable.
func (Disabled) Complete(context.Context, Request) (string, error) {
	return "", ErrUnavailable
}

// ExtractJSON pulls the JSON array or object out of a model reply. It
// accepts markdown code fences and prose around the value.
func ExtractJSON(reply string) ([]byte, error) {
	s := strings.TrimSpace(reply)
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 && !strings.ContainsAny(rest[:nl], "[{") {
			rest = rest[nl+1:]
		}
		if j := strings.Index(rest, "```"); j >= 0 {
			rest = rest[:j]
		}
		s = strings.TrimSpace(rest)
	}
	if s != "" && json.Valid([]byte(s)) && (s[0] == '[' || s[0] == '{') {
		return []byte(s), nil
	}

	start := strings.IndexAny(s, "[{")
	if start < 0 {
		return nil, ErrNoJSON
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end <= start {
		return nil, ErrNoJSON
	}
	candidate := s[start : end+1]
	if !json.Valid([]byte(candidate)) {
		return nil, ErrNoJSON
	}
	return []byte(candidate), nil
}
