// CLAUDE:SUMMARY Registers pattern administration MCP tools — effective set, learn, approve, reject, review queue.
package patterns

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/bellscout/kit"
)

// RegisterMCP registers the pattern tools on srv.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "patterns_effective",
		Description: "Current effective include/exclude URL globs (base rules plus approved and trusted learned patterns).",
		InputSchema: kit.InputSchema(map[string]any{}, nil),
	}, func(ctx context.Context, _ any) (any, error) {
		return s.Effective(ctx)
	}, kit.DecodeJSON[struct{}])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "patterns_review",
		Description: "Learned patterns awaiting human judgment, highest priority first.",
		InputSchema: kit.InputSchema(map[string]any{}, nil),
	}, func(ctx context.Context, _ any) (any, error) {
		ps, err := s.Review(ctx)
		if ps == nil {
			ps = []*Pattern{}
		}
		return ps, err
	}, kit.DecodeJSON[struct{}])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "patterns_learn",
		Description: "Record whether a URL led to a bell schedule. Returns the affected pattern, or null when the URL has no known keyword.",
		InputSchema: kit.InputSchema(map[string]any{
			"url":       map[string]any{"type": "string", "description": "Observed URL"},
			"is_target": map[string]any{"type": "boolean", "description": "True when the URL held the target document"},
			"job_key":   map[string]any{"type": "string", "description": "Job key (district) of the observation"},
		}, []string{"url", "is_target"}),
	}, func(ctx context.Context, req any) (any, error) {
		r := req.(*LearnRequest)
		if r.URL == "" {
			return nil, errors.New("url is required")
		}
		return s.Learn(ctx, r.URL, r.IsTarget, r.JobKey)
	}, kit.DecodeJSON[LearnRequest])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "patterns_approve",
		Description: "Approve a learned pattern so it always joins the effective set.",
		InputSchema: kit.InputSchema(map[string]any{
			"pattern": map[string]any{"type": "string"},
		}, []string{"pattern"}),
	}, func(ctx context.Context, req any) (any, error) {
		return s.Approve(ctx, req.(*PatternRequest).Pattern)
	}, kit.DecodeJSON[PatternRequest])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "patterns_reject",
		Description: "Reject a learned pattern. The pattern is deleted.",
		InputSchema: kit.InputSchema(map[string]any{
			"pattern": map[string]any{"type": "string"},
		}, []string{"pattern"}),
	}, func(ctx context.Context, req any) (any, error) {
		p := req.(*PatternRequest).Pattern
		if err := s.Reject(ctx, p); err != nil {
			return nil, err
		}
		return map[string]string{"rejected": p}, nil
	}, kit.DecodeJSON[PatternRequest])
}

// LearnRequest is the body of a learn call.
type LearnRequest struct {
	URL      string `json:"url"`
	IsTarget bool   `json:"is_target"`
	JobKey   string `json:"job_key,omitempty"`
}

// PatternRequest names one pattern.
type PatternRequest struct {
	Pattern string `json:"pattern"`
}
