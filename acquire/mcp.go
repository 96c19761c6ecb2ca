package acquire

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/bellscout/kit"
)

// KeyRequest names one job key.
type KeyRequest struct {
	Key string `json:"key"`
}

// StartRequest is the body of acquire_start.
type StartRequest struct {
	Key string `json:"key"`
	Request
}

// RegisterMCP registers the job tools, and the pattern tools, on srv.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "acquire_start",
		Description: "Start a bell-schedule acquisition job for a district key. Fails when a job for the key is already running.",
		InputSchema: kit.InputSchema(map[string]any{
			"key":          map[string]any{"type": "string", "description": "District key"},
			"url":          map[string]any{"type": "string", "description": "District website"},
			"name":         map[string]any{"type": "string"},
			"state":        map[string]any{"type": "string"},
			"max_requests": map[string]any{"type": "integer"},
			"max_depth":    map[string]any{"type": "integer"},
			"top_n":        map[string]any{"type": "integer"},
		}, []string{"key", "url"}),
	}, func(ctx context.Context, req any) (any, error) {
		r := req.(*StartRequest)
		return s.Start(ctx, r.Key, r.Request)
	}, kit.DecodeJSON[StartRequest])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "acquire_status",
		Description: "Latest job record of a district key.",
		InputSchema: kit.InputSchema(map[string]any{
			"key": map[string]any{"type": "string"},
		}, []string{"key"}),
	}, func(ctx context.Context, req any) (any, error) {
		return s.Status(ctx, req.(*KeyRequest).Key)
	}, kit.DecodeJSON[KeyRequest])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "acquire_attempts",
		Description: "Enrichment-attempt log of a district key, oldest first.",
		InputSchema: kit.InputSchema(map[string]any{
			"key": map[string]any{"type": "string"},
		}, []string{"key"}),
	}, func(ctx context.Context, req any) (any, error) {
		as, err := s.Attempts(ctx, req.(*KeyRequest).Key)
		if as == nil {
			as = []*Attempt{}
		}
		return as, err
	}, kit.DecodeJSON[KeyRequest])

	s.patterns.RegisterMCP(srv)
}
