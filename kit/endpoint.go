// CLAUDE:SUMMARY Transport-agnostic Endpoint signature shared by the HTTP handlers and MCP tools.
// Package kit holds the small glue that lets one service method be exposed
// over several transports.
package kit

import "context"

// Endpoint is a service operation with its request already decoded.
type Endpoint func(ctx context.Context, req any) (any, error)
