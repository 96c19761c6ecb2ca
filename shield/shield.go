// Package shield provides the HTTP middleware in front of the bellscout API:
// security headers, request body limits, HEAD handling and request tracing.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.DefaultStack(logger) {
//	    r.Use(mw)
//	}
package shield

import (
	"log/slog"
	"net/http"
)

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// DefaultMaxBody bounds JSON request bodies.
const DefaultMaxBody = 1 << 20

// DefaultStack returns the standard middleware stack, in order:
// HeadToGet → SecurityHeaders → MaxBody → TraceID.
func DefaultStack(logger *slog.Logger) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(DefaultHeaders()),
		MaxBody(DefaultMaxBody),
		TraceID(logger),
	}
}
