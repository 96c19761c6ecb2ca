package kit

import "context"

type contextKey string

const (
	TransportKey contextKey = "kit_transport" // "http", "mcp", "cli"
	TraceIDKey   contextKey = "kit_trace_id"
	JobKeyKey    contextKey = "kit_job_key"
)

func WithTransport(ctx context.Context, t string) context.Context {
	return context.WithValue(ctx, TransportKey, t)
}
func GetTransport(ctx context.Context) string {
	if v, ok := ctx.Value(TransportKey).(string); ok {
		return v
	}
	return "http"
}

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, TraceIDKey, id)
}
func GetTraceID(ctx context.Context) string {
	v, _ := ctx.Value(TraceIDKey).(string)
	return v
}

// WithJobKey tags ctx with the acquisition job it serves, for log lines
// emitted deep in the fetch path.
func WithJobKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, JobKeyKey, key)
}
func GetJobKey(ctx context.Context) string {
	v, _ := ctx.Value(JobKeyKey).(string)
	return v
}
