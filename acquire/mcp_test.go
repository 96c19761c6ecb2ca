package acquire

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func connect(t *testing.T, svc *Service) *mcp.ClientSession {
	t.Helper()
	impl := &mcp.Implementation{Name: "acquire-test", Version: "0.1.0"}
	srv := mcp.NewServer(impl, nil)
	svc.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()
	session, err := mcp.NewClient(impl, nil).Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func TestMCP_StartStatusAttempts(t *testing.T) {
	fm := &fakeMapper{healthy: true}
	svc, _ := newTestService(t, fm.server(t).URL, nil)
	session := connect(t, svc)
	ctx := context.Background()

	tools, err := session.ListTools(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	names := map[string]bool{}
	for _, tool := range tools.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{"acquire_start", "acquire_status", "acquire_attempts", "patterns_effective", "patterns_review"} {
		if !names[want] {
			t.Errorf("tool %s not registered", want)
		}
	}

	res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: "acquire_start", Arguments: map[string]any{"key": "k1", "url": "https://d.org"}})
	if err != nil || res.IsError {
		t.Fatalf("start: %v %+v", err, res)
	}
	svc.Wait("k1")

	res, err = session.CallTool(ctx, &mcp.CallToolParams{Name: "acquire_status", Arguments: map[string]any{"key": "k1"}})
	if err != nil || res.IsError {
		t.Fatalf("status: %v %+v", err, res)
	}
	var job Job
	if err := json.Unmarshal([]byte(res.Content[0].(*mcp.TextContent).Text), &job); err != nil {
		t.Fatal(err)
	}
	if job.Status != StatusCompletedNoCandidates {
		t.Errorf("job = %+v", job)
	}

	res, err = session.CallTool(ctx, &mcp.CallToolParams{Name: "acquire_attempts", Arguments: map[string]any{"key": "k1"}})
	if err != nil || res.IsError || res.Content[0].(*mcp.TextContent).Text != "[]" {
		t.Errorf("attempts: %v %+v", err, res)
	}

	// WHAT: an unknown key is a tool error, not a protocol error.
	// WHY: the agent reads the message and corrects the key.
	res, err = session.CallTool(ctx, &mcp.CallToolParams{Name: "acquire_status", Arguments: map[string]any{"key": "nope"}})
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Error("expected IsError for unknown key")
	}
}
