package kit

import (
	"context"
	"errors"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type echoReq struct {
	Name string `json:"name"`
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	if GetTransport(ctx) != "http" {
		t.Error("default transport should be http")
	}
	ctx = WithTransport(WithTraceID(WithJobKey(ctx, "ca-123"), "tr-1"), "mcp")
	if GetTransport(ctx) != "mcp" || GetTraceID(ctx) != "tr-1" || GetJobKey(ctx) != "ca-123" {
		t.Errorf("got %s %s %s", GetTransport(ctx), GetTraceID(ctx), GetJobKey(ctx))
	}
}

func TestRegisterMCPTool(t *testing.T) {
	impl := &mcp.Implementation{Name: "kit-test", Version: "0.1.0"}
	srv := mcp.NewServer(impl, nil)

	var sawTransport string
	echo := func(ctx context.Context, req any) (any, error) {
		sawTransport = GetTransport(ctx)
		r := req.(*echoReq)
		if r.Name == "" {
			return nil, errors.New("name required")
		}
		return map[string]string{"hello": r.Name}, nil
	}
	decode := func(req *mcp.CallToolRequest) (*MCPDecodeResult, error) {
		d, err := DecodeJSON[echoReq](req)
		if err != nil {
			return nil, err
		}
		d.EnrichCtx = func(ctx context.Context) context.Context { return WithTransport(ctx, "mcp") }
		return d, nil
	}
	RegisterMCPTool(srv, &mcp.Tool{
		Name:        "echo",
		Description: "echo a name",
		InputSchema: InputSchema(map[string]any{"name": map[string]any{"type": "string"}}, []string{"name"}),
	}, echo, decode)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()
	session, err := mcp.NewClient(impl, nil).Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer session.Close()

	res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: "echo", Arguments: map[string]any{"name": "bell"}})
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %+v", res.Content)
	}
	if tc := res.Content[0].(*mcp.TextContent); tc.Text != `{"hello":"bell"}` {
		t.Errorf("text = %s", tc.Text)
	}
	if sawTransport != "mcp" {
		t.Errorf("transport = %q", sawTransport)
	}

	// WHAT: endpoint errors surface as tool errors, not protocol errors.
	// WHY: the calling agent must see the message to correct its call.
	res, err = session.CallTool(ctx, &mcp.CallToolParams{Name: "echo", Arguments: map[string]any{"name": ""}})
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Error("expected IsError for empty name")
	}
}
