package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
	"unicode/utf8"
)

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name, in, want string
	}{
		{"bare array", `[{"url":"a","score":0.9}]`, `[{"url":"a","score":0.9}]`},
		{"fenced", "```json\n[{\"url\":\"a\"}]\n```", `[{"url":"a"}]`},
		{"fence without tag", "```\n{\"score\":1}\n```", `{"score":1}`},
		{"prose around", "Here you go:\n{\"score\":0.4,\"reason\":\"ok\"}\nThanks!", `{"score":0.4,"reason":"ok"}`},
	}
	for _, c := range cases {
		got, err := ExtractJSON(c.in)
		if err != nil {
			t.Errorf("%s: %v", c.name, err)
			continue
		}
		if string(got) != c.want {
			t.Errorf("%s: got %s, want %s", c.name, got, c.want)
		}
	}

	for _, bad := range []string{"", "no json here", "```json\n[{\"url\": ```", "{broken"} {
		if _, err := ExtractJSON(bad); !errors.Is(err, ErrNoJSON) {
			t.Errorf("ExtractJSON(%q) err = %v, want ErrNoJSON", bad, err)
		}
	}
}

func TestBreaker_OpenHalfOpenClose(t *testing.T) {
	now := time.Unix(0, 0)
	b := NewBreaker(WithBreakerThreshold(2), WithBreakerResetTimeout(time.Minute),
		WithBreakerClock(func() time.Time { return now }))

	b.RecordFailure()
	if !b.Allow() {
		t.Fatal("one failure should not open")
	}
	b.RecordFailure()
	if b.Allow() {
		t.Fatal("breaker should be open")
	}

	now = now.Add(time.Minute)
	if b.State() != BreakerHalfOpen {
		t.Fatalf("state = %v, want half_open", b.State())
	}
	b.RecordSuccess()
	if b.State() != BreakerClosed {
		t.Fatalf("state = %v, want closed", b.State())
	}
}

type stubClient struct {
	calls int
	err   error
	reply string
}

func (s *stubClient) Complete(context.Context, Request) (string, error) {
	s.calls++
	return s.reply, s.err
}

func TestGuard_OpensAfterFailures(t *testing.T) {
	// WHAT: once the breaker opens the wrapped client is no longer called.
	// WHY: a dead endpoint must cost a fast rejection, not one timeout per item.
	stub := &stubClient{err: errors.New("connection refused")}
	g := NewGuard(stub, time.Second, NewBreaker(WithBreakerThreshold(2)), nil)

	for range 5 {
		g.Complete(context.Background(), Request{User: "x"})
	}
	if stub.calls != 2 {
		t.Errorf("calls = %d, want 2", stub.calls)
	}
	if _, err := g.Complete(context.Background(), Request{}); !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}

func TestDisabled(t *testing.T) {
	if _, err := (Disabled{}).Complete(context.Background(), Request{}); !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v", err)
	}
}

func TestOpenAI_Complete(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer k" {
			t.Errorf("auth header = %q", r.Header.Get("Authorization"))
		}
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"[]"},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	c := NewOpenAI(srv.URL+"/", "m", "k", nil)
	out, err := c.Complete(context.Background(), Request{System: "sys", User: "usr", Temperature: 0.1, MaxTokens: 50})
	if err != nil {
		t.Fatal(err)
	}
	if out != "[]" {
		t.Errorf("out = %q", out)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "usr" {
		t.Errorf("messages = %+v", got.Messages)
	}
	if got.Model != "m" || got.MaxTokens != 50 {
		t.Errorf("request = %+v", got)
	}
}

func TestOpenAI_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewOpenAI(srv.URL, "m", "", nil).Complete(context.Background(), Request{User: "x"})
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}

func TestNew_NoneProvider(t *testing.T) {
	b, err := New(context.Background(), &Config{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := b.Client.(Disabled); !ok {
		t.Errorf("client = %T, want Disabled", b.Client)
	}
	if b.Vision != nil {
		t.Error("vision should be nil")
	}
	if _, err := New(context.Background(), &Config{Provider: "openai"}, nil); err == nil {
		t.Error("openai without endpoint should fail")
	}
}

func TestTruncate_KeepsUTF8(t *testing.T) {
	got := truncate("añb", 2)
	if got != "a..." || !utf8.ValidString(got) {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("abc", 5); got != "abc" {
		t.Errorf("truncate = %q", got)
	}
}
