package completion

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ent0n29/chatline/internal/session"
)

func TestNewProviderAutoFallsBackToMockWithoutKeys(t *testing.T) {
	p, err := NewProvider(Config{Mode: "auto"})
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	if NameOf(p) != "mock" {
		t.Fatalf("NameOf() = %q, want mock", NameOf(p))
	}

	res, err := p.Complete(context.Background(), []Turn{{Role: "user", Content: "hello"}})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if !strings.Contains(res.Text, "I heard you: hello") {
		t.Fatalf("unexpected response text: %q", res.Text)
	}
	if res.Timestamp == "" {
		t.Fatalf("Timestamp should be set")
	}
}

func TestNewProviderAutoPrefersGroqWithAnthropicFallback(t *testing.T) {
	p, err := NewProvider(Config{Mode: "auto", GroqAPIKey: "g", AnthropicAPIKey: "a"})
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	fb, ok := p.(*FallbackProvider)
	if !ok {
		t.Fatalf("provider = %T, want *FallbackProvider", p)
	}
	if fb.Name() != "groq+anthropic" {
		t.Fatalf("fallback chain = %s", fb.Name())
	}
}

func TestNewProviderRequiresKeys(t *testing.T) {
	if _, err := NewProvider(Config{Mode: "groq"}); err == nil {
		t.Fatalf("NewProvider(groq) expected error without key")
	}
	if _, err := NewProvider(Config{Mode: "anthropic"}); err == nil {
		t.Fatalf("NewProvider(anthropic) expected error without key")
	}
	if _, err := NewProvider(Config{Mode: "carrier-pigeon"}); err == nil {
		t.Fatalf("NewProvider() expected error for unknown mode")
	}
}

func TestFallbackProviderUsesFallback(t *testing.T) {
	p := NewFallbackProvider(errProvider{}, okProvider{text: "fallback"})
	res, err := p.Complete(context.Background(), []Turn{{Role: "user", Content: "x"}})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if res.Text != "fallback" {
		t.Fatalf("res.Text = %q, want fallback", res.Text)
	}
}

func TestFallbackProviderSkipsFallbackOnCanceledContext(t *testing.T) {
	fb := &countingProvider{text: "fallback"}
	p := NewFallbackProvider(cancelProvider{}, fb)
	_, err := p.Complete(context.Background(), []Turn{{Role: "user", Content: "x"}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if fb.calls != 0 {
		t.Fatalf("fallback should not be called, calls = %d", fb.calls)
	}
}

func TestMockProviderHonorsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewMockProvider().Complete(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("Complete() error = %v, want context.Canceled", err)
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(&ProviderError{Provider: "groq", StatusCode: 503, Retryable: true, Err: errors.New("busy")}) {
		t.Fatalf("503 provider error should be retryable")
	}
	if IsRetryable(&ProviderError{Provider: "groq", StatusCode: 401, Err: errors.New("denied")}) {
		t.Fatalf("401 provider error should not be retryable")
	}
	if !IsRetryable(context.DeadlineExceeded) {
		t.Fatalf("deadline exceeded should be retryable")
	}
}

func TestTurnsFromHistoryKeepsOrder(t *testing.T) {
	turns := TurnsFromHistory([]session.Message{
		{Role: session.RoleUser, Content: "a", Timestamp: "2025-01-01 10:00"},
		{Role: session.RoleAssistant, Content: "b", Timestamp: "2025-01-01 10:00"},
	})
	if len(turns) != 2 || turns[0].Content != "a" || turns[1].Role != "assistant" {
		t.Fatalf("TurnsFromHistory() = %+v", turns)
	}
}

func TestCleanReplyUnescapesNewlines(t *testing.T) {
	if got := cleanReply(`one\ntwo`); got != "one\ntwo" {
		t.Fatalf("cleanReply() = %q", got)
	}
}

type errProvider struct{}

func (errProvider) Complete(context.Context, []Turn) (Result, error) {
	return Result{}, errors.New("boom")
}

type okProvider struct {
	text string
}

func (p okProvider) Complete(context.Context, []Turn) (Result, error) {
	return Result{Text: p.text}, nil
}

type cancelProvider struct{}

func (cancelProvider) Complete(context.Context, []Turn) (Result, error) {
	return Result{}, context.Canceled
}

type countingProvider struct {
	text  string
	calls int
}

func (p *countingProvider) Complete(context.Context, []Turn) (Result, error) {
	p.calls++
	return Result{Text: p.text}, nil
}
