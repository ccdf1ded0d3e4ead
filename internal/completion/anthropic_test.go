package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
)

type fakeTransport struct {
	status int
	body   []byte
	seen   []byte
}

func (f *fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	b, _ := io.ReadAll(req.Body)
	_ = req.Body.Close()
	f.seen = b
	resp := &http.Response{
		StatusCode: f.status,
		Body:       io.NopCloser(bytes.NewReader(f.body)),
		Header:     make(http.Header),
		Request:    req,
	}
	resp.Header.Set("Content-Type", "application/json")
	return resp, nil
}

func newTestAnthropic(rt http.RoundTripper) *AnthropicProvider {
	p := NewAnthropicProvider("test-key", "", 0,
		option.WithHTTPClient(&http.Client{Transport: rt}),
		option.WithMaxRetries(0),
	)
	p.now = func() time.Time { return time.Date(2025, 6, 7, 8, 9, 0, 0, time.UTC) }
	return p
}

func TestAnthropicProviderJoinsTextBlocks(t *testing.T) {
	rt := &fakeTransport{
		status: 200,
		body:   []byte(`{"id":"m1","type":"message","role":"assistant","content":[{"type":"text","text":"Hello"},{"type":"text","text":" there"}]}`),
	}
	p := newTestAnthropic(rt)

	res, err := p.Complete(context.Background(), []Turn{
		{Role: "assistant", Content: "dangling after truncation"},
		{Role: "user", Content: "hi"},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if res.Text != "Hello there" {
		t.Fatalf("res.Text = %q", res.Text)
	}
	if res.Timestamp != "2025-06-07 08:09" {
		t.Fatalf("res.Timestamp = %q", res.Timestamp)
	}

	var sent struct {
		Messages []struct {
			Role string `json:"role"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(rt.seen, &sent); err != nil {
		t.Fatalf("decode captured request: %v", err)
	}
	if len(sent.Messages) != 1 || sent.Messages[0].Role != "user" {
		t.Fatalf("leading assistant turn should be dropped, sent %+v", sent.Messages)
	}
}

func TestAnthropicProviderMapsAPIErrors(t *testing.T) {
	rt := &fakeTransport{
		status: 529,
		body:   []byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`),
	}
	p := newTestAnthropic(rt)

	_, err := p.Complete(context.Background(), []Turn{{Role: "user", Content: "hi"}})
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("Complete() error = %v, want *ProviderError", err)
	}
	if pe.StatusCode != 529 || pe.Provider != "anthropic" {
		t.Fatalf("ProviderError = %+v", pe)
	}
}

func TestAnthropicProviderRejectsAssistantOnlyHistory(t *testing.T) {
	p := newTestAnthropic(&fakeTransport{status: 200, body: []byte(`{}`)})
	if _, err := p.Complete(context.Background(), []Turn{{Role: "assistant", Content: "x"}}); err == nil {
		t.Fatalf("Complete() expected error without a user turn")
	}
}
