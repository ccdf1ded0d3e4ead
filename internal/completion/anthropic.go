package completion

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ent0n29/chatline/internal/reliability"
	"github.com/ent0n29/chatline/internal/session"
)

const DefaultAnthropicModel = anthropic.ModelClaude3_7SonnetLatest

// AnthropicProvider uses the Anthropic Messages API.
type AnthropicProvider struct {
	client    *anthropic.Client
	model     anthropic.Model
	maxTokens int64
	now       func() time.Time
}

func NewAnthropicProvider(apiKey, model string, maxTokens int, opts ...option.RequestOption) *AnthropicProvider {
	opts = append([]option.RequestOption{option.WithAPIKey(strings.TrimSpace(apiKey))}, opts...)
	c := anthropic.NewClient(opts...)

	m := anthropic.Model(strings.TrimSpace(model))
	if m == "" {
		m = DefaultAnthropicModel
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &AnthropicProvider{
		client:    &c,
		model:     m,
		maxTokens: int64(maxTokens),
		now:       time.Now,
	}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) Complete(ctx context.Context, turns []Turn) (Result, error) {
	conv := toMessageParams(turns)
	if len(conv) == 0 {
		return Result{}, &ProviderError{Provider: p.Name(), Err: errors.New("no user message to send")}
	}

	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: p.maxTokens,
		Messages:  conv,
	})
	if err != nil {
		pe := &ProviderError{Provider: p.Name(), Err: err}
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			pe.StatusCode = apiErr.StatusCode
			pe.Retryable = reliability.IsRetryableHTTPStatus(apiErr.StatusCode)
		}
		return Result{}, pe
	}

	var out strings.Builder
	for _, block := range msg.Content {
		if v, ok := block.AsAny().(anthropic.TextBlock); ok {
			out.WriteString(v.Text)
		}
	}

	return Result{
		Text:      cleanReply(out.String()),
		Timestamp: stamp(p.now),
	}, nil
}

// toMessageParams converts turns into SDK params. Messages must start with a
// user turn, so leading assistant turns left behind by truncation are skipped.
func toMessageParams(turns []Turn) []anthropic.MessageParam {
	conv := make([]anthropic.MessageParam, 0, len(turns))
	for _, t := range turns {
		switch session.Role(t.Role) {
		case session.RoleUser:
			conv = append(conv, anthropic.NewUserMessage(anthropic.NewTextBlock(t.Content)))
		case session.RoleAssistant:
			if len(conv) == 0 {
				continue
			}
			conv = append(conv, anthropic.NewAssistantMessage(anthropic.NewTextBlock(t.Content)))
		}
	}
	return conv
}
