package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ent0n29/chatline/internal/reliability"
	"github.com/ent0n29/chatline/internal/session"
)

// Turn is one role-tagged message sent to the provider.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Result is a generated reply stamped in session.TimestampLayout.
type Result struct {
	Text      string `json:"response"`
	Timestamp string `json:"timestamp"`
}

// Provider generates a reply for an ordered conversation.
type Provider interface {
	Complete(ctx context.Context, turns []Turn) (Result, error)
}

// Named is implemented by providers that report a stable name for logs and metrics.
type Named interface {
	Name() string
}

// ProviderError carries the upstream detail of a failed completion.
type ProviderError struct {
	Provider   string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is worth retrying by the caller.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return reliability.IsTransient(err)
}

// Config controls provider construction.
type Config struct {
	Mode            string
	GroqAPIKey      string
	GroqBaseURL     string
	GroqModel       string
	AnthropicAPIKey string
	AnthropicModel  string
	MaxTokens       int
	HTTPTimeout     time.Duration
}

func NewProvider(cfg Config) (Provider, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "groq"
	}

	switch mode {
	case "groq":
		if strings.TrimSpace(cfg.GroqAPIKey) == "" {
			return nil, errors.New("groq API key is required for groq mode")
		}
		return NewGroqProvider(cfg.GroqAPIKey, cfg.GroqBaseURL, cfg.GroqModel, cfg.HTTPTimeout), nil
	case "anthropic":
		if strings.TrimSpace(cfg.AnthropicAPIKey) == "" {
			return nil, errors.New("anthropic API key is required for anthropic mode")
		}
		return NewAnthropicProvider(cfg.AnthropicAPIKey, cfg.AnthropicModel, cfg.MaxTokens), nil
	case "auto":
		return newAutoProvider(cfg), nil
	case "mock":
		return NewMockProvider(), nil
	default:
		return nil, fmt.Errorf("unsupported completion provider mode %q", cfg.Mode)
	}
}

func newAutoProvider(cfg Config) Provider {
	var primary Provider
	if strings.TrimSpace(cfg.GroqAPIKey) != "" {
		primary = NewGroqProvider(cfg.GroqAPIKey, cfg.GroqBaseURL, cfg.GroqModel, cfg.HTTPTimeout)
	}
	var secondary Provider
	if strings.TrimSpace(cfg.AnthropicAPIKey) != "" {
		secondary = NewAnthropicProvider(cfg.AnthropicAPIKey, cfg.AnthropicModel, cfg.MaxTokens)
	}

	switch {
	case primary != nil && secondary != nil:
		return NewFallbackProvider(primary, secondary)
	case primary != nil:
		return primary
	case secondary != nil:
		return secondary
	default:
		return NewMockProvider()
	}
}

// NameOf returns p's name, or "unknown".
func NameOf(p Provider) string {
	if n, ok := p.(Named); ok {
		return n.Name()
	}
	return "unknown"
}

// TurnsFromHistory drops timestamps, keeping order.
func TurnsFromHistory(msgs []session.Message) []Turn {
	out := make([]Turn, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, Turn{Role: string(m.Role), Content: m.Content})
	}
	return out
}

// cleanReply turns literal "\n" escape sequences some models emit into newlines.
func cleanReply(text string) string {
	return strings.ReplaceAll(text, `\n`, "\n")
}

func stamp(now func() time.Time) string {
	if now == nil {
		now = time.Now
	}
	return session.FormatTimestamp(now())
}
