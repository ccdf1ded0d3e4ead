package completion

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// MockProvider returns deterministic local replies when no real provider is configured.
type MockProvider struct {
	now func() time.Time
}

func NewMockProvider() *MockProvider { return &MockProvider{now: time.Now} }

func (p *MockProvider) Name() string { return "mock" }

func (p *MockProvider) Complete(ctx context.Context, turns []Turn) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	default:
	}

	return Result{
		Text:      buildMockReply(turns),
		Timestamp: stamp(p.now),
	}, nil
}

func buildMockReply(turns []Turn) string {
	var last string
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == "user" {
			last = strings.TrimSpace(turns[i].Content)
			break
		}
	}
	if last == "" {
		return "I am listening."
	}
	if len(turns) <= 1 {
		return fmt.Sprintf("I heard you: %s", last)
	}
	return fmt.Sprintf("I heard you: %s\n(%d messages of context)", last, len(turns))
}
