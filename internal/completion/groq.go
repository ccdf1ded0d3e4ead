package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ent0n29/chatline/internal/reliability"
)

const (
	DefaultGroqBaseURL = "https://api.groq.com/openai/v1"
	DefaultGroqModel   = "llama3-8b-8192"
)

type chatCompletionRequest struct {
	Model    string `json:"model"`
	Messages []Turn `json:"messages"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// GroqProvider calls Groq's OpenAI-compatible chat completions endpoint.
type GroqProvider struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
	now     func() time.Time
}

func NewGroqProvider(apiKey, baseURL, model string, timeout time.Duration) *GroqProvider {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultGroqBaseURL
	}
	if strings.TrimSpace(model) == "" {
		model = DefaultGroqModel
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &GroqProvider{
		apiKey:  strings.TrimSpace(apiKey),
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		model:   model,
		client:  &http.Client{Timeout: timeout},
		now:     time.Now,
	}
}

func (p *GroqProvider) Name() string { return "groq" }

func (p *GroqProvider) Complete(ctx context.Context, turns []Turn) (Result, error) {
	if len(turns) == 0 {
		return Result{}, &ProviderError{Provider: p.Name(), Err: errors.New("no messages to send")}
	}

	payload, err := json.Marshal(chatCompletionRequest{Model: p.model, Messages: turns})
	if err != nil {
		return Result{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	res, err := p.client.Do(req)
	if err != nil {
		return Result{}, &ProviderError{Provider: p.Name(), Retryable: reliability.IsTransient(err), Err: fmt.Errorf("send request: %w", err)}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return Result{}, &ProviderError{
			Provider:   p.Name(),
			StatusCode: res.StatusCode,
			Retryable:  reliability.IsRetryableHTTPStatus(res.StatusCode),
			Err:        errors.New(strings.TrimSpace(string(body))),
		}
	}

	var out chatCompletionResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return Result{}, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(out.Choices) == 0 {
		return Result{}, &ProviderError{Provider: p.Name(), Err: errors.New("empty choices in response")}
	}

	return Result{
		Text:      cleanReply(out.Choices[0].Message.Content),
		Timestamp: stamp(p.now),
	}, nil
}
