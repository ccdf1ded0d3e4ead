package completion

import (
	"context"
	"errors"
	"fmt"
)

// FallbackProvider attempts a primary provider first and falls back on error.
type FallbackProvider struct {
	primary  Provider
	fallback Provider
}

func NewFallbackProvider(primary Provider, fallback Provider) *FallbackProvider {
	return &FallbackProvider{
		primary:  primary,
		fallback: fallback,
	}
}

func (p *FallbackProvider) Name() string {
	return NameOf(p.primary) + "+" + NameOf(p.fallback)
}

func (p *FallbackProvider) Complete(ctx context.Context, turns []Turn) (Result, error) {
	if p == nil || p.primary == nil {
		if p != nil && p.fallback != nil {
			return p.fallback.Complete(ctx, turns)
		}
		return Result{}, fmt.Errorf("fallback provider misconfigured")
	}

	res, err := p.primary.Complete(ctx, turns)
	if err == nil {
		return res, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Result{}, err
	}
	if p.fallback == nil {
		return Result{}, err
	}

	fallbackRes, fallbackErr := p.fallback.Complete(ctx, turns)
	if fallbackErr != nil {
		return Result{}, fmt.Errorf("primary provider error: %w; fallback provider error: %v", err, fallbackErr)
	}
	return fallbackRes, nil
}
