package app

import (
	"context"
	"fmt"

	"github.com/ent0n29/chatline/internal/completion"
	"github.com/ent0n29/chatline/internal/config"
	"github.com/ent0n29/chatline/internal/conversation"
	"github.com/ent0n29/chatline/internal/httpapi"
	"github.com/ent0n29/chatline/internal/memory"
	"github.com/ent0n29/chatline/internal/observability"
	"github.com/ent0n29/chatline/internal/session"
)

type BuildResult struct {
	Config   config.Config
	API      *httpapi.Server
	Store    *session.Store
	Chat     *conversation.Service
	Archive  memory.Archive
	Metrics  *observability.Metrics
	Provider string

	// Cleanup releases the archive worker and storage. Call it after the
	// HTTP server has stopped.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	provider, err := completion.NewProvider(completion.Config{
		Mode:            cfg.CompletionProvider,
		GroqAPIKey:      cfg.GroqAPIKey,
		GroqBaseURL:     cfg.GroqBaseURL,
		GroqModel:       cfg.GroqModel,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
		AnthropicModel:  cfg.AnthropicModel,
		MaxTokens:       cfg.CompletionMaxTokens,
		HTTPTimeout:     cfg.CompletionTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("completion provider init failed: %w", err)
	}

	archive, err := memory.NewArchive(ctx, cfg.ArchiveURL)
	if err != nil {
		return nil, fmt.Errorf("archive init failed: %w", err)
	}
	recorder := memory.NewRecorder(archive, cfg.ArchiveRedactPII, metrics)

	store := session.NewStore(
		session.WithLimits(cfg.HistoryMaxMessages, cfg.HistoryMaxSessions),
		session.WithEvictionKey(cfg.HistoryEvictionKey),
	)
	store.SetEvictHook(func(e session.Evicted) {
		metrics.SessionEvents.WithLabelValues("evicted").Inc()
		metrics.Sessions.Set(float64(store.Len()))
		observability.Logger().Info("session evicted",
			"session_id", e.SessionID,
			"message_count", len(e.Messages))
		recorder.Record(e)
	})
	store.SetTruncateHook(func(_ string, dropped int) {
		metrics.MessagesTruncated.Add(float64(dropped))
	})

	chat := conversation.NewService(store, provider,
		conversation.WithTimeout(cfg.CompletionTimeout),
		conversation.WithMetrics(metrics),
	)

	api := httpapi.New(cfg, chat, archive, metrics)

	cleanup := func() error {
		recorder.Close()
		if err := archive.Close(); err != nil {
			return fmt.Errorf("archive close failed: %w", err)
		}
		return nil
	}

	return &BuildResult{
		Config:   cfg,
		API:      api,
		Store:    store,
		Chat:     chat,
		Archive:  archive,
		Metrics:  metrics,
		Provider: chat.ProviderName(),
		Cleanup:  cleanup,
	}, nil
}
