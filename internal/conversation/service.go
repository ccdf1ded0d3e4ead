package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ent0n29/chatline/internal/completion"
	"github.com/ent0n29/chatline/internal/observability"
	"github.com/ent0n29/chatline/internal/session"
)

var (
	ErrGenerationFailure = errors.New("generation failed")
	ErrSessionNotFound   = errors.New("session not found")
	ErrEmptyMessage      = errors.New("message is empty")
)

// Store is the history store capability the service drives.
type Store interface {
	Exists(sessionID string) bool
	History(sessionID string) []session.Message
	Append(sessionID string, msg session.Message)
	NewSessionID() string
	Snapshot() map[string][]session.Message
}

// Reply is the outcome of a successful turn.
type Reply struct {
	SessionID string `json:"session_id"`
	Response  string `json:"response"`
	Timestamp string `json:"timestamp"`
}

const DefaultCompletionTimeout = 60 * time.Second

type Service struct {
	store    Store
	provider completion.Provider
	metrics  *observability.Metrics
	timeout  time.Duration
	now      func() time.Time
}

type Option func(*Service)

// WithTimeout bounds each completion call; non-positive keeps the default.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(store Store, provider completion.Provider, opts ...Option) *Service {
	s := &Service{
		store:    store,
		provider: provider,
		timeout:  DefaultCompletionTimeout,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProviderName reports the configured completion provider.
func (s *Service) ProviderName() string {
	return completion.NameOf(s.provider)
}

// StartSession opens a new session with initialMessage as its first turn.
func (s *Service) StartSession(ctx context.Context, initialMessage string) (Reply, error) {
	if strings.TrimSpace(initialMessage) == "" {
		return Reply{}, ErrEmptyMessage
	}
	sessionID := s.store.NewSessionID()
	s.observeEvent("created")
	observability.LoggerFromContext(ctx).Info("starting new session", "session_id", sessionID)
	return s.exchange(ctx, sessionID, initialMessage)
}

// SendMessage continues sessionID, or silently starts a new session when the
// id is empty or unknown. The returned Reply carries the id actually used.
func (s *Service) SendMessage(ctx context.Context, sessionID, message string) (Reply, error) {
	if strings.TrimSpace(message) == "" {
		return Reply{}, ErrEmptyMessage
	}
	requested := strings.TrimSpace(sessionID)
	if requested == "" || !s.store.Exists(requested) {
		sessionID = s.store.NewSessionID()
		s.observeEvent("created")
		observability.LoggerFromContext(ctx).Info("starting new session",
			"session_id", sessionID,
			"requested_session_id", requested)
	} else {
		sessionID = requested
	}
	return s.exchange(ctx, sessionID, message)
}

// Sessions returns a snapshot of every stored session.
func (s *Service) Sessions(_ context.Context) map[string][]session.Message {
	return s.store.Snapshot()
}

// Session returns the history of one session or ErrSessionNotFound.
func (s *Service) Session(_ context.Context, sessionID string) ([]session.Message, error) {
	if !s.store.Exists(sessionID) {
		return nil, ErrSessionNotFound
	}
	msgs := s.store.History(sessionID)
	if msgs == nil {
		// Evicted between the two reads.
		return nil, ErrSessionNotFound
	}
	return msgs, nil
}

// exchange appends the user turn, calls the provider with the full history
// outside any store lock, then appends the assistant turn. A provider failure
// leaves the user turn in place.
func (s *Service) exchange(ctx context.Context, sessionID, text string) (Reply, error) {
	log := observability.LoggerFromContext(ctx).With("session_id", sessionID)

	s.store.Append(sessionID, session.NewMessage(session.RoleUser, text, s.now()))
	history := s.store.History(sessionID)
	s.observeSessions()

	res, err := s.complete(ctx, sessionID, history)
	if err != nil {
		log.Error("completion failed", "error", err, "history_len", len(history))
		return Reply{}, err
	}

	s.store.Append(sessionID, session.Message{
		Role:      session.RoleAssistant,
		Content:   res.Text,
		Timestamp: res.Timestamp,
	})
	s.observeSessions()

	log.Info("reply generated", "history_len", len(history)+1)
	return Reply{
		SessionID: sessionID,
		Response:  res.Text,
		Timestamp: res.Timestamp,
	}, nil
}

func (s *Service) complete(ctx context.Context, sessionID string, history []session.Message) (completion.Result, error) {
	provider := s.ProviderName()
	ctx, span := observability.Tracer().Start(ctx, "completion")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", sessionID),
		attribute.String("completion.provider", provider),
		attribute.Int("history.length", len(history)),
	)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	res, err := s.provider.Complete(ctx, completion.TurnsFromHistory(history))
	if err == nil && strings.TrimSpace(res.Text) == "" {
		err = errors.New("provider returned an empty reply")
	}
	if err != nil {
		s.observeCompletion(provider, "error", time.Since(start))
		s.observeProviderError(provider, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		return completion.Result{}, fmt.Errorf("%w: %w", ErrGenerationFailure, err)
	}
	s.observeCompletion(provider, "ok", time.Since(start))

	if res.Timestamp == "" {
		res.Timestamp = session.FormatTimestamp(s.now())
	}
	return res, nil
}

func (s *Service) observeEvent(event string) {
	if s.metrics != nil {
		s.metrics.SessionEvents.WithLabelValues(event).Inc()
	}
}

func (s *Service) observeSessions() {
	if s.metrics == nil {
		return
	}
	if l, ok := s.store.(interface{ Len() int }); ok {
		s.metrics.Sessions.Set(float64(l.Len()))
	}
}

func (s *Service) observeCompletion(provider, outcome string, d time.Duration) {
	if s.metrics != nil {
		s.metrics.ObserveCompletion(provider, outcome, d)
	}
}

func (s *Service) observeProviderError(provider string, err error) {
	if s.metrics == nil {
		return
	}
	code := "error"
	var pe *completion.ProviderError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		code = "timeout"
	case errors.As(err, &pe) && pe.StatusCode > 0:
		code = fmt.Sprintf("%d", pe.StatusCode)
	}
	s.metrics.ProviderErrors.WithLabelValues(provider, code).Inc()
}
