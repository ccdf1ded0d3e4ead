package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/chatline/internal/completion"
	"github.com/ent0n29/chatline/internal/config"
	"github.com/ent0n29/chatline/internal/conversation"
	"github.com/ent0n29/chatline/internal/memory"
	"github.com/ent0n29/chatline/internal/observability"
	"github.com/ent0n29/chatline/internal/session"
)

const welcomeMessage = "Welcome to the chatline API!"

// ChatService is the conversation capability exposed over HTTP.
type ChatService interface {
	StartSession(ctx context.Context, initialMessage string) (conversation.Reply, error)
	SendMessage(ctx context.Context, sessionID, message string) (conversation.Reply, error)
	Sessions(ctx context.Context) map[string][]session.Message
	Session(ctx context.Context, sessionID string) ([]session.Message, error)
	ProviderName() string
}

type Server struct {
	cfg      config.Config
	chat     ChatService
	archive  memory.Archive
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

// New builds the API server. archive and metrics may be nil.
func New(cfg config.Config, chat ChatService, archive memory.Archive, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:     cfg,
		chat:    chat,
		archive: archive,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(withTracing)
	r.Use(withLogging)
	r.Use(withCORS(s.cfg.AllowAnyOrigin))

	r.Get("/", s.handleRoot)
	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/new_chat", s.handleNewChat)
	r.Post("/send_message", s.handleSendMessage)
	r.Get("/chat_history", s.handleChatHistory)
	r.Get("/chat_history/{session_id}", s.handleSessionHistory)

	r.Get("/v1/chat/ws", s.handleChatWS)
	r.Get("/v1/archive/sessions", s.handleArchivedSessions)

	return r
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"message": welcomeMessage})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"provider": s.chat.ProviderName(),
		"sessions": len(s.chat.Sessions(r.Context())),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":       "ready",
		"provider":     s.chat.ProviderName(),
		"sessions":     len(s.chat.Sessions(r.Context())),
		"archive_mode": s.archiveMode(),
	})
}

type newChatRequest struct {
	InitialMessage string `json:"initial_message"`
}

type sendMessageRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	// Accepted for client compatibility; the server stamps its own time.
	Timestamp string `json:"timestamp,omitempty"`
}

type chatHistoryResponse struct {
	Sessions      map[string][]session.Message `json:"sessions"`
	TotalSessions int                          `json:"total_sessions"`
}

type sessionHistoryResponse struct {
	SessionID    string            `json:"session_id"`
	Messages     []session.Message `json:"messages"`
	MessageCount int               `json:"message_count"`
}

func (s *Server) handleNewChat(w http.ResponseWriter, r *http.Request) {
	var req newChatRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.InitialMessage) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "initial_message is required")
		return
	}

	reply, err := s.chat.StartSession(r.Context(), req.InitialMessage)
	if err != nil {
		s.respondChatError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, reply)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "message is required")
		return
	}

	reply, err := s.chat.SendMessage(r.Context(), req.SessionID, req.Message)
	if err != nil {
		s.respondChatError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, reply)
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	sessions := s.chat.Sessions(r.Context())
	respondJSON(w, http.StatusOK, chatHistoryResponse{
		Sessions:      sessions,
		TotalSessions: len(sessions),
	})
}

func (s *Server) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "session_id"))
	msgs, err := s.chat.Session(r.Context(), id)
	if err != nil {
		s.respondChatError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sessionHistoryResponse{
		SessionID:    id,
		Messages:     msgs,
		MessageCount: len(msgs),
	})
}

func (s *Server) handleArchivedSessions(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "archive not configured")
		return
	}
	limit := 10
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 100 {
			respondError(w, http.StatusBadRequest, "invalid_request", "limit must be between 1 and 100")
			return
		}
		limit = n
	}

	items, err := s.archive.RecentTranscripts(r.Context(), limit)
	if err != nil {
		observability.LoggerFromContext(r.Context()).Error("list archived sessions failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "archive unavailable")
		return
	}
	if items == nil {
		items = []memory.Transcript{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"mode":        s.archive.Mode(),
		"transcripts": items,
		"count":       len(items),
	})
}

// respondChatError maps conversation errors to a single structured response.
func (s *Server) respondChatError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, retryable := classifyChatError(err)
	if status >= http.StatusInternalServerError {
		observability.LoggerFromContext(r.Context()).Error("chat request failed",
			"path", r.URL.Path,
			"code", code,
			"error", err)
	}
	body := errorResponse{Error: err.Error(), Code: code}
	if code == "generation_failed" {
		body.Retryable = &retryable
	}
	respondJSON(w, status, body)
}

func classifyChatError(err error) (status int, code string, retryable bool) {
	switch {
	case errors.Is(err, conversation.ErrEmptyMessage):
		return http.StatusBadRequest, "invalid_request", false
	case errors.Is(err, conversation.ErrSessionNotFound):
		return http.StatusNotFound, "session_not_found", false
	case errors.Is(err, conversation.ErrGenerationFailure):
		return http.StatusBadGateway, "generation_failed", completion.IsRetryable(err)
	default:
		return http.StatusInternalServerError, "internal_error", false
	}
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable *bool  `json:"retryable,omitempty"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func (s *Server) archiveMode() string {
	if s.archive == nil {
		return "disabled"
	}
	return s.archive.Mode()
}
