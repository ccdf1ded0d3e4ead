package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/chatline/internal/observability"
	"github.com/ent0n29/chatline/internal/protocol"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsIdleTimeout  = 120 * time.Second
	wsReadLimit    = 1 << 20
)

// handleChatWS serves chat turns over a websocket. Turns on one connection are
// handled in order; a send_message without session_id continues the session
// last used on the connection, and an explicit session_id query parameter
// seeds it.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	log := observability.LoggerFromContext(r.Context())
	s.observeSessionEvent("ws_connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	inbound := make(chan any, 16)
	outbound := make(chan any, 16)
	runDone := make(chan struct{})
	current := strings.TrimSpace(r.URL.Query().Get("session_id"))

	go func() {
		defer close(runDone)
		defer close(outbound)
		for in := range inbound {
			if ev, ok := in.(protocol.ErrorEvent); ok {
				select {
				case outbound <- ev:
				case <-ctx.Done():
					return
				}
				continue
			}
			msg := in.(protocol.SendMessage)
			sessionID := msg.SessionID
			if sessionID == "" {
				sessionID = current
			}
			reply, err := s.chat.SendMessage(ctx, sessionID, msg.Message)
			var frame any
			if err != nil {
				_, code, retryable := classifyChatError(err)
				log.Warn("websocket chat turn failed", "code", code, "error", err)
				frame = protocol.NewErrorEvent(sessionID, code, err.Error(), retryable)
			} else {
				current = reply.SessionID
				frame = protocol.NewAssistantReply(reply.SessionID, reply.Response, reply.Timestamp)
			}
			select {
			case outbound <- frame:
			case <-ctx.Done():
				return
			}
		}
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range outbound {
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				cancel()
				return
			}
			if t, ok := protocol.TypeOf(msg); ok {
				s.observeWSMessage("outbound", string(t))
			}
		}
	}()

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
		if msgType != websocket.TextMessage {
			continue
		}
		var next any
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			next = protocol.NewErrorEvent("", "invalid_client_message", err.Error(), false)
		} else if send, ok := parsed.(protocol.SendMessage); ok {
			s.observeWSMessage("inbound", string(send.Type))
			next = send
		} else {
			continue
		}
		select {
		case <-ctx.Done():
			break readLoop
		case inbound <- next:
		}
	}

	cancel()
	close(inbound)
	<-runDone
	<-writerDone
	s.observeSessionEvent("ws_disconnected")
}

func (s *Server) observeSessionEvent(event string) {
	if s.metrics == nil {
		return
	}
	s.metrics.SessionEvents.WithLabelValues(event).Inc()
}

func (s *Server) observeWSMessage(direction, typ string) {
	if s.metrics == nil {
		return
	}
	s.metrics.WSMessages.WithLabelValues(direction, typ).Inc()
}
