package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeSendMessage    MessageType = "send_message"
	TypeAssistantReply MessageType = "assistant_reply"
	TypeErrorEvent     MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// SendMessage asks the server to continue (or start) a session.
type SendMessage struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Message   string      `json:"message"`
}

type AssistantReply struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Response  string      `json:"response"`
	Timestamp string      `json:"timestamp"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Code      string      `json:"code"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func NewAssistantReply(sessionID, response, timestamp string) AssistantReply {
	return AssistantReply{
		Type:      TypeAssistantReply,
		SessionID: sessionID,
		Response:  response,
		Timestamp: timestamp,
	}
}

func NewErrorEvent(sessionID, code, detail string, retryable bool) ErrorEvent {
	return ErrorEvent{
		Type:      TypeErrorEvent,
		SessionID: sessionID,
		Code:      code,
		Retryable: retryable,
		Detail:    detail,
	}
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeSendMessage:
		var msg SendMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.Message) == "" {
			return nil, errors.New("invalid send_message: message is required")
		}
		msg.SessionID = strings.TrimSpace(msg.SessionID)
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}

// TypeOf reports the frame type of a known protocol value.
func TypeOf(v any) (MessageType, bool) {
	switch m := v.(type) {
	case SendMessage:
		return m.Type, true
	case AssistantReply:
		return m.Type, true
	case ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
