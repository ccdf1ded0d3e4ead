package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseClientMessageSendMessage(t *testing.T) {
	raw := []byte(`{"type":"send_message","session_id":" s1 ","message":"hello"}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}

	send, ok := msg.(SendMessage)
	if !ok {
		t.Fatalf("message type = %T, want SendMessage", msg)
	}
	if send.SessionID != "s1" || send.Message != "hello" {
		t.Fatalf("unexpected send_message: %+v", send)
	}
}

func TestParseClientMessageSessionOptional(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"send_message","message":"hi"}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	if send := msg.(SendMessage); send.SessionID != "" {
		t.Fatalf("SessionID = %q, want empty", send.SessionID)
	}
}

func TestParseClientMessageRejectsUnknownType(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"wat"}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
}

func TestParseClientMessageRejectsEmptyMessage(t *testing.T) {
	if _, err := ParseClientMessage([]byte(`{"type":"send_message","message":"   "}`)); err == nil {
		t.Fatalf("expected validation error")
	}
	if _, err := ParseClientMessage([]byte(`not json`)); err == nil {
		t.Fatalf("expected envelope error")
	}
}

func TestServerFramesEncodeType(t *testing.T) {
	raw, err := json.Marshal(NewAssistantReply("s1", "hi", "2025-01-01 10:00"))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"type":"assistant_reply","session_id":"s1","response":"hi","timestamp":"2025-01-01 10:00"}`
	if string(raw) != want {
		t.Fatalf("assistant_reply = %s, want %s", raw, want)
	}

	ev := NewErrorEvent("", "generation_failed", "upstream down", true)
	if typ, ok := TypeOf(ev); !ok || typ != TypeErrorEvent {
		t.Fatalf("TypeOf() = %q, %v", typ, ok)
	}
}

func BenchmarkParseClientMessageSendMessage(b *testing.B) {
	raw := []byte(`{"type":"send_message","session_id":"3f0c8a0e-5b1e-4c1f-9b7a-2f7d8e9a1b2c","message":"What's the weather like?"}`)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		msg, err := ParseClientMessage(raw)
		if err != nil {
			b.Fatalf("ParseClientMessage() error = %v", err)
		}
		if _, ok := msg.(SendMessage); !ok {
			b.Fatalf("message type = %T, want SendMessage", msg)
		}
	}
}
