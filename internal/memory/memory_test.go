package memory

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ent0n29/chatline/internal/session"
)

func sampleTranscript(id string) Transcript {
	return Transcript{
		SessionID: id,
		CreatedAt: "2025-01-01 10:00",
		Messages: []session.Message{
			{Role: session.RoleUser, Content: "hi", Timestamp: "2025-01-01 10:00"},
			{Role: session.RoleAssistant, Content: "hello", Timestamp: "2025-01-01 10:01"},
		},
	}
}

func TestInMemoryArchiveKeepsNewestWithinCapacity(t *testing.T) {
	a := NewInMemoryArchive(3)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := a.SaveTranscript(ctx, sampleTranscript(fmt.Sprintf("s%d", i))); err != nil {
			t.Fatalf("SaveTranscript() error = %v", err)
		}
	}

	got, err := a.RecentTranscripts(ctx, 0)
	if err != nil {
		t.Fatalf("RecentTranscripts() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len(RecentTranscripts()) = %d, want 3", len(got))
	}
	if got[0].SessionID != "s4" || got[2].SessionID != "s2" {
		t.Fatalf("unexpected order: %s..%s", got[0].SessionID, got[2].SessionID)
	}
	if got[0].ID == "" || got[0].EvictedAt.IsZero() {
		t.Fatalf("SaveTranscript() should fill ID and EvictedAt: %+v", got[0])
	}

	limited, _ := a.RecentTranscripts(ctx, 1)
	if len(limited) != 1 || limited[0].SessionID != "s4" {
		t.Fatalf("RecentTranscripts(1) = %+v", limited)
	}
}

func TestNewArchiveSelectsBackend(t *testing.T) {
	ctx := context.Background()
	a, err := NewArchive(ctx, "")
	if err != nil {
		t.Fatalf("NewArchive(\"\") error = %v", err)
	}
	defer a.Close()
	if a.Mode() != "in-memory" {
		t.Fatalf("Mode() = %q, want in-memory", a.Mode())
	}

	if _, err := NewArchive(ctx, "redis://localhost"); err == nil {
		t.Fatalf("NewArchive() expected error for unsupported scheme")
	}
}

func TestSQLiteArchiveRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "archive.db")
	a, err := NewArchive(ctx, "sqlite:"+path)
	if err != nil {
		t.Fatalf("NewArchive(sqlite) error = %v", err)
	}
	defer a.Close()
	if a.Mode() != "sqlite" {
		t.Fatalf("Mode() = %q, want sqlite", a.Mode())
	}

	older := sampleTranscript("s-old")
	older.EvictedAt = time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	newer := sampleTranscript("s-new")
	newer.EvictedAt = time.Date(2025, 1, 1, 11, 0, 0, 0, time.UTC)
	newer.PIIRedacted = true
	for _, tr := range []Transcript{older, newer} {
		if err := a.SaveTranscript(ctx, tr); err != nil {
			t.Fatalf("SaveTranscript() error = %v", err)
		}
	}

	got, err := a.RecentTranscripts(ctx, 10)
	if err != nil {
		t.Fatalf("RecentTranscripts() error = %v", err)
	}
	if len(got) != 2 || got[0].SessionID != "s-new" || !got[0].PIIRedacted {
		t.Fatalf("unexpected transcripts: %+v", got)
	}
	if len(got[1].Messages) != 2 || got[1].Messages[1].Content != "hello" {
		t.Fatalf("messages not round-tripped: %+v", got[1].Messages)
	}
}

func TestRecorderArchivesRedactedTranscript(t *testing.T) {
	a := NewInMemoryArchive(0)
	r := NewRecorder(a, true, nil)

	r.Record(session.Evicted{
		SessionID: "s1",
		CreatedAt: "2025-01-01 10:00",
		Messages: []session.Message{
			{Role: session.RoleUser, Content: "reach me at sam@example.com", Timestamp: "2025-01-01 10:00"},
		},
	})
	r.Close()

	got, err := a.RecentTranscripts(context.Background(), 0)
	if err != nil {
		t.Fatalf("RecentTranscripts() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len(RecentTranscripts()) = %d, want 1", len(got))
	}
	if !got[0].PIIRedacted || strings.Contains(got[0].Messages[0].Content, "sam@example.com") {
		t.Fatalf("transcript should be redacted: %+v", got[0])
	}
}

func TestRecorderDropsAfterClose(t *testing.T) {
	a := NewInMemoryArchive(0)
	r := NewRecorder(a, false, nil)
	r.Close()
	r.Close()

	r.Record(session.Evicted{SessionID: "late"})

	got, err := a.RecentTranscripts(context.Background(), 0)
	if err != nil {
		t.Fatalf("RecentTranscripts() error = %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("len(RecentTranscripts()) = %d, want 0", len(got))
	}
}
