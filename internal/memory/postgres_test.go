package memory

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestPostgresArchiveRoundTrip(t *testing.T) {
	databaseURL := os.Getenv("TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	archive, err := NewArchive(ctx, databaseURL)
	if err != nil {
		t.Fatalf("NewArchive(postgres) error = %v", err)
	}
	defer archive.Close()
	if archive.Mode() != "postgres" {
		t.Fatalf("Mode() = %q, want postgres", archive.Mode())
	}
	pg := archive.(*PostgresArchive)

	suffix := uuid.NewString()
	olderID, newerID := "s-old-"+suffix, "s-new-"+suffix
	t.Cleanup(func() {
		_, _ = pg.pool.Exec(context.Background(),
			`DELETE FROM archived_sessions WHERE session_id = ANY($1)`, []string{olderID, newerID})
	})

	// Far-future eviction times keep these rows ahead of anything already in the table.
	older := sampleTranscript(olderID)
	older.EvictedAt = time.Date(2999, 1, 1, 10, 0, 0, 0, time.UTC)
	newer := sampleTranscript(newerID)
	newer.EvictedAt = time.Date(2999, 1, 1, 11, 0, 0, 0, time.UTC)
	newer.PIIRedacted = true
	for _, tr := range []Transcript{older, newer} {
		if err := pg.SaveTranscript(ctx, tr); err != nil {
			t.Fatalf("SaveTranscript() error = %v", err)
		}
	}

	got, err := pg.RecentTranscripts(ctx, 2)
	if err != nil {
		t.Fatalf("RecentTranscripts() error = %v", err)
	}
	if len(got) != 2 || got[0].SessionID != newerID || got[1].SessionID != olderID {
		t.Fatalf("unexpected transcripts: %+v", got)
	}
	if !got[0].PIIRedacted || got[1].PIIRedacted {
		t.Fatalf("pii_redacted not round-tripped: %v %v", got[0].PIIRedacted, got[1].PIIRedacted)
	}
	if !got[0].EvictedAt.Equal(newer.EvictedAt) {
		t.Fatalf("EvictedAt = %v, want %v", got[0].EvictedAt, newer.EvictedAt)
	}
	if len(got[1].Messages) != 2 || got[1].Messages[1].Content != "hello" || got[1].Messages[1].Role != "assistant" {
		t.Fatalf("messages not round-tripped: %+v", got[1].Messages)
	}
}
