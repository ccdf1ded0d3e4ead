package memory

import (
	"context"
	"time"

	"github.com/ent0n29/chatline/internal/session"
)

// Transcript is an evicted session as written to the archive.
type Transcript struct {
	ID          string            `json:"id"`
	SessionID   string            `json:"session_id"`
	CreatedAt   string            `json:"created_at"`
	EvictedAt   time.Time         `json:"evicted_at"`
	PIIRedacted bool              `json:"pii_redacted"`
	Messages    []session.Message `json:"messages"`
}

// Archive persists transcripts of sessions evicted from the live store.
// The live store is never reloaded from it.
type Archive interface {
	SaveTranscript(ctx context.Context, t Transcript) error
	RecentTranscripts(ctx context.Context, limit int) ([]Transcript, error)
	Mode() string
	Close() error
}
