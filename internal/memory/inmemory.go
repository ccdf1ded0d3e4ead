package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultInMemoryCapacity = 100

// InMemoryArchive keeps the most recent transcripts in process memory.
type InMemoryArchive struct {
	mu       sync.RWMutex
	records  []Transcript
	capacity int
}

func NewInMemoryArchive(capacity int) *InMemoryArchive {
	if capacity <= 0 {
		capacity = defaultInMemoryCapacity
	}
	return &InMemoryArchive{capacity: capacity}
}

func (a *InMemoryArchive) SaveTranscript(_ context.Context, t Transcript) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.EvictedAt.IsZero() {
		t.EvictedAt = time.Now().UTC()
	}
	a.records = append(a.records, t)
	if over := len(a.records) - a.capacity; over > 0 {
		a.records = append([]Transcript(nil), a.records[over:]...)
	}
	return nil
}

// RecentTranscripts returns up to limit transcripts, newest first.
func (a *InMemoryArchive) RecentTranscripts(_ context.Context, limit int) ([]Transcript, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if limit <= 0 || limit > len(a.records) {
		limit = len(a.records)
	}
	out := make([]Transcript, 0, limit)
	for i := len(a.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, a.records[i])
	}
	return out, nil
}

func (a *InMemoryArchive) Mode() string { return "in-memory" }

func (a *InMemoryArchive) Close() error { return nil }
