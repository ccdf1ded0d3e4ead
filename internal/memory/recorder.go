package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ent0n29/chatline/internal/observability"
	"github.com/ent0n29/chatline/internal/policy"
	"github.com/ent0n29/chatline/internal/session"
)

const defaultRecorderQueue = 64

// Recorder writes evicted sessions to an Archive from a background worker so
// the request that triggered the eviction never waits on storage.
type Recorder struct {
	archive Archive
	redact  bool
	metrics *observability.Metrics
	queue   chan Transcript
	mu      sync.Mutex
	closed  bool
	done    chan struct{}
	timeout time.Duration
}

// NewRecorder starts the archive worker; call Close to drain and stop it.
func NewRecorder(archive Archive, redact bool, metrics *observability.Metrics) *Recorder {
	r := &Recorder{
		archive: archive,
		redact:  redact,
		metrics: metrics,
		queue:   make(chan Transcript, defaultRecorderQueue),
		done:    make(chan struct{}),
		timeout: 5 * time.Second,
	}
	go func() {
		defer close(r.done)
		for t := range r.queue {
			r.save(t)
		}
	}()
	return r
}

// Record enqueues an evicted session. It never blocks; when the queue is full
// or the recorder is closed the transcript is dropped and counted.
func (r *Recorder) Record(e session.Evicted) {
	t := Transcript{
		SessionID: e.SessionID,
		CreatedAt: e.CreatedAt,
		EvictedAt: time.Now().UTC(),
		Messages:  e.Messages,
	}
	if r.redact {
		t.Messages, _ = policy.RedactTranscript(e.Messages)
		t.PIIRedacted = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		r.observe("drop_closed")
		return
	}
	select {
	case r.queue <- t:
	default:
		r.observe("drop_full")
		observability.Logger().Warn("archive queue full, dropping transcript", "session_id", e.SessionID)
	}
}

// Close stops accepting transcripts and waits for queued ones to be written.
func (r *Recorder) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()
	<-r.done
}

func (r *Recorder) save(t Transcript) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.archive.SaveTranscript(ctx, t); err != nil {
		r.observe("error")
		observability.Logger().Error("archive transcript failed",
			"session_id", t.SessionID,
			"archive", r.archive.Mode(),
			"error", err)
		return
	}
	r.observe("saved")
	observability.Logger().Info("archived evicted session",
		"session_id", t.SessionID,
		"message_count", len(t.Messages),
		"archive", r.archive.Mode())
}

func (r *Recorder) observe(result string) {
	if r.metrics != nil {
		r.metrics.ArchiveEvents.WithLabelValues(result).Inc()
	}
}
