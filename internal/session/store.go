package session

import (
	"sync"

	"github.com/google/uuid"
)

type entry struct {
	messages  []Message
	createdAt string
	seq       uint64
}

// Store keeps bounded per-session message histories in process memory.
type Store struct {
	mu          sync.RWMutex
	sessions    map[string]*entry
	maxMessages int
	maxSessions int
	evictionKey EvictionKey
	onEvict     func(Evicted)
	onTruncate  func(sessionID string, dropped int)
	nextSeq     uint64
}

type Option func(*Store)

// WithLimits overrides the per-session and cross-session capacities.
// Non-positive values keep the defaults.
func WithLimits(maxMessages, maxSessions int) Option {
	return func(s *Store) {
		if maxMessages > 0 {
			s.maxMessages = maxMessages
		}
		if maxSessions > 0 {
			s.maxSessions = maxSessions
		}
	}
}

func WithEvictionKey(key EvictionKey) Option {
	return func(s *Store) {
		if key != "" {
			s.evictionKey = key
		}
	}
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		sessions:    make(map[string]*entry),
		maxMessages: DefaultMaxMessages,
		maxSessions: DefaultMaxSessions,
		evictionKey: EvictByFirstMessage,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetEvictHook registers a callback invoked, outside the store lock, for every
// evicted session.
func (s *Store) SetEvictHook(hook func(Evicted)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEvict = hook
}

func (s *Store) SetTruncateHook(hook func(sessionID string, dropped int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTruncate = hook
}

// NewSessionID returns a fresh random (v4) UUID. It does not register it.
func (s *Store) NewSessionID() string {
	return uuid.NewString()
}

func (s *Store) Exists(sessionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[sessionID]
	return ok
}

// History returns a copy of the session's messages, or nil if it is unknown.
func (s *Store) History(sessionID string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	return cloneMessages(e.messages)
}

// Snapshot returns a deep copy of every stored session.
func (s *Store) Snapshot() map[string][]Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]Message, len(s.sessions))
	for id, e := range s.sessions {
		out[id] = cloneMessages(e.messages)
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Append adds msg to the end of the session, creating the session if needed,
// then enforces the message and session capacities.
func (s *Store) Append(sessionID string, msg Message) {
	var (
		evicted   *Evicted
		dropped   int
		evictHook func(Evicted)
		truncHook func(string, int)
	)

	s.mu.Lock()
	e, ok := s.sessions[sessionID]
	if !ok {
		s.nextSeq++
		e = &entry{createdAt: msg.Timestamp, seq: s.nextSeq}
		s.sessions[sessionID] = e
	}
	e.messages = append(e.messages, msg)

	if n := len(e.messages); n > s.maxMessages {
		dropped = n - s.maxMessages
		kept := make([]Message, s.maxMessages)
		copy(kept, e.messages[dropped:])
		e.messages = kept
	}

	if len(s.sessions) > s.maxSessions {
		evicted = s.evictOldestLocked()
	}
	evictHook = s.onEvict
	truncHook = s.onTruncate
	s.mu.Unlock()

	if dropped > 0 && truncHook != nil {
		truncHook(sessionID, dropped)
	}
	if evicted != nil && evictHook != nil {
		evictHook(*evicted)
	}
}

func (s *Store) evictOldestLocked() *Evicted {
	var (
		oldestID  string
		oldestKey string
		oldestSeq uint64
		found     bool
	)
	// Equal keys fall back to insertion order.
	for id, e := range s.sessions {
		key := s.keyOf(e)
		if !found || key < oldestKey || (key == oldestKey && e.seq < oldestSeq) {
			oldestID, oldestKey, oldestSeq, found = id, key, e.seq, true
		}
	}
	if !found {
		return nil
	}
	e := s.sessions[oldestID]
	delete(s.sessions, oldestID)
	return &Evicted{
		SessionID: oldestID,
		Messages:  e.messages,
		CreatedAt: e.createdAt,
	}
}

func (s *Store) keyOf(e *entry) string {
	if s.evictionKey == EvictByCreation {
		return e.createdAt
	}
	if len(e.messages) == 0 {
		return ""
	}
	return e.messages[0].Timestamp
}

func cloneMessages(in []Message) []Message {
	if in == nil {
		return nil
	}
	out := make([]Message, len(in))
	copy(out, in)
	return out
}
