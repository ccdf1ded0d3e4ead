package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteArchive persists evicted transcripts in a local SQLite file.
type SQLiteArchive struct {
	db *sql.DB
}

func NewSQLiteArchive(ctx context.Context, dsn string) (*SQLiteArchive, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// sqlite allows a single writer at a time.
	db.SetMaxOpenConns(1)

	createTable := `
	CREATE TABLE IF NOT EXISTS archived_sessions (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		created_at TEXT NOT NULL,
		evicted_at DATETIME NOT NULL,
		pii_redacted INTEGER NOT NULL DEFAULT 0,
		message_count INTEGER NOT NULL,
		messages TEXT NOT NULL
	);`
	if _, err := db.ExecContext(ctx, createTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create archived_sessions table: %w", err)
	}

	return &SQLiteArchive{db: db}, nil
}

func (a *SQLiteArchive) SaveTranscript(ctx context.Context, t Transcript) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.EvictedAt.IsZero() {
		t.EvictedAt = time.Now().UTC()
	}
	msgs, err := json.Marshal(t.Messages)
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}

	_, err = a.db.ExecContext(ctx,
		"INSERT INTO archived_sessions (id, session_id, created_at, evicted_at, pii_redacted, message_count, messages) VALUES (?, ?, ?, ?, ?, ?, ?)",
		t.ID, t.SessionID, t.CreatedAt, t.EvictedAt, t.PIIRedacted, len(t.Messages), string(msgs),
	)
	if err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}
	return nil
}

func (a *SQLiteArchive) RecentTranscripts(ctx context.Context, limit int) ([]Transcript, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := a.db.QueryContext(ctx,
		"SELECT id, session_id, created_at, evicted_at, pii_redacted, messages FROM archived_sessions ORDER BY evicted_at DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query transcripts: %w", err)
	}
	defer rows.Close()

	items := make([]Transcript, 0, limit)
	for rows.Next() {
		var (
			t   Transcript
			raw string
		)
		if err := rows.Scan(&t.ID, &t.SessionID, &t.CreatedAt, &t.EvictedAt, &t.PIIRedacted, &raw); err != nil {
			return nil, fmt.Errorf("scan transcript row: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &t.Messages); err != nil {
			return nil, fmt.Errorf("decode transcript %s: %w", t.ID, err)
		}
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transcript rows: %w", err)
	}
	return items, nil
}

func (a *SQLiteArchive) Mode() string { return "sqlite" }

func (a *SQLiteArchive) Close() error {
	return a.db.Close()
}
