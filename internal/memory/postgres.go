package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresArchive persists evicted transcripts in PostgreSQL.
type PostgresArchive struct {
	pool *pgxpool.Pool
}

func NewPostgresArchive(ctx context.Context, databaseURL string) (*PostgresArchive, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresArchive{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS archived_sessions (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			created_at TEXT NOT NULL,
			evicted_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			pii_redacted BOOLEAN NOT NULL DEFAULT FALSE,
			message_count INTEGER NOT NULL,
			messages JSONB NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_archived_sessions_evicted ON archived_sessions (evicted_at DESC);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (a *PostgresArchive) SaveTranscript(ctx context.Context, t Transcript) error {
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

	_, err = a.pool.Exec(ctx,
		`INSERT INTO archived_sessions (id, session_id, created_at, evicted_at, pii_redacted, message_count, messages)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID,
		t.SessionID,
		t.CreatedAt,
		t.EvictedAt,
		t.PIIRedacted,
		len(t.Messages),
		msgs,
	)
	if err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}
	return nil
}

func (a *PostgresArchive) RecentTranscripts(ctx context.Context, limit int) ([]Transcript, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := a.pool.Query(ctx,
		`SELECT id, session_id, created_at, evicted_at, pii_redacted, messages
		 FROM archived_sessions ORDER BY evicted_at DESC LIMIT $1`,
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
			raw []byte
		)
		if err := rows.Scan(&t.ID, &t.SessionID, &t.CreatedAt, &t.EvictedAt, &t.PIIRedacted, &raw); err != nil {
			return nil, fmt.Errorf("scan transcript row: %w", err)
		}
		if err := json.Unmarshal(raw, &t.Messages); err != nil {
			return nil, fmt.Errorf("decode transcript %s: %w", t.ID, err)
		}
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transcript rows: %w", err)
	}
	return items, nil
}

func (a *PostgresArchive) Mode() string { return "postgres" }

func (a *PostgresArchive) Close() error {
	a.pool.Close()
	return nil
}
