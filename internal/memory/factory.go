package memory

import (
	"context"
	"fmt"
	"strings"
)

// NewArchive picks a backend from the archive URL:
// "" is in-memory, postgres:// or postgresql:// is PostgreSQL,
// sqlite:<path> or file:<dsn> is SQLite.
func NewArchive(ctx context.Context, archiveURL string) (Archive, error) {
	u := strings.TrimSpace(archiveURL)
	switch {
	case u == "":
		return NewInMemoryArchive(0), nil
	case strings.HasPrefix(u, "postgres://"), strings.HasPrefix(u, "postgresql://"):
		return NewPostgresArchive(ctx, u)
	case strings.HasPrefix(u, "sqlite:"):
		return NewSQLiteArchive(ctx, strings.TrimPrefix(strings.TrimPrefix(u, "sqlite:"), "//"))
	case strings.HasPrefix(u, "file:"):
		return NewSQLiteArchive(ctx, u)
	default:
		return nil, fmt.Errorf("unsupported archive url %q", archiveURL)
	}
}
