package assetstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	name        TEXT PRIMARY KEY,
	codec       TEXT NOT NULL,
	size        INTEGER NOT NULL,
	stored_size INTEGER NOT NULL,
	hash        TEXT NOT NULL,
	etag        TEXT NOT NULL DEFAULT '',
	source      TEXT NOT NULL DEFAULT '',
	updated_at  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS artifacts (
	name       TEXT PRIMARY KEY,
	size       INTEGER NOT NULL,
	hash       TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS folders (
	path TEXT PRIMARY KEY
);
`

// Entry is one manifest row.
type Entry struct {
	Name       string
	Codec      string
	Size       int64
	StoredSize int64
	Hash       string
	ETag       string
	Source     string
	UpdatedAt  time.Time
}

type manifest struct {
	db *sql.DB
}

func openManifest(ctx context.Context, path string) (*manifest, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init manifest schema: %w", err)
	}
	return &manifest{db: db}, nil
}

func (m *manifest) close() error {
	if m == nil || m.db == nil {
		return nil
	}
	return m.db.Close()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := range busyRetryAttempts {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (m *manifest) exec(ctx context.Context, query string, args ...any) error {
	return retryOnBusy(ctx, func() error {
		_, err := m.db.ExecContext(ctx, query, args...)
		return err
	})
}

func (m *manifest) putEntry(ctx context.Context, e Entry) error {
	return m.exec(ctx, `
INSERT INTO entries (name, codec, size, stored_size, hash, etag, source, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(name) DO UPDATE SET
	codec = excluded.codec,
	size = excluded.size,
	stored_size = excluded.stored_size,
	hash = excluded.hash,
	etag = excluded.etag,
	source = excluded.source,
	updated_at = excluded.updated_at`,
		e.Name, e.Codec, e.Size, e.StoredSize, e.Hash, e.ETag, e.Source, e.UpdatedAt.Unix())
}

func (m *manifest) entry(ctx context.Context, name string) (Entry, bool, error) {
	row := m.db.QueryRowContext(ctx, `
SELECT name, codec, size, stored_size, hash, etag, source, updated_at
FROM entries WHERE name = ?`, name)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("query entry %q: %w", name, err)
	}
	return e, true, nil
}

func (m *manifest) entries(ctx context.Context) ([]Entry, error) {
	rows, err := m.db.QueryContext(ctx, `
SELECT name, codec, size, stored_size, hash, etag, source, updated_at
FROM entries ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (m *manifest) deleteEntry(ctx context.Context, name string) error {
	return m.exec(ctx, `DELETE FROM entries WHERE name = ?`, name)
}

func (m *manifest) putArtifact(ctx context.Context, name string, size int64, hash string) error {
	return m.exec(ctx, `
INSERT INTO artifacts (name, size, hash, created_at) VALUES (?, ?, ?, ?)
ON CONFLICT(name) DO UPDATE SET size = excluded.size, hash = excluded.hash, created_at = excluded.created_at`,
		name, size, hash, time.Now().Unix())
}

func (m *manifest) hasArtifact(ctx context.Context, name string) (bool, error) {
	var count int
	if err := m.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM artifacts WHERE name = ?`, name).Scan(&count); err != nil {
		return false, fmt.Errorf("query artifact %q: %w", name, err)
	}
	return count > 0, nil
}

func (m *manifest) deleteArtifact(ctx context.Context, name string) error {
	return m.exec(ctx, `DELETE FROM artifacts WHERE name = ?`, name)
}

func (m *manifest) putFolder(ctx context.Context, path string) error {
	return m.exec(ctx, `INSERT OR IGNORE INTO folders (path) VALUES (?)`, path)
}

func (m *manifest) counts(ctx context.Context) (artifacts int, folders int, err error) {
	if err = m.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM artifacts`).Scan(&artifacts); err != nil {
		return 0, 0, fmt.Errorf("count artifacts: %w", err)
	}
	if err = m.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM folders`).Scan(&folders); err != nil {
		return 0, 0, fmt.Errorf("count folders: %w", err)
	}
	return artifacts, folders, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var (
		e       Entry
		updated int64
	)
	if err := row.Scan(&e.Name, &e.Codec, &e.Size, &e.StoredSize, &e.Hash, &e.ETag, &e.Source, &updated); err != nil {
		return Entry{}, err
	}
	e.UpdatedAt = time.Unix(updated, 0)
	return e, nil
}
