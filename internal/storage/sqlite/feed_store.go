// Package sqlite persists the feed collection in an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/feedscout/internal/feed"
)

// Config captures the parameters for the SQLite store.
type Config struct {
	Path string `mapstructure:"path"`
}

const schema = `
CREATE TABLE IF NOT EXISTS feeds (
    position        INTEGER NOT NULL,
    id              TEXT NOT NULL,
    original_url    TEXT NOT NULL,
    type            TEXT NOT NULL,
    title           TEXT NOT NULL DEFAULT '',
    priority        TEXT NOT NULL,
    status          TEXT NOT NULL,
    added_at        TEXT NOT NULL,
    last_updated    TEXT NOT NULL,
    source          TEXT NOT NULL,
    discovered_from TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_feeds_position ON feeds(position);
`

// FeedStore stores one row per feed and keeps registry order in a position column.
type FeedStore struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the database and applies the schema.
func Open(ctx context.Context, cfg Config) (*FeedStore, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

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
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &FeedStore{db: db, path: path}, nil
}

// Close closes the underlying database connection.
func (s *FeedStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Load returns all feeds in stored order.
func (s *FeedStore) Load(ctx context.Context) ([]feed.Feed, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, original_url, type, title, priority, status,
        added_at, last_updated, source, discovered_from FROM feeds ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query feeds: %w", err)
	}
	defer rows.Close()

	feeds := []feed.Feed{}
	for rows.Next() {
		var (
			item               feed.Feed
			kind, prio, status string
			source             string
			addedAt, updatedAt string
		)
		if err := rows.Scan(&item.ID, &item.OriginalURL, &kind, &item.Title, &prio, &status,
			&addedAt, &updatedAt, &source, &item.DiscoveredFrom); err != nil {
			return nil, fmt.Errorf("scan feed: %w", err)
		}
		item.Kind = feed.Kind(kind)
		item.Priority = feed.Priority(prio)
		item.Status = feed.Status(status)
		item.Source = feed.Source(source)
		if item.AddedAt, err = parseTime(addedAt); err != nil {
			return nil, fmt.Errorf("feed %s added_at: %w", item.ID, err)
		}
		if item.LastUpdated, err = parseTime(updatedAt); err != nil {
			return nil, fmt.Errorf("feed %s last_updated: %w", item.ID, err)
		}
		feeds = append(feeds, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feeds: %w", err)
	}
	return feeds, nil
}

// Save replaces every row inside one transaction.
func (s *FeedStore) Save(ctx context.Context, feeds []feed.Feed) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM feeds`); err != nil {
		return fmt.Errorf("clear feeds: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO feeds (position, id, original_url, type, title,
        priority, status, added_at, last_updated, source, discovered_from)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, item := range feeds {
		if _, err = stmt.ExecContext(ctx, i, item.ID, item.OriginalURL, string(item.Kind), item.Title,
			string(item.Priority), string(item.Status), formatTime(item.AddedAt), formatTime(item.LastUpdated),
			string(item.Source), item.DiscoveredFrom); err != nil {
			return fmt.Errorf("insert feed %s: %w", item.ID, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit feeds: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", raw, err)
	}
	return t, nil
}
