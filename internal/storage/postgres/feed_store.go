// Package postgres provides a Postgres-backed feed.Store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/feedscout/internal/feed"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "feeds"

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// FeedStore keeps one row per feed with an explicit position column.
type FeedStore struct {
	pool  pool
	table string
}

// New connects a pool using cfg and ensures the table exists.
func New(ctx context.Context, cfg Config) (*FeedStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("store.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, table string) (*FeedStore, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &FeedStore{pool: p, table: table}, nil
}

// Close releases the pool.
func (s *FeedStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the feeds table when missing.
func (s *FeedStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	position        INTEGER NOT NULL,
	id              TEXT NOT NULL,
	original_url    TEXT NOT NULL,
	type            TEXT NOT NULL,
	title           TEXT NOT NULL DEFAULT '',
	priority        TEXT NOT NULL,
	status          TEXT NOT NULL,
	added_at        TIMESTAMPTZ NOT NULL,
	last_updated    TIMESTAMPTZ NOT NULL,
	source          TEXT NOT NULL,
	discovered_from TEXT NOT NULL DEFAULT ''
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s table: %w", s.table, err)
	}
	return nil
}

// Load returns all feeds in stored order.
func (s *FeedStore) Load(ctx context.Context) ([]feed.Feed, error) {
	query := fmt.Sprintf(`SELECT id, original_url, type, title, priority, status,
	added_at, last_updated, source, discovered_from FROM %s ORDER BY position`, s.table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query feeds: %w", err)
	}
	defer rows.Close()

	feeds := []feed.Feed{}
	for rows.Next() {
		var (
			item                       feed.Feed
			kind, prio, status, source string
		)
		if err := rows.Scan(&item.ID, &item.OriginalURL, &kind, &item.Title, &prio, &status,
			&item.AddedAt, &item.LastUpdated, &source, &item.DiscoveredFrom); err != nil {
			return nil, fmt.Errorf("scan feed: %w", err)
		}
		item.Kind = feed.Kind(kind)
		item.Priority = feed.Priority(prio)
		item.Status = feed.Status(status)
		item.Source = feed.Source(source)
		feeds = append(feeds, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feeds: %w", err)
	}
	return feeds, nil
}

// Save replaces the table contents inside one transaction.
func (s *FeedStore) Save(ctx context.Context, feeds []feed.Feed) (err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s", s.table)); err != nil {
		return fmt.Errorf("clear feeds: %w", err)
	}
	insert := fmt.Sprintf(`INSERT INTO %s (
	position, id, original_url, type, title, priority, status,
	added_at, last_updated, source, discovered_from
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`, s.table)
	for i, item := range feeds {
		if _, err = tx.Exec(ctx, insert,
			i,
			item.ID,
			item.OriginalURL,
			string(item.Kind),
			item.Title,
			string(item.Priority),
			string(item.Status),
			item.AddedAt,
			item.LastUpdated,
			string(item.Source),
			item.DiscoveredFrom,
		); err != nil {
			return fmt.Errorf("insert feed %s: %w", item.ID, err)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit feeds: %w", err)
	}
	return nil
}
