// Package file persists the feed collection as a JSON document on local disk.
// Writes go to a temp file that is renamed into place, and a sibling lock file
// serializes access across processes.
package file

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/JakeFAU/feedscout/internal/feed"
)

// Config captures the parameters for the file store.
type Config struct {
	Path string `mapstructure:"path"`
}

// document is the on-disk layout.
type document struct {
	UpdatedAt time.Time   `json:"updatedAt"`
	Feeds     []feed.Feed `json:"feeds"`
}

// FeedStore reads and writes a JSON feed list.
type FeedStore struct {
	path string
	lock *flock.Flock
}

// New creates a FeedStore, creating the parent directory when needed.
func New(cfg Config) (*FeedStore, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("file store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create feed store directory: %w", err)
	}
	return &FeedStore{path: path, lock: flock.New(path + ".lock")}, nil
}

// Path returns the document location.
func (s *FeedStore) Path() string {
	return s.path
}

// Load reads the feed list. A missing file is an empty collection. Both the
// wrapped document and a bare JSON array are accepted.
func (s *FeedStore) Load(ctx context.Context) ([]feed.Feed, error) {
	if err := s.acquire(ctx, true); err != nil {
		return nil, err
	}
	defer func() { _ = s.lock.Unlock() }()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return []feed.Feed{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read feed store: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return []feed.Feed{}, nil
	}

	if data[0] == '[' {
		var feeds []feed.Feed
		if err := json.Unmarshal(data, &feeds); err != nil {
			return nil, fmt.Errorf("decode feed list: %w", err)
		}
		return feeds, nil
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode feed document: %w", err)
	}
	if doc.Feeds == nil {
		doc.Feeds = []feed.Feed{}
	}
	return doc.Feeds, nil
}

// Save replaces the document atomically.
func (s *FeedStore) Save(ctx context.Context, feeds []feed.Feed) error {
	if err := s.acquire(ctx, false); err != nil {
		return err
	}
	defer func() { _ = s.lock.Unlock() }()

	if feeds == nil {
		feeds = []feed.Feed{}
	}
	data, err := json.MarshalIndent(document{UpdatedAt: time.Now().UTC(), Feeds: feeds}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode feed document: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("replace feed store: %w", err)
	}
	return nil
}

func (s *FeedStore) acquire(ctx context.Context, shared bool) error {
	const retry = 50 * time.Millisecond
	var (
		ok  bool
		err error
	)
	if shared {
		ok, err = s.lock.TryRLockContext(ctx, retry)
	} else {
		ok, err = s.lock.TryLockContext(ctx, retry)
	}
	if err != nil {
		return fmt.Errorf("acquire feed store lock: %w", err)
	}
	if !ok {
		return errors.New("acquire feed store lock: not acquired")
	}
	return nil
}
