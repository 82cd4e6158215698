// Package gcs provides a feed.Store backed by a JSON object in Google Cloud Storage.
package gcs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/feedscout/internal/feed"
)

const defaultObject = "feeds.json"

// Config captures the parameters required to locate the feed document.
type Config struct {
	Bucket string
	Object string
}

type document struct {
	UpdatedAt time.Time   `json:"updatedAt"`
	Feeds     []feed.Feed `json:"feeds"`
}

// FeedStore reads and writes the feed list as one object.
type FeedStore struct {
	client *storage.Client
	bucket string
	object string
}

// New creates a GCS-backed feed store.
func New(client *storage.Client, cfg Config) (*FeedStore, error) {
	if client == nil {
		return nil, errors.New("storage client is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("bucket name is required")
	}
	object := strings.TrimSpace(cfg.Object)
	if object == "" {
		object = defaultObject
	}
	return &FeedStore{client: client, bucket: cfg.Bucket, object: object}, nil
}

// URI returns the gs:// location of the document.
func (s *FeedStore) URI() string {
	return fmt.Sprintf("gs://%s/%s", s.bucket, s.object)
}

// Load downloads the document. A missing object is an empty collection.
func (s *FeedStore) Load(ctx context.Context) ([]feed.Feed, error) {
	reader, err := s.client.Bucket(s.bucket).Object(s.object).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return []feed.Feed{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.URI(), err)
	}
	defer func() { _ = reader.Close() }()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.URI(), err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return []feed.Feed{}, nil
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.URI(), err)
	}
	if doc.Feeds == nil {
		doc.Feeds = []feed.Feed{}
	}
	return doc.Feeds, nil
}

// Save uploads the complete collection, replacing the object.
func (s *FeedStore) Save(ctx context.Context, feeds []feed.Feed) error {
	if feeds == nil {
		feeds = []feed.Feed{}
	}
	data, err := json.Marshal(document{UpdatedAt: time.Now().UTC(), Feeds: feeds})
	if err != nil {
		return fmt.Errorf("encode feed document: %w", err)
	}
	writer := s.client.Bucket(s.bucket).Object(s.object).NewWriter(ctx)
	writer.ContentType = "application/json"
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}
