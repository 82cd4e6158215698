package feed

import (
	"context"
	"time"
)

// Parser turns a feed URL into structured album data.
// A nil album with a nil error means the document held nothing usable.
type Parser interface {
	ParseAlbumFeed(ctx context.Context, url string) (*Album, error)
}

// Store persists the full ordered feed collection.
// Save replaces the whole collection; it is not an append log.
type Store interface {
	Load(ctx context.Context) ([]Feed, error)
	Save(ctx context.Context, feeds []Feed) error
}

// Notifier pushes events about registry changes to a topic.
type Notifier interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
