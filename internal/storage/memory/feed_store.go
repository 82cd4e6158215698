// Package memory provides an in-process feed.Store for development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/feedscout/internal/feed"
)

// FeedStore keeps the feed collection in memory.
type FeedStore struct {
	mu    sync.RWMutex
	feeds []feed.Feed
	saves int
}

// NewFeedStore constructs a FeedStore preloaded with initial.
func NewFeedStore(initial ...feed.Feed) *FeedStore {
	return &FeedStore{feeds: cloneFeeds(initial)}
}

// Load returns a copy of the stored collection.
func (s *FeedStore) Load(_ context.Context) ([]feed.Feed, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneFeeds(s.feeds), nil
}

// Save replaces the stored collection.
func (s *FeedStore) Save(_ context.Context, feeds []feed.Feed) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feeds = cloneFeeds(feeds)
	s.saves++
	return nil
}

// Saves reports how many times Save has been called.
func (s *FeedStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

func cloneFeeds(in []feed.Feed) []feed.Feed {
	out := make([]feed.Feed, len(in))
	copy(out, in)
	return out
}
