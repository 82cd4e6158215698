// Package feedtest provides test doubles for the feed collaborator interfaces.
package feedtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/JakeFAU/feedscout/internal/feed"
)

// MockStore is a mock implementation of feed.Store.
type MockStore struct {
	mock.Mock
}

// Load is the mock implementation of the Load method.
func (m *MockStore) Load(ctx context.Context) ([]feed.Feed, error) {
	args := m.Called(ctx)
	feeds, _ := args.Get(0).([]feed.Feed)
	return feeds, args.Error(1) //nolint:wrapcheck
}

// Save is the mock implementation of the Save method.
func (m *MockStore) Save(ctx context.Context, feeds []feed.Feed) error {
	args := m.Called(ctx, feeds)
	return args.Error(0) //nolint:wrapcheck
}

// MockParser is a mock implementation of feed.Parser.
type MockParser struct {
	mock.Mock
}

// ParseAlbumFeed is the mock implementation of the ParseAlbumFeed method.
func (m *MockParser) ParseAlbumFeed(ctx context.Context, url string) (*feed.Album, error) {
	args := m.Called(ctx, url)
	album, _ := args.Get(0).(*feed.Album)
	return album, args.Error(1) //nolint:wrapcheck
}

// MockNotifier is a mock implementation of feed.Notifier.
type MockNotifier struct {
	mock.Mock
}

// Publish is the mock implementation of the Publish method.
func (m *MockNotifier) Publish(ctx context.Context, topic string, payload any) (string, error) {
	args := m.Called(ctx, topic, payload)
	return args.String(0), args.Error(1) //nolint:wrapcheck
}

// StubParser serves albums from a fixed map keyed by URL and records every
// call. URLs listed in Failures return that error; unknown URLs fail too.
type StubParser struct {
	Albums   map[string]*feed.Album
	Failures map[string]error

	mu    sync.Mutex
	calls []string
}

// ParseAlbumFeed returns the configured album for url.
func (p *StubParser) ParseAlbumFeed(_ context.Context, url string) (*feed.Album, error) {
	p.mu.Lock()
	p.calls = append(p.calls, url)
	p.mu.Unlock()

	if err, ok := p.Failures[url]; ok {
		return nil, err
	}
	album, ok := p.Albums[url]
	if !ok {
		return nil, fmt.Errorf("no fixture for %s", url)
	}
	return album, nil
}

// Calls returns the URLs parsed so far, in order.
func (p *StubParser) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.calls))
	copy(out, p.calls)
	return out
}
