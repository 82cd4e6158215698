// Package aggregator groups albums under the publisher feedGuid they declare.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/feedscout/internal/feed"
	"github.com/JakeFAU/feedscout/internal/registry"
)

// ErrNotFound is returned when no album declares the requested publisher guid.
var ErrNotFound = errors.New("publisher not found")

// AlbumSummary is the per-album view kept on a Publisher.
type AlbumSummary struct {
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	FeedGUID   string `json:"feedGuid,omitempty"`
	ImageURL   string `json:"imageUrl,omitempty"`
	TrackCount int    `json:"trackCount"`
}

// Publisher is a computed view over every album declaring the same publisher guid.
type Publisher struct {
	FeedGUID    string         `json:"feedGuid"`
	FeedURL     string         `json:"feedUrl,omitempty"`
	Medium      string         `json:"medium,omitempty"`
	Albums      []AlbumSummary `json:"albums"`
	AlbumCount  int            `json:"albumCount"`
	LatestAlbum AlbumSummary   `json:"latestAlbum"`
}

func summarize(album feed.Album) AlbumSummary {
	return AlbumSummary{
		Title:      album.Title,
		Artist:     album.Artist,
		FeedGUID:   album.FeedGUID,
		ImageURL:   album.ImageURL,
		TrackCount: len(album.Tracks),
	}
}

// Aggregate groups albums by publisher guid in one pass. LatestAlbum is the
// last album seen in input order, not the most recently released one. The
// result is sorted by AlbumCount descending; ties keep first-seen order.
func Aggregate(albums []feed.Album) []Publisher {
	index := make(map[string]int)
	var out []Publisher
	for _, album := range albums {
		if album.Publisher == nil || album.Publisher.FeedGUID == "" {
			continue
		}
		ref := album.Publisher
		summary := summarize(album)
		idx, ok := index[ref.FeedGUID]
		if !ok {
			idx = len(out)
			index[ref.FeedGUID] = idx
			out = append(out, Publisher{FeedGUID: ref.FeedGUID, FeedURL: ref.FeedURL, Medium: ref.Medium})
		}
		pub := &out[idx]
		pub.Albums = append(pub.Albums, summary)
		pub.AlbumCount++
		pub.LatestAlbum = summary
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AlbumCount > out[j].AlbumCount
	})
	if out == nil {
		return []Publisher{}
	}
	return out
}

// Lister is the read side of the registry the Service needs.
type Lister interface {
	GetAll(ctx context.Context, filter registry.Filter) ([]feed.Feed, error)
}

// Service aggregates the publishers of every active album in the registry.
type Service struct {
	registry Lister
	parser   feed.Parser
	logger   *zap.Logger
}

// NewService constructs a Service.
func NewService(reg Lister, parser feed.Parser, logger *zap.Logger) (*Service, error) {
	if reg == nil || parser == nil {
		return nil, errors.New("aggregator: registry and parser are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{registry: reg, parser: parser, logger: logger.Named("aggregator")}, nil
}

// FromRegistry parses every active album feed sequentially in registry order,
// skipping feeds that fail, and aggregates the results.
func (s *Service) FromRegistry(ctx context.Context) ([]Publisher, error) {
	feeds, err := s.registry.GetAll(ctx, registry.Filter{Kind: feed.KindAlbum, Status: feed.StatusActive})
	if err != nil {
		return nil, fmt.Errorf("list album feeds: %w", err)
	}
	albums := make([]feed.Album, 0, len(feeds))
	for _, item := range feeds {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("aggregate interrupted: %w", err)
		}
		album, err := s.parser.ParseAlbumFeed(ctx, item.OriginalURL)
		if err != nil || album == nil {
			s.logger.Warn("album parse failed",
				zap.String("feed_id", item.ID),
				zap.String("feed_url", item.OriginalURL),
				zap.Error(err),
			)
			continue
		}
		albums = append(albums, *album)
	}
	return Aggregate(albums), nil
}

// Publisher returns the aggregated view for one publisher guid.
func (s *Service) Publisher(ctx context.Context, guid string) (Publisher, error) {
	publishers, err := s.FromRegistry(ctx)
	if err != nil {
		return Publisher{}, err
	}
	for _, pub := range publishers {
		if strings.EqualFold(pub.FeedGUID, guid) {
			return pub, nil
		}
	}
	return Publisher{}, fmt.Errorf("%w: %s", ErrNotFound, guid)
}
