// Package parser turns RSS documents carrying Podcasting-2.0 metadata into
// feed.Album values.
package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
	"go.uber.org/zap"

	"github.com/JakeFAU/feedscout/internal/feed"
	"github.com/JakeFAU/feedscout/internal/telemetry"
)

const podcastNS = "podcast"

// ErrEmptyFeed is returned for documents with neither a title nor items.
var ErrEmptyFeed = errors.New("feed has no title or items")

// Fetcher downloads a feed document.
type Fetcher interface {
	FetchFeed(ctx context.Context, url string) ([]byte, error)
}

// Parser implements feed.Parser by fetching and decoding feeds.
type Parser struct {
	fetcher Fetcher
	logger  *zap.Logger
}

// New constructs a Parser.
func New(fetcher Fetcher, logger *zap.Logger) (*Parser, error) {
	if fetcher == nil {
		return nil, errors.New("parser: fetcher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{fetcher: fetcher, logger: logger.Named("parser")}, nil
}

// ParseAlbumFeed fetches url and decodes it.
func (p *Parser) ParseAlbumFeed(ctx context.Context, url string) (*feed.Album, error) {
	start := time.Now()
	body, err := p.fetcher.FetchFeed(ctx, url)
	if err != nil {
		telemetry.ObserveParse("fetch_error", time.Since(start))
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	album, err := Parse(body)
	if err != nil {
		telemetry.ObserveParse("parse_error", time.Since(start))
		return nil, fmt.Errorf("parse %s: %w", url, err)
	}
	telemetry.ObserveParse("ok", time.Since(start))
	p.logger.Debug("feed parsed",
		zap.String("feed_url", url),
		zap.Int("tracks", len(album.Tracks)),
		zap.Int("podroll", len(album.Podroll)),
	)
	return album, nil
}

// Parse decodes an RSS, Atom or JSON feed document.
func Parse(body []byte) (*feed.Album, error) {
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}
	if strings.TrimSpace(parsed.Title) == "" && len(parsed.Items) == 0 {
		return nil, ErrEmptyFeed
	}

	album := &feed.Album{
		Title:       strings.TrimSpace(parsed.Title),
		Artist:      artist(parsed),
		Description: strings.TrimSpace(parsed.Description),
		Link:        parsed.Link,
		Tracks:      make([]feed.Track, 0, len(parsed.Items)),
	}
	if parsed.Image != nil {
		album.ImageURL = parsed.Image.URL
	} else if parsed.ITunesExt != nil {
		album.ImageURL = parsed.ITunesExt.Image
	}

	podcast := parsed.Extensions[podcastNS]
	album.FeedGUID = strings.TrimSpace(firstValue(podcast, "guid"))
	album.Medium = strings.ToLower(strings.TrimSpace(firstValue(podcast, "medium")))
	album.Podroll = podroll(podcast)
	album.Publisher = publisher(podcast)
	album.Funding = funding(podcast)

	for _, item := range parsed.Items {
		if item == nil {
			continue
		}
		album.Tracks = append(album.Tracks, track(item))
	}
	return album, nil
}

func artist(parsed *gofeed.Feed) string {
	if parsed.ITunesExt != nil && strings.TrimSpace(parsed.ITunesExt.Author) != "" {
		return strings.TrimSpace(parsed.ITunesExt.Author)
	}
	for _, person := range parsed.Authors {
		if person != nil && person.Name != "" {
			return person.Name
		}
	}
	return ""
}

func track(item *gofeed.Item) feed.Track {
	t := feed.Track{
		Title:       strings.TrimSpace(item.Title),
		GUID:        item.GUID,
		PublishedAt: item.PublishedParsed,
	}
	for _, enc := range item.Enclosures {
		if enc != nil && enc.URL != "" {
			t.AudioURL = enc.URL
			t.AudioType = enc.Type
			break
		}
	}
	if item.ITunesExt != nil {
		t.Duration = item.ITunesExt.Duration
	}
	return t
}

func firstValue(space map[string][]ext.Extension, name string) string {
	for _, e := range space[name] {
		if e.Value != "" {
			return e.Value
		}
	}
	return ""
}

func podroll(space map[string][]ext.Extension) []feed.PodrollEntry {
	var entries []feed.PodrollEntry
	for _, roll := range space["podroll"] {
		for _, item := range roll.Children["remoteItem"] {
			entry := feed.PodrollEntry{
				URL:         strings.TrimSpace(item.Attrs["feedUrl"]),
				FeedGUID:    strings.TrimSpace(item.Attrs["feedGuid"]),
				Title:       strings.TrimSpace(item.Attrs["title"]),
				Description: strings.TrimSpace(item.Value),
			}
			if entry.URL == "" && entry.FeedGUID == "" {
				continue
			}
			entries = append(entries, entry)
		}
	}
	return entries
}

func publisher(space map[string][]ext.Extension) *feed.PublisherRef {
	for _, pub := range space["publisher"] {
		for _, item := range pub.Children["remoteItem"] {
			guid := strings.TrimSpace(item.Attrs["feedGuid"])
			if guid == "" {
				continue
			}
			return &feed.PublisherRef{
				FeedGUID: guid,
				FeedURL:  strings.TrimSpace(item.Attrs["feedUrl"]),
				Medium:   strings.TrimSpace(item.Attrs["medium"]),
			}
		}
	}
	return nil
}

func funding(space map[string][]ext.Extension) []feed.Funding {
	var out []feed.Funding
	for _, f := range space["funding"] {
		u := strings.TrimSpace(f.Attrs["url"])
		if u == "" {
			continue
		}
		out = append(out, feed.Funding{URL: u, Text: strings.TrimSpace(f.Value)})
	}
	return out
}
