package aggregator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/feedscout/internal/feed"
	"github.com/JakeFAU/feedscout/internal/feed/feedtest"
	"github.com/JakeFAU/feedscout/internal/registry"
	"github.com/JakeFAU/feedscout/internal/storage/memory"
)

func withPublisher(title, guid string) feed.Album {
	return feed.Album{
		Title:     title,
		Publisher: &feed.PublisherRef{FeedGUID: guid, FeedURL: "https://example.com/pub/" + guid, Medium: "publisher"},
	}
}

func TestAggregateLatestAlbumIsLastSeen(t *testing.T) {
	t.Parallel()

	got := Aggregate([]feed.Album{withPublisher("A", "G"), withPublisher("B", "G")})
	require.Len(t, got, 1)
	require.Equal(t, "G", got[0].FeedGUID)
	require.Equal(t, 2, got[0].AlbumCount)
	require.Equal(t, "B", got[0].LatestAlbum.Title)
	require.Equal(t, []string{"A", "B"}, []string{got[0].Albums[0].Title, got[0].Albums[1].Title})
}

func TestAggregateSortsByCountWithStableTies(t *testing.T) {
	t.Parallel()

	got := Aggregate([]feed.Album{
		withPublisher("x1", "X"),
		withPublisher("y1", "Y"),
		withPublisher("z1", "Z"),
		withPublisher("z2", "Z"),
		{Title: "no publisher"},
		withPublisher("empty guid", ""),
	})
	require.Len(t, got, 3)
	require.Equal(t, []string{"Z", "X", "Y"}, []string{got[0].FeedGUID, got[1].FeedGUID, got[2].FeedGUID})
	require.Equal(t, "https://example.com/pub/Z", got[0].FeedURL)
}

func TestAggregateEmpty(t *testing.T) {
	t.Parallel()

	got := Aggregate(nil)
	require.NotNil(t, got)
	require.Empty(t, got)
}

func TestServiceFromRegistry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg, err := registry.New(memory.NewFeedStore(
		feed.Feed{ID: "a", OriginalURL: "https://example.com/a", Kind: feed.KindAlbum, Status: feed.StatusActive},
		feed.Feed{ID: "b", OriginalURL: "https://example.com/b", Kind: feed.KindAlbum, Status: feed.StatusActive},
		feed.Feed{ID: "off", OriginalURL: "https://example.com/off", Kind: feed.KindAlbum, Status: feed.StatusInactive},
		feed.Feed{ID: "broken", OriginalURL: "https://example.com/broken", Kind: feed.KindAlbum, Status: feed.StatusActive},
	))
	require.NoError(t, err)

	a := withPublisher("First", "G")
	b := withPublisher("Second", "G")
	off := withPublisher("Hidden", "G")
	parser := &feedtest.StubParser{
		Albums: map[string]*feed.Album{
			"https://example.com/a":   &a,
			"https://example.com/b":   &b,
			"https://example.com/off": &off,
		},
		Failures: map[string]error{"https://example.com/broken": errors.New("gone")},
	}
	svc, err := NewService(reg, parser, nil)
	require.NoError(t, err)

	publishers, err := svc.FromRegistry(ctx)
	require.NoError(t, err)
	require.Len(t, publishers, 1)
	require.Equal(t, 2, publishers[0].AlbumCount)
	require.Equal(t, "Second", publishers[0].LatestAlbum.Title)
	require.NotContains(t, parser.Calls(), "https://example.com/off")

	pub, err := svc.Publisher(ctx, "g")
	require.NoError(t, err)
	require.Equal(t, "G", pub.FeedGUID)

	_, err = svc.Publisher(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}
