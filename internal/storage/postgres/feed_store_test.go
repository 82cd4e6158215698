package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/feedscout/internal/feed"
)

var columns = []string{
	"id", "original_url", "type", "title", "priority", "status",
	"added_at", "last_updated", "source", "discovered_from",
}

func TestNewWithPoolValidatesTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewWithPool(nil, "")
	require.Error(t, err)
	_, err = NewWithPool(mock, "feeds; DROP TABLE x")
	require.Error(t, err)

	store, err := NewWithPool(mock, "")
	require.NoError(t, err)
	require.Equal(t, "feeds", store.table)
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "registry_feeds")
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS registry_feeds").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadScansRowsInOrder(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "feeds")
	require.NoError(t, err)

	at := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery(`(?s)SELECT .+ FROM feeds ORDER BY position`).
		WillReturnRows(pgxmock.NewRows(columns).
			AddRow("a", "https://example.com/a", "album", "A", "core", "active", at, at, "manual", "").
			AddRow("p", "https://example.com/p", "publisher", "", "low", "inactive", at, at, "podroll", "https://example.com/a"))

	feeds, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, []feed.Feed{
		{ID: "a", OriginalURL: "https://example.com/a", Kind: feed.KindAlbum, Title: "A", Priority: feed.PriorityCore,
			Status: feed.StatusActive, AddedAt: at, LastUpdated: at, Source: feed.SourceManual},
		{ID: "p", OriginalURL: "https://example.com/p", Kind: feed.KindPublisher, Priority: feed.PriorityLow,
			Status: feed.StatusInactive, AddedAt: at, LastUpdated: at, Source: feed.SourcePodroll,
			DiscoveredFrom: "https://example.com/a"},
	}, feeds)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveReplacesRowsInTransaction(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "feeds")
	require.NoError(t, err)

	at := time.Unix(1700000000, 0).UTC()
	item := feed.Feed{
		ID: "a", OriginalURL: "https://example.com/a", Kind: feed.KindAlbum, Title: "A",
		Priority: feed.PriorityExtended, Status: feed.StatusActive, AddedAt: at, LastUpdated: at,
		Source: feed.SourceRecursive, DiscoveredFrom: "https://example.com/s",
	}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM feeds").WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectExec("INSERT INTO feeds").
		WithArgs(0, "a", "https://example.com/a", "album", "A", "extended", "active", at, at, "recursive", "https://example.com/s").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, store.Save(context.Background(), []feed.Feed{item}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRollsBackOnError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "feeds")
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM feeds").WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	err = store.Save(context.Background(), []feed.Feed{{ID: "a"}})
	require.ErrorContains(t, err, "permission denied")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{})
	require.Error(t, err)
}
