package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/feedscout/internal/aggregator"
	"github.com/JakeFAU/feedscout/internal/discovery"
	"github.com/JakeFAU/feedscout/internal/feed"
	"github.com/JakeFAU/feedscout/internal/feed/feedtest"
	"github.com/JakeFAU/feedscout/internal/registry"
	"github.com/JakeFAU/feedscout/internal/resolver"
	"github.com/JakeFAU/feedscout/internal/storage/memory"
)

const (
	seedURL  = "https://example.com/seed.xml"
	childURL = "https://example.com/child.xml"
	labelURL = "https://example.com/label.xml"
)

type harness struct {
	server   *Server
	registry *registry.Registry
	parser   *feedtest.StubParser
}

func newHarness(t *testing.T, cfg Config, initial ...feed.Feed) *harness {
	t.Helper()
	return newHarnessWithParser(t, cfg, nil, initial...)
}

// newHarnessWithParser lets a test wrap the fixture parser used by the crawler.
func newHarnessWithParser(t *testing.T, cfg Config, wrap func(feed.Parser) feed.Parser, initial ...feed.Feed) *harness {
	t.Helper()

	parser := &feedtest.StubParser{Albums: map[string]*feed.Album{
		seedURL: {
			Title:     "Night Drive - Deluxe",
			Artist:    "The Examples",
			Tracks:    []feed.Track{{Title: "One"}},
			Podroll:   []feed.PodrollEntry{{URL: childURL}},
			Publisher: &feed.PublisherRef{FeedGUID: "label-guid", FeedURL: labelURL},
		},
		childURL: {Title: "Child", Tracks: []feed.Track{{Title: "Two"}}},
		labelURL: {Title: "Example Label", FeedGUID: "label-guid", Medium: "publisher"},
	}}

	reg, err := registry.New(memory.NewFeedStore(initial...))
	require.NoError(t, err)
	var crawlParser feed.Parser = parser
	if wrap != nil {
		crawlParser = wrap(parser)
	}
	crawler, err := discovery.New(crawlParser, reg)
	require.NoError(t, err)
	res, err := resolver.New(reg, parser, nil)
	require.NoError(t, err)
	agg, err := aggregator.NewService(reg, parser, nil)
	require.NoError(t, err)

	if cfg.DefaultDepth == 0 {
		cfg.DefaultDepth = 2
		cfg.RecursiveDefault = true
	}
	srv, err := NewServer(Deps{Discoverer: crawler, Registry: reg, Resolver: res, Publishers: agg}, cfg, zap.NewNop())
	require.NoError(t, err)
	return &harness{server: srv, registry: reg, parser: parser}
}

func (h *harness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestNewServerRequiresDeps(t *testing.T) {
	t.Parallel()

	_, err := NewServer(Deps{}, Config{}, nil)
	assert.Error(t, err)
}

func TestHealthAndReadiness(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	rec := h.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))

	rec = h.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	h.server.deps.Ready = func(context.Context) error { return errors.New("store unreachable") }
	rec = h.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.do(t, http.MethodGet, "/healthz", nil)
	rec := h.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestRequestIDIsPropagated(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(HeaderRequestID))
}

func TestDiscoverValidation(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})

	rec := h.do(t, http.MethodPost, "/v1/discover", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "url is required")

	rec = h.do(t, http.MethodPost, "/v1/discover", map[string]any{"url": "not a url"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/v1/discover", map[string]any{"url": seedURL, "priority": "urgent"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/discover", bytes.NewBufferString("{"))
	rr := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, h.parser.Calls())
}

func TestDiscoverAutoAdd(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	rec := h.do(t, http.MethodPost, "/api/discover", map[string]any{
		"url":      seedURL,
		"autoAdd":  true,
		"priority": "core",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	report := decode[discovery.Report](t, rec)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 2, report.Stats.Total)
	assert.Equal(t, 2, report.Stats.Added)
	assert.Len(t, report.Added, 2)

	feeds, err := h.registry.GetAll(context.Background(), registry.Filter{})
	require.NoError(t, err)
	require.Len(t, feeds, 2)
	assert.Equal(t, feed.PriorityCore, feeds[0].Priority)
}

func TestDiscoverNonRecursiveOverride(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	rec := h.do(t, http.MethodPost, "/v1/discover", map[string]any{"url": seedURL, "recursive": false})
	require.Equal(t, http.StatusOK, rec.Code)
	report := decode[discovery.Report](t, rec)
	assert.Equal(t, 1, report.Stats.Total)
	assert.Equal(t, 0, report.Stats.Added)
}

// slowParser delays every parse so a crawl outlasts short request timeouts.
type slowParser struct {
	next  feed.Parser
	delay time.Duration
}

func (p slowParser) ParseAlbumFeed(ctx context.Context, url string) (*feed.Album, error) {
	select {
	case <-time.After(p.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return p.next.ParseAlbumFeed(ctx, url)
}

func TestDiscoverIgnoresRequestTimeout(t *testing.T) {
	t.Parallel()

	h := newHarnessWithParser(t, Config{RequestTimeout: 50 * time.Millisecond}, func(p feed.Parser) feed.Parser {
		return slowParser{next: p, delay: 40 * time.Millisecond}
	})

	rec := h.do(t, http.MethodPost, "/v1/discover", map[string]any{"url": seedURL, "autoAdd": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decode[discovery.Report](t, rec)
	assert.Equal(t, 2, report.Stats.Total)
	assert.Equal(t, 2, report.Stats.Added)

	feeds, err := h.registry.GetAll(context.Background(), registry.Filter{})
	require.NoError(t, err)
	assert.Len(t, feeds, 2)
}

func TestDiscoverTimeoutAppliesWhenConfigured(t *testing.T) {
	t.Parallel()

	h := newHarnessWithParser(t, Config{DiscoverTimeout: 20 * time.Millisecond}, func(p feed.Parser) feed.Parser {
		return slowParser{next: p, delay: time.Second}
	})

	rec := h.do(t, http.MethodPost, "/api/discover", map[string]any{"url": seedURL, "autoAdd": true})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestResolveAlbum(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{}, feed.Feed{
		ID: "night-drive", OriginalURL: seedURL, Kind: feed.KindAlbum,
		Priority: feed.PriorityCore, Status: feed.StatusActive, Source: feed.SourceManual,
	})

	rec := h.do(t, http.MethodGet, "/album/night-drive", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[resolutionResponse](t, rec)
	assert.Equal(t, resolver.StrategyID, body.MatchedBy)
	require.NotNil(t, body.Album)
	assert.Equal(t, "Night Drive - Deluxe", body.Album.Title)

	rec = h.do(t, http.MethodGet, "/v1/albums/night-drive", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode[resolutionResponse](t, rec)
	assert.Equal(t, resolver.StrategyID, body.MatchedBy)

	rec = h.do(t, http.MethodGet, "/album/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"not found"}`, rec.Body.String())
}

func TestResolvePublisher(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{}, feed.Feed{
		ID: "label", OriginalURL: labelURL, Kind: feed.KindPublisher,
		Priority: feed.PriorityCore, Status: feed.StatusActive, Source: feed.SourceManual,
	})

	rec := h.do(t, http.MethodGet, "/v1/publisher/label-guid", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[resolutionResponse](t, rec)
	assert.Equal(t, resolver.StrategyFeedGUID, body.MatchedBy)
	assert.Equal(t, "label", body.Feed.ID)
}

func TestFeedCRUD(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})

	rec := h.do(t, http.MethodPost, "/v1/feeds", map[string]any{"url": seedURL, "title": "Night Drive"})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[feed.Feed](t, rec)
	assert.Equal(t, "example-com-seed-xml", created.ID)
	assert.Equal(t, feed.SourceManual, created.Source)
	assert.Equal(t, feed.StatusActive, created.Status)

	rec = h.do(t, http.MethodPost, "/v1/feeds", map[string]any{"url": seedURL + "/"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = h.do(t, http.MethodPost, "/v1/feeds", map[string]any{"url": childURL, "type": "podcast"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodGet, "/v1/feeds/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodPatch, "/v1/feeds/"+created.ID, map[string]any{"status": "inactive"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, feed.StatusInactive, decode[feed.Feed](t, rec).Status)

	rec = h.do(t, http.MethodPatch, "/v1/feeds/"+created.ID, map[string]any{"priority": "urgent"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	for _, field := range []string{"type", "priority", "status"} {
		rec = h.do(t, http.MethodPatch, "/v1/feeds/"+created.ID, map[string]any{field: ""})
		assert.Equal(t, http.StatusBadRequest, rec.Code, field)
	}

	rec = h.do(t, http.MethodGet, "/v1/feeds?status=inactive", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[feedList](t, rec).Count)

	rec = h.do(t, http.MethodGet, "/v1/feeds?status=active", nil)
	assert.Equal(t, 0, decode[feedList](t, rec).Count)

	rec = h.do(t, http.MethodGet, "/v1/feeds?type=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodDelete, "/v1/feeds/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = h.do(t, http.MethodGet, "/v1/feeds/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = h.do(t, http.MethodDelete, "/v1/feeds/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPublishers(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{}, feed.Feed{
		ID: "night-drive", OriginalURL: seedURL, Kind: feed.KindAlbum,
		Priority: feed.PriorityCore, Status: feed.StatusActive, Source: feed.SourceManual,
	})

	rec := h.do(t, http.MethodGet, "/v1/publishers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[publisherList](t, rec)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, "label-guid", list.Publishers[0].FeedGUID)
	assert.Equal(t, 1, list.Publishers[0].AlbumCount)

	rec = h.do(t, http.MethodGet, "/v1/publishers/LABEL-GUID", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, "/v1/publishers/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	handler := recoverMiddleware(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestTimeoutMiddleware(t *testing.T) {
	t.Parallel()

	handler := timeoutMiddleware(10 * time.Millisecond)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatusForError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want int
	}{
		{discovery.ErrInvalidSeed, http.StatusBadRequest},
		{feed.ErrInvalidURL, http.StatusBadRequest},
		{feed.ErrInvalidStatus, http.StatusBadRequest},
		{registry.ErrDuplicate, http.StatusConflict},
		{registry.ErrNotFound, http.StatusNotFound},
		{resolver.ErrNotFound, http.StatusNotFound},
		{aggregator.ErrNotFound, http.StatusNotFound},
		{context.DeadlineExceeded, http.StatusRequestTimeout},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusForError(errors.Join(errors.New("wrapped"), tt.err)), tt.err.Error())
	}
}
