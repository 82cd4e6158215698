// Package discovery crawls podroll graphs breadth-first starting from a seed
// feed and optionally commits newly found feeds to the registry.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/feedscout/internal/clock"
	"github.com/JakeFAU/feedscout/internal/feed"
	"github.com/JakeFAU/feedscout/internal/registry"
	"github.com/JakeFAU/feedscout/internal/telemetry"
)

// ErrInvalidSeed is returned when the seed URL is not an absolute http(s) URL.
var ErrInvalidSeed = errors.New("invalid seed url")

// DefaultMaxDepthLimit caps the requested depth when no limit is configured.
const DefaultMaxDepthLimit = 5

// MediumPublisher is the podcast:medium value that marks a publisher feed.
const MediumPublisher = "publisher"

// Registry is the subset of the feed registry the crawler needs.
type Registry interface {
	Snapshot(ctx context.Context) (map[string]struct{}, error)
	Add(ctx context.Context, item feed.Feed) (feed.Feed, error)
}

// Options controls one crawl.
type Options struct {
	Recursive       bool
	MaxDepth        int
	AutoAdd         bool
	DefaultPriority feed.Priority
}

// Record describes one distinct feed visited during a crawl.
type Record struct {
	URL            string      `json:"url"`
	Title          string      `json:"title"`
	Artist         string      `json:"artist"`
	HasAlbum       bool        `json:"hasAlbum"`
	TrackCount     int         `json:"trackCount"`
	PodrollCount   int         `json:"podrollCount"`
	AlreadyExists  bool        `json:"alreadyExists"`
	Source         feed.Source `json:"source"`
	DiscoveredFrom string      `json:"discoveredFrom"`
	Error          string      `json:"error,omitempty"`
	Depth          int         `json:"depth"`
	FeedGUID       string      `json:"feedGuid,omitempty"`
	Medium         string      `json:"medium,omitempty"`
}

// IsNew reports whether the record is eligible for auto-add.
func (r Record) IsNew() bool {
	return r.Error == "" && r.HasAlbum && !r.AlreadyExists
}

// Stats summarizes a crawl.
type Stats struct {
	Total    int `json:"total"`
	New      int `json:"new"`
	Existing int `json:"existing"`
	Errors   int `json:"errors"`
	Added    int `json:"added"`
}

// Report is the result of one crawl.
type Report struct {
	RunID     string        `json:"runId"`
	Seed      string        `json:"seed"`
	Records   []Record      `json:"discovered"`
	Stats     Stats         `json:"stats"`
	Added     []string      `json:"added"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
}

// FeedsAddedEvent is published after a crawl commits new feeds.
type FeedsAddedEvent struct {
	RunID   string    `json:"runId"`
	Seed    string    `json:"seed"`
	FeedIDs []string  `json:"feedIds"`
	URLs    []string  `json:"urls"`
	At      time.Time `json:"at"`
}

// Crawler runs discovery crawls. Each Discover call is one sequential task;
// callers may run several crawls concurrently.
type Crawler struct {
	parser        feed.Parser
	registry      Registry
	notifier      feed.Notifier
	topic         string
	clock         feed.Clock
	logger        *zap.Logger
	tracer        trace.Tracer
	maxDepthLimit int
}

// Option customizes a Crawler.
type Option func(*Crawler)

// WithNotifier publishes a FeedsAddedEvent to topic after auto-add commits feeds.
func WithNotifier(n feed.Notifier, topic string) Option {
	return func(c *Crawler) {
		c.notifier = n
		c.topic = topic
	}
}

// WithClock overrides the time source.
func WithClock(clk feed.Clock) Option {
	return func(c *Crawler) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Crawler) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTracer overrides the tracer used for crawl and parse spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Crawler) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

// WithMaxDepthLimit caps the depth callers may request.
func WithMaxDepthLimit(limit int) Option {
	return func(c *Crawler) {
		if limit >= 0 {
			c.maxDepthLimit = limit
		}
	}
}

// New constructs a Crawler.
func New(parser feed.Parser, reg Registry, opts ...Option) (*Crawler, error) {
	if parser == nil {
		return nil, errors.New("discovery: parser is required")
	}
	if reg == nil {
		return nil, errors.New("discovery: registry is required")
	}
	c := &Crawler{
		parser:        parser,
		registry:      reg,
		clock:         clock.New(),
		logger:        zap.NewNop(),
		tracer:        telemetry.Tracer(),
		maxDepthLimit: DefaultMaxDepthLimit,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("discovery")
	return c, nil
}

// MaxDepthLimit returns the configured depth cap.
func (c *Crawler) MaxDepthLimit() int {
	return c.maxDepthLimit
}

type queueItem struct {
	url            string
	depth          int
	discoveredFrom string
}

// Discover crawls the podroll graph reachable from seedURL. Per-feed failures
// are reported in the records and never abort the crawl. The only fatal input
// error is a malformed seed. If ctx is cancelled mid-crawl the partial report
// is returned together with the context error and nothing is committed.
func (c *Crawler) Discover(ctx context.Context, seedURL string, opts Options) (Report, error) {
	ctx, span := c.tracer.Start(ctx, "discovery.Discover", trace.WithAttributes(
		attribute.String("seed_url", seedURL),
		attribute.Bool("recursive", opts.Recursive),
		attribute.Bool("auto_add", opts.AutoAdd),
	))
	defer span.End()

	report, err := c.discover(ctx, seedURL, opts)
	span.SetAttributes(
		attribute.String("run_id", report.RunID),
		attribute.Int("records", len(report.Records)),
		attribute.Int("added", report.Stats.Added),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return report, err
}

func (c *Crawler) discover(ctx context.Context, seedURL string, opts Options) (Report, error) {
	if _, err := feed.ValidateURL(seedURL); err != nil {
		return Report{}, fmt.Errorf("%w: %v", ErrInvalidSeed, err)
	}
	maxDepth := c.clampDepth(opts.MaxDepth)

	runID, err := uuid.NewV7()
	if err != nil {
		return Report{}, fmt.Errorf("generate run id: %w", err)
	}
	report := Report{
		RunID:     runID.String(),
		Seed:      seedURL,
		Records:   []Record{},
		Added:     []string{},
		StartedAt: c.clock.Now(),
	}
	logger := c.logger.With(zap.String("run_id", report.RunID), zap.String("seed_url", seedURL))
	logger.Info("discovery started",
		zap.Bool("recursive", opts.Recursive),
		zap.Int("max_depth", maxDepth),
		zap.Bool("auto_add", opts.AutoAdd),
	)

	existing, err := c.registry.Snapshot(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("snapshot registry: %w", err)
	}

	visited := make(map[string]struct{})
	queue := []queueItem{{url: seedURL, depth: 0, discoveredFrom: seedURL}}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			c.finish(&report, logger)
			return report, fmt.Errorf("discovery interrupted: %w", err)
		}
		item := queue[0]
		queue = queue[1:]

		normalized := feed.Normalize(item.url)
		if _, seen := visited[normalized]; seen {
			continue
		}
		visited[normalized] = struct{}{}

		record, album := c.visit(ctx, item, existing, logger)
		report.Records = append(report.Records, record)
		tally(&report.Stats, record)

		if album == nil || !opts.Recursive || item.depth >= maxDepth {
			continue
		}
		from := item.discoveredFrom
		if item.depth == 0 {
			from = seedURL
		}
		for _, entry := range album.Podroll {
			if entry.URL == "" {
				continue
			}
			queue = append(queue, queueItem{url: entry.URL, depth: item.depth + 1, discoveredFrom: from})
		}
	}

	// A cancellation during the final parse leaves the queue empty.
	if err := ctx.Err(); err != nil {
		c.finish(&report, logger)
		return report, fmt.Errorf("discovery interrupted: %w", err)
	}

	if opts.AutoAdd {
		c.commit(ctx, &report, opts.DefaultPriority, logger)
	}
	c.finish(&report, logger)
	return report, nil
}

// parse wraps one parser call in a span.
func (c *Crawler) parse(ctx context.Context, item queueItem) (*feed.Album, error) {
	ctx, span := c.tracer.Start(ctx, "discovery.parse", trace.WithAttributes(
		attribute.String("feed_url", item.url),
		attribute.Int("depth", item.depth),
	))
	defer span.End()

	album, err := c.parser.ParseAlbumFeed(ctx, item.url)
	if err == nil && album == nil {
		err = errors.New("no album data")
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("podroll_count", len(album.Podroll)))
	return album, nil
}

func (c *Crawler) clampDepth(depth int) int {
	if depth < 0 {
		return 0
	}
	if depth > c.maxDepthLimit {
		return c.maxDepthLimit
	}
	return depth
}

// visit parses one queued feed and builds its record. The album is returned
// only on success so the caller can follow its podroll.
func (c *Crawler) visit(
	ctx context.Context,
	item queueItem,
	existing map[string]struct{},
	logger *zap.Logger,
) (Record, *feed.Album) {
	record := Record{
		URL:            item.url,
		Source:         sourceForDepth(item.depth),
		DiscoveredFrom: item.discoveredFrom,
		Depth:          item.depth,
	}

	album, err := c.parse(ctx, item)
	if err != nil {
		record.Error = err.Error()
		logger.Warn("feed parse failed",
			zap.String("feed_url", item.url),
			zap.Int("depth", item.depth),
			zap.Error(err),
		)
		return record, nil
	}

	record.Title = album.Title
	record.Artist = album.Artist
	record.HasAlbum = true
	record.TrackCount = len(album.Tracks)
	record.PodrollCount = len(album.Podroll)
	record.FeedGUID = album.FeedGUID
	record.Medium = album.Medium
	_, record.AlreadyExists = existing[feed.Normalize(item.url)]
	logger.Debug("feed visited",
		zap.String("feed_url", item.url),
		zap.Int("depth", item.depth),
		zap.Int("podroll", record.PodrollCount),
		zap.Bool("already_exists", record.AlreadyExists),
	)
	return record, album
}

// sourceForDepth classifies records purely by depth: depth 1 is a direct
// podroll hit and every other depth, the seed included, counts as recursive.
func sourceForDepth(depth int) feed.Source {
	if depth == 1 {
		return feed.SourcePodroll
	}
	return feed.SourceRecursive
}

func tally(stats *Stats, record Record) {
	stats.Total++
	switch {
	case record.Error != "":
		stats.Errors++
		telemetry.ObserveDiscoveryRecord("error")
	case record.AlreadyExists:
		stats.Existing++
		telemetry.ObserveDiscoveryRecord("existing")
	default:
		stats.New++
		telemetry.ObserveDiscoveryRecord("new")
	}
}

// commit adds every new record to the registry. Each Add is independent; a
// feed registered concurrently by another crawl is skipped.
func (c *Crawler) commit(ctx context.Context, report *Report, priority feed.Priority, logger *zap.Logger) {
	var ids []string
	for _, record := range report.Records {
		if !record.IsNew() {
			continue
		}
		kind := feed.KindAlbum
		if record.Medium == MediumPublisher {
			kind = feed.KindPublisher
		}
		added, err := c.registry.Add(ctx, feed.Feed{
			OriginalURL:    record.URL,
			Kind:           kind,
			Title:          record.Title,
			Priority:       priority,
			Source:         record.Source,
			DiscoveredFrom: record.DiscoveredFrom,
		})
		if err != nil {
			if errors.Is(err, registry.ErrDuplicate) {
				logger.Info("feed registered concurrently", zap.String("feed_url", record.URL))
			} else {
				logger.Error("auto-add failed", zap.String("feed_url", record.URL), zap.Error(err))
			}
			continue
		}
		telemetry.ObserveFeedAdded(string(added.Source))
		report.Added = append(report.Added, added.OriginalURL)
		ids = append(ids, added.ID)
	}
	report.Stats.Added = len(report.Added)

	if len(ids) == 0 || c.notifier == nil {
		return
	}
	event := FeedsAddedEvent{
		RunID:   report.RunID,
		Seed:    report.Seed,
		FeedIDs: ids,
		URLs:    report.Added,
		At:      c.clock.Now(),
	}
	msgID, err := c.notifier.Publish(ctx, c.topic, event)
	if err != nil {
		logger.Warn("feeds-added notification failed", zap.Error(err))
		return
	}
	logger.Debug("feeds-added notification published", zap.String("message_id", msgID))
}

func (c *Crawler) finish(report *Report, logger *zap.Logger) {
	report.Duration = c.clock.Now().Sub(report.StartedAt)
	telemetry.ObserveDiscoveryRun(report.Duration)
	logger.Info("discovery finished",
		zap.Int("total", report.Stats.Total),
		zap.Int("new", report.Stats.New),
		zap.Int("existing", report.Stats.Existing),
		zap.Int("errors", report.Stats.Errors),
		zap.Int("added", report.Stats.Added),
		zap.Duration("duration", report.Duration),
	)
}
