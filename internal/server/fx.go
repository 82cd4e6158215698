// Package server provides the core application server and dependency wiring.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/feedscout/internal/aggregator"
	"github.com/JakeFAU/feedscout/internal/api"
	"github.com/JakeFAU/feedscout/internal/clock"
	"github.com/JakeFAU/feedscout/internal/config"
	"github.com/JakeFAU/feedscout/internal/discovery"
	"github.com/JakeFAU/feedscout/internal/feed"
	collyfetcher "github.com/JakeFAU/feedscout/internal/fetcher/colly"
	"github.com/JakeFAU/feedscout/internal/logging"
	memorynotify "github.com/JakeFAU/feedscout/internal/notify/memory"
	pubsubnotify "github.com/JakeFAU/feedscout/internal/notify/pubsub"
	"github.com/JakeFAU/feedscout/internal/parser"
	"github.com/JakeFAU/feedscout/internal/policy/ratelimit"
	"github.com/JakeFAU/feedscout/internal/registry"
	"github.com/JakeFAU/feedscout/internal/resolver"
	filestore "github.com/JakeFAU/feedscout/internal/storage/file"
	gcsstore "github.com/JakeFAU/feedscout/internal/storage/gcs"
	memorystore "github.com/JakeFAU/feedscout/internal/storage/memory"
	pgstore "github.com/JakeFAU/feedscout/internal/storage/postgres"
	sqlitestore "github.com/JakeFAU/feedscout/internal/storage/sqlite"
	"github.com/JakeFAU/feedscout/internal/telemetry"
)

const serviceName = "feedscout"

// App contains the application's dependencies.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	Registry   *registry.Registry
	Crawler    *discovery.Crawler
	Resolver   *resolver.Resolver
	Publishers *aggregator.Service

	apiServer *api.Server
	closers   []closer

	closeOnce sync.Once
	closeErr  error
}

type closer struct {
	name string
	fn   func() error
}

// Option customizes Build.
type Option func(*buildOptions)

type buildOptions struct {
	logger *zap.Logger
	parser feed.Parser
}

// WithLogger uses logger instead of building one from the logging config.
func WithLogger(logger *zap.Logger) Option {
	return func(o *buildOptions) {
		o.logger = logger
	}
}

// WithParser replaces the network-backed feed parser.
func WithParser(p feed.Parser) Option {
	return func(o *buildOptions) {
		o.parser = p
	}
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	var bo buildOptions
	for _, opt := range opts {
		opt(&bo)
	}

	logger := bo.logger
	if logger == nil {
		var err error
		logger, err = logging.New(logging.Config{Development: cfg.Logging.Development, Level: cfg.Logging.Level})
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
		zap.ReplaceGlobals(logger)
	}

	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("store_backend", cfg.Store.Backend),
	)

	if err := app.build(ctx, bo.parser); err != nil {
		app.closeAll()
		return nil, err
	}
	return app, nil
}

func (a *App) build(ctx context.Context, feedParser feed.Parser) error {
	tp, err := telemetry.InitTracerProvider(ctx, serviceName)
	if err != nil {
		return fmt.Errorf("tracer init failed: %w", err)
	}
	a.addCloser("tracer", func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return tp.Shutdown(shutdownCtx)
	})

	store, err := a.setupStore(ctx)
	if err != nil {
		return err
	}
	a.Registry, err = registry.New(store, registry.WithClock(clock.New()), registry.WithLogger(a.logger))
	if err != nil {
		return fmt.Errorf("registry init failed: %w", err)
	}
	if err := a.seedRegistry(ctx); err != nil {
		return err
	}

	if feedParser == nil {
		feedParser, err = a.setupParser()
		if err != nil {
			return err
		}
	}

	notifier, err := a.setupNotifier(ctx)
	if err != nil {
		return err
	}

	a.Crawler, err = discovery.New(feedParser, a.Registry,
		discovery.WithNotifier(notifier, a.cfg.Notify.PubSub.TopicID),
		discovery.WithMaxDepthLimit(a.cfg.Discovery.MaxDepthLimit),
		discovery.WithLogger(a.logger),
	)
	if err != nil {
		return fmt.Errorf("crawler init failed: %w", err)
	}
	a.Resolver, err = resolver.New(a.Registry, feedParser, a.logger)
	if err != nil {
		return fmt.Errorf("resolver init failed: %w", err)
	}
	a.Publishers, err = aggregator.NewService(a.Registry, feedParser, a.logger)
	if err != nil {
		return fmt.Errorf("aggregator init failed: %w", err)
	}

	priority, err := feed.ParsePriority(a.cfg.Discovery.DefaultPriority)
	if err != nil {
		return fmt.Errorf("discovery.default_priority: %w", err)
	}
	a.apiServer, err = api.NewServer(api.Deps{
		Discoverer: a.Crawler,
		Registry:   a.Registry,
		Resolver:   a.Resolver,
		Publishers: a.Publishers,
		Ready:      a.ready,
	}, api.Config{
		DefaultDepth:     a.cfg.Discovery.DefaultDepth,
		RecursiveDefault: a.cfg.Discovery.RecursiveDefault,
		DefaultPriority:  priority,
		RequestTimeout:   a.cfg.Server.RequestTimeout,
		DiscoverTimeout:  a.cfg.Discovery.RequestTimeout,
	}, a.logger.Named("api"))
	if err != nil {
		return fmt.Errorf("api init failed: %w", err)
	}
	return nil
}

func (a *App) setupStore(ctx context.Context) (feed.Store, error) {
	sc := a.cfg.Store
	switch sc.Backend {
	case config.BackendFile:
		store, err := filestore.New(filestore.Config{Path: sc.File.Path})
		if err != nil {
			return nil, fmt.Errorf("file store init failed: %w", err)
		}
		a.logger.Info("using file registry store", zap.String("path", store.Path()))
		return store, nil
	case config.BackendSQLite:
		store, err := sqlitestore.Open(ctx, sqlitestore.Config{Path: sc.SQLite.Path})
		if err != nil {
			return nil, fmt.Errorf("sqlite store init failed: %w", err)
		}
		a.addCloser("sqlite", store.Close)
		a.logger.Info("using sqlite registry store", zap.String("path", sc.SQLite.Path))
		return store, nil
	case config.BackendPostgres:
		store, err := pgstore.New(ctx, pgstore.Config{
			DSN:             sc.Postgres.DSN,
			Table:           sc.Postgres.Table,
			MaxConns:        sc.Postgres.MaxConns,
			MinConns:        sc.Postgres.MinConns,
			MaxConnLifetime: sc.Postgres.MaxConnLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("postgres store init failed: %w", err)
		}
		a.addCloser("postgres", func() error {
			store.Close()
			return nil
		})
		a.logger.Info("using postgres registry store", zap.String("table", sc.Postgres.Table))
		return store, nil
	case config.BackendGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.addCloser("gcs", client.Close)
		store, err := gcsstore.New(client, gcsstore.Config{Bucket: sc.GCS.Bucket, Object: sc.GCS.Object})
		if err != nil {
			return nil, fmt.Errorf("gcs store init failed: %w", err)
		}
		a.logger.Info("using gcs registry store", zap.String("uri", store.URI()))
		return store, nil
	default:
		a.logger.Warn("using in-memory registry store; feeds are lost on exit")
		return memorystore.NewFeedStore(), nil
	}
}

// seedRegistry registers configured feeds that are not already present.
func (a *App) seedRegistry(ctx context.Context) error {
	for _, seed := range a.cfg.Seeds {
		added, err := a.Registry.Add(ctx, seed.Feed())
		switch {
		case errors.Is(err, registry.ErrDuplicate):
			a.logger.Debug("seed already registered", zap.String("feed_url", seed.URL))
		case err != nil:
			return fmt.Errorf("seed %s: %w", seed.URL, err)
		default:
			a.logger.Info("seed registered", zap.String("feed_id", added.ID), zap.String("feed_url", added.OriginalURL))
		}
	}
	return nil
}

func (a *App) setupParser() (feed.Parser, error) {
	fc := a.cfg.Fetch
	limiter := ratelimit.New(ratelimit.Config{PerHostRPS: fc.RatePerHost, Burst: fc.Burst})
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:     fc.UserAgent,
		RespectRobots: fc.RespectRobots,
		Timeout:       fc.Timeout,
		MaxBodyBytes:  fc.MaxBodyBytes,
	}, collyfetcher.WithLimiter(limiter))
	a.logger.Info("using colly feed fetcher",
		zap.String("user_agent", fc.UserAgent),
		zap.Bool("respect_robots", fc.RespectRobots),
		zap.Float64("rate_per_host", fc.RatePerHost),
	)
	p, err := parser.New(fetcher, a.logger)
	if err != nil {
		return nil, fmt.Errorf("parser init failed: %w", err)
	}
	return p, nil
}

func (a *App) setupNotifier(ctx context.Context) (feed.Notifier, error) {
	ps := a.cfg.Notify.PubSub
	if !ps.Enabled() {
		a.logger.Warn("no Pub/Sub topic configured, using in-memory notifier", zap.Int("retained_messages", memorynotify.DefaultLimit))
		return memorynotify.New(), nil
	}
	n, err := pubsubnotify.New(ctx, pubsubnotify.Config{ProjectID: ps.ProjectID, TopicID: ps.TopicID})
	if err != nil {
		return nil, fmt.Errorf("pubsub notifier init failed: %w", err)
	}
	a.addCloser("pubsub", n.Close)
	a.logger.Info("Pub/Sub notifier initialized",
		zap.String("project", ps.ProjectID),
		zap.String("topic", ps.TopicID),
	)
	return n, nil
}

func (a *App) ready(ctx context.Context) error {
	if _, err := a.Registry.Snapshot(ctx); err != nil {
		return fmt.Errorf("registry unavailable: %w", err)
	}
	return nil
}

// Handler exposes the HTTP API.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Run starts the HTTP server and blocks until the context is canceled or a
// termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	closeErr := a.Close()

	select {
	case err := <-serveErr:
		return fmt.Errorf("serve http: %w", err)
	default:
		return closeErr
	}
}

// Close releases every backend opened by Build, in reverse order. It is safe
// to call more than once.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		a.closeErr = a.closeAll()
		a.logger.Info("shutdown complete")
		if syncErr := a.logger.Sync(); syncErr != nil {
			a.logger.Debug("logger sync failed", zap.Error(syncErr))
		}
	})
	return a.closeErr
}

func (a *App) addCloser(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

func (a *App) closeAll() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.logger.Warn("close failed", zap.String("component", c.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
