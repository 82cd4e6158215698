package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/feedscout/internal/aggregator"
	"github.com/JakeFAU/feedscout/internal/discovery"
	"github.com/JakeFAU/feedscout/internal/feed"
	"github.com/JakeFAU/feedscout/internal/registry"
	"github.com/JakeFAU/feedscout/internal/resolver"
	"github.com/JakeFAU/feedscout/internal/telemetry"
)

// Discoverer runs podroll crawls.
type Discoverer interface {
	Discover(ctx context.Context, seedURL string, opts discovery.Options) (discovery.Report, error)
}

// FeedRegistry is the registry surface exposed over HTTP.
type FeedRegistry interface {
	GetAll(ctx context.Context, filter registry.Filter) ([]feed.Feed, error)
	Get(ctx context.Context, id string) (feed.Feed, error)
	Add(ctx context.Context, item feed.Feed) (feed.Feed, error)
	Update(ctx context.Context, id string, patch registry.Patch) (feed.Feed, error)
	Remove(ctx context.Context, id string) error
}

// Resolver maps external identifiers to feeds.
type Resolver interface {
	Resolve(ctx context.Context, externalID string) (resolver.Resolution, error)
	ResolvePublisher(ctx context.Context, externalID string) (resolver.Resolution, error)
	Album(ctx context.Context, res resolver.Resolution) (*feed.Album, error)
}

// PublisherDirectory serves aggregated publisher views.
type PublisherDirectory interface {
	FromRegistry(ctx context.Context) ([]aggregator.Publisher, error)
	Publisher(ctx context.Context, guid string) (aggregator.Publisher, error)
}

// Deps are the collaborators the handlers call into.
type Deps struct {
	Discoverer Discoverer
	Registry   FeedRegistry
	Resolver   Resolver
	Publishers PublisherDirectory
	// Ready is consulted by /readyz. Nil means always ready.
	Ready func(ctx context.Context) error
}

// Config carries request defaults and middleware settings.
type Config struct {
	DefaultDepth     int
	RecursiveDefault bool
	DefaultPriority  feed.Priority
	RequestTimeout   time.Duration
	// DiscoverTimeout bounds discovery requests separately from RequestTimeout
	// because a crawl visits many feeds. Zero disables it.
	DiscoverTimeout  time.Duration
}

// Server wires HTTP handlers to the discovery, registry and resolver services.
type Server struct {
	router chi.Router
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, cfg Config, logger *zap.Logger) (*Server, error) {
	if deps.Discoverer == nil || deps.Registry == nil || deps.Resolver == nil || deps.Publishers == nil {
		return nil, errors.New("api: discoverer, registry, resolver and publishers are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.DefaultPriority == "" {
		cfg.DefaultPriority = feed.PriorityExtended
	}
	s := &Server{deps: deps, cfg: cfg, logger: logger}

	r := chi.NewRouter()
	r.Use(telemetry.Middleware)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", telemetry.Handler())

	r.Group(func(r chi.Router) {
		if cfg.DiscoverTimeout > 0 {
			r.Use(timeoutMiddleware(cfg.DiscoverTimeout))
		}
		r.Post("/api/discover", s.discover)
		r.Post("/v1/discover", s.discover)
	})

	r.Group(func(r chi.Router) {
		r.Use(timeoutMiddleware(cfg.RequestTimeout))

		r.Get("/album/{externalId}", s.resolveAlbum)

		r.Route("/v1", func(r chi.Router) {
			r.Get("/albums/{externalId}", s.resolveAlbum)
			r.Get("/publisher/{externalId}", s.resolvePublisher)
			r.Route("/feeds", func(r chi.Router) {
				r.Get("/", s.listFeeds)
				r.Post("/", s.createFeed)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.getFeed)
					r.Patch("/", s.updateFeed)
					r.Delete("/", s.deleteFeed)
				})
			})
			r.Route("/publishers", func(r chi.Router) {
				r.Get("/", s.listPublishers)
				r.Get("/{guid}", s.getPublisher)
			})
		})
	})

	s.router = r
	return s, nil
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		if err := s.deps.Ready(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// statusForError maps sentinel errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, discovery.ErrInvalidSeed),
		errors.Is(err, feed.ErrInvalidURL),
		errors.Is(err, feed.ErrInvalidKind),
		errors.Is(err, feed.ErrInvalidPriority),
		errors.Is(err, feed.ErrInvalidStatus),
		errors.Is(err, feed.ErrInvalidSource):
		return http.StatusBadRequest
	case errors.Is(err, registry.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, registry.ErrNotFound),
		errors.Is(err, resolver.ErrNotFound),
		errors.Is(err, aggregator.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", RequestID(r.Context())),
			zap.Error(err),
		)
	}
	writeError(w, status, err.Error())
}

func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst) //nolint:wrapcheck
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
