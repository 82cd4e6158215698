// Package registry maintains the deduplicated, classified collection of known
// feeds. The collection is loaded lazily from a feed.Store, cached in memory,
// and written back in full on every mutation.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/feedscout/internal/clock"
	"github.com/JakeFAU/feedscout/internal/feed"
	"github.com/JakeFAU/feedscout/internal/telemetry"
)

var (
	// ErrDuplicate is returned when a feed with the same normalized URL is already registered.
	ErrDuplicate = errors.New("feed already registered")
	// ErrNotFound is returned when no feed has the requested id.
	ErrNotFound = errors.New("feed not found")
)

// Filter narrows GetAll. Zero-valued fields match everything.
type Filter struct {
	Status   feed.Status
	Kind     feed.Kind
	Priority feed.Priority
}

func (f Filter) match(item feed.Feed) bool {
	if f.Status != "" && item.Status != f.Status {
		return false
	}
	if f.Kind != "" && item.Kind != f.Kind {
		return false
	}
	if f.Priority != "" && item.Priority != f.Priority {
		return false
	}
	return true
}

// Patch carries the mutable fields of a feed. Nil fields are left unchanged.
type Patch struct {
	Title    *string
	Kind     *feed.Kind
	Priority *feed.Priority
	Status   *feed.Status
}

// Registry is safe for concurrent use; all callers serialize on one lock.
type Registry struct {
	store  feed.Store
	clock  feed.Clock
	logger *zap.Logger

	mu     sync.RWMutex
	loaded bool
	feeds  []feed.Feed
}

// Option customizes a Registry.
type Option func(*Registry)

// WithClock overrides the time source used for AddedAt and LastUpdated.
func WithClock(c feed.Clock) Option {
	return func(r *Registry) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New constructs a Registry backed by store.
func New(store feed.Store, opts ...Option) (*Registry, error) {
	if store == nil {
		return nil, errors.New("registry: store is required")
	}
	r := &Registry{
		store:  store,
		clock:  clock.New(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Named("registry")
	return r, nil
}

// ensureLoaded must be called with the write lock held.
func (r *Registry) ensureLoaded(ctx context.Context) error {
	if r.loaded {
		return nil
	}
	feeds, err := r.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load feeds: %w", err)
	}
	r.feeds = feeds
	r.loaded = true
	r.logger.Debug("registry loaded", zap.Int("feeds", len(feeds)))
	return nil
}

// read runs fn under the read lock once the collection is loaded.
func (r *Registry) read(ctx context.Context, fn func([]feed.Feed)) error {
	r.mu.RLock()
	if r.loaded {
		defer r.mu.RUnlock()
		fn(r.feeds)
		return nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureLoaded(ctx); err != nil {
		return err
	}
	fn(r.feeds)
	return nil
}

// commit persists next and swaps it into the cache only when the write succeeds.
// Must be called with the write lock held.
func (r *Registry) commit(ctx context.Context, op string, next []feed.Feed) error {
	if err := r.store.Save(ctx, next); err != nil {
		telemetry.ObserveRegistryWrite(op, "error")
		r.logger.Error("registry write failed", zap.String("op", op), zap.Error(err))
		return fmt.Errorf("save feeds: %w", err)
	}
	telemetry.ObserveRegistryWrite(op, "ok")
	r.feeds = next
	return nil
}

// GetAll returns the feeds matching filter in stored order.
func (r *Registry) GetAll(ctx context.Context, filter Filter) ([]feed.Feed, error) {
	var out []feed.Feed
	err := r.read(ctx, func(feeds []feed.Feed) {
		out = make([]feed.Feed, 0, len(feeds))
		for _, item := range feeds {
			if filter.match(item) {
				out = append(out, item)
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns the feed with the given id.
func (r *Registry) Get(ctx context.Context, id string) (feed.Feed, error) {
	var (
		found feed.Feed
		ok    bool
	)
	err := r.read(ctx, func(feeds []feed.Feed) {
		if idx := indexByID(feeds, id); idx >= 0 {
			found, ok = feeds[idx], true
		}
	})
	if err != nil {
		return feed.Feed{}, err
	}
	if !ok {
		return feed.Feed{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return found, nil
}

// FindByURL returns the feed whose URL normalizes to the same identity as rawURL.
func (r *Registry) FindByURL(ctx context.Context, rawURL string) (feed.Feed, error) {
	var (
		found feed.Feed
		ok    bool
	)
	err := r.read(ctx, func(feeds []feed.Feed) {
		if idx := indexByURL(feeds, feed.Normalize(rawURL)); idx >= 0 {
			found, ok = feeds[idx], true
		}
	})
	if err != nil {
		return feed.Feed{}, err
	}
	if !ok {
		return feed.Feed{}, fmt.Errorf("%w: %s", ErrNotFound, rawURL)
	}
	return found, nil
}

// Snapshot returns the set of normalized URLs currently registered. The set is
// a copy; later mutations do not affect it.
func (r *Registry) Snapshot(ctx context.Context) (map[string]struct{}, error) {
	var set map[string]struct{}
	err := r.read(ctx, func(feeds []feed.Feed) {
		set = make(map[string]struct{}, len(feeds))
		for _, item := range feeds {
			set[feed.Normalize(item.OriginalURL)] = struct{}{}
		}
	})
	if err != nil {
		return nil, err
	}
	return set, nil
}

// Add registers item. The id is derived from the URL when empty, enum fields
// take their defaults when empty, and AddedAt and LastUpdated are set to now.
func (r *Registry) Add(ctx context.Context, item feed.Feed) (feed.Feed, error) {
	if _, err := feed.ValidateURL(item.OriginalURL); err != nil {
		return feed.Feed{}, err
	}
	explicitID := strings.TrimSpace(item.ID) != ""
	item, err := withDefaults(item)
	if err != nil {
		return feed.Feed{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureLoaded(ctx); err != nil {
		return feed.Feed{}, err
	}
	if idx := indexByURL(r.feeds, feed.Normalize(item.OriginalURL)); idx >= 0 {
		telemetry.ObserveRegistryWrite("add", "duplicate")
		return feed.Feed{}, fmt.Errorf("%w: %s", ErrDuplicate, item.OriginalURL)
	}
	if explicitID && indexByID(r.feeds, item.ID) >= 0 {
		telemetry.ObserveRegistryWrite("add", "duplicate")
		return feed.Feed{}, fmt.Errorf("%w: id %s", ErrDuplicate, item.ID)
	}

	now := r.clock.Now()
	item.AddedAt = now
	item.LastUpdated = now

	next := make([]feed.Feed, len(r.feeds), len(r.feeds)+1)
	copy(next, r.feeds)
	next = append(next, item)
	if err := r.commit(ctx, "add", next); err != nil {
		return feed.Feed{}, err
	}
	r.logger.Info("feed added",
		zap.String("feed_id", item.ID),
		zap.String("feed_url", item.OriginalURL),
		zap.String("source", string(item.Source)),
	)
	return item, nil
}

// Update merges patch into the feed with the given id and bumps LastUpdated.
func (r *Registry) Update(ctx context.Context, id string, patch Patch) (feed.Feed, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureLoaded(ctx); err != nil {
		return feed.Feed{}, err
	}
	idx := indexByID(r.feeds, id)
	if idx < 0 {
		return feed.Feed{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	updated := r.feeds[idx]
	if patch.Title != nil {
		updated.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Kind != nil {
		kind, err := parsePatched(string(*patch.Kind), feed.ErrInvalidKind, feed.ParseKind)
		if err != nil {
			return feed.Feed{}, err
		}
		updated.Kind = kind
	}
	if patch.Priority != nil {
		priority, err := parsePatched(string(*patch.Priority), feed.ErrInvalidPriority, feed.ParsePriority)
		if err != nil {
			return feed.Feed{}, err
		}
		updated.Priority = priority
	}
	if patch.Status != nil {
		status, err := parsePatched(string(*patch.Status), feed.ErrInvalidStatus, feed.ParseStatus)
		if err != nil {
			return feed.Feed{}, err
		}
		updated.Status = status
	}
	updated.LastUpdated = r.clock.Now()

	next := make([]feed.Feed, len(r.feeds))
	copy(next, r.feeds)
	next[idx] = updated
	if err := r.commit(ctx, "update", next); err != nil {
		return feed.Feed{}, err
	}
	return updated, nil
}

// Remove deletes the feed with the given id.
func (r *Registry) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureLoaded(ctx); err != nil {
		return err
	}
	idx := indexByID(r.feeds, id)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	next := make([]feed.Feed, 0, len(r.feeds)-1)
	next = append(next, r.feeds[:idx]...)
	next = append(next, r.feeds[idx+1:]...)
	if err := r.commit(ctx, "remove", next); err != nil {
		return err
	}
	r.logger.Info("feed removed", zap.String("feed_id", id))
	return nil
}

// Reload discards the cache and reads the store again.
func (r *Registry) Reload(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaded = false
	r.feeds = nil
	return r.ensureLoaded(ctx)
}

// parsePatched rejects empty patch values. The parse functions map empty input
// to a default, which would silently reset the field.
func parsePatched[T any](raw string, invalid error, parse func(string) (T, error)) (T, error) {
	if strings.TrimSpace(raw) == "" {
		var zero T
		return zero, fmt.Errorf("%w: value must not be empty", invalid)
	}
	return parse(raw)
}

func withDefaults(item feed.Feed) (feed.Feed, error) {
	var err error
	item.OriginalURL = strings.TrimSpace(item.OriginalURL)
	item.Title = strings.TrimSpace(item.Title)
	if item.ID == "" {
		item.ID = feed.DeriveID(item.OriginalURL)
	}
	if item.Kind, err = feed.ParseKind(string(item.Kind)); err != nil {
		return feed.Feed{}, err
	}
	if item.Priority, err = feed.ParsePriority(string(item.Priority)); err != nil {
		return feed.Feed{}, err
	}
	if item.Status, err = feed.ParseStatus(string(item.Status)); err != nil {
		return feed.Feed{}, err
	}
	if item.Source, err = feed.ParseSource(string(item.Source)); err != nil {
		return feed.Feed{}, err
	}
	return item, nil
}

func indexByID(feeds []feed.Feed, id string) int {
	for i, item := range feeds {
		if item.ID == id {
			return i
		}
	}
	return -1
}

func indexByURL(feeds []feed.Feed, normalized string) int {
	for i, item := range feeds {
		if feed.Normalize(item.OriginalURL) == normalized {
			return i
		}
	}
	return -1
}
