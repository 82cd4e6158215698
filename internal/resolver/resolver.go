// Package resolver maps loose external identifiers (feed ids, titles, slugs)
// to registered feeds.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/feedscout/internal/feed"
	"github.com/JakeFAU/feedscout/internal/registry"
	"github.com/JakeFAU/feedscout/internal/telemetry"
)

// ErrNotFound is returned when no feed matches an identifier.
var ErrNotFound = errors.New("not found")

// Strategy names the rule that produced a match.
type Strategy string

// Matching rules in evaluation order.
const (
	StrategyID        Strategy = "id"
	StrategyTitle     Strategy = "title"
	StrategySlug      Strategy = "slug"
	StrategyCompat    Strategy = "compat"
	StrategyBaseTitle Strategy = "base_title"
	StrategyFeedGUID  Strategy = "feed_guid"
)

// Registry is the read side of the feed registry.
type Registry interface {
	Get(ctx context.Context, id string) (feed.Feed, error)
	GetAll(ctx context.Context, filter registry.Filter) ([]feed.Feed, error)
}

// Resolution is a matched feed. Album holds the parsed data when matching
// needed a parse; it is nil after a direct id match.
type Resolution struct {
	Feed     feed.Feed   `json:"feed"`
	Album    *feed.Album `json:"album,omitempty"`
	Strategy Strategy    `json:"strategy"`
}

// Resolver scans candidates sequentially so the first match is deterministic.
type Resolver struct {
	registry Registry
	parser   feed.Parser
	logger   *zap.Logger
}

// New constructs a Resolver.
func New(reg Registry, parser feed.Parser, logger *zap.Logger) (*Resolver, error) {
	if reg == nil {
		return nil, errors.New("resolver: registry is required")
	}
	if parser == nil {
		return nil, errors.New("resolver: parser is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{registry: reg, parser: parser, logger: logger.Named("resolver")}, nil
}

// Resolve finds the album feed identified by externalID. A registered album id
// matches without any parsing. Otherwise every album feed is parsed in
// registry order and the first whose title matches wins.
func (r *Resolver) Resolve(ctx context.Context, externalID string) (Resolution, error) {
	return r.resolve(ctx, feed.KindAlbum, externalID)
}

// ResolvePublisher is Resolve over publisher feeds. Parsed candidates also
// match when their declared feedGuid equals externalID.
func (r *Resolver) ResolvePublisher(ctx context.Context, externalID string) (Resolution, error) {
	return r.resolve(ctx, feed.KindPublisher, externalID)
}

// Album returns the parsed data for res, parsing the feed only when the
// resolution did not already carry it.
func (r *Resolver) Album(ctx context.Context, res Resolution) (*feed.Album, error) {
	if res.Album != nil {
		return res.Album, nil
	}
	album, err := r.parser.ParseAlbumFeed(ctx, res.Feed.OriginalURL)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", res.Feed.OriginalURL, err)
	}
	if album == nil {
		return nil, fmt.Errorf("parse %s: no album data", res.Feed.OriginalURL)
	}
	return album, nil
}

func (r *Resolver) resolve(ctx context.Context, kind feed.Kind, externalID string) (Resolution, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return Resolution{}, fmt.Errorf("%w: empty identifier", ErrNotFound)
	}

	direct, err := r.registry.Get(ctx, externalID)
	switch {
	case err == nil && direct.Kind == kind:
		telemetry.ObserveResolve(string(kind), string(StrategyID))
		return Resolution{Feed: direct, Strategy: StrategyID}, nil
	case err != nil && !errors.Is(err, registry.ErrNotFound):
		return Resolution{}, fmt.Errorf("lookup %s: %w", externalID, err)
	}

	candidates, err := r.registry.GetAll(ctx, registry.Filter{Kind: kind})
	if err != nil {
		return Resolution{}, fmt.Errorf("list %s feeds: %w", kind, err)
	}
	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return Resolution{}, fmt.Errorf("resolve interrupted: %w", err)
		}
		album, err := r.parser.ParseAlbumFeed(ctx, candidate.OriginalURL)
		if err != nil || album == nil {
			telemetry.ObserveResolve(string(kind), "parse_error")
			r.logger.Warn("candidate parse failed",
				zap.String("feed_id", candidate.ID),
				zap.String("feed_url", candidate.OriginalURL),
				zap.Error(err),
			)
			continue
		}
		strategy, ok := match(album, externalID, kind == feed.KindPublisher)
		if !ok {
			continue
		}
		telemetry.ObserveResolve(string(kind), string(strategy))
		r.logger.Debug("identifier resolved",
			zap.String("external_id", externalID),
			zap.String("feed_id", candidate.ID),
			zap.String("strategy", string(strategy)),
		)
		return Resolution{Feed: candidate, Album: album, Strategy: strategy}, nil
	}

	telemetry.ObserveResolve(string(kind), "miss")
	return Resolution{}, fmt.Errorf("%w: %s", ErrNotFound, externalID)
}

// match applies the title rules in order and stops at the first hit.
func match(album *feed.Album, externalID string, byGUID bool) (Strategy, bool) {
	title := album.Title
	switch {
	case title != "" && strings.EqualFold(title, externalID):
		return StrategyTitle, true
	case title != "" && feed.Slugify(title) == externalID:
		return StrategySlug, true
	case title != "" && feed.CompatSlug(title) == externalID:
		return StrategyCompat, true
	case title != "" && feed.Slugify(feed.BaseTitle(title)) == externalID:
		return StrategyBaseTitle, true
	case byGUID && album.FeedGUID != "" && strings.EqualFold(album.FeedGUID, externalID):
		return StrategyFeedGUID, true
	}
	return "", false
}
