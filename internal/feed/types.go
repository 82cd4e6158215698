// Package feed defines the core types shared across the discovery, registry,
// resolver and aggregator subsystems.
package feed

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind classifies what a registered feed represents.
type Kind string

// Feed kinds persisted in the registry.
const (
	KindAlbum     Kind = "album"
	KindPublisher Kind = "publisher"
)

// Priority governs load ordering by consumers. It has no effect on discovery.
type Priority string

// Priority values.
const (
	PriorityCore     Priority = "core"
	PriorityExtended Priority = "extended"
	PriorityLow      Priority = "low"
)

// Status marks whether consumers should load a feed.
type Status string

// Status values.
const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Source records how a feed entered the registry.
type Source string

// Source values.
const (
	SourceManual    Source = "manual"
	SourcePodroll   Source = "podroll"
	SourceRecursive Source = "recursive"
)

// Validation errors returned for caller input.
var (
	ErrInvalidURL      = errors.New("invalid feed url")
	ErrInvalidKind     = errors.New("invalid feed type")
	ErrInvalidPriority = errors.New("invalid feed priority")
	ErrInvalidStatus   = errors.New("invalid feed status")
	ErrInvalidSource   = errors.New("invalid feed source")
)

// Feed is a registered feed.
type Feed struct {
	ID             string    `json:"id"`
	OriginalURL    string    `json:"originalUrl"`
	Kind           Kind      `json:"type"`
	Title          string    `json:"title"`
	Priority       Priority  `json:"priority"`
	Status         Status    `json:"status"`
	AddedAt        time.Time `json:"addedAt"`
	LastUpdated    time.Time `json:"lastUpdated"`
	Source         Source    `json:"source"`
	DiscoveredFrom string    `json:"discoveredFrom,omitempty"`
}

// Album is the structured data a parser extracts from an album (or publisher) feed.
type Album struct {
	Title       string         `json:"title"`
	Artist      string         `json:"artist"`
	Description string         `json:"description,omitempty"`
	Link        string         `json:"link,omitempty"`
	ImageURL    string         `json:"imageUrl,omitempty"`
	FeedGUID    string         `json:"feedGuid,omitempty"`
	Medium      string         `json:"medium,omitempty"`
	Tracks      []Track        `json:"tracks"`
	Podroll     []PodrollEntry `json:"podroll,omitempty"`
	Publisher   *PublisherRef  `json:"publisher,omitempty"`
	Funding     []Funding      `json:"funding,omitempty"`
}

// Track is one playable item of an album.
type Track struct {
	Title       string     `json:"title"`
	GUID        string     `json:"guid,omitempty"`
	AudioURL    string     `json:"audioUrl,omitempty"`
	AudioType   string     `json:"audioType,omitempty"`
	Duration    string     `json:"duration,omitempty"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
}

// PodrollEntry is one recommended feed listed in a podroll.
type PodrollEntry struct {
	URL         string `json:"url"`
	FeedGUID    string `json:"feedGuid,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

// PublisherRef is the publisher remote-item declared by an album.
type PublisherRef struct {
	FeedGUID string `json:"feedGuid"`
	FeedURL  string `json:"feedUrl,omitempty"`
	Medium   string `json:"medium,omitempty"`
}

// Funding is a podcast:funding link.
type Funding struct {
	URL  string `json:"url"`
	Text string `json:"text,omitempty"`
}

// ParseKind validates a kind string. Empty input yields the album kind.
func ParseKind(raw string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(raw))) {
	case "", KindAlbum:
		return KindAlbum, nil
	case KindPublisher:
		return KindPublisher, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, raw)
	}
}

// ParsePriority validates a priority string. Empty input yields the extended priority.
func ParsePriority(raw string) (Priority, error) {
	switch Priority(strings.ToLower(strings.TrimSpace(raw))) {
	case "", PriorityExtended:
		return PriorityExtended, nil
	case PriorityCore:
		return PriorityCore, nil
	case PriorityLow:
		return PriorityLow, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPriority, raw)
	}
}

// ParseStatus validates a status string. Empty input yields the active status.
func ParseStatus(raw string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(raw))) {
	case "", StatusActive:
		return StatusActive, nil
	case StatusInactive:
		return StatusInactive, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
}

// ParseSource validates a source string. Empty input yields the manual source.
func ParseSource(raw string) (Source, error) {
	switch Source(strings.ToLower(strings.TrimSpace(raw))) {
	case "", SourceManual:
		return SourceManual, nil
	case SourcePodroll:
		return SourcePodroll, nil
	case SourceRecursive:
		return SourceRecursive, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSource, raw)
	}
}
