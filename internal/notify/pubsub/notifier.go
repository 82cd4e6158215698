// Package pubsub publishes registry events to Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Config identifies the Pub/Sub topic events are sent to.
type Config struct {
	ProjectID string
	TopicID   string
}

// Notifier publishes JSON payloads. The topic argument to Publish overrides
// the configured topic when non-empty.
type Notifier struct {
	client       *pubsub.Client
	defaultTopic string
	// propagator injects trace context into message attributes. Nil uses the
	// global propagator at publish time.
	propagator propagation.TextMapPropagator

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

// New creates a Pub/Sub client for cfg.ProjectID.
func New(ctx context.Context, cfg Config) (*Notifier, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, errors.New("notify.pubsub.project_id is required")
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return NewWithClient(client, cfg.TopicID), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *pubsub.Client, topic string) *Notifier {
	return &Notifier{client: client, defaultTopic: topic, topics: make(map[string]*pubsub.Topic)}
}

// Topic returns the configured default topic.
func (n *Notifier) Topic() string {
	return n.defaultTopic
}

// Publish marshals the payload to JSON and waits for the server ack.
func (n *Notifier) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if n == nil || n.client == nil {
		return "", errors.New("pubsub notifier is not configured")
	}
	if topic == "" {
		topic = n.defaultTopic
	}
	if topic == "" {
		return "", errors.New("pubsub topic is required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	msg := &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"content_type": "application/json"},
	}
	n.textMapPropagator().Inject(ctx, &attributeCarrier{attrs: msg.Attributes})
	id, err := n.topic(topic).Publish(ctx, msg).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

// topic returns a cached handle so publish bundling is shared across calls.
func (n *Notifier) topic(id string) *pubsub.Topic {
	n.mu.Lock()
	defer n.mu.Unlock()
	t, ok := n.topics[id]
	if !ok {
		t = n.client.Topic(id)
		n.topics[id] = t
	}
	return t
}

// Close flushes pending messages and releases the client.
func (n *Notifier) Close() error {
	if n == nil || n.client == nil {
		return nil
	}
	n.mu.Lock()
	for id, t := range n.topics {
		t.Stop()
		delete(n.topics, id)
	}
	n.mu.Unlock()
	if err := n.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}

func (n *Notifier) textMapPropagator() propagation.TextMapPropagator {
	if n.propagator != nil {
		return n.propagator
	}
	return otel.GetTextMapPropagator()
}

// attributeCarrier implements propagation.TextMapCarrier for message attributes.
type attributeCarrier struct {
	attrs map[string]string
}

func (c *attributeCarrier) Get(key string) string {
	return c.attrs[key]
}

func (c *attributeCarrier) Set(key, value string) {
	c.attrs[key] = value
}

func (c *attributeCarrier) Keys() []string {
	keys := make([]string, 0, len(c.attrs))
	for k := range c.attrs {
		keys = append(keys, k)
	}
	return keys
}
