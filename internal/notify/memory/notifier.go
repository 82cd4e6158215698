// Package memory contains an in-process notifier for tests and local runs.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// DefaultLimit is the number of messages a Notifier keeps unless WithLimit
// says otherwise.
const DefaultLimit = 256

// Notifier stores the most recent published payloads for inspection. Older
// messages are dropped once the limit is reached.
type Notifier struct {
	mu        sync.RWMutex
	messages  []Message
	limit     int
	published int
}

// Message captures one publish call.
type Message struct {
	Topic   string
	Payload any
}

// Option customizes a Notifier.
type Option func(*Notifier)

// WithLimit caps the retained messages. Values below one keep DefaultLimit.
func WithLimit(limit int) Option {
	return func(n *Notifier) {
		if limit > 0 {
			n.limit = limit
		}
	}
}

// New returns an empty memory Notifier.
func New(opts ...Option) *Notifier {
	n := &Notifier{limit: DefaultLimit}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Publish records the message and returns a pseudo ID.
func (n *Notifier) Publish(_ context.Context, topic string, payload any) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.published++
	if len(n.messages) >= n.limit {
		dropped := len(n.messages) - n.limit + 1
		n.messages = append(n.messages[:0], n.messages[dropped:]...)
	}
	n.messages = append(n.messages, Message{Topic: topic, Payload: payload})
	return fmt.Sprintf("memory-%d", n.published), nil
}

// Messages returns the retained publishes, oldest first.
func (n *Notifier) Messages() []Message {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]Message, len(n.messages))
	copy(out, n.messages)
	return out
}

// Published reports how many messages were accepted in total.
func (n *Notifier) Published() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.published
}
