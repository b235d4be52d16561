// Package memory contains an in-memory publisher implementation for tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/zapdeals/zapdeals/internal/publisher"
)

// Publisher stores published events for inspection.
type Publisher struct {
	mu     sync.RWMutex
	events []publisher.BatchEvent
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// PublishBatch records the event and returns a pseudo ID.
func (p *Publisher) PublishBatch(_ context.Context, event publisher.BatchEvent) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return fmt.Sprintf("memory-%d", len(p.events)), nil
}

// Events returns a copy of the recorded publishes.
func (p *Publisher) Events() []publisher.BatchEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]publisher.BatchEvent, len(p.events))
	copy(out, p.events)
	return out
}

// Close does nothing.
func (p *Publisher) Close() error { return nil }
