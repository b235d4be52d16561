// Package publisher defines the event interface that tells downstream
// consumers (dashboard refresh, alerting) a crawl batch has landed.
package publisher

import (
	"context"
	"time"

	"github.com/zapdeals/zapdeals/internal/listing"
)

// BatchEvent describes one committed crawl batch.
type BatchEvent struct {
	RunID        string               `json:"run_id"`
	State        string               `json:"state"`
	City         string               `json:"city"`
	Neighborhood string               `json:"neighborhood"`
	BusinessType listing.BusinessType `json:"business_type"`
	CrawledAt    time.Time            `json:"crawled_at"`
	Persisted    int                  `json:"persisted"`
	Removed      int                  `json:"removed"`
	Purged       int64                `json:"purged"`
}

// Publisher delivers batch events to a message bus.
type Publisher interface {
	// PublishBatch sends the event and returns the broker's message ID.
	PublishBatch(ctx context.Context, event BatchEvent) (string, error)
	// Close flushes pending messages and releases the connection.
	Close() error
}

// NoOpPublisher drops events, for dry runs and setups without a broker.
type NoOpPublisher struct{}

// PublishBatch does nothing and returns a dummy ID.
func (NoOpPublisher) PublishBatch(_ context.Context, _ BatchEvent) (string, error) {
	return "noop", nil
}

// Close does nothing.
func (NoOpPublisher) Close() error { return nil }
