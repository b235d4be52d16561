// Package storage defines the blob-store provider used to archive raw page
// payloads. Every page the crawler ingests is saved verbatim before
// normalization, so a batch can be replayed against a newer pipeline without
// re-crawling the portal.
package storage

import (
	"context"
)

// Provider abstracts the blob backend (Google Cloud Storage, the local
// filesystem, or nothing at all for dry runs).
type Provider interface {
	// Save uploads data to the given object path/key in the blob store.
	Save(ctx context.Context, objectName string, data []byte) error
}

// NoOpProvider discards everything. Useful for tests and for running the
// crawler without archiving.
type NoOpProvider struct{}

// Save for NoOpProvider does nothing and always returns nil.
func (n *NoOpProvider) Save(_ context.Context, _ string, _ []byte) error {
	return nil
}
