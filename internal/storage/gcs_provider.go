package storage

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
)

// GCSClientFactory builds GCS clients. The indirection exists so tests can
// inject a client pointed at a fake server.
type GCSClientFactory interface {
	NewClient(ctx context.Context) (*storage.Client, error)
}

type defaultGCSClientFactory struct{}

func (defaultGCSClientFactory) NewClient(ctx context.Context) (*storage.Client, error) {
	return storage.NewClient(ctx)
}

// GCSProvider implements Provider on a Google Cloud Storage bucket.
type GCSProvider struct {
	Client     *storage.Client
	BucketName string
}

// NewGCSProvider initializes a GCS client and verifies the bucket is
// reachable, failing fast on startup misconfiguration. Authentication uses
// Application Default Credentials. A nil factory uses the real client.
func NewGCSProvider(ctx context.Context, bucketName string, factory GCSClientFactory) (*GCSProvider, error) {
	if factory == nil {
		factory = defaultGCSClientFactory{}
	}
	client, err := factory.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	if _, err := client.Bucket(bucketName).Attrs(ctx); err != nil {
		closeErr := client.Close()
		if closeErr != nil {
			return nil, fmt.Errorf("failed to get GCS bucket '%s' attributes: %w (close client: %v)",
				bucketName, err, closeErr)
		}
		return nil, fmt.Errorf("failed to get GCS bucket '%s' attributes: %w", bucketName, err)
	}

	return &GCSProvider{
		Client:     client,
		BucketName: bucketName,
	}, nil
}

// Save uploads the given data to an object in the GCS bucket.
func (g *GCSProvider) Save(ctx context.Context, objectName string, data []byte) error {
	wc := g.Client.Bucket(g.BucketName).Object(objectName).NewWriter(ctx)

	if _, err := wc.Write(data); err != nil {
		// Close anyway to release the upload session; the write failure is
		// the error that matters.
		_ = wc.Close()
		return fmt.Errorf("failed to write data to GCS object %s: %w", objectName, err)
	}

	// Close finalizes the upload and flushes buffered data.
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer for object %s: %w", objectName, err)
	}

	return nil
}
