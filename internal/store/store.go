// Package store declares the persistence contract of the listing pipeline.
// Implementations live under internal/storage; consumers depend only on this
// interface so tests can swap in mocks.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/zapdeals/zapdeals/internal/listing"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// City is one row of the city dimension, used to resolve the upstream
// location identifier a district lookup needs.
type City struct {
	ID    int
	State string
	Name  string
}

// Repository persists normalized listings and the side caches the
// normalizer hydrates from.
type Repository interface {
	// ExistingIDs returns the set of listing IDs already persisted for the
	// crawl's city, neighborhood and business type.
	ExistingIDs(ctx context.Context, f listing.SearchFilters) (map[string]struct{}, error)

	// ZipCodes loads the cached zip-code complements.
	ZipCodes(ctx context.Context) ([]listing.ZipCodeComplement, error)
	// ImageCells loads the cached satellite-analysis cells.
	ImageCells(ctx context.Context) ([]listing.ImageAnalysisCell, error)
	// TrafficCells loads the cached transit-analysis cells.
	TrafficCells(ctx context.Context) ([]listing.TrafficAnalysisCell, error)

	// StatsCohort returns the persisted listings comparable to the batch for
	// outlier detection: same city, neighborhood, business type and unit
	// type, inside the search's price and area bounds.
	StatsCohort(ctx context.Context, f listing.SearchFilters) ([]listing.Listing, error)
	// QuartileCohort returns the persisted listings for first-quartile
	// scoring. It is deliberately wider than StatsCohort: only city,
	// neighborhood and business type constrain it.
	QuartileCohort(ctx context.Context, f listing.SearchFilters) ([]listing.Listing, error)

	// UpsertListings replaces the given listings atomically: existing rows
	// with the same listing_id are deleted and the new rows inserted inside
	// one transaction.
	UpsertListings(ctx context.Context, listings []listing.Listing) error
	// UpsertZipCodes inserts newly discovered complements, skipping zip
	// codes already cached.
	UpsertZipCodes(ctx context.Context, zips []listing.ZipCodeComplement) error
	// AppendImageCells appends newly computed satellite cells. Cells are
	// immutable once written.
	AppendImageCells(ctx context.Context, cells []listing.ImageAnalysisCell) error
	// AppendTrafficCells appends newly computed transit cells.
	AppendTrafficCells(ctx context.Context, cells []listing.TrafficAnalysisCell) error

	// PurgeStale deletes listings in the crawl's scope that have not been
	// seen since the cutoff, returning the number of rows removed.
	PurgeStale(ctx context.Context, f listing.SearchFilters, cutoff time.Time) (int64, error)

	// Deals returns the first-quartile listings for a city, excluding
	// commercial unit types.
	Deals(ctx context.Context, city string, businessType listing.BusinessType) ([]listing.Listing, error)
	// Cities lists the distinct cities that currently have listings.
	Cities(ctx context.Context) ([]string, error)
	// CityLookup resolves the city dimension row, or ErrNotFound.
	CityLookup(ctx context.Context, state, city string) (City, error)

	// Close releases the underlying connections.
	Close()
}
