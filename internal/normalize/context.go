package normalize

import (
	"context"
	"math/rand"
	"time"

	"github.com/zapdeals/zapdeals/internal/geodata"
	"github.com/zapdeals/zapdeals/internal/listing"
)

// GeoAnalyzer computes spatial features for a bounding box. Implemented by
// geodata.Service in production and by stubs in tests.
type GeoAnalyzer interface {
	GreenMetrics(ctx context.Context, box listing.BoundingBox) (density float64, nextToPark bool, err error)
	BusLanes(ctx context.Context, box listing.BoundingBox) (int, error)
}

// ZipComplementFetcher resolves the address-range complement of a zip code.
// Implemented by brasilaberto.Client in production.
type ZipComplementFetcher interface {
	Complement(ctx context.Context, zipCode string) (string, error)
}

// Context carries the per-run shared state the normalizer consults: the
// search's business type, the hydrated caches, the enrichment clients, and
// the randomness/clock sources (injectable for tests).
//
// The caches are read-mostly and written once per new discovery. The Context
// is not safe for concurrent use; the pipeline normalizes sequentially.
type Context struct {
	BusinessType listing.BusinessType

	// existingIDs holds the listing IDs already persisted for this search
	// scope, so the crawl can skip re-normalizing unchanged listings.
	existingIDs map[string]struct{}

	// zipCodes maps zip code to complement, seeded from the store and
	// extended by at most one outbound lookup per zip code per run.
	zipCodes    map[string]string
	newZipCodes []listing.ZipCodeComplement

	imageCells      *geodata.ImageCellCache
	trafficCells    *geodata.TrafficCellCache
	newImageCells   []listing.ImageAnalysisCell
	newTrafficCells []listing.TrafficAnalysisCell

	geo GeoAnalyzer
	zip ZipComplementFetcher

	rng *rand.Rand
	now func() time.Time
}

// ContextParams bundles the inputs of NewContext.
type ContextParams struct {
	BusinessType listing.BusinessType
	ExistingIDs  map[string]struct{}
	ZipCodes     []listing.ZipCodeComplement
	ImageCells   []listing.ImageAnalysisCell
	TrafficCells []listing.TrafficAnalysisCell
	Geo          GeoAnalyzer
	Zip          ZipComplementFetcher
	// Seed fixes the random source; 0 derives one from the clock.
	Seed int64
	// Now overrides the clock, used by tests.
	Now func() time.Time
}

// NewContext hydrates a normalization context from persisted state.
func NewContext(p ContextParams) *Context {
	zips := make(map[string]string, len(p.ZipCodes))
	for _, z := range p.ZipCodes {
		zips[z.ZipCode] = z.Complement
	}
	seed := p.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}
	return &Context{
		BusinessType: p.BusinessType,
		existingIDs:  p.ExistingIDs,
		zipCodes:     zips,
		imageCells:   geodata.NewImageCellCache(p.ImageCells),
		trafficCells: geodata.NewTrafficCellCache(p.TrafficCells),
		geo:          p.Geo,
		zip:          p.Zip,
		rng:          rand.New(rand.NewSource(seed)),
		now:          now,
	}
}

// Known reports whether a listing ID was already persisted for this search
// scope when the run started.
func (c *Context) Known(listingID string) bool {
	_, ok := c.existingIDs[listingID]
	return ok
}

// NewZipCodes returns the complements fetched during this run.
func (c *Context) NewZipCodes() []listing.ZipCodeComplement { return c.newZipCodes }

// NewImageCells returns the satellite-analysis cells computed this run.
func (c *Context) NewImageCells() []listing.ImageAnalysisCell { return c.newImageCells }

// NewTrafficCells returns the transit-analysis cells computed this run.
func (c *Context) NewTrafficCells() []listing.TrafficAnalysisCell { return c.newTrafficCells }

// complement returns the cached complement for a zip code, fetching and
// recording it on first sight. Each zip code triggers at most one outbound
// lookup per run.
func (c *Context) complement(ctx context.Context, zipCode string) (string, error) {
	if comp, ok := c.zipCodes[zipCode]; ok {
		return comp, nil
	}
	comp, err := c.zip.Complement(ctx, zipCode)
	if err != nil {
		return "", err
	}
	c.zipCodes[zipCode] = comp
	c.newZipCodes = append(c.newZipCodes, listing.ZipCodeComplement{
		ZipCode:    zipCode,
		Complement: comp,
	})
	return comp, nil
}

// imageMetrics returns the cached satellite metrics for the coordinate,
// computing and recording a new cell on cache miss.
func (c *Context) imageMetrics(ctx context.Context, lat, lon float64) (float64, bool, error) {
	if cell, ok := c.imageCells.Find(lat, lon); ok {
		return cell.GreenDensity, cell.IsNextToPark, nil
	}
	box := geodata.BoxAround(lat, lon, geodata.ImageCellDigits, geodata.ImageBoxSize)
	density, nextToPark, err := c.geo.GreenMetrics(ctx, box)
	if err != nil {
		return 0, false, err
	}
	cell := listing.ImageAnalysisCell{
		Box:          box,
		GreenDensity: density,
		IsNextToPark: nextToPark,
	}
	c.imageCells.Add(cell)
	c.newImageCells = append(c.newImageCells, cell)
	return density, nextToPark, nil
}

// busLanes returns the cached transit-route count for the coordinate,
// computing and recording a new cell on cache miss.
func (c *Context) busLanes(ctx context.Context, lat, lon float64) (int, error) {
	if cell, ok := c.trafficCells.Find(lat, lon); ok {
		return cell.NNearbyBusLanes, nil
	}
	box := geodata.BoxAround(lat, lon, geodata.TrafficCellDigits, geodata.TrafficBoxSize)
	count, err := c.geo.BusLanes(ctx, box)
	if err != nil {
		return 0, err
	}
	cell := listing.TrafficAnalysisCell{
		Box:             box,
		NNearbyBusLanes: count,
	}
	c.trafficCells.Add(cell)
	c.newTrafficCells = append(c.newTrafficCells, cell)
	return count, nil
}
