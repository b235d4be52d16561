// Package geodata derives spatial features for listings: satellite
// green-density metrics, park proximity and nearby transit-route counts,
// cached in grid-aligned bounding-box cells shared across a crawl run.
package geodata

import (
	"math"

	"github.com/mmcloughlin/geohash"

	"github.com/zapdeals/zapdeals/internal/listing"
)

// Grid resolution constants. Image cells are coarser than traffic cells:
// vegetation varies slowly, bus corridors do not.
const (
	// ImageCellDigits rounds coordinates for satellite-analysis cells.
	ImageCellDigits = 3
	// TrafficCellDigits rounds coordinates for transit-analysis cells.
	TrafficCellDigits = 4
	// ImageBoxSize is the half-extent of a satellite-analysis cell in degrees.
	ImageBoxSize = 0.001
	// TrafficBoxSize is the half-extent of a transit-analysis cell in degrees.
	TrafficBoxSize = 0.0005
)

// Round truncates a coordinate to the given number of decimal digits.
func Round(v float64, digits int) float64 {
	scale := math.Pow(10, float64(digits))
	return math.Round(v*scale) / scale
}

// BoxAround builds a bounding box of the given half-extent centered on the
// rounded coordinate, so every point rounding to the same value shares a box.
func BoxAround(lat, lon float64, digits int, halfExtent float64) listing.BoundingBox {
	clat := Round(lat, digits)
	clon := Round(lon, digits)
	return listing.BoundingBox{
		MinLat: clat - halfExtent,
		MaxLat: clat + halfExtent,
		MinLon: clon - halfExtent,
		MaxLon: clon + halfExtent,
	}
}

// ImageCellCache holds satellite-analysis cells for one crawl run. Cells are
// written once on first discovery and never mutated. The cache is not safe
// for concurrent use; the pipeline is single-threaded per run.
type ImageCellCache struct {
	cells []listing.ImageAnalysisCell
	index map[string]int
}

// NewImageCellCache seeds a cache with already-persisted cells.
func NewImageCellCache(existing []listing.ImageAnalysisCell) *ImageCellCache {
	c := &ImageCellCache{index: make(map[string]int, len(existing))}
	for _, cell := range existing {
		c.add(cell)
	}
	return c
}

// Find returns the cell covering the coordinate, if any.
func (c *ImageCellCache) Find(lat, lon float64) (listing.ImageAnalysisCell, bool) {
	clat := Round(lat, ImageCellDigits)
	clon := Round(lon, ImageCellDigits)
	if i, ok := c.index[cellKey(clat, clon)]; ok {
		return c.cells[i], true
	}
	// Persisted cells may predate the current grid alignment; fall back to
	// a containment scan.
	for _, cell := range c.cells {
		if cell.Box.Contains(clat, clon) {
			return cell, true
		}
	}
	return listing.ImageAnalysisCell{}, false
}

// Add records a newly computed cell.
func (c *ImageCellCache) Add(cell listing.ImageAnalysisCell) {
	c.add(cell)
}

func (c *ImageCellCache) add(cell listing.ImageAnalysisCell) {
	c.cells = append(c.cells, cell)
	c.index[boxKey(cell.Box)] = len(c.cells) - 1
}

// TrafficCellCache is the transit-analysis counterpart of ImageCellCache.
type TrafficCellCache struct {
	cells []listing.TrafficAnalysisCell
	index map[string]int
}

// NewTrafficCellCache seeds a cache with already-persisted cells.
func NewTrafficCellCache(existing []listing.TrafficAnalysisCell) *TrafficCellCache {
	c := &TrafficCellCache{index: make(map[string]int, len(existing))}
	for _, cell := range existing {
		c.add(cell)
	}
	return c
}

// Find returns the cell covering the coordinate, if any.
func (c *TrafficCellCache) Find(lat, lon float64) (listing.TrafficAnalysisCell, bool) {
	clat := Round(lat, TrafficCellDigits)
	clon := Round(lon, TrafficCellDigits)
	if i, ok := c.index[cellKey(clat, clon)]; ok {
		return c.cells[i], true
	}
	for _, cell := range c.cells {
		if cell.Box.Contains(clat, clon) {
			return cell, true
		}
	}
	return listing.TrafficAnalysisCell{}, false
}

// Add records a newly computed cell.
func (c *TrafficCellCache) Add(cell listing.TrafficAnalysisCell) {
	c.add(cell)
}

func (c *TrafficCellCache) add(cell listing.TrafficAnalysisCell) {
	c.cells = append(c.cells, cell)
	c.index[boxKey(cell.Box)] = len(c.cells) - 1
}

// Keys round the cell center before geohashing so that a box center
// reconstructed from min/max floats maps to the same key as the original
// rounded coordinate.
func cellKey(lat, lon float64) string {
	return geohash.Encode(Round(lat, 6), Round(lon, 6))
}

func boxKey(box listing.BoundingBox) string {
	return cellKey((box.MinLat+box.MaxLat)/2, (box.MinLon+box.MaxLon)/2)
}
