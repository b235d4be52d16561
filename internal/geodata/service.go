package geodata

import (
	"context"
	"fmt"

	"github.com/zapdeals/zapdeals/internal/listing"
)

// Service bundles the satellite and Overpass clients behind the two
// questions the normalizer asks about a bounding box.
type Service struct {
	satellite *SatelliteClient
	overpass  *OverpassClient
}

// NewService builds a Service from the two underlying clients.
func NewService(satellite *SatelliteClient, overpass *OverpassClient) *Service {
	return &Service{satellite: satellite, overpass: overpass}
}

// GreenMetrics computes the vegetation fraction of the satellite tile for
// the box and whether a park lies near its center.
func (s *Service) GreenMetrics(ctx context.Context, box listing.BoundingBox) (float64, bool, error) {
	img, err := s.satellite.Tile(ctx, box)
	if err != nil {
		return 0, false, fmt.Errorf("green metrics: %w", err)
	}
	density := GreenDensity(img)

	centerLat := (box.MinLat + box.MaxLat) / 2
	centerLon := (box.MinLon + box.MaxLon) / 2
	nextToPark, err := s.overpass.IsNextToPark(ctx, centerLat, centerLon)
	if err != nil {
		return 0, false, fmt.Errorf("green metrics: %w", err)
	}
	return density, nextToPark, nil
}

// BusLanes counts bus-route relations crossing the box.
func (s *Service) BusLanes(ctx context.Context, box listing.BoundingBox) (int, error) {
	return s.overpass.BusLaneCount(ctx, box)
}

// NoOpAnalyzer answers every spatial question with zero values, for runs
// where geo enrichment is disabled.
type NoOpAnalyzer struct{}

// GreenMetrics reports no vegetation and no park.
func (NoOpAnalyzer) GreenMetrics(_ context.Context, _ listing.BoundingBox) (float64, bool, error) {
	return 0, false, nil
}

// BusLanes reports no bus routes.
func (NoOpAnalyzer) BusLanes(_ context.Context, _ listing.BoundingBox) (int, error) {
	return 0, nil
}
