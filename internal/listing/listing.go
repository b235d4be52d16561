// Package listing defines the core domain types shared across the pipeline.
package listing

import (
	"math"
	"time"
)

// BusinessType distinguishes sale listings from rental listings. The upstream
// pricing payload is structured differently for each, so the value is threaded
// through normalization.
type BusinessType string

// Supported business types.
const (
	BusinessSale   BusinessType = "SALE"
	BusinessRental BusinessType = "RENTAL"
)

// Valid reports whether b is one of the supported business types.
func (b BusinessType) Valid() bool {
	return b == BusinessSale || b == BusinessRental
}

// Precision tags how a listing's coordinates were obtained.
type Precision string

// Coordinate precision values.
const (
	// PrecisionExact means the upstream record carried a geolocation.
	PrecisionExact Precision = "exact"
	// PrecisionApproximate means no geolocation was available; the
	// coordinates are NaN and the listing is only positioned downstream by
	// visual grouping, never geocoded by address.
	PrecisionApproximate Precision = "approximate"
)

// Listing is one normalized real-estate unit, uniquely keyed by the upstream
// source ID. It is the unit of cleaning, persistence and dashboard queries.
type Listing struct {
	ListingID   string    `json:"listing_id"`
	Description string    `json:"description"`
	ListingDate time.Time `json:"listing_date"`
	UpdatedAt   time.Time `json:"updated_at"`
	NewListing  bool      `json:"new_listing"`

	BusinessType     BusinessType `json:"business_type"`
	UnitType         string       `json:"unit_type"`
	Bedrooms         int          `json:"bedrooms"`
	Bathrooms        int          `json:"bathrooms"`
	Vacancies        int          `json:"vacancies"`
	Floor            int          `json:"floor"`
	ConstructionYear int          `json:"construction_year"`
	TotalAreaM2      int          `json:"total_area_m2"`

	Country      string  `json:"country"`
	State        string  `json:"state"`
	City         string  `json:"city"`
	Neighborhood string  `json:"neighborhood"`
	ZipCode      string  `json:"zip_code"`
	StreetAddr   string  `json:"street_address"`
	StreetNumber int     `json:"street_number"`
	LocationType string  `json:"location_type"`
	Address      string  `json:"address"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`

	Precision       Precision `json:"precision"`
	GreenDensity    float64   `json:"green_density"`
	IsNextToPark    bool      `json:"is_next_to_park"`
	NNearbyBusLanes int       `json:"n_nearby_bus_lanes"`
	IsQuiet         bool      `json:"is_quiet"`

	Price        int     `json:"price"`
	CondoFee     int     `json:"condo_fee"`
	PricePerArea float64 `json:"price_per_area"`

	URL          string `json:"url"`
	Advertizer   string `json:"advertizer"`
	PrimaryPhone string `json:"primary_phone"`

	AccountUnlicensed bool `json:"account_is_unlicensed"`
	RecentAccount     bool `json:"recent_account"`

	// PricePerAreaInFirstQuartile is recomputed from the cohort on every
	// batch; it is never trusted across crawls.
	PricePerAreaInFirstQuartile bool `json:"price_per_area_in_first_quartile"`
}

// HasExactLocation reports whether the listing carries usable coordinates.
func (l Listing) HasExactLocation() bool {
	return l.Precision == PrecisionExact &&
		!math.IsNaN(l.Latitude) && !math.IsNaN(l.Longitude)
}

// SearchFilters scope one neighborhood crawl and the statistical cohort
// queries derived from it.
type SearchFilters struct {
	State        string
	City         string
	Neighborhood string
	UnitType     string
	UsageType    string
	BusinessType BusinessType
	MinPrice     int
	MaxPrice     int
	MinArea      int
}

// ZipCodeComplement is the free-text address-range string for one Brazilian
// postal code. Many ZIP codes map to a street range rather than a single
// address; the complement is mined for plausible street numbers.
type ZipCodeComplement struct {
	ZipCode    string `json:"zip_code"`
	Complement string `json:"complement"`
}

// BoundingBox is a grid-aligned lat/lon rectangle keying a geo-analysis cell.
type BoundingBox struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLon float64 `json:"max_lon"`
}

// Contains reports whether the point falls inside the box (inclusive edges).
func (b BoundingBox) Contains(lat, lon float64) bool {
	return b.MinLat <= lat && lat <= b.MaxLat &&
		b.MinLon <= lon && lon <= b.MaxLon
}

// ImageAnalysisCell caches satellite-derived metrics for one bounding box.
// Cells are written once on first discovery and shared by every listing whose
// rounded coordinates fall inside the box.
type ImageAnalysisCell struct {
	Box          BoundingBox `json:"box"`
	GreenDensity float64     `json:"green_density"`
	IsNextToPark bool        `json:"is_next_to_park"`
}

// TrafficAnalysisCell caches the transit-route count for one bounding box.
type TrafficAnalysisCell struct {
	Box             BoundingBox `json:"box"`
	NNearbyBusLanes int         `json:"n_nearby_bus_lanes"`
}

// Batch is everything gathered from one (neighborhood, business type) crawl
// before cleaning and persistence. It is transient: built during the crawl,
// consumed by the cleaning pipeline, discarded after the commit.
type Batch struct {
	Filters  SearchFilters
	Listings []Listing
	// NewZipCodes holds complements fetched this run for zip codes that were
	// not already cached in the store.
	NewZipCodes []ZipCodeComplement
	// NewImageCells / NewTrafficCells are the geo-analysis cells computed
	// this run, to be appended to their side tables.
	NewImageCells   []ImageAnalysisCell
	NewTrafficCells []TrafficAnalysisCell
	// RemovedIDs collects listing IDs dropped by cleaning stages, for
	// observability only.
	RemovedIDs []string
}
