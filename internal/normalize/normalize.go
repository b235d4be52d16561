// Package normalize converts raw upstream listing records into canonical
// Listing entities, resolving missing or ambiguous fields with deterministic
// fallback rules and enriching them with derived geospatial attributes.
package normalize

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/zapdeals/zapdeals/internal/listing"
	"github.com/zapdeals/zapdeals/internal/zapapi"
)

// Domain bounds for validated fields. Out-of-range values are known
// data-quality problems (typos producing absurd areas) that must not be
// allowed to corrupt the cohort statistics.
const (
	maxTotalAreaM2      = 1000
	maxFloor            = 100
	maxVacancies        = 15
	minConstructionYear = 1900
	maxConstructionYear = 2030
	portalBaseURL       = "https://www.zapimoveis.com.br"
	defaultZipCode      = "00000000"
	defaultCountry      = "Brasil"
	// newListingWindow marks listings created within the last week.
	newListingWindow = 7 * 24 * time.Hour
	// recentAccountWindow marks advertizer accounts too young to trust.
	recentAccountWindow = 30 * 24 * time.Hour
)

// Normalize converts one raw search-result element into a Listing. A
// returned *Error means the record violated a domain constraint and must be
// dropped from the batch; any other error is an enrichment failure for this
// single item. Neither aborts the neighborhood crawl.
func Normalize(ctx context.Context, raw zapapi.Listing, nctx *Context) (listing.Listing, error) {
	id := raw.Listing.SourceID
	if id == "" {
		return listing.Listing{}, fieldErr(id, "sourceId", "missing listing id")
	}

	createdAt, err := time.Parse(time.RFC3339, raw.Listing.CreatedAt)
	if err != nil {
		return listing.Listing{}, fieldErr(id, "createdAt", "parse %q: %v", raw.Listing.CreatedAt, err)
	}
	updatedAt, err := time.Parse(time.RFC3339, raw.Listing.UpdatedAt)
	if err != nil {
		return listing.Listing{}, fieldErr(id, "updatedAt", "parse %q: %v", raw.Listing.UpdatedAt, err)
	}

	if len(raw.Listing.UnitTypes) == 0 {
		return listing.Listing{}, fieldErr(id, "unitTypes", "missing unit type")
	}

	area := raw.Listing.UsableAreas.First()
	if area <= 0 {
		return listing.Listing{}, fieldErr(id, "usableAreas", "area must be > 0, got %d", area)
	}
	if area > maxTotalAreaM2 {
		return listing.Listing{}, fieldErr(id, "usableAreas", "area must be <= %d, got %d", maxTotalAreaM2, area)
	}

	floor := raw.Listing.UnitFloor.Int()
	if floor < 0 || floor > maxFloor {
		return listing.Listing{}, fieldErr(id, "unitFloor", "floor must be in [0, %d], got %d", maxFloor, floor)
	}

	vacancies := raw.Listing.ParkingSpaces.First()
	if vacancies < 0 || vacancies > maxVacancies {
		return listing.Listing{}, fieldErr(id, "parkingSpaces", "vacancies must be in [0, %d], got %d", maxVacancies, vacancies)
	}

	year, err := constructionYear(raw.Listing.DeliveredAt)
	if err != nil {
		return listing.Listing{}, fieldErr(id, "deliveredAt", "%v", err)
	}

	street := raw.Link.Data.Street
	zipCode := raw.Listing.Address.ZipCode
	if zipCode == "" {
		zipCode = defaultZipCode
	}
	country := raw.Listing.Address.Country
	if country == "" {
		country = defaultCountry
	}

	streetNumber, err := nctx.streetNumber(ctx, id, raw.Link.Data.StreetNumber, zipCode)
	if err != nil {
		return listing.Listing{}, err
	}

	lat, lon, precision := nctx.coordinates(raw.Listing.Geolocation)

	greenDensity := 0.0
	nextToPark := false
	busLanes := 0
	if precision == listing.PrecisionExact {
		greenDensity, nextToPark, err = nctx.imageMetrics(ctx, lat, lon)
		if err != nil {
			return listing.Listing{}, fmt.Errorf("listing %s: image analysis: %w", id, err)
		}
		busLanes, err = nctx.busLanes(ctx, lat, lon)
		if err != nil {
			return listing.Listing{}, fmt.Errorf("listing %s: traffic analysis: %w", id, err)
		}
	}

	price := extractPrice(raw.Listing.PricingInfos, nctx.BusinessType)
	condoFee := 0
	if len(raw.Listing.PricingInfos) > 0 {
		condoFee = raw.Listing.PricingInfos[0].MonthlyCondoFee.Int()
	}

	locationType := locationType(street)
	now := nctx.now()

	l := listing.Listing{
		ListingID:   id,
		Description: raw.Listing.Title,
		ListingDate: createdAt,
		UpdatedAt:   updatedAt,
		NewListing:  now.Sub(createdAt) <= newListingWindow,

		BusinessType:     nctx.BusinessType,
		UnitType:         raw.Listing.UnitTypes[0],
		Bedrooms:         raw.Listing.Bedrooms.First(),
		Bathrooms:        raw.Listing.Bathrooms.First(),
		Vacancies:        vacancies,
		Floor:            floor,
		ConstructionYear: year,
		TotalAreaM2:      area,

		Country:      country,
		State:        raw.Listing.Address.StateAcronym,
		City:         raw.Listing.Address.City,
		Neighborhood: raw.Listing.Address.Neighborhood,
		ZipCode:      zipCode,
		StreetAddr:   street,
		StreetNumber: streetNumber,
		LocationType: locationType,
		Latitude:     lat,
		Longitude:    lon,

		Precision:       precision,
		GreenDensity:    greenDensity,
		IsNextToPark:    nextToPark,
		NNearbyBusLanes: busLanes,
		IsQuiet:         locationType != "Avenida" && floor >= 8,

		Price:        price,
		CondoFee:     condoFee,
		PricePerArea: math.Round(float64(price)/float64(area)*100) / 100,

		URL:          portalBaseURL + raw.Link.Href,
		Advertizer:   raw.Account.Name,
		PrimaryPhone: raw.Account.Phones.Primary,

		AccountUnlicensed: raw.Account.LicenseNumber == "",
		RecentAccount:     isRecentAccount(raw.Account.CreatedDate, now),
	}
	l.Address = assembleAddress(l)

	normalizedListings.Inc()
	return l, nil
}

// extractPrice scans the pricing-info list for the entry matching the
// search's business type. Sale listings carry the absolute price; rental
// listings nest the monthly total. Absent data yields 0, not an error.
func extractPrice(infos []zapapi.PricingInfo, businessType listing.BusinessType) int {
	price := 0
	for _, p := range infos {
		if p.BusinessType != string(businessType) {
			continue
		}
		switch businessType {
		case listing.BusinessSale:
			price = p.Price.Int()
		case listing.BusinessRental:
			price = p.RentalInfo.MonthlyRentalTotalPrice.Int()
		}
	}
	return price
}

// constructionYear parses the delivery year out of the deliveredAt
// timestamp. Missing data yields 0; a present year must be plausible.
func constructionYear(deliveredAt string) (int, error) {
	if deliveredAt == "" {
		return 0, nil
	}
	if len(deliveredAt) < 4 {
		return 0, fmt.Errorf("malformed delivery date %q", deliveredAt)
	}
	year, err := strconv.Atoi(deliveredAt[:4])
	if err != nil {
		return 0, fmt.Errorf("malformed delivery date %q", deliveredAt)
	}
	if year != 0 && (year < minConstructionYear || year > maxConstructionYear) {
		return 0, fmt.Errorf("construction year must be 0 or in [%d, %d], got %d",
			minConstructionYear, maxConstructionYear, year)
	}
	return year, nil
}

// streetNumber applies the street-number fallback chain: a numeric upstream
// value is used as-is, a non-numeric one is replaced by a fixed sentinel, and
// an absent one is synthesized from the zip-code complement.
func (c *Context) streetNumber(ctx context.Context, id, assigned, zipCode string) (int, error) {
	if assigned != "" {
		n, err := strconv.Atoi(assigned)
		if err != nil {
			return nonNumericSentinel, nil
		}
		if n < 0 || n > maxStreetNumber {
			return 0, fieldErr(id, "streetNumber", "street number must be in [0, %d], got %d", maxStreetNumber, n)
		}
		return n, nil
	}

	if zipCode == "" || zipCode == defaultZipCode {
		return 1, nil
	}
	complement, err := c.complement(ctx, zipCode)
	if err != nil {
		// A failed lookup must not drop the listing; fall back to the
		// sentinel like a non-numeric upstream value.
		return nonNumericSentinel, nil
	}
	n := c.synthesizeStreetNumber(complement)
	if n < 0 || n > maxStreetNumber {
		return 0, fieldErr(id, "streetNumber", "synthesized street number out of range: %d", n)
	}
	return n, nil
}

// coordinates returns the listing position with its precision tag. Exact
// positions are jittered by a sub-0.0001-degree offset so stacked markers
// stay distinguishable on the map; approximate listings stay NaN and are
// never geocoded by address.
func (c *Context) coordinates(geo *zapapi.Geolocation) (float64, float64, listing.Precision) {
	if geo == nil {
		return math.NaN(), math.NaN(), listing.PrecisionApproximate
	}
	lat := geo.Lat + c.rng.Float64()/10000
	lon := geo.Lon + c.rng.Float64()/10000
	return lat, lon, listing.PrecisionExact
}

// isRecentAccount reports whether the advertizer account is younger than the
// trust window. A missing creation date counts as recent.
func isRecentAccount(createdDate string, now time.Time) bool {
	if createdDate == "" {
		return true
	}
	created, err := time.Parse(time.RFC3339, createdDate)
	if err != nil {
		return true
	}
	return created.After(now.Add(-recentAccountWindow))
}

// locationType is the first token of the street address ("Rua", "Avenida"),
// or "N/A" when no street is known.
func locationType(street string) string {
	fields := strings.Fields(street)
	if len(fields) == 0 {
		return "N/A"
	}
	return fields[0]
}

// assembleAddress builds the human-readable full address.
func assembleAddress(l listing.Listing) string {
	return strings.Join([]string{
		fmt.Sprintf("%s %d", l.StreetAddr, l.StreetNumber),
		l.Neighborhood,
		l.ZipCode,
		l.City,
		l.State,
		l.Country,
	}, ", ")
}
