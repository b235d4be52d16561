// Package cleaning implements the order-sensitive batch cleaning stages:
// fraud filtering, statistical outlier removal, deduplication and
// price-per-area first-quartile scoring.
//
// Every stage is a pure transformation over the candidate batch, optionally
// joined with the already-persisted cohort. Statistics always run over the
// union of persisted listings and the incoming batch, never the batch alone,
// so quartiles stay stable across incremental crawls.
package cleaning

import (
	"sort"

	"go.uber.org/zap"

	"github.com/zapdeals/zapdeals/internal/listing"
)

// StageResult is what each removal stage produces: the surviving listings and
// the IDs it dropped, recorded for observability only.
type StageResult struct {
	Kept       []listing.Listing
	RemovedIDs []string
}

// Pipeline runs the cleaning stages in their fixed order.
type Pipeline struct {
	cfg    Config
	logger *zap.Logger
}

// NewPipeline builds a Pipeline. A nil logger falls back to zap.NewNop.
func NewPipeline(cfg Config, logger *zap.Logger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{cfg: cfg, logger: logger}, nil
}

// Run applies fraud filtering, outlier removal, deduplication and quartile
// scoring to the batch, in that order. statsCohort is the persisted cohort
// matching the full search filters (unit type, price and area bounds);
// quartileCohort is the broader persisted cohort scoped only by city,
// neighborhood and business type. The batch's listing slice and RemovedIDs
// are updated in place.
func (p *Pipeline) Run(batch *listing.Batch, statsCohort, quartileCohort []listing.Listing) {
	log := p.logger.With(
		zap.String("neighborhood", batch.Filters.Neighborhood),
		zap.String("business_type", string(batch.Filters.BusinessType)),
	)

	fraud := RemoveFraudsters(batch.Listings, p.cfg)
	log.Info("Removed fraudster listings", zap.Int("removed", len(fraud.RemovedIDs)))
	fraudRemovals.Add(float64(len(fraud.RemovedIDs)))

	outliers := RemoveOutliers(fraud.Kept, statsCohort, p.cfg)
	log.Info("Removed outliers", zap.Int("removed", len(outliers.RemovedIDs)))
	outlierRemovals.Add(float64(len(outliers.RemovedIDs)))

	dedup := Deduplicate(outliers.Kept, p.cfg)
	log.Info("Removed duplicated listings", zap.Int("removed", len(dedup.RemovedIDs)))
	duplicateRemovals.Add(float64(len(dedup.RemovedIDs)))

	scored := ScoreFirstQuartile(dedup.Kept, quartileCohort)

	batch.Listings = scored
	batch.RemovedIDs = append(batch.RemovedIDs, fraud.RemovedIDs...)
	batch.RemovedIDs = append(batch.RemovedIDs, outliers.RemovedIDs...)
	batch.RemovedIDs = append(batch.RemovedIDs, dedup.RemovedIDs...)
}

// RemoveFraudsters drops listings whose advertizer is on the deny list, whose
// total area is strictly above the implausibility threshold, or whose account
// is unlicensed or younger than the trust window.
func RemoveFraudsters(batch []listing.Listing, cfg Config) StageResult {
	if len(batch) == 0 {
		return StageResult{}
	}
	deny := make(map[string]struct{}, len(cfg.DenyList))
	for _, name := range cfg.DenyList {
		deny[name] = struct{}{}
	}

	res := StageResult{Kept: make([]listing.Listing, 0, len(batch))}
	for _, l := range batch {
		_, denied := deny[l.Advertizer]
		implausibleArea := l.TotalAreaM2 > cfg.MaxPlausibleAreaM2
		untrustedAccount := l.AccountUnlicensed || l.RecentAccount
		if denied || implausibleArea || untrustedAccount {
			res.RemovedIDs = append(res.RemovedIDs, l.ListingID)
			continue
		}
		res.Kept = append(res.Kept, l)
	}
	return res
}

// RemoveOutliers rejects batch listings whose price per area falls outside
// the 1.5*IQR thresholds of the combined cohort (persisted + batch). The
// stage is skipped when the cohort is smaller than MinCohortSize. Thresholds
// are strict: a listing exactly at Q3 + 1.5*IQR is retained.
func RemoveOutliers(batch, persisted []listing.Listing, cfg Config) StageResult {
	if len(batch) == 0 {
		return StageResult{}
	}

	cohort := make([]float64, 0, len(batch)+len(persisted))
	for _, l := range persisted {
		cohort = append(cohort, l.PricePerArea)
	}
	for _, l := range batch {
		cohort = append(cohort, l.PricePerArea)
	}
	if len(cohort) < cfg.MinCohortSize {
		return StageResult{Kept: batch}
	}

	q1 := Quantile(cohort, 0.25)
	q3 := Quantile(cohort, 0.75)
	iqr := q3 - q1
	thresholdHigh := q3 + 1.5*iqr
	thresholdLow := q1 - 1.5*iqr

	res := StageResult{Kept: make([]listing.Listing, 0, len(batch))}
	for _, l := range batch {
		aboveHigh := l.PricePerArea > thresholdHigh
		belowLow := l.PricePerArea < thresholdLow

		var reject bool
		switch cfg.OutlierPolicy {
		case OutlierPolicyDisjunction:
			reject = aboveHigh || belowLow
		default:
			// Conjunction is the historical behavior: both one-sided
			// bounds must hold at once, which no listing satisfies.
			reject = aboveHigh && belowLow
		}

		if reject {
			res.RemovedIDs = append(res.RemovedIDs, l.ListingID)
			continue
		}
		res.Kept = append(res.Kept, l)
	}
	return res
}

type dedupKey struct {
	bedrooms     int
	bathrooms    int
	totalAreaM2  int
	zipCode      string
	streetAddr   string
	streetNumber int
	floor        int
}

// Deduplicate collapses listings that describe the same physical unit posted
// by different agents, keeping the lowest-priced representative. Ordering is
// deterministic: price ascending, ties broken by listing ID.
func Deduplicate(batch []listing.Listing, cfg Config) StageResult {
	if len(batch) == 0 {
		return StageResult{}
	}

	sorted := make([]listing.Listing, len(batch))
	copy(sorted, batch)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Price != sorted[j].Price {
			return sorted[i].Price < sorted[j].Price
		}
		return sorted[i].ListingID < sorted[j].ListingID
	})

	seen := make(map[dedupKey]struct{}, len(sorted))
	res := StageResult{Kept: make([]listing.Listing, 0, len(sorted))}
	for _, l := range sorted {
		key := dedupKey{
			bedrooms:     l.Bedrooms,
			bathrooms:    l.Bathrooms,
			totalAreaM2:  l.TotalAreaM2,
			zipCode:      l.ZipCode,
			streetAddr:   l.StreetAddr,
			streetNumber: l.StreetNumber,
		}
		if cfg.DedupIncludeFloor {
			key.floor = l.Floor
		}
		if _, dup := seen[key]; dup {
			res.RemovedIDs = append(res.RemovedIDs, l.ListingID)
			continue
		}
		seen[key] = struct{}{}
		res.Kept = append(res.Kept, l)
	}
	return res
}

// ScoreFirstQuartile recomputes Q1 of price per area over the combined cohort
// and sets the first-quartile flag on every batch listing. The flag is the
// sole "good deal" signal consumed by the dashboards.
func ScoreFirstQuartile(batch, persisted []listing.Listing) []listing.Listing {
	if len(batch) == 0 {
		return batch
	}

	cohort := make([]float64, 0, len(batch)+len(persisted))
	for _, l := range persisted {
		cohort = append(cohort, l.PricePerArea)
	}
	for _, l := range batch {
		cohort = append(cohort, l.PricePerArea)
	}

	q1 := Quantile(cohort, 0.25)
	scored := make([]listing.Listing, len(batch))
	copy(scored, batch)
	for i := range scored {
		scored[i].PricePerAreaInFirstQuartile = scored[i].PricePerArea <= q1
	}
	return scored
}
