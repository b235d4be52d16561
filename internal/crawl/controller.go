// Package crawl orchestrates one neighborhood crawl end to end: purge stale
// rows, hydrate the normalization caches, walk the paginated search, clean
// the batch and commit it.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zapdeals/zapdeals/internal/cleaning"
	"github.com/zapdeals/zapdeals/internal/listing"
	"github.com/zapdeals/zapdeals/internal/logging"
	"github.com/zapdeals/zapdeals/internal/normalize"
	"github.com/zapdeals/zapdeals/internal/publisher"
	"github.com/zapdeals/zapdeals/internal/storage"
	"github.com/zapdeals/zapdeals/internal/store"
	"github.com/zapdeals/zapdeals/internal/zapapi"
)

// defaultStaleAfter is how long a persisted listing survives without being
// seen again before the pre-crawl purge removes it.
const defaultStaleAfter = 30 * 24 * time.Hour

// PageFetcher retrieves one page of raw search results. Implemented by
// zapapi.Client.
type PageFetcher interface {
	FetchPage(ctx context.Context, filters listing.SearchFilters, page int) (zapapi.RawPage, error)
}

// DistrictLister resolves the official district list of a city, used when a
// crawl is launched without explicit neighborhoods. Implemented by
// brasilaberto.Client.
type DistrictLister interface {
	Districts(ctx context.Context, cityID int) ([]string, error)
}

// Summary reports what one neighborhood crawl did. Pages counts every page
// fetched, including a trailing zero-listing page.
type Summary struct {
	RunID     string
	Filters   listing.SearchFilters
	Pages     int
	Fetched   int
	Skipped   int
	Dropped   int
	Removed   int
	Persisted int
	Purged    int64
}

// Controller wires the fetcher, normalizer, cleaning pipeline and stores into
// the crawl workflow.
type Controller struct {
	fetcher   PageFetcher
	repo      store.Repository
	geo       normalize.GeoAnalyzer
	zips      normalize.ZipComplementFetcher
	districts DistrictLister
	pipeline  *cleaning.Pipeline
	archive   storage.Provider
	events    publisher.Publisher
	logger    *zap.Logger

	staleAfter time.Duration
	seed       int64
	now        func() time.Time
}

// Params bundles the Controller dependencies.
type Params struct {
	Fetcher   PageFetcher
	Repo      store.Repository
	Geo       normalize.GeoAnalyzer
	Zips      normalize.ZipComplementFetcher
	Districts DistrictLister
	Pipeline  *cleaning.Pipeline
	Archive   storage.Provider
	Events    publisher.Publisher
	Logger    *zap.Logger

	// StaleAfter overrides the stale-listing purge window.
	StaleAfter time.Duration
	// Seed fixes the normalizer's random source; 0 derives one per run.
	Seed int64
	// Now overrides the clock, used by tests.
	Now func() time.Time
}

// New builds a Controller.
func New(p Params) (*Controller, error) {
	switch {
	case p.Fetcher == nil:
		return nil, fmt.Errorf("crawl: fetcher is required")
	case p.Repo == nil:
		return nil, fmt.Errorf("crawl: repository is required")
	case p.Pipeline == nil:
		return nil, fmt.Errorf("crawl: cleaning pipeline is required")
	}
	if p.Archive == nil {
		p.Archive = &storage.NoOpProvider{}
	}
	if p.Events == nil {
		p.Events = publisher.NoOpPublisher{}
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	if p.StaleAfter <= 0 {
		p.StaleAfter = defaultStaleAfter
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return &Controller{
		fetcher:    p.Fetcher,
		repo:       p.Repo,
		geo:        p.Geo,
		zips:       p.Zips,
		districts:  p.Districts,
		pipeline:   p.Pipeline,
		archive:    p.Archive,
		events:     p.Events,
		logger:     p.Logger,
		staleAfter: p.StaleAfter,
		seed:       p.Seed,
		now:        p.Now,
	}, nil
}

// CrawlCity runs one crawl per neighborhood. When the neighborhood list is
// empty it is resolved from the city's official district registry. A failed
// neighborhood is logged and skipped; the remaining neighborhoods still run.
func (c *Controller) CrawlCity(ctx context.Context, base listing.SearchFilters, neighborhoods []string) ([]Summary, error) {
	if len(neighborhoods) == 0 {
		resolved, err := c.resolveNeighborhoods(ctx, base.State, base.City)
		if err != nil {
			return nil, err
		}
		neighborhoods = resolved
	}

	summaries := make([]Summary, 0, len(neighborhoods))
	var failed int
	for _, n := range neighborhoods {
		filters := base
		filters.Neighborhood = n
		summary, err := c.CrawlNeighborhood(ctx, filters)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return summaries, err
			}
			failed++
			c.logger.Error("Neighborhood crawl failed",
				zap.String("neighborhood", n),
				zap.Error(err),
			)
			continue
		}
		summaries = append(summaries, summary)
	}
	if failed == len(neighborhoods) && failed > 0 {
		return summaries, fmt.Errorf("all %d neighborhood crawls failed", failed)
	}
	return summaries, nil
}

func (c *Controller) resolveNeighborhoods(ctx context.Context, state, city string) ([]string, error) {
	if c.districts == nil {
		return nil, fmt.Errorf("no neighborhoods given and no district registry configured")
	}
	cityRow, err := c.repo.CityLookup(ctx, state, city)
	if err != nil {
		return nil, fmt.Errorf("resolve city %s/%s: %w", state, city, err)
	}
	districts, err := c.districts.Districts(ctx, cityRow.ID)
	if err != nil {
		return nil, fmt.Errorf("list districts of %s: %w", city, err)
	}
	if len(districts) == 0 {
		return nil, fmt.Errorf("city %s has no registered districts", city)
	}
	return districts, nil
}

// CrawlNeighborhood executes the full workflow for one (neighborhood,
// business type) scope. A page fetch failure aborts the whole batch; a bad
// individual listing is logged and dropped.
func (c *Controller) CrawlNeighborhood(ctx context.Context, filters listing.SearchFilters) (Summary, error) {
	runID := uuid.NewString()
	startedAt := c.now()
	log := logging.ForRun(c.logger, runID, filters.State, filters.City).With(
		zap.String("neighborhood", filters.Neighborhood),
		zap.String("business_type", string(filters.BusinessType)),
	)

	summary := Summary{RunID: runID, Filters: filters}

	purged, err := c.repo.PurgeStale(ctx, filters, startedAt.Add(-c.staleAfter))
	if err != nil {
		batchesFailed.Inc()
		return summary, fmt.Errorf("purge stale listings: %w", err)
	}
	summary.Purged = purged
	staleListingsPurged.Add(float64(purged))
	log.Info("Purged stale listings", zap.Int64("purged", purged))

	nctx, err := c.hydrate(ctx, filters)
	if err != nil {
		batchesFailed.Inc()
		return summary, err
	}

	batch := &listing.Batch{Filters: filters}
	if err := c.walkPages(ctx, runID, startedAt, filters, nctx, batch, &summary, log); err != nil {
		batchesFailed.Inc()
		return summary, err
	}

	batch.NewZipCodes = nctx.NewZipCodes()
	batch.NewImageCells = nctx.NewImageCells()
	batch.NewTrafficCells = nctx.NewTrafficCells()

	statsCohort, err := c.repo.StatsCohort(ctx, filters)
	if err != nil {
		batchesFailed.Inc()
		return summary, fmt.Errorf("load stats cohort: %w", err)
	}
	quartileCohort, err := c.repo.QuartileCohort(ctx, filters)
	if err != nil {
		batchesFailed.Inc()
		return summary, fmt.Errorf("load quartile cohort: %w", err)
	}

	c.pipeline.Run(batch, statsCohort, quartileCohort)
	summary.Removed = len(batch.RemovedIDs)
	summary.Persisted = len(batch.Listings)

	if err := c.commit(ctx, batch); err != nil {
		batchesFailed.Inc()
		return summary, err
	}
	listingsPersisted.Add(float64(summary.Persisted))
	batchesCompleted.Inc()

	event := publisher.BatchEvent{
		RunID:        runID,
		State:        filters.State,
		City:         filters.City,
		Neighborhood: filters.Neighborhood,
		BusinessType: filters.BusinessType,
		CrawledAt:    startedAt,
		Persisted:    summary.Persisted,
		Removed:      summary.Removed,
		Purged:       summary.Purged,
	}
	if _, err := c.events.PublishBatch(ctx, event); err != nil {
		// The batch is already committed; losing the notification is
		// recoverable, losing the data is not.
		log.Warn("Failed to publish batch event", zap.Error(err))
	}

	log.Info("Neighborhood crawl finished",
		zap.Int("pages", summary.Pages),
		zap.Int("fetched", summary.Fetched),
		zap.Int("skipped", summary.Skipped),
		zap.Int("dropped", summary.Dropped),
		zap.Int("removed", summary.Removed),
		zap.Int("persisted", summary.Persisted),
	)
	return summary, nil
}

func (c *Controller) hydrate(ctx context.Context, filters listing.SearchFilters) (*normalize.Context, error) {
	existing, err := c.repo.ExistingIDs(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("load existing listing ids: %w", err)
	}
	zips, err := c.repo.ZipCodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("load zip codes: %w", err)
	}
	imageCells, err := c.repo.ImageCells(ctx)
	if err != nil {
		return nil, fmt.Errorf("load image cells: %w", err)
	}
	trafficCells, err := c.repo.TrafficCells(ctx)
	if err != nil {
		return nil, fmt.Errorf("load traffic cells: %w", err)
	}
	return normalize.NewContext(normalize.ContextParams{
		BusinessType: filters.BusinessType,
		ExistingIDs:  existing,
		ZipCodes:     zips,
		ImageCells:   imageCells,
		TrafficCells: trafficCells,
		Geo:          c.geo,
		Zip:          c.zips,
		Seed:         c.seed,
		Now:          c.now,
	}), nil
}

// walkPages iterates the paginated search from page zero. The walk stops on
// an empty page, or after processing a partial page.
func (c *Controller) walkPages(
	ctx context.Context,
	runID string,
	startedAt time.Time,
	filters listing.SearchFilters,
	nctx *normalize.Context,
	batch *listing.Batch,
	summary *Summary,
	log *zap.Logger,
) error {
	for page := 0; ; page++ {
		raw, err := c.fetcher.FetchPage(ctx, filters, page)
		if err != nil {
			return fmt.Errorf("crawl aborted at page %d: %w", page, err)
		}

		summary.Pages++

		rawListings := raw.Page.Listings()
		if len(rawListings) == 0 {
			break
		}
		summary.Fetched += len(rawListings)

		c.archivePage(ctx, runID, startedAt, filters, page, raw.Body, log)

		for _, rl := range rawListings {
			if nctx.Known(rl.Listing.SourceID) {
				// Already persisted for this scope; the upsert is idempotent,
				// so skipping saves the enrichment round trips.
				summary.Skipped++
				listingsSkipped.Inc()
				continue
			}
			normalized, err := normalize.Normalize(ctx, rl, nctx)
			if err != nil {
				summary.Dropped++
				listingsDropped.Inc()
				var nerr *normalize.Error
				if errors.As(err, &nerr) {
					log.Debug("Dropped malformed listing", zap.Error(nerr))
				} else {
					log.Warn("Dropped listing on enrichment failure", zap.Error(err))
				}
				continue
			}
			batch.Listings = append(batch.Listings, normalized)
		}

		if len(rawListings) < zapapi.PageSize {
			break
		}
	}
	return nil
}

func (c *Controller) archivePage(
	ctx context.Context,
	runID string,
	startedAt time.Time,
	filters listing.SearchFilters,
	page int,
	body []byte,
	log *zap.Logger,
) {
	objectName := fmt.Sprintf("raw/%s/%s/%s/%s/%s/%s/page-%04d.json",
		filters.State,
		filters.City,
		filters.Neighborhood,
		filters.BusinessType,
		startedAt.UTC().Format("2006-01-02"),
		runID,
		page,
	)
	if err := c.archive.Save(ctx, objectName, body); err != nil {
		// Archiving is best effort; the decoded payload is already in hand.
		log.Warn("Failed to archive raw page",
			zap.String("object", objectName),
			zap.Error(err),
		)
	}
}

// commit persists the cleaned batch: side caches first, then the listings in
// their delete-and-insert transaction.
func (c *Controller) commit(ctx context.Context, batch *listing.Batch) error {
	if err := c.repo.UpsertZipCodes(ctx, batch.NewZipCodes); err != nil {
		return fmt.Errorf("persist zip codes: %w", err)
	}
	if err := c.repo.AppendImageCells(ctx, batch.NewImageCells); err != nil {
		return fmt.Errorf("persist image cells: %w", err)
	}
	if err := c.repo.AppendTrafficCells(ctx, batch.NewTrafficCells); err != nil {
		return fmt.Errorf("persist traffic cells: %w", err)
	}
	if err := c.repo.UpsertListings(ctx, batch.Listings); err != nil {
		return fmt.Errorf("persist listings: %w", err)
	}
	return nil
}
