package crawl

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	batchesCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zapdeals_crawl_batches_completed_total",
		Help: "The total number of neighborhood crawl batches committed.",
	})
	batchesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zapdeals_crawl_batches_failed_total",
		Help: "The total number of neighborhood crawl batches aborted.",
	})
	listingsPersisted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zapdeals_crawl_listings_persisted_total",
		Help: "The total number of listings written to the store.",
	})
	listingsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zapdeals_crawl_listings_dropped_total",
		Help: "The total number of raw listings dropped during normalization.",
	})
	listingsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zapdeals_crawl_listings_skipped_total",
		Help: "The total number of raw listings skipped as already persisted.",
	})
	staleListingsPurged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zapdeals_crawl_stale_listings_purged_total",
		Help: "The total number of stale listings deleted before crawling.",
	})
)
