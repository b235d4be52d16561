package zapapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// pagesFetched tracks successfully fetched and decoded search pages.
	pagesFetched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zapdeals_listing_pages_fetched_total",
		Help: "The total number of search pages successfully fetched.",
	})
	// pageRetries tracks retry attempts against the listings endpoint.
	pageRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zapdeals_listing_page_retries_total",
		Help: "The total number of page fetch retries.",
	})
	// pageFailures tracks pages whose retry budget was exhausted.
	pageFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zapdeals_listing_page_failures_total",
		Help: "The total number of pages abandoned after exhausting retries.",
	})
)
