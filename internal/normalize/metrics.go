package normalize

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// normalizedListings counts raw records successfully normalized.
	normalizedListings = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zapdeals_listings_normalized_total",
		Help: "The total number of raw listings successfully normalized.",
	})
)
