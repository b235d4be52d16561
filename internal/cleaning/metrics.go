package cleaning

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// fraudRemovals counts listings dropped by the fraud filter.
	fraudRemovals = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zapdeals_cleaning_fraud_removals_total",
		Help: "The total number of listings removed by the fraud filter.",
	})
	// outlierRemovals counts listings dropped by the IQR outlier stage.
	outlierRemovals = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zapdeals_cleaning_outlier_removals_total",
		Help: "The total number of listings removed as price-per-area outliers.",
	})
	// duplicateRemovals counts listings collapsed by deduplication.
	duplicateRemovals = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zapdeals_cleaning_duplicate_removals_total",
		Help: "The total number of duplicated listings collapsed.",
	})
)
