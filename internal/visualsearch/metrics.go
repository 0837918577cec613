package visualsearch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	searchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "litelens_visual_searches_total",
			Help: "Total number of visual searches",
		},
		[]string{"status"}, // status: success, error, rejected
	)

	searchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "litelens_visual_search_duration_seconds",
			Help:    "Visual search round-trip duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2, 5, 10, 20},
		},
	)
)
