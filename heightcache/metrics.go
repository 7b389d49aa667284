package heightcache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultLabel = "result"
)

var (
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "height_cache_lookups",
		Help: "The number of height cache lookups.",
	}, []string{
		resultLabel,
	})

	cacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "height_cache_evictions",
		Help: "The number of entries evicted from the height cache.",
	})

	cacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "height_cache_entries",
		Help: "The number of entries in the height cache.",
	})
)

func instrumentLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}

	cacheLookups.With(prometheus.Labels{
		resultLabel: result,
	}).Inc()
}

func instrumentEviction(n int) {
	cacheEvictions.Add(float64(n))
}

func instrumentEntries(n int) {
	cacheEntries.Set(float64(n))
}
