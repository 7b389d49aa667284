package ground

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultLabel = "result"

	resultResolved   = "resolved"
	resultClamped    = "clamped"
	resultUnresolved = "unresolved"
)

var (
	groundQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ground_queries",
		Help: "The number of ground height queries by result.",
	}, []string{
		resultLabel,
	})

	groundMaintenancePasses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ground_maintenance_passes",
		Help: "The number of completed maintenance passes.",
	})

	groundSkippedTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ground_skipped_ticks",
		Help: "The number of ticks skipped because a maintenance pass was running.",
	})

	groundPrefetchedPoints = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ground_prefetched_points",
		Help: "The number of points queued by the prefetch.",
	})

	groundGateOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ground_gate_open",
		Help: "Whether queries can queue points for a raycast.",
	})
)

func instrumentQuery(result string) {
	groundQueries.With(prometheus.Labels{
		resultLabel: result,
	}).Inc()
}

func instrumentMaintenance(canAdd bool, prefetched int) {
	groundMaintenancePasses.Inc()
	groundPrefetchedPoints.Add(float64(prefetched))

	if canAdd {
		groundGateOpen.Set(1)
	} else {
		groundGateOpen.Set(0)
	}
}

func instrumentSkippedTick() {
	groundSkippedTicks.Inc()
}
