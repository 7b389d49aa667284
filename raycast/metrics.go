package raycast

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultLabel = "result"

	resultHit   = "hit"
	resultMiss  = "miss"
	resultPanic = "panic"
)

var (
	raycastEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "raycast_enqueued_points",
		Help: "The number of points queued for a raycast.",
	})

	raycastPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "raycast_pending_points",
		Help: "The number of points waiting for a raycast.",
	})

	raycastCasts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "raycast_casts",
		Help: "The number of raycasts by result.",
	}, []string{
		resultLabel,
	})

	raycastLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "raycast_latency",
		Help: "The time to cast a ray and store its result.",
	})
)

func instrumentEnqueue() {
	raycastEnqueued.Inc()
}

func instrumentPending(n int) {
	raycastPending.Set(float64(n))
}

func instrumentCast(result string, start time.Time) {
	raycastCasts.With(prometheus.Labels{
		resultLabel: result,
	}).Inc()
	raycastLatency.Observe(time.Since(start).Seconds())
}
