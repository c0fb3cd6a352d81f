package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	statsComputations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "riffle",
		Subsystem: "leaderboard",
		Name:      "computations_total",
		Help:      "Number of season statistics computations by result.",
	}, []string{"result"})

	statsDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "riffle",
		Subsystem: "leaderboard",
		Name:      "computation_duration_seconds",
		Help:      "Time spent loading rows and ranking the members of a season.",
		Buckets:   prometheus.DefBuckets,
	})

	statsMembers = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "riffle",
		Subsystem: "leaderboard",
		Name:      "ranked_members",
		Help:      "Number of members ranked per computation.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	})
)

// ObserveStatsComputation records a finished leaderboard computation.
func ObserveStatsComputation(start time.Time, members int, err error) {
	if err != nil {
		statsComputations.WithLabelValues("error").Inc()
		return
	}

	statsComputations.WithLabelValues("ok").Inc()
	statsDuration.Observe(time.Since(start).Seconds())
	statsMembers.Observe(float64(members))
}
