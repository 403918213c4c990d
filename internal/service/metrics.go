package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/utafrali/BackOfficeGo/internal/engine"
)

var (
	evaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promotion_evaluations_total",
			Help: "Cart evaluations by whether any promotion applied",
		},
		[]string{"result"},
	)

	appliedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "promotion_applied_total",
			Help: "Promotions applied across all cart evaluations",
		},
	)

	evaluationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "promotion_evaluation_duration_seconds",
			Help:    "Time spent running the promotion engine on one cart",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		},
	)

	redemptionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promotion_code_redemptions_total",
			Help: "Manual code redemptions by outcome",
		},
		[]string{"result"},
	)
)

func observeEvaluation(o *engine.Outcome, took time.Duration) {
	evaluationDuration.Observe(took.Seconds())
	appliedTotal.Add(float64(len(o.Applied)))
	if len(o.Applied) > 0 {
		evaluationsTotal.WithLabelValues("applied").Inc()
		return
	}
	evaluationsTotal.WithLabelValues("none").Inc()
}

func observeRedemption(r engine.Redemption) {
	if r.Valid {
		redemptionsTotal.WithLabelValues("valid").Inc()
		return
	}
	redemptionsTotal.WithLabelValues("rejected").Inc()
}
