package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"voledge/pkg/logger"
)

var (
	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "voledge_stage_duration_seconds",
		Help:    "Duration of each pipeline stage",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	stageErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voledge_stage_errors_total",
		Help: "Stage failures by stage name",
	}, []string{"stage"})

	runsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voledge_runs_completed_total",
		Help: "Completed analysis runs by decision direction",
	}, []string{"direction"})

	updatesCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voledge_updates_completed_total",
		Help: "Completed re-scoring updates",
	})

	batchInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voledge_batch_in_flight",
		Help: "Symbols currently being analyzed in a batch",
	})

	storeWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voledge_store_writes_total",
		Help: "Stage store writes by backend and outcome",
	}, []string{"backend", "outcome"})
)

// ObserveStage records one stage execution time
func ObserveStage(stage string, d time.Duration) {
	stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// IncStageError counts a stage failure
func IncStageError(stage string) {
	stageErrors.WithLabelValues(stage).Inc()
}

// IncRunCompleted counts a finished run
func IncRunCompleted(direction string) {
	runsCompleted.WithLabelValues(direction).Inc()
}

// IncUpdateCompleted counts a finished update
func IncUpdateCompleted() {
	updatesCompleted.Inc()
}

// BatchStarted / BatchDone track batch concurrency
func BatchStarted() { batchInFlight.Inc() }
func BatchDone()    { batchInFlight.Dec() }

// IncStoreWrite counts a stage store write
func IncStoreWrite(backend, outcome string) {
	storeWrites.WithLabelValues(backend, outcome).Inc()
}

// Serve exposes /metrics on the given address. Blocks; run in a goroutine.
func Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	logger.Infof("metrics listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Errorf("metrics server stopped: %v", err)
	}
}
