package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Engine stage labels recorded per generation run.
const (
	StagePolicy   = "policy"
	StageSnapshot = "snapshot"
	StageAllocate = "allocate"
	StagePersist  = "persist"
)

// EngineMetrics instruments plan generation runs.
type EngineMetrics struct {
	runs          *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	entries       prometheus.Gauge
	deficitDates  prometheus.Gauge
}

// NewEngineMetrics registers engine collectors against the provided registerer.
// A nil registerer falls back to the Prometheus default.
func NewEngineMetrics(registerer prometheus.Registerer) *EngineMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cashplan_plan_runs_total",
		Help: "Plan generation runs partitioned by outcome.",
	}, []string{"status"})
	stages := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cashplan_stage_duration_seconds",
		Help:    "Duration of each plan generation stage.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})
	entries := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cashplan_plan_entries",
		Help: "Entries produced by the most recent generation run.",
	})
	deficits := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cashplan_plan_deficit_dates",
		Help: "Dates left in deficit by the most recent generation run.",
	})
	registerer.MustRegister(runs, stages, entries, deficits)
	return &EngineMetrics{runs: runs, stageDuration: stages, entries: entries, deficitDates: deficits}
}

// StageTimer measures one engine stage.
type StageTimer struct {
	metrics *EngineMetrics
	stage   string
	start   time.Time
}

// Stage starts a timer for the named stage.
func (m *EngineMetrics) Stage(stage string) *StageTimer {
	return &StageTimer{metrics: m, stage: stage, start: time.Now()}
}

// Done records the elapsed stage duration.
func (t *StageTimer) Done() {
	if t == nil || t.metrics == nil {
		return
	}
	t.metrics.stageDuration.WithLabelValues(t.stage).Observe(time.Since(t.start).Seconds())
}

// RunCompleted records the outcome of one generation run.
func (m *EngineMetrics) RunCompleted(status string, entries, deficitDates int) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(status).Inc()
	m.entries.Set(float64(entries))
	m.deficitDates.Set(float64(deficitDates))
}
