package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/woktalk/recipe-engine/internal/progress"
)

// PrometheusSink exports job progress metrics via Prometheus. It owns the
// collectors derived from milestone events: jobs started/completed/running,
// job runtime, and per-stage latency.
type PrometheusSink struct {
	jobsStarted   prometheus.Counter
	jobsCompleted *prometheus.CounterVec
	jobsRunning   prometheus.Gauge
	jobRuntime    *prometheus.HistogramVec
	stageDuration *prometheus.HistogramVec
	stageBytes    *prometheus.CounterVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		jobsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recipe_progress_jobs_started_total",
			Help: "Total enrichment jobs that have started.",
		}),
		jobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recipe_progress_jobs_completed_total",
			Help: "Total enrichment jobs completed partitioned by result.",
		}, []string{"result"}),
		jobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "recipe_progress_jobs_running",
			Help: "Current number of running enrichment jobs.",
		}),
		jobRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "recipe_progress_job_runtime_seconds",
			Help:    "Wall time per completed enrichment job.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"result"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "recipe_progress_stage_duration_seconds",
			Help:    "Latency of retrieval and enrichment stages.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"stage"}),
		stageBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recipe_progress_stage_bytes_total",
			Help: "Bytes produced per stage (transcript text, result payload).",
		}, []string{"stage"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.jobsStarted,
		s.jobsCompleted,
		s.jobsRunning,
		s.jobRuntime,
		s.stageDuration,
		s.stageBytes,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageJobStart:
		s.jobsStarted.Inc()
		if s.tracker.start(evt.Key) {
			s.jobsRunning.Inc()
		}
	case progress.StageRetrievalDone, progress.StageEnrichmentDone:
		s.handleStageEvent(evt)
	case progress.StageJobDone:
		s.jobsCompleted.WithLabelValues("success").Inc()
		s.observeRuntime(evt, "success")
		if s.tracker.complete(evt.Key) {
			s.jobsRunning.Dec()
		}
	case progress.StageJobError:
		s.jobsCompleted.WithLabelValues("error").Inc()
		s.observeRuntime(evt, "error")
		if s.tracker.complete(evt.Key) {
			s.jobsRunning.Dec()
		}
	}
}

func (s *PrometheusSink) observeRuntime(evt progress.Event, label string) {
	if evt.Dur > 0 {
		s.jobRuntime.WithLabelValues(label).Observe(evt.Dur.Seconds())
	}
}

func (s *PrometheusSink) handleStageEvent(evt progress.Event) {
	stage := "retrieval"
	if evt.Stage == progress.StageEnrichmentDone {
		stage = "enrichment"
	}
	if evt.Dur > 0 {
		s.stageDuration.WithLabelValues(stage).Observe(evt.Dur.Seconds())
	}
	if evt.Bytes > 0 {
		s.stageBytes.WithLabelValues(stage).Add(float64(evt.Bytes))
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[string]struct{})}
}

func (t *runTracker) start(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[key]; ok {
		return false
	}
	t.running[key] = struct{}{}
	return true
}

func (t *runTracker) complete(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[key]; !ok {
		return false
	}
	delete(t.running, key)
	return true
}
