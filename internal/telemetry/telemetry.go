// Package telemetry exports Prometheus metrics and OpenTelemetry spans for
// the curation pipeline.
package telemetry

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jonesrussell/north-cloud/timeline/internal/domain"
)

const serviceName = "timeline"

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	// Retrieval
	TierRequests *prometheus.CounterVec
	TierDuration *prometheus.HistogramVec

	// Judges
	JudgeCalls     *prometheus.CounterVec
	JudgeDuration  *prometheus.HistogramVec
	JudgeVerdicts  *prometheus.CounterVec
	Selections     *prometheus.CounterVec
	CoalescerLooks *prometheus.CounterVec

	// Generation
	GenerationRounds   prometheus.Histogram
	GenerationSoft     prometheus.Counter
	GenerationDuration prometheus.Histogram

	// Duplicates
	DuplicateEdges    prometheus.Counter
	DuplicateWindows  *prometheus.CounterVec
	DuplicateDuration prometheus.Histogram

	// Scheduler
	InFlightItems *prometheus.GaugeVec
	BatchItems    *prometheus.CounterVec
	ItemDuration  *prometheus.HistogramVec
}

// Provider wraps the tracer and metrics. It implements the recorder
// interfaces of the consensus, generator, duplicates, scheduler and
// coalescer packages.
type Provider struct {
	Tracer  trace.Tracer
	Metrics *Metrics
}

// NewProvider registers the metrics with the default Prometheus registry.
// Call it once per process.
func NewProvider() *Provider {
	return &Provider{
		Tracer:  otel.Tracer(serviceName),
		Metrics: initMetrics(),
	}
}

func initMetrics() *Metrics {
	m := &Metrics{}
	initRetrievalMetrics(m)
	initJudgeMetrics(m)
	initGenerationMetrics(m)
	initDuplicateMetrics(m)
	initSchedulerMetrics(m)
	return m
}

func initRetrievalMetrics(m *Metrics) {
	m.TierRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timeline_tier_requests_total",
		Help: "Tier searches by tier and status",
	}, []string{"tier", "status"})

	m.TierDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "timeline_tier_duration_seconds",
		Help:    "Time to search one tier",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"tier"})
}

func initJudgeMetrics(m *Metrics) {
	m.JudgeCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timeline_judge_calls_total",
		Help: "Calls to judgment and generation services by judge and status",
	}, []string{"judge", "status"})

	m.JudgeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "timeline_judge_call_duration_seconds",
		Help:    "Latency of judgment and generation calls",
		Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40},
	}, []string{"judge"})

	m.JudgeVerdicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timeline_judge_verdicts_total",
		Help: "Judge verdicts by judge and verdict status",
	}, []string{"judge", "status"})

	m.Selections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timeline_selections_total",
		Help: "Consensus selections by resolution mode",
	}, []string{"mode", "fallback"})

	m.CoalescerLooks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timeline_coalescer_lookups_total",
		Help: "Selection lookups by outcome (hit, miss, shared)",
	}, []string{"outcome"})
}

func initGenerationMetrics(m *Metrics) {
	m.GenerationRounds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "timeline_generation_rounds",
		Help:    "Corrective rounds per generated description",
		Buckets: []float64{0, 1, 2, 3, 4, 5},
	})

	m.GenerationSoft = promauto.NewCounter(prometheus.CounterOpts{
		Name: "timeline_generation_soft_violations_total",
		Help: "Descriptions kept despite a constraint violation",
	})

	m.GenerationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "timeline_generation_duration_seconds",
		Help:    "Time to produce a description including corrections",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
	})
}

func initDuplicateMetrics(m *Metrics) {
	m.DuplicateEdges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "timeline_duplicate_edges_written_total",
		Help: "Duplicate edges written by window analysis",
	})

	m.DuplicateWindows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timeline_duplicate_windows_total",
		Help: "Window analyses by status",
	}, []string{"status"})

	m.DuplicateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "timeline_duplicate_window_duration_seconds",
		Help:    "Time to analyze one duplicate window",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30},
	})
}

func initSchedulerMetrics(m *Metrics) {
	m.InFlightItems = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "timeline_scheduler_in_flight",
		Help: "Items currently being processed by job class",
	}, []string{"job"})

	m.BatchItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timeline_batch_items_total",
		Help: "Batch items processed by job class and status",
	}, []string{"job", "status"})

	m.ItemDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "timeline_batch_item_duration_seconds",
		Help:    "Time to process one batch item",
		Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300},
	}, []string{"job"})
}

func status(err error) string {
	if err != nil {
		return statusError
	}
	return statusSuccess
}

// ObserveTier records one tier search.
func (p *Provider) ObserveTier(tier domain.Tier, err error, d time.Duration) {
	p.Metrics.TierRequests.WithLabelValues(string(tier), status(err)).Inc()
	p.Metrics.TierDuration.WithLabelValues(string(tier)).Observe(d.Seconds())
}

// ObserveJudgeCall records one call to an external judge.
func (p *Provider) ObserveJudgeCall(judge string, err error, d time.Duration) {
	p.Metrics.JudgeCalls.WithLabelValues(judge, status(err)).Inc()
	p.Metrics.JudgeDuration.WithLabelValues(judge).Observe(d.Seconds())
}

// JudgeVerdict implements consensus.Recorder.
func (p *Provider) JudgeVerdict(judge string, s domain.VerdictStatus) {
	p.Metrics.JudgeVerdicts.WithLabelValues(judge, string(s)).Inc()
}

// Selection implements consensus.Recorder.
func (p *Provider) Selection(mode domain.ResolutionMode, fallbackUsed bool) {
	fallback := "false"
	if fallbackUsed {
		fallback = "true"
	}
	p.Metrics.Selections.WithLabelValues(string(mode), fallback).Inc()
}

// Lookup implements coalescer.Recorder.
func (p *Provider) Lookup(outcome string) {
	p.Metrics.CoalescerLooks.WithLabelValues(outcome).Inc()
}

// Generation implements generator.Recorder.
func (p *Provider) Generation(rounds int, softViolation bool, d time.Duration) {
	p.Metrics.GenerationRounds.Observe(float64(rounds))
	p.Metrics.GenerationDuration.Observe(d.Seconds())
	if softViolation {
		p.Metrics.GenerationSoft.Inc()
	}
}

// WindowAnalyzed implements duplicates.Recorder.
func (p *Provider) WindowAnalyzed(edges int, d time.Duration, err error) {
	p.Metrics.DuplicateWindows.WithLabelValues(status(err)).Inc()
	p.Metrics.DuplicateDuration.Observe(d.Seconds())
	if err == nil {
		p.Metrics.DuplicateEdges.Add(float64(edges))
	}
}

// InFlight implements scheduler.Recorder.
func (p *Provider) InFlight(job string, n int) {
	p.Metrics.InFlightItems.WithLabelValues(job).Set(float64(n))
}

// ItemFinished implements scheduler.Recorder.
func (p *Provider) ItemFinished(job string, err error, d time.Duration) {
	p.Metrics.BatchItems.WithLabelValues(job, status(err)).Inc()
	p.Metrics.ItemDuration.WithLabelValues(job).Observe(d.Seconds())
}

// StartSpan starts a span named name.
func (p *Provider) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return p.Tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}
