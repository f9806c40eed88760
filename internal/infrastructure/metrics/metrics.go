// Package metrics exposes agent loop metrics to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/0xcro3dile/ragtutor/internal/domain/ports"
)

const namespace = "ragtutor"

// Recorder implements ports.LoopObserver on a private registry.
type Recorder struct {
	registry     *prometheus.Registry
	turns        *prometheus.CounterVec
	turnSteps    prometheus.Histogram
	turnLatency  prometheus.Histogram
	toolCalls    *prometheus.CounterVec
	toolLatency  *prometheus.HistogramVec
	knowledgeLen prometheus.GaugeFunc
}

var _ ports.LoopObserver = (*Recorder)(nil)

// NewRecorder registers the loop metrics. knowledgeSize, when non-nil,
// is sampled on every scrape.
func NewRecorder(knowledgeSize func() int) *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Agent turns by outcome.",
		}, []string{"outcome"}),
		turnSteps: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_steps",
			Help:      "Tool-call steps taken per turn.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 10, 15},
		}),
		turnLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Wall time of a full agent turn.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8),
		}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool executions by tool and result.",
		}, []string{"tool", "result"}),
		toolLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_duration_seconds",
			Help:      "Tool execution latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.turns, r.turnSteps, r.turnLatency, r.toolCalls, r.toolLatency,
	)

	if knowledgeSize != nil {
		r.knowledgeLen = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "knowledge_chunks",
			Help:      "Chunks currently held by the knowledge store.",
		}, func() float64 { return float64(knowledgeSize()) })
		r.registry.MustRegister(r.knowledgeLen)
	}
	return r
}

// ToolExecuted records one tool dispatch.
func (r *Recorder) ToolExecuted(tool string, latencyMs int64, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.toolCalls.WithLabelValues(tool, result).Inc()
	r.toolLatency.WithLabelValues(tool).Observe(float64(latencyMs) / 1000)
}

// TurnFinished records the end of a turn.
func (r *Recorder) TurnFinished(outcome ports.TurnOutcome, steps int, latencyMs int64) {
	r.turns.WithLabelValues(string(outcome)).Inc()
	r.turnSteps.Observe(float64(steps))
	r.turnLatency.Observe(float64(latencyMs) / 1000)
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

