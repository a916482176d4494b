package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Engine collects transform engine observations. It implements engine.Recorder.
type Engine struct {
	NoOutputTotal   prometheus.Counter
	ToolInvocations *prometheus.CounterVec
	ToolDuration    *prometheus.HistogramVec
}

func InitializeEngineMetrics(registry prometheus.Registerer, constLabels prometheus.Labels) *Engine {
	metrics := &Engine{
		NoOutputTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "gif_engine_no_output_total",
			Help:        "Number of processed images that failed verification",
			ConstLabels: constLabels,
		}),
		ToolInvocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "gif_engine_tool_invocations_total",
			Help:        "Number of external tool invocations by outcome",
			ConstLabels: constLabels,
		}, []string{"tool", "status"}),
		ToolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "gif_engine_tool_duration_seconds",
			Help:        "External tool run time in seconds",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"tool"}),
	}

	registry.MustRegister(metrics.NoOutputTotal, metrics.ToolInvocations, metrics.ToolDuration)

	return metrics
}

func (m *Engine) NoOutput() {
	m.NoOutputTotal.Inc()
}

func (m *Engine) ToolInvocation(tool, status string, d time.Duration) {
	m.ToolInvocations.WithLabelValues(tool, status).Inc()
	m.ToolDuration.WithLabelValues(tool).Observe(d.Seconds())
}
