package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "fyrbuild"
	subsystem = "codegen"
)

// Codegen holds the prometheus metrics of the codegen driver.
// A fresh value is created per session, so counters start at zero.
type Codegen struct {
	UnitsCompiled   prometheus.Counter
	UnitsReused     *prometheus.CounterVec
	UnitsFailed     prometheus.Counter
	ActiveCompiles  prometheus.Gauge
	ArtifactBytes   *prometheus.CounterVec
	CompileDuration *prometheus.HistogramVec
}

// New ...
func New() *Codegen {
	return &Codegen{
		UnitsCompiled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "units_compiled_total",
			Help:      "Number of codegen units compiled from scratch.",
		}),
		UnitsReused: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "units_reused_total",
				Help:      "Number of codegen units whose cached objects were reused.",
			},
			[]string{"reuse"}, // "pre-lto" or "post-lto"
		),
		UnitsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "units_failed_total",
			Help:      "Number of codegen units that failed to compile or to be copied from the cache.",
		}),
		ActiveCompiles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "active_compiles",
			Help:      "Number of codegen units being compiled right now.",
		}),
		ArtifactBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "artifact_bytes_total",
				Help:      "Bytes written to temporary artifacts per kind.",
			},
			[]string{"kind"},
		),
		CompileDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "compile_duration_seconds",
				Help:      "Time spent compiling one codegen unit.",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16), // 100µs to ~3s
			},
			[]string{"result"}, // "success" or "error"
		),
	}
}

// ObserveCompile records the outcome of compiling one unit.
func (m *Codegen) ObserveCompile(durationSeconds float64, err error) {
	result := "success"
	if err != nil {
		result = "error"
		m.UnitsFailed.Inc()
	} else {
		m.UnitsCompiled.Inc()
	}
	m.CompileDuration.WithLabelValues(result).Observe(durationSeconds)
}

// ObserveReuse records a unit copied out of the incremental cache.
func (m *Codegen) ObserveReuse(reuse string, err error) {
	if err != nil {
		m.UnitsFailed.Inc()
		return
	}
	m.UnitsReused.WithLabelValues(reuse).Inc()
}

// ObserveArtifact ...
func (m *Codegen) ObserveArtifact(kind string, size int64) {
	m.ArtifactBytes.WithLabelValues(kind).Add(float64(size))
}

// MustRegister registers the metrics with the given Prometheus registry.
func (m *Codegen) MustRegister(registry prometheus.Registerer) {
	registry.MustRegister(
		m.UnitsCompiled,
		m.UnitsReused,
		m.UnitsFailed,
		m.ActiveCompiles,
		m.ArtifactBytes,
		m.CompileDuration,
	)
}
