package llm

import "github.com/prometheus/client_golang/prometheus"

var (
	generationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iabackend_llm_generations_total",
			Help: "Generation attempts by provider and outcome (ok, error, canceled).",
		},
		[]string{"provider", "status"},
	)
	generationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "iabackend_llm_generation_duration_seconds",
			Help:    "Wall time from dispatch to the end of the stream.",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"provider"},
	)
	tokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iabackend_llm_tokens_total",
			Help: "Tokens metered per provider, reported or estimated.",
		},
		[]string{"provider", "direction"},
	)
	fragmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iabackend_llm_fragments_total",
			Help: "Text fragments forwarded to callers.",
		},
		[]string{"provider"},
	)
)

func init() {
	prometheus.MustRegister(generationsTotal, generationDuration, tokensTotal, fragmentsTotal)
}
