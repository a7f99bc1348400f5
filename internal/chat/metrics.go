package chat

import "github.com/prometheus/client_golang/prometheus"

var (
	turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iabackend_chat_turns_total",
			Help: "Chat turns by branch (plain, catalog, none) and outcome (ok, error, canceled).",
		},
		[]string{"branch", "outcome"},
	)
	turnDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "iabackend_chat_turn_duration_seconds",
			Help:    "Wall time of a chat turn including classification and persistence.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"branch"},
	)
	documentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iabackend_chat_documents_total",
			Help: "Attachments considered for text extraction, by kind and result.",
		},
		[]string{"kind", "result"},
	)
)

func init() {
	prometheus.MustRegister(turnsTotal, turnDuration, documentsTotal)
}
