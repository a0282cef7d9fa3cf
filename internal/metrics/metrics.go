package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MessagesSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circles_messages_submitted_total",
			Help: "Messages inserted into the feed, by author kind (human or ai).",
		},
		[]string{"author_kind"},
	)

	Generations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circles_generations_total",
			Help: "Generated reply requests, by result.",
		},
		[]string{"result"},
	)

	GenerationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "circles_generation_duration_seconds",
			Help:    "Latency of calls to the generation service.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		},
	)

	FeedReloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circles_feed_reloads_total",
			Help: "Feed reloads, by trigger (notify, local, client) and result.",
		},
		[]string{"trigger", "result"},
	)

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "circles_active_sessions",
			Help: "Connected feed sessions holding a notification subscription.",
		},
	)
)

func init() {
	prometheus.MustRegister(MessagesSubmitted)
	prometheus.MustRegister(Generations)
	prometheus.MustRegister(GenerationDuration)
	prometheus.MustRegister(FeedReloads)
	prometheus.MustRegister(ActiveSessions)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
