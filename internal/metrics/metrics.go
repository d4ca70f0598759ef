package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry = prometheus.NewRegistry()

	ChatTurns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mchat",
		Name:      "chat_turns_total",
		Help:      "Chat turns by mode (send, stream) and result.",
	}, []string{"mode", "result"})

	ChatLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mchat",
		Name:      "chat_turn_seconds",
		Help:      "Wall time of a chat turn.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"mode"})

	StreamFragments = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mchat",
		Name:      "stream_fragments_total",
		Help:      "Fragments forwarded to streaming clients.",
	})

	RetrievalHits = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mchat",
		Name:      "retrieval_hits",
		Help:      "Context items returned per retrieval.",
		Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
	}, []string{"source"})

	DocumentsParsed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mchat",
		Name:      "documents_parsed_total",
		Help:      "Document parse attempts by resulting status.",
	}, []string{"status"})

	JobRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mchat",
		Name:      "job_runs_total",
		Help:      "Background job runs by job and result.",
	}, []string{"job", "result"})

	ConversationLocks = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "mchat",
		Name:      "conversation_locks",
		Help:      "Live per-conversation locks.",
	}, func() float64 { return float64(lockCount()) })
)

var lockCount = func() int { return 0 }

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		ChatTurns, ChatLatency, StreamFragments, RetrievalHits, DocumentsParsed, JobRuns, ConversationLocks,
	)
}

// TrackLocks exposes the size of a lock registry as a gauge.
func TrackLocks(fn func() int) {
	if fn != nil {
		lockCount = fn
	}
}

func ObserveTurn(mode string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	ChatTurns.WithLabelValues(mode, result).Inc()
	ChatLatency.WithLabelValues(mode).Observe(time.Since(start).Seconds())
}

func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
