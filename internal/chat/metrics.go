package chat

import "github.com/prometheus/client_golang/prometheus"

var (
	ConnectedSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "quickchat_connected_sessions",
		Help: "Number of currently connected sessions",
	})

	EventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quickchat_events_total",
		Help: "Total registry events processed by type",
	}, []string{"type"})

	EventProcessingDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "quickchat_event_processing_seconds",
		Help:    "Time to process each registry event type",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})

	HistorySize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "quickchat_history_size",
		Help: "Number of messages retained in the history log",
	})

	DroppedMessages = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "quickchat_dropped_messages_total",
		Help: "Messages dropped because a session's outbox was full",
	})
)

func init() {
	prometheus.MustRegister(ConnectedSessions)
	prometheus.MustRegister(EventsTotal)
	prometheus.MustRegister(EventProcessingDuration)
	prometheus.MustRegister(HistorySize)
	prometheus.MustRegister(DroppedMessages)
}
