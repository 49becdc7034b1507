package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	processedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reconciliation",
		Subsystem: "ingest",
		Name:      "messages_processed_total",
		Help:      "Number of sync messages successfully upserted.",
	}, []string{"event_type"})

	handlerErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reconciliation",
		Subsystem: "ingest",
		Name:      "handler_errors_total",
		Help:      "Number of handler errors grouped by event type.",
	}, []string{"event_type"})

	skippedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reconciliation",
		Subsystem: "ingest",
		Name:      "messages_skipped_total",
		Help:      "Number of permanently unprocessable messages committed without upsert.",
	}, []string{"event_type"})

	decodeErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reconciliation",
		Subsystem: "ingest",
		Name:      "decode_errors_total",
		Help:      "Number of decode failures per topic.",
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(processedCounter, handlerErrorCounter, skippedCounter, decodeErrorCounter)
}

func recordProcessed(eventType string) {
	processedCounter.WithLabelValues(eventType).Inc()
}

func recordHandlerError(eventType string) {
	handlerErrorCounter.WithLabelValues(eventType).Inc()
}

func recordSkipped(eventType string) {
	skippedCounter.WithLabelValues(eventType).Inc()
}

func recordDecodeError(topic string) {
	decodeErrorCounter.WithLabelValues(topic).Inc()
}
