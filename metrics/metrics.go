package metrics

import (
	"fmt"
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Connection Metrics
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "broker_connections_active",
		Help: "The current number of active WebSocket connections.",
	})
	TotalConnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "broker_connections_total",
		Help: "The total number of WebSocket connections accepted.",
	})
	MessagesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "broker_messages_received_total",
		Help: "The total number of messages received from clients.",
	})
	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "broker_messages_sent_total",
		Help: "The total number of messages sent to clients.",
	})

	// Matching Metrics
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "broker_queue_depth",
		Help: "The current number of users waiting for a buddy.",
	})
	MatchesMade = promauto.NewCounter(prometheus.CounterOpts{
		Name: "broker_matches_made_total",
		Help: "The total number of successful pairings.",
	})
	MatchTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "broker_match_timeouts_total",
		Help: "The total number of queue entries that expired unmatched.",
	})
	MatchWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "broker_match_wait_seconds",
		Help:    "Time spent in the queue before a successful match.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})

	// Session Metrics
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "broker_sessions_active",
		Help: "The current number of active paired sessions.",
	})
	PartnerNotifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "broker_partner_notifications_total",
		Help: "The total number of partner notifications delivered, by kind.",
	}, []string{"kind"})

	// Stream Metrics
	StreamEventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "broker_stream_events_published_total",
		Help: "The total number of lifecycle events published to the stream.",
	}, []string{"stream_type"})
	StreamPublishRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "broker_stream_publish_retries_total",
		Help: "The total number of retries when publishing to the stream.",
	}, []string{"stream_type"})
)

// StartServer starts the HTTP server for Prometheus metrics.
func StartServer(port int, path string) {
	http.Handle(path, promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	log.Printf("Starting metrics server on %s%s", addr, path)

	go func() {
		if err := http.ListenAndServe(addr, nil); err != nil {
			log.Fatalf("Failed to start metrics server: %v", err)
		}
	}()
}
