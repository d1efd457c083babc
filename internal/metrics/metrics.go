// Package metrics provides Prometheus metrics collection for the supportchat application.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebSocketConnections tracks the current number of active WebSocket connections
	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "supportchat_websocket_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// AdminConnections tracks the current number of connected admin dashboards
	AdminConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "supportchat_admin_connections_total",
		Help: "Current number of connected admin dashboards",
	})

	// MessagesReceived tracks the total number of messages received from clients
	MessagesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "supportchat_messages_received_total",
		Help: "Total number of messages received from clients",
	})

	// MessagesSent tracks the total number of messages sent to clients
	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "supportchat_messages_sent_total",
		Help: "Total number of messages sent to clients",
	})

	// MessagesStored tracks persisted messages by sender type
	MessagesStored = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "supportchat_messages_stored_total",
		Help: "Total number of messages persisted by sender type",
	}, []string{"sender"})

	// BroadcastDrops tracks messages dropped because a subscriber's send buffer was full
	BroadcastDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "supportchat_broadcast_drops_total",
		Help: "Total number of broadcast frames dropped due to full send buffers",
	})

	// ChatsCreated tracks the total number of chat sessions created
	ChatsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "supportchat_chats_created_total",
		Help: "Total number of chat sessions created",
	})

	// ChatsClosed tracks the total number of chat sessions closed
	ChatsClosed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "supportchat_chats_closed_total",
		Help: "Total number of chat sessions closed",
	})

	// ActiveChats tracks the current number of active chat sessions
	ActiveChats = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "supportchat_active_chats_total",
		Help: "Current number of active chat sessions",
	})

	// AIRequests tracks the total number of AI completion requests
	AIRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "supportchat_ai_requests_total",
		Help: "Total number of AI completion requests",
	})

	// AIFallbacks tracks responses served from the canned fallback instead of the AI provider
	AIFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "supportchat_ai_fallbacks_total",
		Help: "Total number of responses served from the keyword fallback",
	})

	// AILatency tracks the latency of AI completion requests
	AILatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "supportchat_ai_latency_seconds",
		Help:    "Latency of AI completion requests in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// MessageErrors tracks the total number of message processing errors
	MessageErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "supportchat_message_errors_total",
		Help: "Total number of message processing errors",
	})

	// AdminLogins tracks login attempts by outcome
	AdminLogins = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "supportchat_admin_logins_total",
		Help: "Total number of admin login attempts by outcome",
	}, []string{"outcome"})

	// HTTPRequestDuration tracks HTTP handler latency by method, path, and status
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "supportchat_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	// MongoOperationDuration tracks database operation latency by operation name
	MongoOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "supportchat_mongo_operation_duration_seconds",
		Help:    "MongoDB operation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
)
