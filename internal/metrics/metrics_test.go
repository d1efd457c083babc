package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// TestMetricsRegistration verifies that all metrics are properly registered
func TestMetricsRegistration(t *testing.T) {
	tests := []struct {
		name   string
		metric prometheus.Collector
	}{
		{"WebSocketConnections", WebSocketConnections},
		{"AdminConnections", AdminConnections},
		{"MessagesReceived", MessagesReceived},
		{"MessagesSent", MessagesSent},
		{"MessagesStored", MessagesStored},
		{"BroadcastDrops", BroadcastDrops},
		{"ChatsCreated", ChatsCreated},
		{"ChatsClosed", ChatsClosed},
		{"ActiveChats", ActiveChats},
		{"AIRequests", AIRequests},
		{"AIFallbacks", AIFallbacks},
		{"AILatency", AILatency},
		{"MessageErrors", MessageErrors},
		{"AdminLogins", AdminLogins},
		{"HTTPRequestDuration", HTTPRequestDuration},
		{"MongoOperationDuration", MongoOperationDuration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.metric == nil {
				t.Errorf("Metric %s is nil", tt.name)
			}
		})
	}
}

// TestWebSocketConnectionsMetric verifies the WebSocket connections gauge
func TestWebSocketConnectionsMetric(t *testing.T) {
	var m dto.Metric
	if err := WebSocketConnections.Write(&m); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	initialValue := m.GetGauge().GetValue()

	WebSocketConnections.Inc()
	if err := WebSocketConnections.Write(&m); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	afterInc := m.GetGauge().GetValue()

	if afterInc != initialValue+1 {
		t.Errorf("Expected value %f after Inc(), got %f", initialValue+1, afterInc)
	}

	WebSocketConnections.Dec()
	if err := WebSocketConnections.Write(&m); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	afterDec := m.GetGauge().GetValue()

	if afterDec != initialValue {
		t.Errorf("Expected value %f after Dec(), got %f", initialValue, afterDec)
	}
}

// TestChatLifecycleMetrics verifies the chat counters and gauge
func TestChatLifecycleMetrics(t *testing.T) {
	var m dto.Metric

	if err := ChatsCreated.Write(&m); err != nil {
		t.Fatalf("Failed to write ChatsCreated metric: %v", err)
	}
	initialCreated := m.GetCounter().GetValue()

	ChatsCreated.Inc()
	ActiveChats.Inc()

	if err := ChatsCreated.Write(&m); err != nil {
		t.Fatalf("Failed to write ChatsCreated metric: %v", err)
	}
	if got := m.GetCounter().GetValue(); got != initialCreated+1 {
		t.Errorf("Expected ChatsCreated %f, got %f", initialCreated+1, got)
	}

	if err := ChatsClosed.Write(&m); err != nil {
		t.Fatalf("Failed to write ChatsClosed metric: %v", err)
	}
	initialClosed := m.GetCounter().GetValue()

	ChatsClosed.Inc()
	ActiveChats.Dec()

	if err := ChatsClosed.Write(&m); err != nil {
		t.Fatalf("Failed to write ChatsClosed metric: %v", err)
	}
	if got := m.GetCounter().GetValue(); got != initialClosed+1 {
		t.Errorf("Expected ChatsClosed %f, got %f", initialClosed+1, got)
	}
}

// TestLabeledMetrics verifies the labeled counters accept their label sets
func TestLabeledMetrics(t *testing.T) {
	for _, sender := range []string{"user", "admin", "ai"} {
		t.Run(sender, func(t *testing.T) {
			MessagesStored.WithLabelValues(sender).Inc()
		})
	}

	for _, outcome := range []string{"success", "failure"} {
		AdminLogins.WithLabelValues(outcome).Inc()
	}

	HTTPRequestDuration.WithLabelValues("GET", "/chats", "200").Observe(0.05)
	MongoOperationDuration.WithLabelValues("insert_message").Observe(0.01)
}

// TestAIMetrics verifies AI counters and latency histogram
func TestAIMetrics(t *testing.T) {
	var m dto.Metric

	if err := AIRequests.Write(&m); err != nil {
		t.Fatalf("Failed to write AIRequests metric: %v", err)
	}
	initial := m.GetCounter().GetValue()

	AIRequests.Inc()
	AIFallbacks.Inc()
	AILatency.Observe(0.5)

	if err := AIRequests.Write(&m); err != nil {
		t.Fatalf("Failed to write AIRequests metric: %v", err)
	}
	if got := m.GetCounter().GetValue(); got != initial+1 {
		t.Errorf("Expected AIRequests %f, got %f", initial+1, got)
	}
}
