// Package ratelimit provides rate limiting for WebSocket connections and
// chat events. It implements per-client connection caps and a sliding window
// event limiter to prevent abuse and DoS attacks. A "client" is whatever
// identity the caller keys on: a visitor IP for the widget, an admin account
// ID for the dashboard.
package ratelimit

import (
	"sync"
	"time"

	"github.com/real-rm/supportchat/internal/constants"
)

// ConnectionLimiter limits the number of concurrent connections per client
type ConnectionLimiter struct {
	connections  map[string]int // clientID -> connection count
	maxPerClient int
	mu           sync.RWMutex
}

// NewConnectionLimiter creates a new connection limiter
func NewConnectionLimiter(maxPerClient int) *ConnectionLimiter {
	return &ConnectionLimiter{
		connections:  make(map[string]int),
		maxPerClient: maxPerClient,
	}
}

// Allow checks if a new connection is allowed for the client
func (cl *ConnectionLimiter) Allow(clientID string) bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	count := cl.connections[clientID]
	if count >= cl.maxPerClient {
		return false
	}

	cl.connections[clientID] = count + 1
	return true
}

// Release decrements the connection count for a client
func (cl *ConnectionLimiter) Release(clientID string) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if count, ok := cl.connections[clientID]; ok {
		if count <= 1 {
			delete(cl.connections, clientID)
		} else {
			cl.connections[clientID] = count - 1
		}
	}
}

// GetCount returns the current connection count for a client
func (cl *ConnectionLimiter) GetCount(clientID string) int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return cl.connections[clientID]
}

// MessageLimiter limits the rate of events per client using a sliding window
type MessageLimiter struct {
	events map[string][]time.Time // clientID -> timestamps
	window time.Duration
	limit  int
	mu     sync.RWMutex

	// Cleanup goroutine management
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	cleanupWg       sync.WaitGroup
}

// NewMessageLimiter creates a new message rate limiter
// window: time window for rate limiting (e.g., 1 minute)
// limit: maximum number of events allowed in the window
func NewMessageLimiter(window time.Duration, limit int) *MessageLimiter {
	return &MessageLimiter{
		events:          make(map[string][]time.Time),
		window:          window,
		limit:           limit,
		cleanupInterval: constants.DefaultCleanupInterval,
		stopCleanup:     make(chan struct{}),
	}
}

// Allow checks if an event is allowed based on rate limiting
// Returns true if allowed, false if rate limit exceeded
func (ml *MessageLimiter) Allow(clientID string) bool {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-ml.window)

	// Get existing events for this client
	events, tracked := ml.events[clientID]

	// Bound the tracking map: an unseen client when the map is full first
	// triggers an inline sweep of expired entries, and is denied if the map
	// is still full afterwards
	if !tracked && len(ml.events) >= constants.MaxClientsTracked {
		ml.cleanupLocked(cutoff)
		if len(ml.events) >= constants.MaxClientsTracked {
			return false
		}
	}

	// Filter out old events outside the window
	var recentEvents []time.Time
	for _, t := range events {
		if t.After(cutoff) {
			recentEvents = append(recentEvents, t)
		}
	}

	// Check if we're under the limit
	if len(recentEvents) >= ml.limit {
		return false
	}

	// No else needed: early return pattern (guard clause)
	// A single client never tracks more events than the global cap
	if len(recentEvents) >= constants.MaxEventsPerClient {
		return false
	}

	// Add this event
	recentEvents = append(recentEvents, now)
	ml.events[clientID] = recentEvents

	return true
}

// GetRetryAfter returns the time in milliseconds until the next event is allowed
func (ml *MessageLimiter) GetRetryAfter(clientID string) int {
	ml.mu.RLock()
	defer ml.mu.RUnlock()

	events := ml.events[clientID]
	if len(events) < ml.limit {
		return 0
	}

	// Find the oldest event in the window
	now := time.Now()
	cutoff := now.Add(-ml.window)

	var oldestInWindow time.Time
	for _, t := range events {
		if t.After(cutoff) {
			if oldestInWindow.IsZero() || t.Before(oldestInWindow) {
				oldestInWindow = t
			}
		}
	}

	if oldestInWindow.IsZero() {
		return 0
	}

	// Calculate when the oldest event will expire
	expiresAt := oldestInWindow.Add(ml.window)
	retryAfter := expiresAt.Sub(now)

	if retryAfter < 0 {
		return 0
	}

	return int(retryAfter.Milliseconds())
}

// Reset clears the rate limit history for a client
func (ml *MessageLimiter) Reset(clientID string) {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	delete(ml.events, clientID)
}

// Cleanup removes expired events to prevent memory leaks
// Should be called periodically
func (ml *MessageLimiter) Cleanup() {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	ml.cleanupLocked(time.Now().Add(-ml.window))
}

// cleanupLocked removes expired events. Caller must hold ml.mu.
func (ml *MessageLimiter) cleanupLocked(cutoff time.Time) {
	for clientID, events := range ml.events {
		var recentEvents []time.Time
		for _, t := range events {
			if t.After(cutoff) {
				recentEvents = append(recentEvents, t)
			}
		}

		if len(recentEvents) == 0 {
			delete(ml.events, clientID)
		} else {
			ml.events[clientID] = recentEvents
		}
	}
}

// StartCleanup starts a background goroutine that periodically cleans up expired events
func (ml *MessageLimiter) StartCleanup() {
	ml.cleanupWg.Add(1)
	go func() {
		defer ml.cleanupWg.Done()
		ticker := time.NewTicker(ml.cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				ml.Cleanup()
			case <-ml.stopCleanup:
				return
			}
		}
	}()
}

// StopCleanup stops the cleanup goroutine and waits for it to finish
func (ml *MessageLimiter) StopCleanup() {
	ml.mu.Lock()

	// Only close if channel is not nil and not already closed
	if ml.stopCleanup != nil {
		select {
		case <-ml.stopCleanup:
			// Already closed, do nothing
		default:
			close(ml.stopCleanup)
		}
	}

	// Wait for cleanup goroutine to finish (outside the lock)
	ml.mu.Unlock()
	ml.cleanupWg.Wait()
}
