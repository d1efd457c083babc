package ratelimit

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Cleanup must remove all expired events so the tracking map does not grow
// with every client that ever connected.
func TestCleanup_RemovesExpiredEvents(t *testing.T) {
	window := 100 * time.Millisecond
	ml := NewMessageLimiter(window, 10)

	numClients := 100
	for i := 0; i < numClients; i++ {
		clientID := fmt.Sprintf("client-%d", i)
		for j := 0; j < 5; j++ {
			allowed := ml.Allow(clientID)
			require.True(t, allowed, "Should allow events under limit")
		}
	}

	ml.mu.RLock()
	eventsBefore := len(ml.events)
	ml.mu.RUnlock()
	assert.Equal(t, numClients, eventsBefore)

	// Wait for events to expire
	time.Sleep(window + 50*time.Millisecond)

	ml.Cleanup()

	ml.mu.RLock()
	eventsAfter := len(ml.events)
	ml.mu.RUnlock()
	assert.Equal(t, 0, eventsAfter, "All expired events should be removed")
}

func TestCleanup_PreservesActiveEvents(t *testing.T) {
	window := 200 * time.Millisecond
	ml := NewMessageLimiter(window, 10)

	for i := 0; i < 50; i++ {
		ml.Allow(fmt.Sprintf("old-client-%d", i))
	}

	// Wait for the first batch to expire
	time.Sleep(window + 50*time.Millisecond)

	for i := 0; i < 50; i++ {
		ml.Allow(fmt.Sprintf("new-client-%d", i))
	}

	ml.mu.RLock()
	clientsBefore := len(ml.events)
	ml.mu.RUnlock()
	assert.Equal(t, 100, clientsBefore)

	ml.Cleanup()

	ml.mu.RLock()
	clientsAfter := len(ml.events)
	ml.mu.RUnlock()
	assert.Equal(t, 50, clientsAfter, "Only the active clients should survive cleanup")
}

// The limiter sweeps expired entries inline when the tracking map hits its
// cap, so a flood of one-shot clients cannot grow it without bound.
func TestAllow_TrackingMapBounded(t *testing.T) {
	window := 50 * time.Millisecond
	ml := NewMessageLimiter(window, 10)

	for i := 0; i < 1000; i++ {
		ml.Allow(fmt.Sprintf("burst-client-%d", i))
	}

	// Expire everything, then admit a fresh client: the inline sweep path
	// must leave the map holding only live entries
	time.Sleep(window + 50*time.Millisecond)
	assert.True(t, ml.Allow("fresh-client"))

	ml.Cleanup()

	ml.mu.RLock()
	tracked := len(ml.events)
	ml.mu.RUnlock()
	assert.Equal(t, 1, tracked)
}

func TestStartStopCleanup(t *testing.T) {
	ml := NewMessageLimiter(50*time.Millisecond, 10)
	ml.cleanupInterval = 25 * time.Millisecond

	ml.Allow("client-1")

	ml.StartCleanup()

	// Wait long enough for the background sweep to fire after expiry
	time.Sleep(150 * time.Millisecond)

	ml.mu.RLock()
	tracked := len(ml.events)
	ml.mu.RUnlock()
	assert.Equal(t, 0, tracked, "Background cleanup should have swept the expired client")

	// StopCleanup must be safe to call twice
	ml.StopCleanup()
	ml.StopCleanup()
}
