package hub

import (
	"fmt"
	"sync"
	"testing"

	"github.com/real-rm/golog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSubscriber collects frames in memory; full simulates a saturated
// send buffer.
type fakeSubscriber struct {
	id     string
	mu     sync.Mutex
	frames [][]byte
	full   bool
}

func (f *fakeSubscriber) ID() string { return f.id }

func (f *fakeSubscriber) SafeSend(data []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return false
	}
	f.frames = append(f.frames, data)
	return true
}

func (f *fakeSubscriber) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.frames))
	for i, frame := range f.frames {
		out[i] = string(frame)
	}
	return out
}

func newTestHub(t *testing.T) *Hub {
	t.Helper()

	logger, err := golog.InitLog(golog.LogConfig{
		Level:          "error",
		StandardOutput: false,
		Dir:            t.TempDir(),
		InfoFile:       "info.log",
		WarnFile:       "warn.log",
		ErrorFile:      "error.log",
	})
	require.NoError(t, err)
	t.Cleanup(func() { logger.Close() })

	return NewHub(logger)
}

func TestPublish_ReachesAllTopicSubscribers(t *testing.T) {
	h := newTestHub(t)

	room := &fakeSubscriber{id: "visitor-1"}
	admin := &fakeSubscriber{id: "admin-1"}
	other := &fakeSubscriber{id: "visitor-2"}

	h.Subscribe("session_1_roomtopic", room)
	h.Subscribe("session_1_roomtopic", admin)
	h.Subscribe("session_2_othertopic", other)

	h.Publish("session_1_roomtopic", []byte("hello"))

	assert.Equal(t, []string{"hello"}, room.received())
	assert.Equal(t, []string{"hello"}, admin.received())
	assert.Empty(t, other.received(), "other rooms must not receive the frame")
}

func TestPublish_UnknownTopicIsNoop(t *testing.T) {
	h := newTestHub(t)

	// Must not panic or block
	h.Publish("session_0_notopic", []byte("into the void"))
}

func TestPublishExcept_SkipsSender(t *testing.T) {
	h := newTestHub(t)

	sender := &fakeSubscriber{id: "visitor-1"}
	peer := &fakeSubscriber{id: "admin-1"}

	h.Subscribe("session_1_roomtopic", sender)
	h.Subscribe("session_1_roomtopic", peer)

	h.PublishExcept("session_1_roomtopic", "visitor-1", []byte("typing"))

	assert.Empty(t, sender.received(), "typing indicator must not echo to its sender")
	assert.Equal(t, []string{"typing"}, peer.received())
}

func TestPublish_SlowSubscriberIsSkipped(t *testing.T) {
	h := newTestHub(t)

	slow := &fakeSubscriber{id: "slow-1", full: true}
	healthy := &fakeSubscriber{id: "healthy-1"}

	h.Subscribe(TopicAdmins, slow)
	h.Subscribe(TopicAdmins, healthy)

	h.Publish(TopicAdmins, []byte("update"))

	// The slow subscriber's failure must not starve the healthy one
	assert.Equal(t, []string{"update"}, healthy.received())
	assert.Empty(t, slow.received())
}

func TestUnsubscribe(t *testing.T) {
	h := newTestHub(t)

	sub := &fakeSubscriber{id: "visitor-1"}
	h.Subscribe("session_1_roomtopic", sub)
	require.Equal(t, 1, h.TopicSize("session_1_roomtopic"))

	h.Unsubscribe("session_1_roomtopic", "visitor-1")
	assert.Equal(t, 0, h.TopicSize("session_1_roomtopic"))

	h.Publish("session_1_roomtopic", []byte("gone"))
	assert.Empty(t, sub.received())
}

func TestDrop_RemovesFromAllTopics(t *testing.T) {
	h := newTestHub(t)

	admin := &fakeSubscriber{id: "admin-1"}
	h.Subscribe(TopicAdmins, admin)
	h.Subscribe("session_1_roomtopic", admin)
	h.Subscribe("session_2_othertopic", admin)

	h.Drop("admin-1")

	assert.Equal(t, 0, h.TopicSize(TopicAdmins))
	assert.Equal(t, 0, h.TopicSize("session_1_roomtopic"))
	assert.Equal(t, 0, h.TopicSize("session_2_othertopic"))
}

func TestSubscribe_Idempotent(t *testing.T) {
	h := newTestHub(t)

	sub := &fakeSubscriber{id: "visitor-1"}
	h.Subscribe("session_1_roomtopic", sub)
	h.Subscribe("session_1_roomtopic", sub)

	assert.Equal(t, 1, h.TopicSize("session_1_roomtopic"))

	h.Publish("session_1_roomtopic", []byte("once"))
	assert.Equal(t, []string{"once"}, sub.received())
}

func TestHub_ConcurrentPublishAndSubscribe(t *testing.T) {
	h := newTestHub(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			sub := &fakeSubscriber{id: fmt.Sprintf("sub-%d", n)}
			h.Subscribe(TopicAdmins, sub)
			h.Drop(sub.ID())
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				h.Publish(TopicAdmins, []byte("burst"))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, h.TopicSize(TopicAdmins))
}
