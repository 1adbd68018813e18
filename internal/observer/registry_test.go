package observer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/darkwatch/internal/common"
	"github.com/ternarybob/darkwatch/internal/models"
)

func TestRegistry_SubscribeAndReceive(t *testing.T) {
	r := NewRegistry(common.GetLogger())

	ch := r.Subscribe("job-1")
	r.PublishProgress("job-1", 30, "crawling")

	select {
	case event := <-ch:
		assert.Equal(t, models.ObserverProgress, event.Type)
		assert.Equal(t, 30, event.Progress)
		assert.Equal(t, "crawling", event.Message)
	case <-time.After(time.Second):
		t.Fatal("expected progress event")
	}
}

func TestRegistry_SecondSubscribeSupersedesFirst(t *testing.T) {
	r := NewRegistry(common.GetLogger())

	first := r.Subscribe("job-1")
	second := r.Subscribe("job-1")

	// First sink gets the superseded marker and is then closed
	event, ok := <-first
	require.True(t, ok)
	assert.Equal(t, models.ObserverSuperseded, event.Type)
	_, ok = <-first
	assert.False(t, ok, "superseded sink must be closed")

	r.PublishProgress("job-1", 50, "halfway")
	event = <-second
	assert.Equal(t, models.ObserverProgress, event.Type)
}

func TestRegistry_PublishWithoutObserverIsNoop(t *testing.T) {
	r := NewRegistry(common.GetLogger())
	// Must not panic or block
	r.PublishProgress("job-missing", 10, "ignored")
	r.PublishError("job-missing", "ignored")
}

func TestRegistry_FullSinkDropsInsteadOfBlocking(t *testing.T) {
	r := NewRegistry(common.GetLogger())
	r.Subscribe("job-1")

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Nobody drains the sink; publishing far past the buffer must not block
		for i := 0; i < sinkBuffer*3; i++ {
			r.PublishProgress("job-1", i%100, "flood")
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full sink")
	}
}

func TestRegistry_Unsubscribe(t *testing.T) {
	r := NewRegistry(common.GetLogger())

	ch := r.Subscribe("job-1")
	r.Unsubscribe("job-1", ch)

	_, ok := <-ch
	assert.False(t, ok, "unsubscribed sink must be closed")
	assert.False(t, r.HasObserver("job-1"))
}

func TestRegistry_SupersededUnsubscribeLeavesNewSinkAlive(t *testing.T) {
	r := NewRegistry(common.GetLogger())

	first := r.Subscribe("job-1")
	second := r.Subscribe("job-1")

	// Drain the superseded marker and the close
	event, ok := <-first
	require.True(t, ok)
	assert.Equal(t, models.ObserverSuperseded, event.Type)
	_, ok = <-first
	require.False(t, ok)

	// The superseded subscriber's deferred cleanup fires after the
	// replacement registered; it must not close the replacement's sink
	r.Unsubscribe("job-1", first)
	assert.True(t, r.HasObserver("job-1"))

	r.PublishProgress("job-1", 50, "halfway")
	select {
	case event, ok := <-second:
		require.True(t, ok, "second sink was closed by the first client's unsubscribe")
		assert.Equal(t, models.ObserverProgress, event.Type)
	case <-time.After(time.Second):
		t.Fatal("expected progress event on the live sink")
	}

	r.Unsubscribe("job-1", second)
	assert.False(t, r.HasObserver("job-1"))
}

func TestRegistry_CompleteEventShape(t *testing.T) {
	r := NewRegistry(common.GetLogger())
	ch := r.Subscribe("job-1")

	r.PublishComplete("job-1", 7, 3, 1500*time.Millisecond)

	event := <-ch
	assert.Equal(t, models.ObserverComplete, event.Type)
	assert.Equal(t, 7, event.TotalFindings)
	assert.Equal(t, 3, event.URLsCrawled)
	assert.InDelta(t, 1.5, event.TotalTimeSeconds, 0.001)
}
