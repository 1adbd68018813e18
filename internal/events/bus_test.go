package events

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/darkwatch/internal/common"
	"github.com/ternarybob/darkwatch/internal/models"
)

func TestBus_PublishReachesSubscriber(t *testing.T) {
	bus := NewBus(common.GetLogger())

	received := make(chan models.SystemEvent, 1)
	require.NoError(t, bus.Subscribe(models.EventJobCreated, func(ctx context.Context, e models.SystemEvent) error {
		received <- e
		return nil
	}))

	bus.Publish(context.Background(), models.EventJobCreated, "job-1", map[string]interface{}{"target": "example.com"})

	select {
	case event := <-received:
		assert.Equal(t, "job-1", event.JobID)
		assert.Equal(t, "example.com", event.Payload["target"])
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive event")
	}
}

func TestBus_RingBounded(t *testing.T) {
	bus := NewBus(common.GetLogger())

	for i := 0; i < ringCapacity+50; i++ {
		bus.Publish(context.Background(), models.EventJobCreated, fmt.Sprintf("job-%d", i), nil)
	}

	recent := bus.Recent(0)
	require.Len(t, recent, ringCapacity)
	// Oldest surviving entry is the 51st published
	assert.Equal(t, "job-50", recent[0].JobID)
	assert.Equal(t, fmt.Sprintf("job-%d", ringCapacity+49), recent[len(recent)-1].JobID)
}

func TestBus_RecentLimit(t *testing.T) {
	bus := NewBus(common.GetLogger())

	for i := 0; i < 10; i++ {
		bus.Publish(context.Background(), models.EventJobCompleted, fmt.Sprintf("job-%d", i), nil)
	}

	recent := bus.Recent(3)
	require.Len(t, recent, 3)
	assert.Equal(t, "job-7", recent[0].JobID)
	assert.Equal(t, "job-9", recent[2].JobID)
}

func TestBus_HandlerErrorDoesNotPropagate(t *testing.T) {
	bus := NewBus(common.GetLogger())

	var wg sync.WaitGroup
	wg.Add(1)
	require.NoError(t, bus.Subscribe(models.EventJobFailed, func(ctx context.Context, e models.SystemEvent) error {
		defer wg.Done()
		return fmt.Errorf("handler exploded")
	}))

	// Publish must not panic or return an error path to the caller
	bus.Publish(context.Background(), models.EventJobFailed, "job-1", nil)
	wg.Wait()
}
