package event_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petergeneric/whisperx-windows-service/internal/core/event"
)

func TestPublishDeliversToMatchingSubscribers(t *testing.T) {
	bus := event.NewBus()

	var got []event.Event
	bus.Subscribe(event.JobCompleted, func(e event.Event) {
		got = append(got, e)
	})

	bus.Publish(event.Event{Type: event.JobCreated, JobID: "a"})
	bus.Publish(event.Event{Type: event.JobCompleted, JobID: "b"})

	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].JobID)
	assert.False(t, got[0].Timestamp.IsZero(), "publish stamps the event")
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := event.NewBus()

	count := 0
	unsub := bus.Subscribe(event.JobFailed, func(event.Event) { count++ })

	bus.Publish(event.Event{Type: event.JobFailed})
	unsub()
	bus.Publish(event.Event{Type: event.JobFailed})

	assert.Equal(t, 1, count)
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	bus := event.NewBus()

	unsub := bus.Subscribe(event.JobDeleted, func(event.Event) {})
	keep := 0
	bus.Subscribe(event.JobDeleted, func(event.Event) { keep++ })

	unsub()
	unsub()
	bus.Publish(event.Event{Type: event.JobDeleted})

	assert.Equal(t, 1, keep, "other subscribers survive repeated unsubscribe")
}

func TestSubscribeAllSeesEveryType(t *testing.T) {
	bus := event.NewBus()

	var seen []event.Type
	unsub := bus.SubscribeAll(func(e event.Event) {
		seen = append(seen, e.Type)
	})

	all := []event.Type{
		event.JobCreated, event.JobStarted, event.JobCompleted,
		event.JobFailed, event.JobDeleted, event.JobExpired,
	}
	for _, typ := range all {
		bus.Publish(event.Event{Type: typ})
	}
	assert.Equal(t, all, seen)

	unsub()
	bus.Publish(event.Event{Type: event.JobCreated})
	assert.Len(t, seen, len(all))
}

func TestConcurrentPublishAndSubscribe(t *testing.T) {
	bus := event.NewBus()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				bus.Publish(event.Event{Type: event.JobStarted, JobID: "x"})
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				unsub := bus.Subscribe(event.JobStarted, func(event.Event) {})
				unsub()
			}
		}()
	}
	wg.Wait()
}
