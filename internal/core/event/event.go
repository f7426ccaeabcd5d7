// Package event is a small in-process bus for job lifecycle notifications.
// It decouples lifecycle observers (structured logging, future metrics)
// from the scheduler and service code paths that emit them.
package event

import (
	"sync"
	"time"
)

type Type string

const (
	JobCreated   Type = "job.created"
	JobStarted   Type = "job.started"
	JobCompleted Type = "job.completed"
	JobFailed    Type = "job.failed"
	JobDeleted   Type = "job.deleted"
	JobExpired   Type = "job.expired"
)

// Event describes one lifecycle transition. Error is set only for
// job.failed.
type Event struct {
	Type      Type
	Timestamp time.Time
	JobID     string
	Profile   string
	Error     string
}

// Handler runs synchronously on the publisher's goroutine; keep it cheap.
type Handler func(Event)

type Bus struct {
	mu     sync.RWMutex
	subs   map[Type][]subscription
	nextID uint64
}

type subscription struct {
	id      uint64
	handler Handler
}

func NewBus() *Bus {
	return &Bus{subs: make(map[Type][]subscription)}
}

func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	b.mu.RLock()
	subs := make([]subscription, len(b.subs[e.Type]))
	copy(subs, b.subs[e.Type])
	b.mu.RUnlock()

	for _, s := range subs {
		s.handler(e)
	}
}

// Subscribe registers a handler for one event type and returns an
// unsubscribe function.
func (b *Bus) Subscribe(t Type, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[t] = append(b.subs[t], subscription{id: id, handler: h})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[t]
		for i, s := range subs {
			if s.id == id {
				b.subs[t] = append(subs[:i], subs[i+1:]...)
				return
			}
		}
	}
}

// SubscribeAll registers a handler for every known event type.
func (b *Bus) SubscribeAll(h Handler) (unsubscribe func()) {
	types := []Type{JobCreated, JobStarted, JobCompleted, JobFailed, JobDeleted, JobExpired}
	unsubs := make([]func(), 0, len(types))
	for _, t := range types {
		unsubs = append(unsubs, b.Subscribe(t, h))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
