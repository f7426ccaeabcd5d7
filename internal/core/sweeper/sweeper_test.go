package sweeper_test

import (
	"context"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petergeneric/whisperx-windows-service/internal/core/engine"
	"github.com/petergeneric/whisperx-windows-service/internal/core/event"
	"github.com/petergeneric/whisperx-windows-service/internal/core/job"
	"github.com/petergeneric/whisperx-windows-service/internal/core/queue"
	"github.com/petergeneric/whisperx-windows-service/internal/core/scheduler"
	"github.com/petergeneric/whisperx-windows-service/internal/core/service"
	"github.com/petergeneric/whisperx-windows-service/internal/core/supervisor"
	"github.com/petergeneric/whisperx-windows-service/internal/core/sweeper"
)

// newStack builds a service around an idle scheduler; no scheduler loop
// runs, so jobs stay queued and deletion never has a process to cancel.
func newStack(t *testing.T, timeout time.Duration) (*job.Store, *service.Service, *event.Bus, *sweeper.Sweeper) {
	t.Helper()
	store := job.NewStore()
	q := queue.New()
	bus := event.NewBus()
	profiles := map[string]engine.Profile{"default": {Engine: "whisperx"}}
	sup := supervisor.New(engine.NewRegistry(), "", t.TempDir())
	sched := scheduler.New(store, q, sup, profiles, bus, time.Second)
	svc := service.New(store, q, sched, profiles, bus)
	return store, svc, bus, sweeper.New(store, svc, bus, time.Minute, timeout)
}

func TestSweepRemovesStaleJobs(t *testing.T) {
	store, svc, _, sw := newStack(t, 30*time.Minute)

	a, err := svc.Submit("default", "", job.Overrides{})
	require.NoError(t, err)
	b, err := svc.Submit("default", "", job.Overrides{})
	require.NoError(t, err)

	// A sweep an hour from now finds both jobs unpolled past the timeout.
	removed := sw.Sweep(time.Now().Add(time.Hour))
	assert.Equal(t, 2, removed)
	assert.Equal(t, 0, store.Len())

	_, err = svc.Status(a.ID)
	assert.ErrorIs(t, err, service.ErrNotFound)
	_, err = svc.Status(b.ID)
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestSweepKeepsRecentlyPolledJobs(t *testing.T) {
	store, svc, _, sw := newStack(t, 30*time.Minute)

	j, err := svc.Submit("default", "", job.Overrides{})
	require.NoError(t, err)

	removed := sw.Sweep(time.Now().Add(10 * time.Minute))
	assert.Zero(t, removed)

	_, ok := store.Peek(j.ID)
	assert.True(t, ok)
}

func TestSweepPublishesExpiredEvents(t *testing.T) {
	_, svc, bus, sw := newStack(t, time.Nanosecond)

	var mu sync.Mutex
	var expired []string
	bus.Subscribe(event.JobExpired, func(e event.Event) {
		mu.Lock()
		expired = append(expired, e.JobID)
		mu.Unlock()
	})

	j, err := svc.Submit("default", "", job.Overrides{})
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	removed := sw.Sweep(time.Now())
	assert.Equal(t, 1, removed)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{j.ID}, expired)
}

// sleepEngine holds the worker for far longer than any test timeout; the
// only way past it is killing the process.
type sleepEngine struct{}

func (e *sleepEngine) Name() string { return "sleepy" }

func (e *sleepEngine) Command(engine.Invocation) (string, []string) {
	return "/bin/sh", []string{"-c", "sleep 30"}
}

func (e *sleepEngine) ParseProgress(string) (job.Progress, bool) { return job.Progress{}, false }

func (e *sleepEngine) NeedsConversion(string) bool { return false }

func TestSweepCancelsInFlightJob(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("stub engines need /bin/sh")
	}

	dir := t.TempDir()
	reg := engine.NewRegistry()
	reg.Register(&sleepEngine{})

	store := job.NewStore()
	q := queue.New()
	bus := event.NewBus()
	profiles := map[string]engine.Profile{"default": {Engine: "sleepy"}}
	sup := supervisor.New(reg, "", filepath.Join(dir, "work"))
	sched := scheduler.New(store, q, sup, profiles, bus, 20*time.Millisecond)
	svc := service.New(store, q, sched, profiles, bus)
	sw := sweeper.New(store, svc, bus, time.Minute, 30*time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		sched.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	j, err := svc.Submit("default", "", job.Overrides{})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		got, ok := store.Peek(j.ID)
		return ok && got.Status == job.StatusProcessing
	}, 5*time.Second, 10*time.Millisecond)

	// The client stopped polling long ago; the sweep must kill the
	// process before removing the record, not wait out the 30s sleep.
	// Sweep goes through the service delete path, which blocks until the
	// process is reaped, so a fast return proves the kill happened.
	start := time.Now()
	removed := sw.Sweep(time.Now().Add(time.Hour))
	assert.Equal(t, 1, removed)
	assert.Less(t, time.Since(start), 10*time.Second)

	_, err = svc.Status(j.ID)
	assert.ErrorIs(t, err, service.ErrNotFound)

	// The worker is free for the next job immediately.
	next, err := svc.Submit("default", "", job.Overrides{})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		got, ok := store.Peek(next.ID)
		return ok && got.Status == job.StatusProcessing
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSweepCountsOnlyDeletedJobs(t *testing.T) {
	_, svc, _, sw := newStack(t, time.Nanosecond)

	_, err := svc.Submit("default", "", job.Overrides{})
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 1, sw.Sweep(time.Now()))
	assert.Equal(t, 0, sw.Sweep(time.Now()), "second sweep finds nothing left")
}
