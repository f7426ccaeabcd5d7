// Package scheduler runs the single worker loop: dequeue, supervise,
// write back. It is the only writer of job status transitions and the
// owner of the one guarded "current invocation" slot that cancellation
// paths signal through.
package scheduler

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/petergeneric/whisperx-windows-service/internal/core/engine"
	"github.com/petergeneric/whisperx-windows-service/internal/core/event"
	"github.com/petergeneric/whisperx-windows-service/internal/core/job"
	"github.com/petergeneric/whisperx-windows-service/internal/core/queue"
	"github.com/petergeneric/whisperx-windows-service/internal/core/supervisor"
)

type Scheduler struct {
	store        *job.Store
	queue        *queue.Queue
	sup          *supervisor.Supervisor
	profiles     map[string]engine.Profile
	bus          *event.Bus
	pollInterval time.Duration

	mu      sync.Mutex
	current *invocation
}

// invocation is the guarded current-process slot. The run loop is its
// only writer; Cancel reads it under the same lock, so cancellation never
// fires against a stale or already-reaped handle.
type invocation struct {
	jobID  string
	cancel context.CancelFunc
	done   chan struct{}
}

func New(store *job.Store, q *queue.Queue, sup *supervisor.Supervisor, profiles map[string]engine.Profile, bus *event.Bus, pollInterval time.Duration) *Scheduler {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Scheduler{
		store:        store,
		queue:        q,
		sup:          sup,
		profiles:     profiles,
		bus:          bus,
		pollInterval: pollInterval,
	}
}

// Run loops until ctx is cancelled. At most one job is in flight at any
// instant; jobs start in admission order. On shutdown the in-flight job is
// cancelled through its own context rather than left running.
func (s *Scheduler) Run(ctx context.Context) {
	log.Info().Dur("poll_interval", s.pollInterval).Msg("scheduler started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("scheduler stopped")
			return
		default:
		}

		id, ok := s.queue.TryDequeue(func(id string) bool {
			j, ok := s.store.Peek(id)
			return ok && j.Status == job.StatusQueued
		})
		if !ok {
			select {
			case <-ctx.Done():
			case <-time.After(s.pollInterval):
			}
			continue
		}

		s.runOne(ctx, id)
	}
}

// Cancel requests cancellation of the in-flight job if it matches jobID,
// and blocks until the process is fully reaped and the terminal state
// written. Returns false when jobID is not currently running.
func (s *Scheduler) Cancel(jobID string) bool {
	s.mu.Lock()
	inv := s.current
	s.mu.Unlock()

	if inv == nil || inv.jobID != jobID {
		return false
	}
	inv.cancel()
	<-inv.done
	return true
}

func (s *Scheduler) runOne(parent context.Context, id string) {
	j, ok := s.store.Peek(id)
	if !ok {
		return
	}

	jobCtx, cancel := context.WithCancel(parent)
	inv := &invocation{jobID: id, cancel: cancel, done: make(chan struct{})}

	// Publish the slot before marking the job processing: a delete that
	// lands in between either removes the record (MarkProcessing fails,
	// nothing launches) or finds the slot and cancels it.
	s.mu.Lock()
	s.current = inv
	s.mu.Unlock()

	defer close(inv.done)
	defer cancel()
	defer func() {
		s.mu.Lock()
		s.current = nil
		s.mu.Unlock()
	}()

	if !s.store.MarkProcessing(id) {
		// Deleted while queued; never starts.
		return
	}

	prof, ok := s.profiles[j.Profile]
	if !ok {
		// Admission validates profiles, so this only fires if config and
		// store disagree. Fail rather than crash the loop.
		s.store.Fail(id, "unknown profile "+j.Profile)
		s.removeInput(j)
		return
	}

	log.Info().Str("job_id", id).Str("profile", j.Profile).Str("engine", prof.Engine).Msg("job started")
	s.bus.Publish(event.Event{Type: event.JobStarted, JobID: id, Profile: j.Profile})

	result, err := s.sup.Run(jobCtx, id, j.InputPath, prof, j.Overrides, func(p job.Progress) {
		s.store.SetProgress(id, p)
	})

	switch {
	case err == nil:
		s.store.Complete(id, result)
		log.Info().Str("job_id", id).Int("result_bytes", len(result)).Msg("job completed")
		s.bus.Publish(event.Event{Type: event.JobCompleted, JobID: id, Profile: j.Profile})
	case errors.Is(err, supervisor.ErrCancelled):
		s.store.Fail(id, "cancelled")
		log.Info().Str("job_id", id).Msg("job cancelled")
		s.bus.Publish(event.Event{Type: event.JobFailed, JobID: id, Profile: j.Profile, Error: "cancelled"})
	default:
		s.store.Fail(id, err.Error())
		log.Warn().Str("job_id", id).Err(err).Msg("job failed")
		s.bus.Publish(event.Event{Type: event.JobFailed, JobID: id, Profile: j.Profile, Error: err.Error()})
	}

	s.removeInput(j)
}

// removeInput deletes the uploaded source file once the job is terminal.
// Failures are logged, never escalated; the outcome is already decided.
func (s *Scheduler) removeInput(j job.Job) {
	if j.InputPath == "" {
		return
	}
	if err := os.Remove(j.InputPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Str("job_id", j.ID).Msg("input file cleanup failed")
	}
}
