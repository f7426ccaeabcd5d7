// Package service is the orchestration facade the HTTP layer talks to:
// admission, polling, listing and deletion, with cancellation wired into
// the delete path.
package service

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/petergeneric/whisperx-windows-service/internal/core/engine"
	"github.com/petergeneric/whisperx-windows-service/internal/core/event"
	"github.com/petergeneric/whisperx-windows-service/internal/core/job"
	"github.com/petergeneric/whisperx-windows-service/internal/core/queue"
	"github.com/petergeneric/whisperx-windows-service/internal/core/scheduler"
)

var (
	// ErrNotFound is the normal outcome for unknown, deleted or expired
	// job IDs; it is not an internal failure.
	ErrNotFound = errors.New("job not found")

	// ErrUnknownProfile rejects a submission before anything is enqueued.
	ErrUnknownProfile = errors.New("unknown profile")
)

// DefaultProfile is used when a submission names no profile.
const DefaultProfile = "default"

type Service struct {
	store    *job.Store
	queue    *queue.Queue
	sched    *scheduler.Scheduler
	profiles map[string]engine.Profile
	bus      *event.Bus
}

func New(store *job.Store, q *queue.Queue, sched *scheduler.Scheduler, profiles map[string]engine.Profile, bus *event.Bus) *Service {
	return &Service{
		store:    store,
		queue:    q,
		sched:    sched,
		profiles: profiles,
		bus:      bus,
	}
}

// Submit validates the profile, creates the job record and admits it to
// the queue. An unknown profile is rejected here; nothing enters the
// queue and no work ever starts for it.
func (s *Service) Submit(profileName, inputPath string, ov job.Overrides) (job.Job, error) {
	if profileName == "" {
		profileName = DefaultProfile
	}
	if _, ok := s.profiles[profileName]; !ok {
		return job.Job{}, fmt.Errorf("%w: %q", ErrUnknownProfile, profileName)
	}

	j := s.store.Create(profileName, inputPath, ov)
	s.queue.Enqueue(j.ID)

	log.Info().Str("job_id", j.ID).Str("profile", profileName).Msg("job admitted")
	s.bus.Publish(event.Event{Type: event.JobCreated, JobID: j.ID, Profile: profileName})
	return j, nil
}

// Status returns the current job record, refreshing its poll timestamp.
func (s *Service) Status(id string) (job.Job, error) {
	j, ok := s.store.Get(id)
	if !ok {
		return job.Job{}, ErrNotFound
	}
	return j, nil
}

// List returns all jobs, newest first, without refreshing poll timestamps.
func (s *Service) List() []job.Job {
	return s.store.List()
}

// Delete removes the job, cancelling its process first when it is in
// flight. Deletion is idempotent: a second delete reports ErrNotFound.
// The process tree is dead (or was never started) by the time the record
// is gone.
func (s *Service) Delete(id string) error {
	j, ok := s.store.Peek(id)
	if !ok {
		return ErrNotFound
	}

	if j.Status == job.StatusProcessing {
		s.sched.Cancel(id)
	}
	existed := s.store.Delete(id)
	// The job may have been dequeued between the peek and the delete;
	// cancelling again after removal closes that window.
	s.sched.Cancel(id)

	if j.InputPath != "" {
		if err := os.Remove(j.InputPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("job_id", id).Msg("input file cleanup failed")
		}
	}

	if !existed {
		return ErrNotFound
	}
	log.Info().Str("job_id", id).Msg("job deleted")
	s.bus.Publish(event.Event{Type: event.JobDeleted, JobID: id, Profile: j.Profile})
	return nil
}

// Profiles returns a copy of the profile table for the listing endpoint.
func (s *Service) Profiles() map[string]engine.Profile {
	out := make(map[string]engine.Profile, len(s.profiles))
	for name, p := range s.profiles {
		out[name] = p
	}
	return out
}
