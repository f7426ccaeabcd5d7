package job

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store is the in-memory job table. All state is lost on restart by
// design; the scheduler is the only writer of status transitions, while
// HTTP handlers read concurrently.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

func NewStore() *Store {
	return &Store{jobs: make(map[string]*Job)}
}

// Create inserts a new queued job and returns a copy of the record.
func (s *Store) Create(profile, inputPath string, ov Overrides) Job {
	now := time.Now()
	j := &Job{
		ID:           uuid.NewString(),
		Profile:      profile,
		InputPath:    inputPath,
		Overrides:    ov.clone(),
		Status:       StatusQueued,
		CreatedAt:    now,
		LastPolledAt: now,
	}

	s.mu.Lock()
	s.jobs[j.ID] = j
	s.mu.Unlock()

	return j.clone()
}

// Get returns the job and refreshes its poll timestamp. This is the read
// path the expiry sweeper keys off: a client that keeps polling keeps the
// job alive.
func (s *Store) Get(id string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	if now := time.Now(); now.After(j.LastPolledAt) {
		j.LastPolledAt = now
	}
	return j.clone(), true
}

// Peek returns the job without touching the poll timestamp.
func (s *Store) Peek(id string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return j.clone(), true
}

// List returns all jobs, newest first. Poll timestamps are not refreshed.
func (s *Store) List() []Job {
	s.mu.RLock()
	out := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, k int) bool {
		return out[i].CreatedAt.After(out[k].CreatedAt)
	})
	return out
}

// Delete removes the record and reports whether it existed. Cancelling an
// in-flight process is the caller's job (the service layer cancels before
// and after removal so no process outlives its record).
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.jobs[id]
	delete(s.jobs, id)
	return ok
}

// Expired returns jobs whose last poll is older than now-timeout.
func (s *Store) Expired(now time.Time, timeout time.Duration) []Job {
	cutoff := now.Add(-timeout)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Job
	for _, j := range s.jobs {
		if j.LastPolledAt.Before(cutoff) {
			out = append(out, j.clone())
		}
	}
	return out
}

// MarkProcessing transitions queued -> processing. It fails when the job
// is gone or not queued, which is how a job deleted between dequeue and
// start is skipped.
func (s *Store) MarkProcessing(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok || j.Status != StatusQueued {
		return false
	}
	j.Status = StatusProcessing
	return true
}

// SetProgress updates the progress substructure of a processing job.
func (s *Store) SetProgress(id string, p Progress) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok || j.Status != StatusProcessing {
		return
	}
	j.Progress = &p
}

// Complete transitions processing -> completed and attaches the result.
func (s *Store) Complete(id string, result []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok || j.Status != StatusProcessing {
		return false
	}
	j.Status = StatusCompleted
	j.Result = append([]byte(nil), result...)
	j.Error = ""
	j.Progress = nil
	return true
}

// Fail transitions processing -> failed with a human-readable reason.
func (s *Store) Fail(id string, reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok || j.Status != StatusProcessing {
		return false
	}
	j.Status = StatusFailed
	j.Error = reason
	j.Result = nil
	j.Progress = nil
	return true
}

// Len reports the number of stored jobs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}
