// Package sweeper removes jobs whose clients stopped polling. Deletion
// goes through the service delete path, so a job expiring mid-flight has
// its process cancelled before the record disappears.
package sweeper

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/petergeneric/whisperx-windows-service/internal/core/event"
	"github.com/petergeneric/whisperx-windows-service/internal/core/job"
	"github.com/petergeneric/whisperx-windows-service/internal/core/service"
)

type Sweeper struct {
	store    *job.Store
	svc      *service.Service
	bus      *event.Bus
	interval time.Duration
	timeout  time.Duration
}

func New(store *job.Store, svc *service.Service, bus *event.Bus, interval, timeout time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &Sweeper{store: store, svc: svc, bus: bus, interval: interval, timeout: timeout}
}

// Run sweeps on a fixed interval until ctx is cancelled. Each tick works
// on current state only; there is no backlog to catch up.
func (s *Sweeper) Run(ctx context.Context) {
	log.Info().Dur("interval", s.interval).Dur("timeout", s.timeout).Msg("expiry sweeper started")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("expiry sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(time.Now())
		}
	}
}

// Sweep deletes every job not polled within the timeout and returns how
// many were removed. One failed deletion does not stop the rest.
func (s *Sweeper) Sweep(now time.Time) int {
	removed := 0
	for _, j := range s.store.Expired(now, s.timeout) {
		if err := s.svc.Delete(j.ID); err != nil {
			if !errors.Is(err, service.ErrNotFound) {
				log.Warn().Err(err).Str("job_id", j.ID).Msg("expiry delete failed")
			}
			continue
		}
		removed++
		log.Info().
			Str("job_id", j.ID).
			Time("last_polled", j.LastPolledAt).
			Msg("job expired")
		s.bus.Publish(event.Event{Type: event.JobExpired, JobID: j.ID, Profile: j.Profile})
	}
	return removed
}
