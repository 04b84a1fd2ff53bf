package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"

	"github.com/i474232898/series-dashboard/internal/series"
)

// FreshnessChecker rewarms stale datasets.
type FreshnessChecker interface {
	Identities() []series.Identity
	CheckFreshness(ctx context.Context, id series.Identity) (bool, error)
}

// Sweeper drops idle sessions.
type Sweeper interface {
	Sweep(now time.Time) int
}

// Scheduler periodically checks remote fingerprints and expires idle sessions.
type Scheduler struct {
	scheduler *gocron.Scheduler
	service   FreshnessChecker
	sessions  Sweeper
	interval  time.Duration
	timeout   time.Duration
	log       *zerolog.Logger
}

// New creates a new Scheduler. interval <= 0 disables the freshness check;
// timeout bounds each check.
func New(service FreshnessChecker, sessions Sweeper, interval, timeout time.Duration, logger *zerolog.Logger) *Scheduler {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		service:   service,
		sessions:  sessions,
		interval:  interval,
		timeout:   timeout,
		log:       logger,
	}
}

// Start schedules the periodic jobs and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if s.interval > 0 {
		if _, err := s.scheduler.Every(s.interval).WaitForSchedule().Do(s.checkFreshness); err != nil {
			return err
		}
	} else {
		s.log.Info().Msg("scheduler: freshness check disabled")
	}

	if s.sessions != nil {
		if _, err := s.scheduler.Every(1).Minutes().WaitForSchedule().Do(s.sweepSessions); err != nil {
			return err
		}
	}

	s.scheduler.StartAsync()
	return nil
}

func (s *Scheduler) checkFreshness() {
	s.log.Debug().Msg("scheduler: running freshness job")

	var wg sync.WaitGroup
	for _, id := range s.service.Identities() {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()

			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			defer cancel()

			replaced, err := s.service.CheckFreshness(ctx, id)
			switch {
			case err != nil:
				s.log.Error().Err(err).Str("dataset", string(id)).Msg("scheduler: refresh failed")
			case replaced:
				s.log.Info().Str("dataset", string(id)).Msg("scheduler: dataset refreshed")
			}
		}()
	}
	wg.Wait()
}

func (s *Scheduler) sweepSessions() {
	if n := s.sessions.Sweep(time.Now()); n > 0 {
		s.log.Info().Int("sessions", n).Msg("scheduler: expired idle sessions")
	}
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
