package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked once per scheduled check.
type TickFunc func(ctx context.Context) error

// Options tune scheduler behaviour. Exactly one of At or Interval should be
// set: At runs once a day at the given wall-clock time, Interval runs on a
// fixed cadence (the original test mode).
type Options struct {
	// At is a daily time of day in "15:04" form.
	At string
	// Interval overrides At when positive.
	Interval     time.Duration
	StartupDelay time.Duration
	Location     *time.Location
}

// Scheduler drives repeated execution of the monitoring pass. The pass
// itself stays loop-free; run-once and scheduled modes share one code path.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) (*Scheduler, error) {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Interval <= 0 {
		if _, err := time.Parse("15:04", opts.At); err != nil {
			return nil, fmt.Errorf("invalid schedule time %q: %w", opts.At, err)
		}
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}, nil
}

// Run blocks, invoking tick at each scheduled instant until ctx is
// cancelled. An in-flight tick is allowed to finish; cancellation only
// prevents the next one from starting.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		timer := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	next := s.nextTick(time.Now().In(s.opts.Location))
	for {
		delay := time.Until(next)
		if delay < 0 {
			next = s.nextTick(time.Now().In(s.opts.Location))
			delay = time.Until(next)
		}

		timer := time.NewTimer(delay)
		s.logger.Debug().Time("next_check", next).Msg("waiting for next check")

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			timer.Stop()
		}

		s.logger.Info().Time("check", next).Msg("executing scheduled check")
		if err := tick(ctx); err != nil {
			s.logger.Error().Err(err).Msg("scheduled check failed")
		}

		next = s.nextTick(time.Now().In(s.opts.Location))
	}
}

func (s *Scheduler) nextTick(now time.Time) time.Time {
	if s.opts.Interval > 0 {
		return now.Add(s.opts.Interval)
	}

	at, _ := time.Parse("15:04", s.opts.At)
	next := time.Date(now.Year(), now.Month(), now.Day(), at.Hour(), at.Minute(), 0, 0, s.opts.Location)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
