package scheduler

import (
	"time"

	"github.com/okian/steamwatch/pkg/clock"
	"github.com/okian/steamwatch/pkg/logger"
)

// Option applies a configuration option to the Scheduler.
type Option func(*Scheduler)

// WithInterval sets the period between scheduled cycles.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithRequestDelay sets the minimum spacing between two inventory fetches.
// Zero disables pacing.
func WithRequestDelay(d time.Duration) Option {
	return func(s *Scheduler) {
		if d >= 0 {
			s.requestDelay = d
		}
	}
}

// WithCheckOnStart queues one cycle as soon as Start returns.
func WithCheckOnStart(enabled bool) Option {
	return func(s *Scheduler) {
		s.checkOnStart = enabled
	}
}

// WithShutdownTimeout bounds how long Stop waits for the running cycle.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// WithClock sets the clock used for pacing and timestamps.
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger sets a custom logger for the scheduler.
func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}
