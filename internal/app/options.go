// Package app provides the simulation session façade.
package app

import (
	"time"

	"github.com/okian/dipole/internal/adapters/mq/worker"
	"github.com/okian/dipole/internal/adapters/repository"
	"github.com/okian/dipole/internal/domain/biophys"
	"github.com/okian/dipole/internal/domain/seed"
	"github.com/okian/dipole/pkg/logger"
)

// Option applies a configuration option to the Session.
type Option func(*Session)

// WithPoolSize sets the number of workers provisioned for the run.
func WithPoolSize(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.poolSize = n
		}
	}
}

// WithMinRequired sets the quorum of successful trials needed for a valid
// aggregate. Zero means all trials are required.
func WithMinRequired(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.minRequired = n
		}
	}
}

// WithQueueCapacity bounds the job backlog of the run's pool. The run still
// enlarges the backlog to the trial count so its own submissions are never
// rejected. Ignored when a custom backend is supplied.
func WithQueueCapacity(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.queueCapacity = n
		}
	}
}

// WithTrialTimeout bounds the wall-clock time of each trial.
func WithTrialTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.trialTimeout = d
		}
	}
}

// WithBarrierTimeout bounds the wait for all trials to resolve. Zero waits
// indefinitely.
func WithBarrierTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.barrierTimeout = d
		}
	}
}

// WithSeedPolicy overrides the seed derivation policy.
func WithSeedPolicy(p seed.Policy) Option {
	return func(s *Session) {
		if p != nil {
			s.policy = p
		}
	}
}

// WithEngine overrides the biophysics engine trials run against.
func WithEngine(e biophys.Engine) Option {
	return func(s *Session) {
		if e != nil {
			s.engine = e
		}
	}
}

// WithRunner overrides the trial runner. Takes precedence over WithEngine.
func WithRunner(r worker.Runner) Option {
	return func(s *Session) {
		if r != nil {
			s.runner = r
		}
	}
}

// WithBackend overrides the execution backend. The session still owns its
// lifecycle: Start before dispatch, Shutdown on every exit path.
func WithBackend(b worker.Backend) Option {
	return func(s *Session) {
		if b != nil {
			s.backend = b
		}
	}
}

// WithStore overrides the raw result store.
func WithStore(st repository.Store) Option {
	return func(s *Session) {
		if st != nil {
			s.store = st
		}
	}
}

// WithArchive persists completed runs to the given archive.
func WithArchive(a Archiver) Option {
	return func(s *Session) {
		if a != nil {
			s.arch = a
		}
	}
}

// WithLogger sets a custom logger for the session.
func WithLogger(l logger.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}
