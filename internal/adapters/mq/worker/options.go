// Package worker implements the trial-execution backend.
package worker

import (
	"time"

	"github.com/okian/dipole/internal/adapters/mq/queue"
	"github.com/okian/dipole/pkg/logger"
)

// Option applies a configuration option to the Pool.
type Option func(*Pool)

// WithQueue sets the job queue backing the pool.
func WithQueue(q queue.Queue) Option {
	return func(p *Pool) {
		if q != nil {
			p.q = q
		}
	}
}

// WithTrialTimeout bounds the wall-clock time of a single trial. Zero means
// no per-trial deadline.
func WithTrialTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.trialTimeout = d
		}
	}
}

// WithLogger sets a custom logger for the pool.
func WithLogger(l logger.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}
