// Package app provides the simulation session: the façade that owns the
// network configuration, the worker backend, and the aggregation pipeline,
// and exposes one high-level operation turning n trials into an averaged
// dipole signal.
package app

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/dipole/internal/adapters/archive"
	"github.com/okian/dipole/internal/adapters/mq/queue"
	"github.com/okian/dipole/internal/adapters/mq/worker"
	"github.com/okian/dipole/internal/adapters/repository"
	"github.com/okian/dipole/internal/domain/aggregate"
	"github.com/okian/dipole/internal/domain/biophys"
	"github.com/okian/dipole/internal/domain/model"
	"github.com/okian/dipole/internal/domain/seed"
	"github.com/okian/dipole/pkg/logger"
	"github.com/okian/dipole/pkg/metrics"
)

// State is the session lifecycle state.
type State string

// Session states. A session moves Configured -> Running -> one of the
// terminal states and is single-use: a second Run is rejected.
const (
	StateConfigured      State = "configured"
	StateRunning         State = "running"
	StateCompleted       State = "completed"
	StatePartiallyFailed State = "partially-failed"
	StateAborted         State = "aborted"
)

// Archiver persists a completed run. Satisfied by *archive.Archive.
type Archiver interface {
	SaveRun(ctx context.Context, rec archive.RunRecord) error
}

// Session orchestrates seed derivation, dispatch, and aggregation for one
// simulation run over a fixed network configuration.
type Session struct {
	mu sync.Mutex

	net     *model.Network
	policy  seed.Policy
	engine  biophys.Engine
	runner  worker.Runner
	backend worker.Backend
	store   repository.Store
	arch    Archiver

	poolSize       int
	minRequired    int
	queueCapacity  int
	trialTimeout   time.Duration
	barrierTimeout time.Duration

	state State
	runID string

	logger logger.Logger
}

// New creates a session for the given validated network.
func New(net *model.Network, opts ...Option) (*Session, error) {
	if net == nil {
		return nil, fmt.Errorf("%w: nil network", ErrInvalidSession)
	}
	s := &Session{
		net:      net,
		policy:   seed.NewSplitMix(),
		engine:   biophys.NewEvokedEngine(),
		store:    repository.NewInMemoryStore(),
		poolSize: runtime.NumCPU(),
		state:    StateConfigured,
		runID:    uuid.NewString(),
		logger:   logger.Get().Named("session"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.runner == nil {
		s.runner = worker.NewEngineRunner(s.engine)
	}
	return s, nil
}

// RunID returns the session's unique run identifier.
func (s *Session) RunID() string { return s.runID }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Results returns the raw per-trial result set collected so far, sorted by
// trial index. Useful for diagnostics, including after a failed Run.
func (s *Session) Results(ctx context.Context) []model.TrialResult {
	return s.store.List(ctx)
}

// Run executes nTrials independent trials and reduces the successful ones to
// an aggregate. Per-trial failures are contained and reported in the
// aggregate's failed set; only configuration errors, pool provisioning
// failure, and a missed quorum surface as errors. On a missed quorum the
// partial result set stays available through Results.
func (s *Session) Run(ctx context.Context, nTrials int) (model.AggregateResult, error) {
	if err := s.begin(); err != nil {
		return model.AggregateResult{}, err
	}
	startedAt := time.Now()

	minRequired := s.minRequired
	if minRequired <= 0 {
		minRequired = nTrials
	}
	if nTrials < 1 || minRequired > nTrials {
		s.setState(StateAborted)
		return model.AggregateResult{}, fmt.Errorf("%w: n_trials=%d min_required=%d",
			ErrInvalidSession, nTrials, minRequired)
	}

	jobs, err := s.deriveJobs(nTrials)
	if err != nil {
		s.setState(StateAborted)
		return model.AggregateResult{}, err
	}

	backend := s.backend
	if backend == nil {
		backend = worker.NewPool(s.runner,
			worker.WithQueue(queue.NewInMemoryQueue(queue.WithCapacity(s.backlogCapacity(nTrials)))),
			worker.WithTrialTimeout(s.trialTimeout),
			worker.WithLogger(s.logger.Named("pool")),
		)
	}

	if err := backend.Start(ctx, s.poolSize); err != nil {
		s.setState(StateAborted)
		metrics.RecordRunCompleted(string(StateAborted))
		return model.AggregateResult{}, fmt.Errorf("starting backend: %w", err)
	}
	// Scoped acquisition: workers are reclaimed on every exit path.
	defer func() {
		if err := backend.Shutdown(context.WithoutCancel(ctx)); err != nil {
			s.logger.Error(ctx, "backend shutdown failed", logger.Error(err))
		}
	}()

	s.logger.Info(ctx, "dispatching trials",
		logger.String("run_id", s.runID),
		logger.String("network", s.net.Name()),
		logger.Int("n_trials", nTrials),
		logger.Int("pool_size", s.poolSize),
		logger.Int("min_required", minRequired),
	)

	agg := aggregate.New(s.net.StepMS(), s.net.NumSamples())
	for _, job := range jobs {
		if err := backend.Submit(ctx, job); err != nil {
			// Contained: a rejected submission is a failed trial, not a
			// session failure.
			s.collect(ctx, agg, model.TrialResult{
				TrialIdx: job.TrialIdx,
				Status:   model.StatusFailed,
				Err:      err.Error(),
			})
		}
	}

	for _, r := range backend.AwaitAll(ctx, s.barrierTimeout) {
		s.collect(ctx, agg, r)
	}

	finalizeStart := time.Now()
	result, err := agg.Finalize(minRequired)
	metrics.ObserveFinalizeDuration(time.Since(finalizeStart).Seconds())

	if err != nil {
		s.setState(StateAborted)
		metrics.RecordRunCompleted(string(StateAborted))
		s.archiveRun(ctx, result, nTrials, StateAborted, startedAt)
		return result, fmt.Errorf("aggregating run %s: %w", s.runID, err)
	}

	final := StateCompleted
	if len(result.Failed) > 0 {
		final = StatePartiallyFailed
	}
	s.setState(final)
	metrics.RecordRunCompleted(string(final))
	s.archiveRun(ctx, result, nTrials, final, startedAt)

	s.logger.Info(ctx, "run finished",
		logger.String("run_id", s.runID),
		logger.String("state", string(final)),
		logger.Int("included", result.Included),
		logger.Int("failed", len(result.Failed)),
	)
	return result, nil
}

// backlogCapacity sizes the job queue for a run: the configured capacity
// (default queue.DefaultCapacity), enlarged to the trial count so the
// session's own submissions never hit backpressure. A pool smaller than the
// trial count simply drains the FIFO backlog.
func (s *Session) backlogCapacity(nTrials int) int {
	capacity := s.queueCapacity
	if capacity <= 0 {
		capacity = queue.DefaultCapacity
	}
	if capacity < nTrials {
		capacity = nTrials
	}
	return capacity
}

// begin transitions Configured -> Running.
func (s *Session) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConfigured {
		return fmt.Errorf("%w: session is %s", ErrAlreadyRun, s.state)
	}
	s.state = StateRunning
	return nil
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// deriveJobs builds one TrialJob per trial with its full per-drive seed set.
func (s *Session) deriveJobs(nTrials int) ([]model.TrialJob, error) {
	drives := s.net.Drives()
	jobs := make([]model.TrialJob, 0, nTrials)
	for trial := 0; trial < nTrials; trial++ {
		seeds := make(map[string]uint64, len(drives))
		for _, d := range drives {
			sd, err := s.policy.Derive(d.SeedCore, trial, d.Name)
			if err != nil {
				return nil, fmt.Errorf("deriving seed for trial %d drive %q: %w", trial, d.Name, err)
			}
			seeds[d.Name] = sd
		}
		jobs = append(jobs, model.TrialJob{TrialIdx: trial, Seeds: seeds, Net: s.net})
	}
	return jobs, nil
}

// collect routes one result into the raw store and the aggregator. Both
// errors are contained: they exclude a trial, never abort the session.
func (s *Session) collect(ctx context.Context, agg *aggregate.Aggregator, r model.TrialResult) {
	if err := s.store.Put(ctx, r); err != nil {
		s.logger.Warn(ctx, "dropping duplicate result", logger.Int("trial", r.TrialIdx), logger.Error(err))
		return
	}
	if err := agg.Add(r); err != nil {
		s.logger.Warn(ctx, "trial excluded from aggregate", logger.Int("trial", r.TrialIdx), logger.Error(err))
	}
}

// archiveRun persists the run when an archive is configured. Archive failure
// is logged, not propagated: the in-memory result is already complete.
func (s *Session) archiveRun(ctx context.Context, result model.AggregateResult, nTrials int, st State, startedAt time.Time) {
	if s.arch == nil {
		return
	}

	trials := make([]archive.TrialRow, 0, nTrials)
	for _, r := range s.store.List(ctx) {
		trials = append(trials, archive.TrialRow{
			TrialIdx:  r.TrialIdx,
			Status:    r.Status,
			ElapsedMS: float64(r.Elapsed) / float64(time.Millisecond),
			Err:       r.Err,
		})
	}

	rec := archive.RunRecord{
		ID:         s.runID,
		Name:       s.net.Name(),
		State:      string(st),
		NTrials:    nTrials,
		Included:   result.Included,
		Failed:     result.Failed,
		StepMS:     s.net.StepMS(),
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
		Mean:       result.Mean.Values,
		Variance:   result.Variance.Values,
		Trials:     trials,
	}
	if err := s.arch.SaveRun(ctx, rec); err != nil {
		s.logger.Error(ctx, "archiving run failed", logger.String("run_id", s.runID), logger.Error(err))
	}
}
