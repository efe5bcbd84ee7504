// Package worker implements the trial-execution backend: a bounded pool of
// workers that pull trial jobs off the queue, run them through the runner,
// and deliver results asynchronously.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/dipole/internal/adapters/mq/queue"
	"github.com/okian/dipole/internal/domain/biophys"
	"github.com/okian/dipole/internal/domain/model"
	"github.com/okian/dipole/pkg/logger"
	"github.com/okian/dipole/pkg/metrics"
)

// shutdownGrace is how long Shutdown waits for workers to finish their
// current trial cooperatively before forcing cancellation.
const shutdownGrace = 5 * time.Second

// Runner executes one trial job to completion and reports its outcome as a
// TrialResult. A Runner never returns an error: trial failure is data, not an
// exception, so a single bad trial cannot take down the pool.
type Runner func(ctx context.Context, job model.TrialJob) model.TrialResult

// NewEngineRunner builds the default runner on top of a biophysics engine.
// Engine errors and panics become StatusFailed results; a context deadline
// hit during simulation becomes StatusTimedOut.
func NewEngineRunner(engine biophys.Engine) Runner {
	return func(ctx context.Context, job model.TrialJob) (res model.TrialResult) {
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				res = model.TrialResult{
					TrialIdx: job.TrialIdx,
					Status:   model.StatusFailed,
					Err:      fmt.Sprintf("panic: %v", r),
					Elapsed:  time.Since(start),
				}
			}
		}()

		dipole, spikes, err := engine.Simulate(ctx, job.Net, job.Seeds)
		if err != nil {
			status := model.StatusFailed
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				status = model.StatusTimedOut
			}
			return model.TrialResult{
				TrialIdx: job.TrialIdx,
				Status:   status,
				Err:      err.Error(),
				Elapsed:  time.Since(start),
			}
		}
		return model.TrialResult{
			TrialIdx: job.TrialIdx,
			Status:   model.StatusSuccess,
			Dipole:   dipole,
			Spikes:   spikes,
			Elapsed:  time.Since(start),
		}
	}
}

// Backend abstracts the trial-execution mechanism so the orchestration logic
// stays portable across in-process, multi-process, or remote-cluster
// implementations.
type Backend interface {
	// Start provisions poolSize workers. It fails with ErrResourceExhausted
	// when the requested size cannot be provisioned and ErrAlreadyStarted on
	// a second call.
	Start(ctx context.Context, poolSize int) error

	// Submit enqueues one trial job without blocking. It fails with
	// ErrQueueFull when the bounded backlog rejects the job and
	// ErrPoolClosed after shutdown.
	Submit(ctx context.Context, job model.TrialJob) error

	// AwaitAll blocks until every submitted job has resolved or the timeout
	// elapses. Jobs still pending at the timeout are reported as
	// StatusTimedOut and their workers cancelled. A timeout <= 0 means no
	// deadline. Results are returned sorted by trial index.
	AwaitAll(ctx context.Context, timeout time.Duration) []model.TrialResult

	// Shutdown terminates all workers, marking any unresolved job failed.
	// Idempotent.
	Shutdown(ctx context.Context) error
}

// Pool is the in-process Backend: one goroutine per worker, one job in
// flight per worker, jobs beyond the pool size queue FIFO in the bounded
// backlog.
type Pool struct {
	runner       Runner
	q            queue.Queue
	trialTimeout time.Duration
	logger       logger.Logger

	mu        sync.Mutex
	started   bool
	closed    bool
	submitted map[int]struct{}
	results   map[int]model.TrialResult
	cancel    context.CancelFunc
	grp       *errgroup.Group

	// notify carries a collapsed completion signal to AwaitAll.
	notify chan struct{}
}

// NewPool creates a pool around the given runner.
func NewPool(runner Runner, opts ...Option) *Pool {
	p := &Pool{
		runner:    runner,
		submitted: make(map[int]struct{}),
		results:   make(map[int]model.TrialResult),
		notify:    make(chan struct{}, 1),
		logger:    logger.Get().Named("worker-pool"),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.q == nil {
		p.q = queue.NewInMemoryQueue()
	}
	return p
}

// Start implements Backend.
func (p *Pool) Start(ctx context.Context, poolSize int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}
	if p.started {
		return ErrAlreadyStarted
	}
	if poolSize < 1 {
		return fmt.Errorf("%w: pool size %d", ErrResourceExhausted, poolSize)
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	grp, grpCtx := errgroup.WithContext(runCtx)
	p.grp = grp

	for i := 0; i < poolSize; i++ {
		id := i
		grp.Go(func() error {
			p.runWorker(grpCtx, id)
			return nil
		})
	}
	p.started = true

	metrics.UpdateWorkerActiveCount(poolSize)
	p.logger.Info(ctx, "worker pool started", logger.Int("pool_size", poolSize))
	return nil
}

// runWorker is one worker's loop: pull a job, run it, deliver the result.
func (p *Pool) runWorker(ctx context.Context, id int) {
	log := p.logger.Named(fmt.Sprintf("worker-%d", id))
	jobs := p.q.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			p.deliver(p.runJob(ctx, job))
			log.Debug(ctx, "trial resolved", logger.Int("trial", job.TrialIdx))
		}
	}
}

// runJob runs one trial under the per-job timeout.
func (p *Pool) runJob(ctx context.Context, job model.TrialJob) model.TrialResult {
	metrics.RecordTrialStarted()
	jobCtx := ctx
	if p.trialTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, p.trialTimeout)
		defer cancel()
	}

	res := p.runner(jobCtx, job)
	metrics.RecordTrialResolved(string(res.Status))
	metrics.ObserveTrialDuration(res.Elapsed.Seconds())
	if res.Status != model.StatusSuccess {
		p.logger.Warn(ctx, "trial did not succeed",
			logger.Int("trial", res.TrialIdx),
			logger.String("status", string(res.Status)),
			logger.String("err", res.Err),
		)
	}
	return res
}

// deliver records one result. The first result for a trial index wins; a
// worker finishing after the barrier already reported its trial timed out is
// dropped.
func (p *Pool) deliver(r model.TrialResult) {
	p.mu.Lock()
	if _, dup := p.results[r.TrialIdx]; !dup {
		p.results[r.TrialIdx] = r
	}
	p.mu.Unlock()

	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// Submit implements Backend.
func (p *Pool) Submit(ctx context.Context, job model.TrialJob) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	if !p.started {
		p.mu.Unlock()
		return ErrNotStarted
	}
	p.mu.Unlock()

	if !p.q.Enqueue(ctx, job) {
		return fmt.Errorf("%w: trial %d", ErrQueueFull, job.TrialIdx)
	}

	p.mu.Lock()
	p.submitted[job.TrialIdx] = struct{}{}
	p.mu.Unlock()
	return nil
}

// AwaitAll implements Backend.
func (p *Pool) AwaitAll(ctx context.Context, timeout time.Duration) []model.TrialResult {
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for !p.allResolved() {
		select {
		case <-p.notify:
		case <-deadline:
			p.expirePending("barrier timeout")
		case <-ctx.Done():
			p.expirePending(ctx.Err().Error())
		}
	}
	return p.snapshot()
}

// allResolved reports whether every submitted job has a result.
func (p *Pool) allResolved() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for idx := range p.submitted {
		if _, ok := p.results[idx]; !ok {
			return false
		}
	}
	return true
}

// expirePending marks every unresolved job timed out and cancels the workers
// running them.
func (p *Pool) expirePending(reason string) {
	p.mu.Lock()
	for idx := range p.submitted {
		if _, ok := p.results[idx]; !ok {
			p.results[idx] = model.TrialResult{
				TrialIdx: idx,
				Status:   model.StatusTimedOut,
				Err:      reason,
			}
			metrics.RecordTrialResolved(string(model.StatusTimedOut))
		}
	}
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// snapshot returns the collected results sorted by trial index.
func (p *Pool) snapshot() []model.TrialResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]model.TrialResult, 0, len(p.results))
	for _, r := range p.results {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TrialIdx < out[j].TrialIdx })
	return out
}

// Shutdown implements Backend.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	grp := p.grp
	cancel := p.cancel
	p.mu.Unlock()

	// Stop intake first so idle workers drain and exit their loops.
	if err := p.q.Close(); err != nil {
		p.logger.Error(ctx, "error closing queue", logger.Error(err))
	}

	// Any job that never resolved is failed, not lost.
	p.mu.Lock()
	for idx := range p.submitted {
		if _, ok := p.results[idx]; !ok {
			p.results[idx] = model.TrialResult{
				TrialIdx: idx,
				Status:   model.StatusFailed,
				Err:      "pool shut down",
			}
			metrics.RecordTrialResolved(string(model.StatusFailed))
		}
	}
	p.mu.Unlock()
	select {
	case p.notify <- struct{}{}:
	default:
	}

	if grp == nil {
		metrics.UpdateWorkerActiveCount(0)
		return nil
	}

	// Cooperative stop first, forced cancellation after the grace period.
	done := make(chan struct{})
	go func() {
		_ = grp.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownGrace):
		p.logger.Warn(ctx, "forcing worker cancellation after grace period")
		cancel()
		<-done
	case <-ctx.Done():
		cancel()
		<-done
	}
	cancel()

	metrics.UpdateWorkerActiveCount(0)
	p.logger.Info(ctx, "worker pool stopped")
	return nil
}
