package worker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	queue "github.com/okian/dipole/internal/adapters/mq/queue"
	worker "github.com/okian/dipole/internal/adapters/mq/worker"
	"github.com/okian/dipole/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

// echoRunner resolves instantly with a one-sample series carrying the trial
// index, so completion order and content are easy to assert on.
func echoRunner(_ context.Context, job model.TrialJob) model.TrialResult {
	return model.TrialResult{
		TrialIdx: job.TrialIdx,
		Status:   model.StatusSuccess,
		Dipole:   model.Series{StepMS: 1, Values: []float64{float64(job.TrialIdx)}},
	}
}

// failTrials wraps a runner, failing the given trial indices.
func failTrials(next worker.Runner, failing ...int) worker.Runner {
	bad := make(map[int]bool, len(failing))
	for _, idx := range failing {
		bad[idx] = true
	}
	return func(ctx context.Context, job model.TrialJob) model.TrialResult {
		if bad[job.TrialIdx] {
			return model.TrialResult{TrialIdx: job.TrialIdx, Status: model.StatusFailed, Err: "injected crash"}
		}
		return next(ctx, job)
	}
}

func submitN(ctx context.Context, t *testing.T, p *worker.Pool, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := p.Submit(ctx, model.TrialJob{TrialIdx: i}); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
}

func TestPool_RunsAllTrials(t *testing.T) {
	convey.Convey("Given a pool of 3 workers and 10 trials", t, func() {
		ctx := context.Background()
		p := worker.NewPool(echoRunner, worker.WithQueue(queue.NewInMemoryQueue(queue.WithCapacity(16))))
		convey.So(p.Start(ctx, 3), convey.ShouldBeNil)
		defer p.Shutdown(ctx) //nolint:errcheck

		submitN(ctx, t, p, 10)
		results := p.AwaitAll(ctx, 5*time.Second)

		convey.Convey("Then every trial resolves successfully, sorted by index", func() {
			convey.So(results, convey.ShouldHaveLength, 10)
			for i, r := range results {
				convey.So(r.TrialIdx, convey.ShouldEqual, i)
				convey.So(r.Status, convey.ShouldEqual, model.StatusSuccess)
				convey.So(r.Dipole.Values[0], convey.ShouldEqual, float64(i))
			}
		})
	})
}

func TestPool_PoolSmallerThanTrialCount(t *testing.T) {
	convey.Convey("Given one worker and 25 queued trials", t, func() {
		ctx := context.Background()
		p := worker.NewPool(echoRunner, worker.WithQueue(queue.NewInMemoryQueue(queue.WithCapacity(32))))
		convey.So(p.Start(ctx, 1), convey.ShouldBeNil)
		defer p.Shutdown(ctx) //nolint:errcheck

		submitN(ctx, t, p, 25)
		results := p.AwaitAll(ctx, 10*time.Second)

		convey.Convey("Then the backlog drains completely", func() {
			convey.So(results, convey.ShouldHaveLength, 25)
			for _, r := range results {
				convey.So(r.Status, convey.ShouldEqual, model.StatusSuccess)
			}
		})
	})
}

func TestPool_FaultContainment(t *testing.T) {
	convey.Convey("Given a runner that crashes on trials 3 and 7", t, func() {
		ctx := context.Background()
		p := worker.NewPool(failTrials(echoRunner, 3, 7),
			worker.WithQueue(queue.NewInMemoryQueue(queue.WithCapacity(16))))
		convey.So(p.Start(ctx, 4), convey.ShouldBeNil)
		defer p.Shutdown(ctx) //nolint:errcheck

		submitN(ctx, t, p, 10)
		results := p.AwaitAll(ctx, 5*time.Second)

		convey.Convey("Then the pool keeps processing the remaining trials", func() {
			convey.So(results, convey.ShouldHaveLength, 10)
			for _, r := range results {
				if r.TrialIdx == 3 || r.TrialIdx == 7 {
					convey.So(r.Status, convey.ShouldEqual, model.StatusFailed)
					convey.So(r.Err, convey.ShouldEqual, "injected crash")
				} else {
					convey.So(r.Status, convey.ShouldEqual, model.StatusSuccess)
				}
			}
		})
	})
}

func TestPool_PanicContainment(t *testing.T) {
	convey.Convey("Given an engine runner whose trial 2 panics", t, func() {
		ctx := context.Background()
		base := worker.NewEngineRunner(panicEngine{onTrialSeed: 2})
		p := worker.NewPool(base, worker.WithQueue(queue.NewInMemoryQueue(queue.WithCapacity(8))))
		convey.So(p.Start(ctx, 2), convey.ShouldBeNil)
		defer p.Shutdown(ctx) //nolint:errcheck

		for i := 0; i < 4; i++ {
			job := model.TrialJob{TrialIdx: i, Seeds: map[string]uint64{"trial": uint64(i)}}
			convey.So(p.Submit(ctx, job), convey.ShouldBeNil)
		}
		results := p.AwaitAll(ctx, 5*time.Second)

		convey.Convey("Then the panic becomes a failed result, not a crash", func() {
			convey.So(results, convey.ShouldHaveLength, 4)
			for _, r := range results {
				if r.TrialIdx == 2 {
					convey.So(r.Status, convey.ShouldEqual, model.StatusFailed)
					convey.So(r.Err, convey.ShouldContainSubstring, "panic")
				} else {
					convey.So(r.Status, convey.ShouldEqual, model.StatusSuccess)
				}
			}
		})
	})
}

// panicEngine panics when the job's "trial" seed matches onTrialSeed.
type panicEngine struct {
	onTrialSeed uint64
}

func (p panicEngine) Simulate(_ context.Context, _ *model.Network, seeds map[string]uint64) (model.Series, []model.SpikeEvent, error) {
	if seeds["trial"] == p.onTrialSeed {
		panic("simulated engine crash")
	}
	return model.Series{StepMS: 1, Values: []float64{1}}, nil, nil
}

func TestPool_TrialTimeout(t *testing.T) {
	convey.Convey("Given a per-trial timeout and one stuck trial", t, func() {
		ctx := context.Background()
		stuck := func(ctx context.Context, job model.TrialJob) model.TrialResult {
			if job.TrialIdx == 1 {
				<-ctx.Done()
				return model.TrialResult{TrialIdx: 1, Status: model.StatusTimedOut, Err: ctx.Err().Error()}
			}
			return echoRunner(ctx, job)
		}
		p := worker.NewPool(stuck,
			worker.WithQueue(queue.NewInMemoryQueue(queue.WithCapacity(8))),
			worker.WithTrialTimeout(50*time.Millisecond),
		)
		convey.So(p.Start(ctx, 2), convey.ShouldBeNil)
		defer p.Shutdown(ctx) //nolint:errcheck

		submitN(ctx, t, p, 3)
		results := p.AwaitAll(ctx, 5*time.Second)

		convey.Convey("Then only the stuck trial times out", func() {
			convey.So(results, convey.ShouldHaveLength, 3)
			convey.So(results[1].Status, convey.ShouldEqual, model.StatusTimedOut)
			convey.So(results[0].Status, convey.ShouldEqual, model.StatusSuccess)
			convey.So(results[2].Status, convey.ShouldEqual, model.StatusSuccess)
		})
	})
}

func TestPool_BarrierTimeout(t *testing.T) {
	convey.Convey("Given a trial that never resolves on its own", t, func() {
		ctx := context.Background()
		hang := func(ctx context.Context, job model.TrialJob) model.TrialResult {
			<-ctx.Done()
			return model.TrialResult{TrialIdx: job.TrialIdx, Status: model.StatusTimedOut, Err: "cancelled"}
		}
		p := worker.NewPool(hang, worker.WithQueue(queue.NewInMemoryQueue(queue.WithCapacity(4))))
		convey.So(p.Start(ctx, 1), convey.ShouldBeNil)
		defer p.Shutdown(ctx) //nolint:errcheck

		convey.So(p.Submit(ctx, model.TrialJob{TrialIdx: 0}), convey.ShouldBeNil)
		results := p.AwaitAll(ctx, 100*time.Millisecond)

		convey.Convey("Then the barrier reports it timed out and cancels the worker", func() {
			convey.So(results, convey.ShouldHaveLength, 1)
			convey.So(results[0].Status, convey.ShouldEqual, model.StatusTimedOut)
		})
	})
}

func TestPool_Lifecycle(t *testing.T) {
	convey.Convey("Given a fresh pool", t, func() {
		ctx := context.Background()
		p := worker.NewPool(echoRunner)

		convey.Convey("Submit before Start is rejected", func() {
			err := p.Submit(ctx, model.TrialJob{TrialIdx: 0})
			convey.So(errors.Is(err, worker.ErrNotStarted), convey.ShouldBeTrue)
		})

		convey.Convey("Start with a non-positive size is ResourceExhausted", func() {
			err := p.Start(ctx, 0)
			convey.So(errors.Is(err, worker.ErrResourceExhausted), convey.ShouldBeTrue)
		})

		convey.Convey("Start twice is rejected", func() {
			convey.So(p.Start(ctx, 1), convey.ShouldBeNil)
			defer p.Shutdown(ctx) //nolint:errcheck
			convey.So(errors.Is(p.Start(ctx, 1), worker.ErrAlreadyStarted), convey.ShouldBeTrue)
		})

		convey.Convey("Shutdown is idempotent and marks unresolved jobs failed", func() {
			convey.So(p.Start(ctx, 1), convey.ShouldBeNil)
			convey.So(p.Shutdown(ctx), convey.ShouldBeNil)
			convey.So(p.Shutdown(ctx), convey.ShouldBeNil)

			err := p.Submit(ctx, model.TrialJob{TrialIdx: 0})
			convey.So(errors.Is(err, worker.ErrPoolClosed), convey.ShouldBeTrue)
		})
	})
}

func TestPool_QueueFull(t *testing.T) {
	convey.Convey("Given a pool with a tiny backlog and a blocked worker", t, func() {
		ctx := context.Background()
		release := make(chan struct{})
		slow := func(ctx context.Context, job model.TrialJob) model.TrialResult {
			select {
			case <-release:
			case <-ctx.Done():
			}
			return echoRunner(ctx, job)
		}
		p := worker.NewPool(slow, worker.WithQueue(queue.NewInMemoryQueue(queue.WithCapacity(1))))
		convey.So(p.Start(ctx, 1), convey.ShouldBeNil)
		defer p.Shutdown(ctx) //nolint:errcheck

		convey.Convey("Then submitting past the backlog reports backpressure", func() {
			// The worker absorbs at most two jobs (one running, one being
			// handed over) on top of the single backlog slot, so submitting
			// well past that must hit the bound.
			accepted := 0
			var rejected error
			for i := 0; i < 10 && rejected == nil; i++ {
				if err := p.Submit(ctx, model.TrialJob{TrialIdx: i}); err != nil {
					rejected = err
					break
				}
				accepted++
			}
			convey.So(errors.Is(rejected, worker.ErrQueueFull), convey.ShouldBeTrue)

			close(release)
			results := p.AwaitAll(ctx, 5*time.Second)
			convey.So(results, convey.ShouldHaveLength, accepted)
		})
	})
}
