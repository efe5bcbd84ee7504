// Package aggregate reduces an unordered stream of per-trial results into a
// single mean dipole signal.
//
// Results arrive from concurrently running workers in arbitrary order; the
// aggregator's contract is that the numbers it produces depend only on the
// set of successful trial indices collected, never on arrival order. It
// guarantees that by accumulating in sorted-trial-index order with Welford's
// algorithm, which also keeps precision loss bounded for large trial counts.
package aggregate

import (
	"fmt"
	"sort"
	"sync"

	"github.com/okian/dipole/internal/domain/model"
)

// Aggregator collects TrialResults keyed by trial index and computes their
// element-wise mean and variance. Safe for concurrent Add calls.
//
// Duplicate policy: the first result delivered for a trial index wins; a
// second Add with the same index is rejected with ErrDuplicateTrial and does
// not alter state.
type Aggregator struct {
	mu        sync.Mutex
	stepMS    float64
	samples   int
	successes map[int]model.Series
	failed    map[int]model.Status
}

// New creates an aggregator expecting series of the given shape. The shape is
// fixed up front (from the network's simulation window) so that which trials
// get excluded never depends on arrival order.
func New(stepMS float64, samples int) *Aggregator {
	return &Aggregator{
		stepMS:    stepMS,
		samples:   samples,
		successes: make(map[int]model.Series),
		failed:    make(map[int]model.Status),
	}
}

// Add records one trial result. Failed and timed-out results are recorded as
// excluded trials. A successful result whose series does not match the
// expected shape is rejected with ErrShapeMismatch and recorded as excluded
// rather than silently truncated or padded.
func (a *Aggregator) Add(r model.TrialResult) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, dup := a.successes[r.TrialIdx]; dup {
		return fmt.Errorf("%w: trial %d", ErrDuplicateTrial, r.TrialIdx)
	}
	if _, dup := a.failed[r.TrialIdx]; dup {
		return fmt.Errorf("%w: trial %d", ErrDuplicateTrial, r.TrialIdx)
	}

	if r.Status != model.StatusSuccess {
		a.failed[r.TrialIdx] = r.Status
		return nil
	}

	if len(r.Dipole.Values) != a.samples || r.Dipole.StepMS != a.stepMS {
		a.failed[r.TrialIdx] = model.StatusFailed
		return fmt.Errorf("%w: trial %d has %d samples at %vms, want %d at %vms",
			ErrShapeMismatch, r.TrialIdx, len(r.Dipole.Values), r.Dipole.StepMS, a.samples, a.stepMS)
	}

	a.successes[r.TrialIdx] = r.Dipole.Clone()
	return nil
}

// SuccessCount returns the number of successful results collected so far.
func (a *Aggregator) SuccessCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.successes)
}

// Finalize computes the aggregate over all successful trials. It fails with
// ErrInsufficientTrials when fewer than minRequired successes are present.
// Variance is the unbiased sample variance (zero when a single trial was
// included).
func (a *Aggregator) Finalize(minRequired int) (model.AggregateResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	failed := make([]int, 0, len(a.failed))
	for idx := range a.failed {
		failed = append(failed, idx)
	}
	sort.Ints(failed)

	if len(a.successes) < minRequired {
		return model.AggregateResult{Failed: failed}, fmt.Errorf("%w: %d successful of %d required",
			ErrInsufficientTrials, len(a.successes), minRequired)
	}

	indices := make([]int, 0, len(a.successes))
	for idx := range a.successes {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	mean := model.NewSeries(a.stepMS, a.samples)
	m2 := make([]float64, a.samples)
	for k, idx := range indices {
		values := a.successes[idx].Values
		n := float64(k + 1)
		for i, v := range values {
			delta := v - mean.Values[i]
			mean.Values[i] += delta / n
			m2[i] += delta * (v - mean.Values[i])
		}
	}

	variance := model.NewSeries(a.stepMS, a.samples)
	if len(indices) > 1 {
		for i := range m2 {
			variance.Values[i] = m2[i] / float64(len(indices)-1)
		}
	}

	return model.AggregateResult{
		Mean:     mean,
		Variance: variance,
		Included: len(indices),
		Failed:   failed,
	}, nil
}
