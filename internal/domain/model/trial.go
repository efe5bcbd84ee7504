package model

import "time"

// Status classifies how a trial resolved.
type Status string

// Trial statuses.
const (
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusTimedOut Status = "timed-out"
)

// SpikeEvent records one drive event delivered to one unit during a trial.
type SpikeEvent struct {
	TimeMS     float64
	Drive      string
	Population string
	Unit       int
}

// TrialJob is the unit of work dispatched to a worker: which trial to run,
// the seeds derived for it, and the shared read-only network. Seeds map drive
// name to the seed derived for this trial; the map is never mutated after
// construction.
type TrialJob struct {
	TrialIdx int
	Seeds    map[string]uint64
	Net      *Network
}

// TrialResult is the immutable outcome of one trial. Dipole and Spikes are
// populated only when Status is StatusSuccess; Err carries the failure
// message otherwise.
type TrialResult struct {
	TrialIdx int
	Status   Status
	Dipole   Series
	Spikes   []SpikeEvent
	Err      string
	Elapsed  time.Duration
}

// AggregateResult is the reduction of the successful trials: the element-wise
// sample mean (and variance) of their dipole series, the number of trials
// included, and the indices of trials that failed or timed out.
type AggregateResult struct {
	Mean     Series
	Variance Series
	Included int
	Failed   []int
}
