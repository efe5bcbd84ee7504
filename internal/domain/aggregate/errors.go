package aggregate

import "errors"

// Sentinel kinds for aggregation errors.
var (
	ErrDuplicateTrial     = errors.New("duplicate trial result")
	ErrShapeMismatch      = errors.New("trial series shape mismatch")
	ErrInsufficientTrials = errors.New("insufficient successful trials")
)
