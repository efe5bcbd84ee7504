package repository

import "errors"

// Sentinel kinds for result store errors.
var (
	ErrNotFound       = errors.New("trial result not found")
	ErrDuplicateTrial = errors.New("trial result already recorded")
)
