package worker

import "errors"

// Sentinel kinds for pool errors.
var (
	ErrResourceExhausted = errors.New("cannot provision worker pool")
	ErrAlreadyStarted    = errors.New("pool already started")
	ErrNotStarted        = errors.New("pool not started")
	ErrPoolClosed        = errors.New("pool closed")
	ErrQueueFull         = errors.New("job queue full")
)
