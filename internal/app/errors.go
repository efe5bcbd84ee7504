package app

import "errors"

// Sentinel kinds for session errors.
var (
	ErrInvalidSession = errors.New("invalid session configuration")
	ErrAlreadyRun     = errors.New("session already run")
)
