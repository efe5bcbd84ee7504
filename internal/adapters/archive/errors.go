package archive

import "errors"

// Sentinel kinds for archive errors.
var (
	ErrRunNotFound = errors.New("run not found")
)
