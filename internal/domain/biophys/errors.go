package biophys

import "errors"

// Sentinel kinds for engine failures.
var (
	ErrMissingSeed = errors.New("missing drive seed")
)
