package seed

import "errors"

// Sentinel kinds for seed derivation.
var (
	ErrNegativeTrial = errors.New("negative trial index")
)
