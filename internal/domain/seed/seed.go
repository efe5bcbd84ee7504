// Package seed derives per-(trial, drive) random seeds from a drive's base
// seed. The derivation is a pure function: identical inputs always produce
// identical seeds, and distinct (trial, drive) pairs land in distinct streams
// with overwhelming probability, which is what makes trials independent and
// reproducible.
package seed

import (
	"fmt"
	"hash/fnv"
)

// Policy maps (base seed, trial index, drive name) to a trial-specific seed.
type Policy interface {
	// Derive returns the seed for one drive in one trial. trialIdx must be
	// non-negative; a negative index is a caller contract violation and
	// returns ErrNegativeTrial.
	Derive(baseSeed uint64, trialIdx int, driveName string) (uint64, error)
}

// SplitMix derives seeds by mixing the base seed, trial index and a hash of
// the drive name through the SplitMix64 finalizer. It is stateless and safe
// for concurrent use.
type SplitMix struct{}

// NewSplitMix returns the default seed policy.
func NewSplitMix() SplitMix { return SplitMix{} }

// splitmix64 is the 64-bit finalizer from Vigna's SplitMix64 generator.
func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// Derive implements Policy.
func (SplitMix) Derive(baseSeed uint64, trialIdx int, driveName string) (uint64, error) {
	if trialIdx < 0 {
		return 0, fmt.Errorf("%w: %d", ErrNegativeTrial, trialIdx)
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(driveName))
	mixed := splitmix64(baseSeed ^ splitmix64(uint64(trialIdx)+1) ^ h.Sum64())
	return mixed, nil
}
