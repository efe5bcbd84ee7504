// Package model contains the domain records passed between layers: the
// immutable network/drive configuration, per-trial jobs and results, and the
// aggregate produced from them.
package model

import (
	"fmt"
	"math"
)

// DriveLocation tags where on the dendritic tree a drive attaches. It is
// consumed by the biophysics engine; proximal drives deflect the net dipole
// upward and distal drives downward.
type DriveLocation string

// Recognized drive locations.
const (
	LocationProximal DriveLocation = "proximal"
	LocationDistal   DriveLocation = "distal"
)

// Population describes one cell population in the network.
type Population struct {
	// NumCells is the number of simulated units in the population.
	NumCells int
	// DipoleScale is the population's mean contribution to the net dipole
	// moment per unit synaptic weight, in nAm.
	DipoleScale float64
	// TauMS is the population's dipole kernel time constant.
	TauMS float64
}

// Drive specifies one exogenous evoked input: when its events occur, which
// populations they target and how strongly, and the base seed its per-trial
// randomness derives from.
type Drive struct {
	// Name uniquely identifies the drive within a network.
	Name string
	// MuMS and SigmaMS parameterize the normal distribution of event onset
	// times, in milliseconds.
	MuMS    float64
	SigmaMS float64
	// NumSpikes is the number of events per unit (or per trial when
	// SyncWithinTrial is set).
	NumSpikes int
	// SyncWithinTrial makes all units share a single sampled onset per event
	// instead of sampling independently per unit.
	SyncWithinTrial bool
	// WeightsAMPA and WeightsNMDA map target population name to synaptic
	// weight. A population missing from both maps is not targeted.
	WeightsAMPA map[string]float64
	WeightsNMDA map[string]float64
	// SynapticDelays maps target population name to conduction delay in
	// milliseconds. Populations absent from the map use zero delay.
	SynapticDelays map[string]float64
	// Location is the dendritic attachment point.
	Location DriveLocation
	// SeedCore is the base seed from which per-trial seeds derive.
	SeedCore uint64
}

// Network is the immutable description of the simulated network: its
// populations, the drives applied to them, and the simulation window.
// Construct with NewNetwork; a validated Network is never mutated and may be
// shared read-only across concurrent trials.
type Network struct {
	name        string
	populations map[string]Population
	drives      []Drive
	tstopMS     float64
	stepMS      float64
	noiseStd    float64
}

// NewNetwork validates and freezes a network configuration. The populations
// and drives are copied; later mutation of the arguments does not affect the
// returned Network. Validation failures wrap ErrInvalidNetwork,
// ErrUnknownPopulation or ErrDuplicateDrive.
func NewNetwork(name string, populations map[string]Population, drives []Drive, tstopMS, stepMS, noiseStd float64) (*Network, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: network name must not be empty", ErrInvalidNetwork)
	}
	if len(populations) == 0 {
		return nil, fmt.Errorf("%w: at least one population required", ErrInvalidNetwork)
	}
	if tstopMS <= 0 || stepMS <= 0 || tstopMS < stepMS {
		return nil, fmt.Errorf("%w: bad simulation window tstop=%v step=%v", ErrInvalidNetwork, tstopMS, stepMS)
	}
	if noiseStd < 0 || math.IsNaN(noiseStd) {
		return nil, fmt.Errorf("%w: noise std must be non-negative", ErrInvalidNetwork)
	}

	pops := make(map[string]Population, len(populations))
	for popName, p := range populations {
		if p.NumCells <= 0 {
			return nil, fmt.Errorf("%w: population %q has no cells", ErrInvalidNetwork, popName)
		}
		if p.TauMS <= 0 {
			return nil, fmt.Errorf("%w: population %q has non-positive tau", ErrInvalidNetwork, popName)
		}
		pops[popName] = p
	}

	seen := make(map[string]struct{}, len(drives))
	frozen := make([]Drive, 0, len(drives))
	for _, d := range drives {
		if d.Name == "" {
			return nil, fmt.Errorf("%w: drive name must not be empty", ErrInvalidNetwork)
		}
		if _, dup := seen[d.Name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateDrive, d.Name)
		}
		seen[d.Name] = struct{}{}
		if d.NumSpikes <= 0 {
			return nil, fmt.Errorf("%w: drive %q has no events", ErrInvalidNetwork, d.Name)
		}
		if d.SigmaMS < 0 {
			return nil, fmt.Errorf("%w: drive %q has negative sigma", ErrInvalidNetwork, d.Name)
		}
		if d.Location != LocationProximal && d.Location != LocationDistal {
			return nil, fmt.Errorf("%w: drive %q has unknown location %q", ErrInvalidNetwork, d.Name, d.Location)
		}
		for _, weights := range []map[string]float64{d.WeightsAMPA, d.WeightsNMDA} {
			for popName := range weights {
				if _, ok := pops[popName]; !ok {
					return nil, fmt.Errorf("%w: drive %q targets %q", ErrUnknownPopulation, d.Name, popName)
				}
			}
		}
		for popName := range d.SynapticDelays {
			if _, ok := pops[popName]; !ok {
				return nil, fmt.Errorf("%w: drive %q delays %q", ErrUnknownPopulation, d.Name, popName)
			}
		}
		if len(d.WeightsAMPA) == 0 && len(d.WeightsNMDA) == 0 {
			return nil, fmt.Errorf("%w: drive %q targets no population", ErrInvalidNetwork, d.Name)
		}
		frozen = append(frozen, cloneDrive(d))
	}

	return &Network{
		name:        name,
		populations: pops,
		drives:      frozen,
		tstopMS:     tstopMS,
		stepMS:      stepMS,
		noiseStd:    noiseStd,
	}, nil
}

func cloneDrive(d Drive) Drive {
	out := d
	out.WeightsAMPA = cloneWeights(d.WeightsAMPA)
	out.WeightsNMDA = cloneWeights(d.WeightsNMDA)
	out.SynapticDelays = cloneWeights(d.SynapticDelays)
	return out
}

func cloneWeights(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Name returns the network's display name.
func (n *Network) Name() string { return n.name }

// Population returns the named population and whether it exists.
func (n *Network) Population(name string) (Population, bool) {
	p, ok := n.populations[name]
	return p, ok
}

// PopulationNames returns the declared population names in unspecified order.
func (n *Network) PopulationNames() []string {
	names := make([]string, 0, len(n.populations))
	for name := range n.populations {
		names = append(names, name)
	}
	return names
}

// Drives returns a copy of the drive list in declaration order.
func (n *Network) Drives() []Drive {
	out := make([]Drive, len(n.drives))
	for i, d := range n.drives {
		out[i] = cloneDrive(d)
	}
	return out
}

// TStopMS returns the simulation end time in milliseconds.
func (n *Network) TStopMS() float64 { return n.tstopMS }

// StepMS returns the sampling interval in milliseconds.
func (n *Network) StepMS() float64 { return n.stepMS }

// NoiseStd returns the standard deviation of additive sample noise.
func (n *Network) NoiseStd() float64 { return n.noiseStd }

// NumSamples returns the number of samples a trial's dipole series will have.
func (n *Network) NumSamples() int {
	return int(math.Floor(n.tstopMS/n.stepMS)) + 1
}
