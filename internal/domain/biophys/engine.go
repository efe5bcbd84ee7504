// Package biophys defines the contract for the biophysics collaborator that
// turns one network configuration plus one concrete seed assignment into a
// single trial's dipole signal, and provides a deterministic evoked-response
// implementation of it.
//
// The implementation here is not a membrane-level simulator. It reproduces
// the statistical structure of an evoked response: each drive samples event
// onset times from N(mu, sigma) with its per-trial seed, and every targeted
// population contributes an alpha-function dipole kernel scaled by its
// synaptic weights. Proximal drives deflect the net dipole upward, distal
// drives downward. Identical inputs always produce bit-identical output.
package biophys

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/okian/dipole/internal/domain/model"
)

// Engine runs one trial of the network to completion.
type Engine interface {
	// Simulate produces the dipole series and spike events for a single
	// trial. seeds maps drive name to the seed derived for this trial; every
	// drive in net must have an entry. Simulate must be deterministic given
	// identical inputs and must not retain or mutate its arguments.
	Simulate(ctx context.Context, net *model.Network, seeds map[string]uint64) (model.Series, []model.SpikeEvent, error)
}

// EvokedEngine is the default deterministic Engine.
type EvokedEngine struct{}

// NewEvokedEngine returns the default engine.
func NewEvokedEngine() *EvokedEngine { return &EvokedEngine{} }

// Simulate implements Engine.
func (e *EvokedEngine) Simulate(ctx context.Context, net *model.Network, seeds map[string]uint64) (model.Series, []model.SpikeEvent, error) {
	dipole := model.NewSeries(net.StepMS(), net.NumSamples())
	var spikes []model.SpikeEvent

	var noiseSeed uint64
	for _, d := range net.Drives() {
		if err := ctx.Err(); err != nil {
			return model.Series{}, nil, err
		}
		drvSeed, ok := seeds[d.Name]
		if !ok {
			return model.Series{}, nil, fmt.Errorf("%w: drive %q", ErrMissingSeed, d.Name)
		}
		noiseSeed ^= drvSeed

		drvSpikes, err := e.applyDrive(net, d, drvSeed, dipole.Values)
		if err != nil {
			return model.Series{}, nil, err
		}
		spikes = append(spikes, drvSpikes...)
	}

	if std := net.NoiseStd(); std > 0 {
		rng := rand.New(rand.NewSource(int64(noiseSeed))) //nolint:gosec // reproducible stream, not crypto
		for i := range dipole.Values {
			dipole.Values[i] += rng.NormFloat64() * std
		}
	}

	sort.Slice(spikes, func(i, j int) bool {
		if spikes[i].TimeMS != spikes[j].TimeMS {
			return spikes[i].TimeMS < spikes[j].TimeMS
		}
		if spikes[i].Drive != spikes[j].Drive {
			return spikes[i].Drive < spikes[j].Drive
		}
		if spikes[i].Population != spikes[j].Population {
			return spikes[i].Population < spikes[j].Population
		}
		return spikes[i].Unit < spikes[j].Unit
	})

	return dipole, spikes, nil
}

// applyDrive samples the drive's event times and accumulates its dipole
// contribution into values.
func (e *EvokedEngine) applyDrive(net *model.Network, d model.Drive, drvSeed uint64, values []float64) ([]model.SpikeEvent, error) {
	rng := rand.New(rand.NewSource(int64(drvSeed))) //nolint:gosec // reproducible stream, not crypto

	polarity := 1.0
	if d.Location == model.LocationDistal {
		polarity = -1.0
	}

	// Target populations in sorted order so the rng consumption sequence is
	// stable for a given drive.
	targets := targetPopulations(d)

	// Synchronized drives share one sampled onset per event across every
	// unit; unsynchronized drives sample per unit.
	var shared []float64
	if d.SyncWithinTrial {
		shared = make([]float64, d.NumSpikes)
		for i := range shared {
			shared[i] = d.MuMS + rng.NormFloat64()*d.SigmaMS
		}
	}

	var spikes []model.SpikeEvent
	for _, popName := range targets {
		pop, ok := net.Population(popName)
		if !ok {
			return nil, fmt.Errorf("%w: %q", model.ErrUnknownPopulation, popName)
		}
		weight := d.WeightsAMPA[popName] + d.WeightsNMDA[popName]
		delay := d.SynapticDelays[popName]

		for unit := 0; unit < pop.NumCells; unit++ {
			for spike := 0; spike < d.NumSpikes; spike++ {
				var onset float64
				if d.SyncWithinTrial {
					onset = shared[spike]
				} else {
					onset = d.MuMS + rng.NormFloat64()*d.SigmaMS
				}
				if onset < 0 || onset > net.TStopMS() {
					continue
				}
				spikes = append(spikes, model.SpikeEvent{
					TimeMS:     onset,
					Drive:      d.Name,
					Population: popName,
					Unit:       unit,
				})
				addKernel(values, net.StepMS(), onset+delay, pop.TauMS,
					polarity*weight*pop.DipoleScale/float64(pop.NumCells))
			}
		}
	}
	return spikes, nil
}

// targetPopulations returns the union of the drive's AMPA and NMDA targets,
// sorted by name.
func targetPopulations(d model.Drive) []string {
	set := make(map[string]struct{}, len(d.WeightsAMPA)+len(d.WeightsNMDA))
	for name := range d.WeightsAMPA {
		set[name] = struct{}{}
	}
	for name := range d.WeightsNMDA {
		set[name] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// addKernel accumulates one alpha-function kernel a(t) = (t/tau)*e^(1-t/tau)
// starting at onsetMS, scaled by amp.
func addKernel(values []float64, stepMS, onsetMS, tauMS, amp float64) {
	for i := range values {
		dt := float64(i)*stepMS - onsetMS
		if dt < 0 {
			continue
		}
		x := dt / tauMS
		values[i] += amp * x * math.Exp(1-x)
	}
}
