// Package netspec loads network definitions from YAML files into validated
// model.Network values.
package netspec

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/okian/dipole/internal/domain/model"
)

// populationSpec mirrors one population entry in a network file.
type populationSpec struct {
	NumCells    int     `yaml:"num_cells"`
	DipoleScale float64 `yaml:"dipole_scale"`
	TauMS       float64 `yaml:"tau_ms"`
}

// driveSpec mirrors one drive entry in a network file.
type driveSpec struct {
	Name            string             `yaml:"name"`
	Location        string             `yaml:"location"`
	MuMS            float64            `yaml:"mu_ms"`
	SigmaMS         float64            `yaml:"sigma_ms"`
	NumSpikes       int                `yaml:"numspikes"`
	SyncWithinTrial bool               `yaml:"sync_within_trial"`
	SeedCore        uint64             `yaml:"seedcore"`
	WeightsAMPA     map[string]float64 `yaml:"weights_ampa"`
	WeightsNMDA     map[string]float64 `yaml:"weights_nmda"`
	SynapticDelays  map[string]float64 `yaml:"synaptic_delays"`
}

// fileSpec mirrors a whole network definition file.
type fileSpec struct {
	Name        string                    `yaml:"name"`
	TStopMS     float64                   `yaml:"tstop_ms"`
	StepMS      float64                   `yaml:"step_ms"`
	NoiseStd    float64                   `yaml:"noise_std"`
	Populations map[string]populationSpec `yaml:"populations"`
	Drives      []driveSpec               `yaml:"drives"`
}

// Load reads and validates a network definition file.
func Load(path string) (*model.Network, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading network file: %w", err)
	}
	net, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return net, nil
}

// Parse validates a YAML network definition.
func Parse(raw []byte) (*model.Network, error) {
	var spec fileSpec
	if err := yaml.Unmarshal(raw, &spec); err != nil {
		return nil, fmt.Errorf("parsing network definition: %w", err)
	}

	pops := make(map[string]model.Population, len(spec.Populations))
	for name, p := range spec.Populations {
		pops[name] = model.Population{
			NumCells:    p.NumCells,
			DipoleScale: p.DipoleScale,
			TauMS:       p.TauMS,
		}
	}

	drives := make([]model.Drive, 0, len(spec.Drives))
	for _, d := range spec.Drives {
		drives = append(drives, model.Drive{
			Name:            d.Name,
			MuMS:            d.MuMS,
			SigmaMS:         d.SigmaMS,
			NumSpikes:       d.NumSpikes,
			SyncWithinTrial: d.SyncWithinTrial,
			WeightsAMPA:     d.WeightsAMPA,
			WeightsNMDA:     d.WeightsNMDA,
			SynapticDelays:  d.SynapticDelays,
			Location:        model.DriveLocation(d.Location),
			SeedCore:        d.SeedCore,
		})
	}

	return model.NewNetwork(spec.Name, pops, drives, spec.TStopMS, spec.StepMS, spec.NoiseStd)
}
