package biophys_test

import (
	"context"
	"errors"
	"testing"

	"github.com/okian/dipole/internal/domain/biophys"
	"github.com/okian/dipole/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func testNetwork(t *testing.T, noiseStd float64) *model.Network {
	t.Helper()
	net, err := model.NewNetwork("test",
		map[string]model.Population{
			"L2_pyramidal": {NumCells: 10, DipoleScale: 0.4, TauMS: 10},
			"L5_pyramidal": {NumCells: 10, DipoleScale: 1.0, TauMS: 20},
		},
		[]model.Drive{
			{
				Name: "evprox1", MuMS: 20, SigmaMS: 3, NumSpikes: 1, SyncWithinTrial: true,
				WeightsAMPA: map[string]float64{"L2_pyramidal": 0.0025, "L5_pyramidal": 0.001},
				Location:    model.LocationProximal, SeedCore: 6,
			},
			{
				Name: "evdist1", MuMS: 32, SigmaMS: 3, NumSpikes: 1, SyncWithinTrial: true,
				WeightsAMPA: map[string]float64{"L2_pyramidal": 0.0045, "L5_pyramidal": 0.001},
				Location:    model.LocationDistal, SeedCore: 6,
			},
		},
		100, 0.5, noiseStd)
	if err != nil {
		t.Fatalf("building test network: %v", err)
	}
	return net
}

func TestEvokedEngine_Simulate(t *testing.T) {
	Convey("Given the evoked engine and a two-drive network", t, func() {
		engine := biophys.NewEvokedEngine()
		net := testNetwork(t, 0)
		ctx := context.Background()
		seeds := map[string]uint64{"evprox1": 101, "evdist1": 202}

		Convey("When simulating one trial", func() {
			dipole, spikes, err := engine.Simulate(ctx, net, seeds)

			Convey("Then the series matches the network window", func() {
				So(err, ShouldBeNil)
				So(dipole.Len(), ShouldEqual, net.NumSamples())
				So(dipole.StepMS, ShouldEqual, net.StepMS())
			})

			Convey("Then every targeted unit spikes", func() {
				// 2 drives x 2 populations x 10 cells x 1 spike.
				So(spikes, ShouldHaveLength, 40)
			})

			Convey("Then spike records are tagged and time ordered", func() {
				for i, s := range spikes {
					So(s.Drive, ShouldBeIn, []string{"evprox1", "evdist1"})
					So(s.Population, ShouldBeIn, []string{"L2_pyramidal", "L5_pyramidal"})
					if i > 0 {
						So(s.TimeMS, ShouldBeGreaterThanOrEqualTo, spikes[i-1].TimeMS)
					}
				}
			})
		})

		Convey("When simulating the same seeds twice", func() {
			a, aspikes, errA := engine.Simulate(ctx, net, seeds)
			b, bspikes, errB := engine.Simulate(ctx, net, seeds)

			Convey("Then the outputs are bit-identical", func() {
				So(errA, ShouldBeNil)
				So(errB, ShouldBeNil)
				So(a.Values, ShouldResemble, b.Values)
				So(aspikes, ShouldResemble, bspikes)
			})
		})

		Convey("When simulating with different seeds", func() {
			a, _, _ := engine.Simulate(ctx, net, seeds)
			b, _, _ := engine.Simulate(ctx, net, map[string]uint64{"evprox1": 103, "evdist1": 204})

			Convey("Then the signals differ", func() {
				So(a.Values, ShouldNotResemble, b.Values)
			})
		})

		Convey("When a drive seed is missing", func() {
			_, _, err := engine.Simulate(ctx, net, map[string]uint64{"evprox1": 101})

			Convey("Then it fails with a missing-seed error", func() {
				So(errors.Is(err, biophys.ErrMissingSeed), ShouldBeTrue)
			})
		})

		Convey("When the context is already cancelled", func() {
			cancelled, cancel := context.WithCancel(ctx)
			cancel()
			_, _, err := engine.Simulate(cancelled, net, seeds)

			Convey("Then the run is abandoned", func() {
				So(err, ShouldNotBeNil)
			})
		})

		Convey("When noise is enabled", func() {
			noisy := testNetwork(t, 0.01)
			a, _, errA := engine.Simulate(ctx, noisy, seeds)
			b, _, errB := engine.Simulate(ctx, noisy, seeds)

			Convey("Then noise is reproducible for fixed seeds", func() {
				So(errA, ShouldBeNil)
				So(errB, ShouldBeNil)
				So(a.Values, ShouldResemble, b.Values)
			})
		})
	})
}

func TestEvokedEngine_Polarity(t *testing.T) {
	Convey("Given one proximal and one distal single-drive network", t, func() {
		engine := biophys.NewEvokedEngine()
		ctx := context.Background()

		build := func(loc model.DriveLocation) *model.Network {
			net, err := model.NewNetwork("polarity",
				map[string]model.Population{
					"L5_pyramidal": {NumCells: 5, DipoleScale: 1.0, TauMS: 20},
				},
				[]model.Drive{{
					Name: "ev", MuMS: 10, SigmaMS: 0, NumSpikes: 1, SyncWithinTrial: true,
					WeightsAMPA: map[string]float64{"L5_pyramidal": 0.01},
					Location:    loc, SeedCore: 1,
				}},
				80, 0.5, 0)
			So(err, ShouldBeNil)
			return net
		}

		Convey("When simulating both", func() {
			prox, _, errP := engine.Simulate(ctx, build(model.LocationProximal), map[string]uint64{"ev": 7})
			dist, _, errD := engine.Simulate(ctx, build(model.LocationDistal), map[string]uint64{"ev": 7})
			So(errP, ShouldBeNil)
			So(errD, ShouldBeNil)

			Convey("Then proximal deflects upward and distal downward", func() {
				maxProx, minDist := 0.0, 0.0
				for i := range prox.Values {
					if prox.Values[i] > maxProx {
						maxProx = prox.Values[i]
					}
					if dist.Values[i] < minDist {
						minDist = dist.Values[i]
					}
				}
				So(maxProx, ShouldBeGreaterThan, 0)
				So(minDist, ShouldBeLessThan, 0)
			})

			Convey("Then the two are mirror images", func() {
				for i := range prox.Values {
					So(dist.Values[i], ShouldAlmostEqual, -prox.Values[i], 1e-12)
				}
			})
		})
	})
}
