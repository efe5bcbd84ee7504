package model_test

import (
	"errors"
	"testing"

	"github.com/okian/dipole/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func validPopulations() map[string]model.Population {
	return map[string]model.Population{
		"L2_pyramidal": {NumCells: 100, DipoleScale: 0.4, TauMS: 10},
		"L5_pyramidal": {NumCells: 100, DipoleScale: 1.0, TauMS: 20},
	}
}

func validDrive() model.Drive {
	return model.Drive{
		Name:            "evprox1",
		MuMS:            20,
		SigmaMS:         3,
		NumSpikes:       1,
		SyncWithinTrial: true,
		WeightsAMPA:     map[string]float64{"L2_pyramidal": 0.0025, "L5_pyramidal": 0.001},
		SynapticDelays:  map[string]float64{"L2_pyramidal": 0.1, "L5_pyramidal": 1.0},
		Location:        model.LocationProximal,
		SeedCore:        6,
	}
}

func TestNewNetwork(t *testing.T) {
	Convey("Given valid populations and drives", t, func() {
		Convey("When constructing a network", func() {
			net, err := model.NewNetwork("somato", validPopulations(), []model.Drive{validDrive()}, 170, 0.5, 0)

			Convey("Then it validates and freezes the configuration", func() {
				So(err, ShouldBeNil)
				So(net.Name(), ShouldEqual, "somato")
				So(net.TStopMS(), ShouldEqual, 170)
				So(net.NumSamples(), ShouldEqual, 341)
				So(net.Drives(), ShouldHaveLength, 1)
			})
		})

		Convey("When mutating the inputs after construction", func() {
			pops := validPopulations()
			drive := validDrive()
			net, err := model.NewNetwork("somato", pops, []model.Drive{drive}, 170, 0.5, 0)
			So(err, ShouldBeNil)

			pops["L2_pyramidal"] = model.Population{NumCells: 1, DipoleScale: 99, TauMS: 1}
			drive.WeightsAMPA["L2_pyramidal"] = 99

			Convey("Then the network is unaffected", func() {
				p, ok := net.Population("L2_pyramidal")
				So(ok, ShouldBeTrue)
				So(p.NumCells, ShouldEqual, 100)
				So(net.Drives()[0].WeightsAMPA["L2_pyramidal"], ShouldEqual, 0.0025)
			})
		})

		Convey("When mutating a copy returned by Drives", func() {
			net, err := model.NewNetwork("somato", validPopulations(), []model.Drive{validDrive()}, 170, 0.5, 0)
			So(err, ShouldBeNil)

			net.Drives()[0].WeightsAMPA["L2_pyramidal"] = 99

			Convey("Then the stored drive is unaffected", func() {
				So(net.Drives()[0].WeightsAMPA["L2_pyramidal"], ShouldEqual, 0.0025)
			})
		})
	})

	Convey("Given invalid configurations", t, func() {
		Convey("A drive targeting an undeclared population is rejected", func() {
			bad := validDrive()
			bad.WeightsAMPA["L6_mystery"] = 0.01
			_, err := model.NewNetwork("somato", validPopulations(), []model.Drive{bad}, 170, 0.5, 0)
			So(errors.Is(err, model.ErrUnknownPopulation), ShouldBeTrue)
		})

		Convey("A duplicate drive name is rejected", func() {
			_, err := model.NewNetwork("somato", validPopulations(),
				[]model.Drive{validDrive(), validDrive()}, 170, 0.5, 0)
			So(errors.Is(err, model.ErrDuplicateDrive), ShouldBeTrue)
		})

		Convey("A drive with no targets is rejected", func() {
			bad := validDrive()
			bad.WeightsAMPA = nil
			bad.WeightsNMDA = nil
			bad.SynapticDelays = nil
			_, err := model.NewNetwork("somato", validPopulations(), []model.Drive{bad}, 170, 0.5, 0)
			So(errors.Is(err, model.ErrInvalidNetwork), ShouldBeTrue)
		})

		Convey("A bad simulation window is rejected", func() {
			_, err := model.NewNetwork("somato", validPopulations(), []model.Drive{validDrive()}, 0, 0.5, 0)
			So(errors.Is(err, model.ErrInvalidNetwork), ShouldBeTrue)
		})

		Convey("An unknown drive location is rejected", func() {
			bad := validDrive()
			bad.Location = "apical"
			_, err := model.NewNetwork("somato", validPopulations(), []model.Drive{bad}, 170, 0.5, 0)
			So(errors.Is(err, model.ErrInvalidNetwork), ShouldBeTrue)
		})

		Convey("A population with no cells is rejected", func() {
			pops := validPopulations()
			pops["L5_pyramidal"] = model.Population{NumCells: 0, DipoleScale: 1, TauMS: 20}
			_, err := model.NewNetwork("somato", pops, []model.Drive{validDrive()}, 170, 0.5, 0)
			So(errors.Is(err, model.ErrInvalidNetwork), ShouldBeTrue)
		})
	})
}
