package reinforcement

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"qmaze/maze"
	"qmaze/qtable"

	. "github.com/smartystreets/goconvey/convey"
)

func TestFromYaml(t *testing.T) {
	Convey("Given a qlearning config file", t, func() {
		cfg, err := FromYaml("testdata/config.yaml")
		So(err, ShouldBeNil)

		Convey("The hyper-parameters become training parameters", func() {
			params, err := cfg.Params()
			So(err, ShouldBeNil)
			So(params, ShouldResemble, Params{Episodes: 200, MaxSteps: 40, Epsilon: 10, Alpha: 30, Gamma: 95})
			So(cfg.ProgressEvery(), ShouldEqual, uint32(25))
		})

		Convey("The seed starts a fresh table", func() {
			state, err := cfg.InitialState()
			So(err, ShouldBeNil)
			So(state.Seed, ShouldEqual, uint32(7))
			So(state.Table, ShouldResemble, qtable.Table{})
		})

		Convey("The layout replaces the default maze", func() {
			layout, err := cfg.MazeLayout()
			So(err, ShouldBeNil)
			So(layout.Rows(), ShouldResemble, []string{"-oooo", "ooooo", "ooooo", "ooooo", "oooo+"})
		})
	})

	Convey("Missing hyper-parameters and layout fall back to defaults", t, func() {
		path := filepath.Join(t.TempDir(), "empty.yaml")
		So(os.WriteFile(path, []byte("kind: qlearning\ndef:\n  hyperParams: []\n"), 0o644), ShouldBeNil)

		cfg, err := FromYaml(path)
		So(err, ShouldBeNil)
		params, err := cfg.Params()
		So(err, ShouldBeNil)
		So(params, ShouldResemble, Params{
			Episodes: DefaultEpisodes,
			MaxSteps: DefaultMaxSteps,
			Epsilon:  DefaultEpsilon,
			Alpha:    DefaultAlpha,
			Gamma:    DefaultGamma,
		})
		layout, err := cfg.MazeLayout()
		So(err, ShouldBeNil)
		So(layout, ShouldResemble, maze.Default)
		state, err := cfg.InitialState()
		So(err, ShouldBeNil)
		So(state, ShouldResemble, qtable.NewState())
	})

	Convey("Other config kinds are rejected", t, func() {
		_, err := FromYaml("testdata/bad_kind.yaml")
		So(errors.Is(err, ErrConfigKind), ShouldBeTrue)
	})

	Convey("Out of range percentages are rejected at load time", t, func() {
		cfg, err := FromYaml("testdata/bad_range.yaml")
		So(err, ShouldBeNil)
		_, err = cfg.Params()
		So(errors.Is(err, ErrParamRange), ShouldBeTrue)
	})

	Convey("A config over the step budget is rejected", t, func() {
		cfg := &TrainingConfig{HyperParams: []HyperParameter{
			{Key: "episodes", Val: 100000},
			{Key: "maxSteps", Val: 100000},
		}}
		_, err := cfg.Params()
		So(errors.Is(err, ErrBudget), ShouldBeTrue)
	})

	Convey("Negative values are rejected", t, func() {
		cfg := &TrainingConfig{HyperParams: []HyperParameter{{Key: "episodes", Val: -1}}}
		_, err := cfg.Params()
		So(errors.Is(err, ErrParamRange), ShouldBeTrue)
	})

	Convey("A malformed layout is reported", t, func() {
		cfg := &TrainingConfig{Layout: []string{"-ooo", "ooooo", "ooooo", "ooooo", "oooo+"}}
		_, err := cfg.MazeLayout()
		So(errors.Is(err, maze.ErrLayoutSize), ShouldBeTrue)
	})

	Convey("A missing file is an error", t, func() {
		_, err := FromYaml("testdata/nope.yaml")
		So(err, ShouldNotBeNil)
	})
}
