package reinforcement

import (
	"errors"
	"fmt"

	"qmaze/maze"
	"qmaze/prng"
	"qmaze/qtable"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// ConfigKind is the only envelope kind FromYaml accepts.
const ConfigKind = "qlearning"

var ErrConfigKind = errors.New("unsupported config kind")

// OuterConfig is the envelope of a config file: a kind selector and a free-form
// definition decoded according to that kind.
type OuterConfig struct {
	Kind string      `mapstructure:"kind"`
	Def  interface{} `mapstructure:"def"`
}

// TrainingConfig holds the training parameters kept outside of code: the
// hyper-parameters of a training call and, optionally, a replacement maze.
type TrainingConfig struct {
	// HyperParams is a key-val pair of param names and their value.
	HyperParams []HyperParameter `yaml:"hyperparams"`
	// Layout, if present, replaces maze.Default. Rows are written top to bottom.
	Layout []string `yaml:"layout"`
}

type HyperParameter struct {
	Key string `yaml:"key"`
	Val int64  `yaml:"val"`
}

// Defaults used when a hyper-parameter is absent from the config.
const (
	DefaultEpisodes      = 500
	DefaultMaxSteps      = 50
	DefaultEpsilon       = 20
	DefaultAlpha         = 50
	DefaultGamma         = 90
	DefaultProgressEvery = 50
)

func (cfg *TrainingConfig) GetHyperParamOrDefault(param string, defaultVal int64) int64 {
	for _, kvp := range cfg.HyperParams {
		if kvp.Key == param {
			return kvp.Val
		}
	}
	return defaultVal
}

// Params returns the training-call parameters described by the config.
// Negative values are rejected here; percentages above 100 are rejected by Validate.
func (cfg *TrainingConfig) Params() (p Params, err error) {
	fields := []struct {
		key string
		def int64
		dst *uint32
	}{
		{"episodes", DefaultEpisodes, &p.Episodes},
		{"maxSteps", DefaultMaxSteps, &p.MaxSteps},
		{"epsilon", DefaultEpsilon, &p.Epsilon},
		{"alpha", DefaultAlpha, &p.Alpha},
		{"gamma", DefaultGamma, &p.Gamma},
	}
	for _, f := range fields {
		val := cfg.GetHyperParamOrDefault(f.key, f.def)
		if val < 0 || val > int64(^uint32(0)) {
			return p, fmt.Errorf("%w: %s=%d", ErrParamRange, f.key, val)
		}
		*f.dst = uint32(val)
	}
	err = p.Validate()
	return
}

// ProgressEvery is the number of episodes between progress callbacks.
func (cfg *TrainingConfig) ProgressEvery() uint32 {
	every := cfg.GetHyperParamOrDefault("progressEvery", DefaultProgressEvery)
	if every <= 0 {
		return 0
	}
	return uint32(every)
}

// InitialState is the state to start from when nothing has been persisted:
// a zero table and the configured seed, or prng.InitialSeed.
func (cfg *TrainingConfig) InitialState() (qtable.State, error) {
	state := qtable.NewState()
	seed := cfg.GetHyperParamOrDefault("seed", int64(prng.InitialSeed))
	if seed < 0 || seed > int64(^uint32(0)) {
		return state, fmt.Errorf("%w: seed=%d", ErrParamRange, seed)
	}
	state.Seed = uint32(seed)
	return state, nil
}

// MazeLayout returns the configured layout, or maze.Default when none is given.
func (cfg *TrainingConfig) MazeLayout() (maze.Layout, error) {
	if len(cfg.Layout) == 0 {
		return maze.Default, nil
	}
	return maze.ParseLayout(cfg.Layout)
}

// FromYaml reads a config file. Viper reads the envelope; the definition is then
// re-encoded and decoded with yaml so that its shape can depend on the kind.
// Viper lowercases every map key it reads, hence the lowercase yaml tags above.
func FromYaml(path string) (*TrainingConfig, error) {
	vp := viper.New()
	vp.SetConfigFile(path)
	vp.SetConfigType("yaml")
	var err error
	if err = vp.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	outerConfig := &OuterConfig{}
	if err = vp.Unmarshal(outerConfig); err != nil {
		return nil, err
	}
	if outerConfig.Kind != ConfigKind {
		return nil, fmt.Errorf("%w: %q", ErrConfigKind, outerConfig.Kind)
	}

	var def []byte
	if def, err = yaml.Marshal(outerConfig.Def); err != nil {
		return nil, err
	}

	innerConfig := &TrainingConfig{}
	if err = yaml.Unmarshal(def, innerConfig); err != nil {
		return nil, err
	}

	return innerConfig, nil
}
