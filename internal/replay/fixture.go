package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"

	"github.com/danielpatrickdp/adaptive-state/planner/internal/eval"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/inductive"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/model"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/planner"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/policy"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/rollout"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description     string                  `json:"description"`
	Model           model.Model             `json:"model"`
	Config          FixtureConfig           `json:"config"`
	Steps           []FixtureStep           `json:"steps"`
	ExpectedResults []FixtureExpectedResult `json:"expected_results"`
}

// FixtureStep mirrors replay.Step with JSON tags.
type FixtureStep struct {
	StepID  string      `json:"step_id"`
	Beliefs [][]float64 `json:"beliefs,omitempty"`
}

// FixtureExpectedResult captures the expected outcome and action per step.
type FixtureExpectedResult struct {
	StepID  string `json:"step_id"`
	Outcome string `json:"outcome"`
	Action  []int  `json:"action"`
}

// FixtureConfig bundles planner and eval settings for a replay run. Zero
// values fall back to the planner defaults.
type FixtureConfig struct {
	Gamma             float64               `json:"gamma"`
	Alpha             float64               `json:"alpha"`
	PolicyLen         int                   `json:"policy_len"`
	Variant           string                `json:"variant"`
	Mode              string                `json:"mode"`
	Level             string                `json:"level"`
	UseUtility        *bool                 `json:"use_utility"`
	UseStatesInfoGain *bool                 `json:"use_states_info_gain"`
	UseParamInfoGain  bool                  `json:"use_param_info_gain"`
	UseInductive      bool                  `json:"use_inductive"`
	Inductive         *FixtureInductiveConf `json:"inductive"`
	ControlFactors    []int                 `json:"control_factors,omitempty"`
	NumControls       []int                 `json:"num_controls,omitempty"`
	Seed              [2]uint64             `json:"seed"`
	EvalConfig        *FixtureEvalConfig    `json:"eval_config"`
}

// FixtureInductiveConf mirrors inductive.Config with JSON tags.
type FixtureInductiveConf struct {
	Threshold float64 `json:"threshold"`
	Depth     int     `json:"depth"`
	Epsilon   float64 `json:"epsilon"`
}

// FixtureEvalConfig mirrors eval.EvalConfig with JSON tags.
type FixtureEvalConfig struct {
	Tolerance       float64 `json:"tolerance"`
	EntropyBaseline float64 `json:"entropy_baseline"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// Planner builds a planner for the fixture's model and config.
func (f *Fixture) Planner(opts ...planner.Option) (*planner.Planner, error) {
	p, err := planner.New(&f.Model, f.Config.ToPlannerConfig(), opts...)
	if err != nil {
		return nil, fmt.Errorf("fixture planner: %w", err)
	}
	return p, nil
}

// ToSteps converts the fixture steps to domain Steps.
func (f *Fixture) ToSteps() []Step {
	out := make([]Step, len(f.Steps))
	for i, s := range f.Steps {
		out[i] = s.ToStep()
	}
	return out
}

// ToStep converts a FixtureStep to a domain Step.
func (fs *FixtureStep) ToStep() Step {
	var qs model.Beliefs
	if fs.Beliefs != nil {
		qs = model.Beliefs(fs.Beliefs).Clone()
	}
	return Step{StepID: fs.StepID, Beliefs: qs}
}

// ToPlannerConfig converts a FixtureConfig to a planner.Config.
func (fc *FixtureConfig) ToPlannerConfig() planner.Config {
	cfg := planner.DefaultConfig()
	if fc.Gamma != 0 {
		cfg.Gamma = fc.Gamma
	}
	if fc.PolicyLen != 0 {
		cfg.PolicyLen = fc.PolicyLen
	}
	if fc.Alpha != 0 {
		cfg.Selection.Alpha = fc.Alpha
	}
	if fc.Mode != "" {
		cfg.Selection.Mode = policy.Mode(fc.Mode)
	}
	if fc.Level != "" {
		cfg.Selection.Level = policy.Level(fc.Level)
	}
	if fc.Variant != "" {
		cfg.Rollout.Variant = rollout.Variant(fc.Variant)
	}
	if fc.UseUtility != nil {
		cfg.Rollout.UseUtility = *fc.UseUtility
	}
	if fc.UseStatesInfoGain != nil {
		cfg.Rollout.UseStatesInfoGain = *fc.UseStatesInfoGain
	}
	cfg.Rollout.UseParamInfoGain = fc.UseParamInfoGain
	cfg.Rollout.UseInductive = fc.UseInductive
	if fc.Inductive != nil {
		cfg.Rollout.Inductive = inductive.Config{
			Threshold: fc.Inductive.Threshold,
			Depth:     fc.Inductive.Depth,
			Epsilon:   fc.Inductive.Epsilon,
		}
	}
	cfg.ControlFactors = slices.Clone(fc.ControlFactors)
	cfg.NumControls = slices.Clone(fc.NumControls)
	return cfg
}

// ToReplayConfig converts a FixtureConfig to a domain ReplayConfig.
func (fc *FixtureConfig) ToReplayConfig() ReplayConfig {
	config := DefaultReplayConfig()
	if fc.Seed != [2]uint64{} {
		config.Seed = fc.Seed
	}
	if fc.EvalConfig != nil {
		config.EvalConfig = eval.EvalConfig{
			Tolerance:       fc.EvalConfig.Tolerance,
			EntropyBaseline: fc.EvalConfig.EntropyBaseline,
		}
	}
	return config
}

// #endregion fixture-loader
