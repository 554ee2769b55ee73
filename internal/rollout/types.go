package rollout

import (
	"github.com/danielpatrickdp/adaptive-state/planner/internal/inductive"
)

// #region variant
// Variant names a way of folding per-step terms into negative EFE.
type Variant string

const (
	// VariantStandard adds info gain, utility and parameter info gain each step.
	VariantStandard Variant = "standard"
	// VariantInductive subtracts parameter info gain and adds the inductive value.
	VariantInductive Variant = "inductive"
	// VariantFull keeps running totals of every divergence term and rebuilds
	// negative EFE from them at each step.
	VariantFull Variant = "full"
)

// #endregion variant

// #region config
// Config selects the scorer terms and fold rule of a rollout.
type Config struct {
	UseUtility        bool
	UseStatesInfoGain bool
	UseParamInfoGain  bool // needs pA and/or pB on the model
	UseInductive      bool // needs H on the model; not folded by VariantStandard
	Variant           Variant
	Inductive         inductive.Config
	Workers           int // parallel policy evaluations, 0 = GOMAXPROCS
}

// DefaultConfig returns utility-plus-epistemic planning without inductive terms.
func DefaultConfig() Config {
	return Config{
		UseUtility:        true,
		UseStatesInfoGain: true,
		UseParamInfoGain:  false,
		UseInductive:      false,
		Variant:           VariantStandard,
		Inductive:         inductive.DefaultConfig(),
	}
}

// #endregion config

// #region result
// Terms are the running sub-totals kept by VariantFull. ParamInfoGainA and
// ParamInfoGainB accumulate the negated scorer values.
type Terms struct {
	InfoGain       float64 `json:"info_gain"`
	PredictedKLD   float64 `json:"predicted_kld"`
	PredictedF     float64 `json:"predicted_f"`
	ObsRisk        float64 `json:"o_risk"`
	ParamInfoGainA float64 `json:"param_info_gain_a"`
	ParamInfoGainB float64 `json:"param_info_gain_b"`
}

// Result is the outcome of one policy rollout.
type Result struct {
	NegEFE float64
	Terms  *Terms // nil unless the variant is VariantFull
}

// #endregion result
