package planner

import (
	"github.com/danielpatrickdp/adaptive-state/planner/internal/policy"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/rollout"
)

// #region config

// Config holds the parameters of one planning step.
type Config struct {
	Rollout        rollout.Config
	Selection      policy.SelectionConfig
	Gamma          float64 // policy precision
	PolicyLen      int     // planning horizon in timesteps
	ControlFactors []int   // nil means every factor with more than one action
	NumControls    []int   // nil means the action axis sizes of B
}

// DefaultConfig returns a one-step planner with precision 16.
func DefaultConfig() Config {
	return Config{
		Rollout:   rollout.DefaultConfig(),
		Selection: policy.DefaultSelectionConfig(),
		Gamma:     16.0,
		PolicyLen: 1,
	}
}

// #endregion config

// #region decision

// Decision is the outcome of one planning step.
type Decision struct {
	Posterior []float64        `json:"posterior"`
	NegEFE    []float64        `json:"neg_efe"`
	Terms     []*rollout.Terms `json:"terms,omitempty"` // per policy, VariantFull only
	Marginals [][]float64      `json:"marginals"`
	Action    []int            `json:"action"`
	// PolicyIndex is the selected policy at policy level, -1 at action level.
	PolicyIndex int       `json:"policy_index"`
	PolicyProbs []float64 `json:"policy_probs,omitempty"`
}

// #endregion decision
