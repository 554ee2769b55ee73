package policy

import "errors"

// #region errors
var (
	// ErrUnsupportedMode reports a selection mode or level the package does not implement.
	ErrUnsupportedMode = errors.New("unimplemented selection mode")
	// ErrEmptyPolicySet reports an empty policy set or posterior.
	ErrEmptyPolicySet = errors.New("empty policy set")
)

// #endregion errors

// #region policy
// Policy is a sequence of action tuples, indexed [timestep][factor].
type Policy [][]int

// Horizon returns the number of timesteps.
func (p Policy) Horizon() int { return len(p) }

// First returns the action tuple of the first timestep.
func (p Policy) First() []int {
	if len(p) == 0 {
		return nil
	}
	return p[0]
}

// #endregion policy

// #region selection-config
// Mode picks how an action is chosen from a distribution.
type Mode string

const (
	Deterministic Mode = "deterministic" // argmax, ties to the lowest index
	Stochastic    Mode = "stochastic"    // sample from softmax(alpha * log p)
)

// Level picks which distribution the action is read from.
type Level string

const (
	// LevelAction selects each factor independently from its action marginal.
	LevelAction Level = "action"
	// LevelPolicy selects a whole policy and reads off its first action tuple.
	LevelPolicy Level = "policy"
)

// SelectionConfig holds action selection parameters.
type SelectionConfig struct {
	Mode  Mode
	Level Level
	Alpha float64 // action precision, used only in stochastic mode
}

// DefaultSelectionConfig returns deterministic per-factor selection.
func DefaultSelectionConfig() SelectionConfig {
	return SelectionConfig{
		Mode:  Deterministic,
		Level: LevelAction,
		Alpha: 16.0,
	}
}

// #endregion selection-config

// #region policy-sample
// PolicySample is the outcome of policy-level selection.
type PolicySample struct {
	Index  int
	Action []int
	// Probs is the precision-scaled distribution sampled from; nil in
	// deterministic mode.
	Probs []float64
}

// #endregion policy-sample
