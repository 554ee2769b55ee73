package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/danielpatrickdp/adaptive-state/planner/internal/tensor"
)

// #region sentinel-errors
var (
	// ErrShapeMismatch reports tensors, vectors or beliefs whose sizes disagree.
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrDependencyRange reports a dependency index outside the factor list.
	ErrDependencyRange = errors.New("dependency index out of range")
	// ErrActionRange reports an action level outside a factor's control range.
	ErrActionRange = errors.New("action out of range")
)

// #endregion sentinel-errors

// #region beliefs
// Beliefs holds one probability vector per hidden-state factor, in factor order.
type Beliefs [][]float64

// Clone returns a deep copy.
func (qs Beliefs) Clone() Beliefs {
	out := make(Beliefs, len(qs))
	for f, q := range qs {
		out[f] = append([]float64(nil), q...)
	}
	return out
}

// Levels returns the number of levels of each factor.
func (qs Beliefs) Levels() []int {
	out := make([]int, len(qs))
	for f, q := range qs {
		out[f] = len(q)
	}
	return out
}

// #endregion beliefs

// #region model
// Model is the generative model consumed read-only by policy evaluation.
//
// A[m] has shape (obs_m, levels of ADependencies[m]...).
// B[f] has shape (levels_f, levels of BDependencies[f]..., actions_f).
// PA and PB, when present, mirror the shapes of A and B.
// H, when present, holds one goal indicator per factor for inductive planning.
type Model struct {
	A             []*tensor.Tensor `json:"A" yaml:"A"`
	B             []*tensor.Tensor `json:"B" yaml:"B"`
	C             [][]float64      `json:"C" yaml:"C"`
	E             []float64        `json:"E,omitempty" yaml:"E,omitempty"`
	PA            []*tensor.Tensor `json:"pA,omitempty" yaml:"pA,omitempty"`
	PB            []*tensor.Tensor `json:"pB,omitempty" yaml:"pB,omitempty"`
	H             [][]float64      `json:"H,omitempty" yaml:"H,omitempty"`
	ADependencies [][]int          `json:"A_dependencies,omitempty" yaml:"A_dependencies,omitempty"`
	BDependencies [][]int          `json:"B_dependencies,omitempty" yaml:"B_dependencies,omitempty"`
}

// #endregion model

// #region violation
// Violation is one broken contract found by Validate.
type Violation struct {
	Kind   error
	Reason string
}

// ValidationError bundles every violation found in a model. It unwraps to
// the sentinel error of each violation.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = fmt.Sprintf("%v: %s", v.Kind, v.Reason)
	}
	return "invalid model: " + strings.Join(parts, "; ")
}

// Unwrap exposes the sentinel kinds to errors.Is.
func (e *ValidationError) Unwrap() []error {
	out := make([]error, len(e.Violations))
	for i, v := range e.Violations {
		out[i] = v.Kind
	}
	return out
}

// #endregion violation
