// Package dynamics predicts hidden states and observations one step ahead.
package dynamics

import (
	"fmt"

	"github.com/danielpatrickdp/adaptive-state/planner/internal/model"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/tensor"
)

// #region expected-state
// ExpectedState advances each factor's belief through its transition tensor
// under the action tuple u. Factor f's slice B[f][..., u[f]] is contracted
// against the beliefs of the factors listed in bDeps[f].
func ExpectedState(qs model.Beliefs, B []*tensor.Tensor, u []int, bDeps [][]int) (model.Beliefs, error) {
	next, _, err := ExpectedStateAndB(qs, B, u, bDeps)
	return next, err
}

// ExpectedStateAndB is ExpectedState that also returns the action-sliced
// transition tensors it used.
func ExpectedStateAndB(qs model.Beliefs, B []*tensor.Tensor, u []int, bDeps [][]int) (model.Beliefs, []*tensor.Tensor, error) {
	if len(u) != len(B) {
		return nil, nil, fmt.Errorf("%w: action tuple has %d entries for %d factors", model.ErrShapeMismatch, len(u), len(B))
	}
	if len(bDeps) != len(B) {
		return nil, nil, fmt.Errorf("%w: %d dependency lists for %d factors", model.ErrShapeMismatch, len(bDeps), len(B))
	}

	next := make(model.Beliefs, len(B))
	slices := make([]*tensor.Tensor, len(B))
	for f, b := range B {
		bu, err := b.SliceLast(u[f])
		if err != nil {
			return nil, nil, fmt.Errorf("%w: factor %d: %v", model.ErrActionRange, f, err)
		}
		for _, d := range bDeps[f] {
			if d < 0 || d >= len(qs) {
				return nil, nil, fmt.Errorf("%w: factor %d depends on %d", model.ErrDependencyRange, f, d)
			}
		}
		q, err := tensor.FactorDot(bu, tensor.Gather(qs, bDeps[f]), 0)
		if err != nil {
			return nil, nil, fmt.Errorf("expected state factor %d: %w", f, err)
		}
		next[f] = q.Data
		slices[f] = bu
	}
	return next, slices, nil
}

// #endregion expected-state

// #region expected-obs
// ExpectedObs maps predicted states to a predicted outcome distribution per
// modality by contracting A[m] against the beliefs of aDeps[m].
func ExpectedObs(qs model.Beliefs, A []*tensor.Tensor, aDeps [][]int) ([][]float64, error) {
	if len(aDeps) != len(A) {
		return nil, fmt.Errorf("%w: %d dependency lists for %d modalities", model.ErrShapeMismatch, len(aDeps), len(A))
	}
	qo := make([][]float64, len(A))
	for m, a := range A {
		for _, d := range aDeps[m] {
			if d < 0 || d >= len(qs) {
				return nil, fmt.Errorf("%w: modality %d depends on %d", model.ErrDependencyRange, m, d)
			}
		}
		o, err := tensor.FactorDot(a, tensor.Gather(qs, aDeps[m]), 0)
		if err != nil {
			return nil, fmt.Errorf("expected obs modality %d: %w", m, err)
		}
		qo[m] = o.Data
	}
	return qo, nil
}

// #endregion expected-obs
