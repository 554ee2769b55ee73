// Package scoring holds the scalar terms of expected free energy. Every
// scorer is a pure function summed over modalities or factors.
package scoring

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/danielpatrickdp/adaptive-state/planner/internal/model"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/tensor"
)

// #region info-gain
// InfoGain is the expected state information gain: per modality, the
// entropy of the predicted outcomes minus the expected entropy of the
// likelihood under qs, summed over modalities.
func InfoGain(qs model.Beliefs, qo [][]float64, A []*tensor.Tensor, aDeps [][]int) (float64, error) {
	return tensor.Reduce(len(A), func(m int) (float64, error) {
		hA := tensor.ColumnEntropy(A[m])
		expected, err := tensor.FactorDot(hA, tensor.Gather(qs, aDeps[m]))
		if err != nil {
			return 0, fmt.Errorf("info gain modality %d: %w", m, err)
		}
		h, err := expected.Item()
		if err != nil {
			return 0, fmt.Errorf("info gain modality %d: %w", m, err)
		}
		return tensor.Entropy(qo[m]) - h, nil
	})
}

// #endregion info-gain

// #region utility
// Utility is the expected preference sum_m qo[m] . C[m].
func Utility(qo [][]float64, C [][]float64) float64 {
	var u float64
	for m := range qo {
		u += floats.Dot(qo[m], C[m])
	}
	return u
}

// #endregion utility

// #region param-info-gain
// ParamInfoGainA scores the expected update to the likelihood counts pA. The
// Dirichlet weighting of pA is contracted against the dependent beliefs and
// dotted with the predicted outcomes. Values are non-positive; callers choose
// the sign they fold it in with.
func ParamInfoGainA(pA []*tensor.Tensor, qo [][]float64, qs model.Beliefs, aDeps [][]int) (float64, error) {
	return tensor.Reduce(len(pA), func(m int) (float64, error) {
		w, err := tensor.FactorDot(tensor.SpmWnorm(pA[m]), tensor.Gather(qs, aDeps[m]), 0)
		if err != nil {
			return 0, fmt.Errorf("pA info gain modality %d: %w", m, err)
		}
		return floats.Dot(qo[m], w.Data), nil
	})
}

// ParamInfoGainB scores the expected update to the transition counts pB for
// the action tuple u taken from qsPrev, dotted with the predicted qsNext.
func ParamInfoGainB(pB []*tensor.Tensor, qsNext, qsPrev model.Beliefs, bDeps [][]int, u []int) (float64, error) {
	return tensor.Reduce(len(pB), func(f int) (float64, error) {
		pbu, err := pB[f].SliceLast(u[f])
		if err != nil {
			return 0, fmt.Errorf("pB info gain factor %d: %w", f, err)
		}
		w, err := tensor.FactorDot(tensor.SpmWnorm(pbu), tensor.Gather(qsPrev, bDeps[f]), 0)
		if err != nil {
			return 0, fmt.Errorf("pB info gain factor %d: %w", f, err)
		}
		return floats.Dot(qsNext[f], w.Data), nil
	})
}

// #endregion param-info-gain

// #region divergences
// expectedLogLikelihood contracts log A[m] against the dependent beliefs.
func expectedLogLikelihood(a *tensor.Tensor, qs model.Beliefs, deps []int) ([]float64, error) {
	out, err := tensor.FactorDot(a.Map(tensor.LogStable), tensor.Gather(qs, deps), 0)
	if err != nil {
		return nil, err
	}
	return out.Data, nil
}

// PredictedKLD sums, over modalities, the cross entropy of the predicted
// outcomes against the expected log likelihood minus their own entropy.
func PredictedKLD(qs model.Beliefs, qo [][]float64, A []*tensor.Tensor, aDeps [][]int) (float64, error) {
	return tensor.Reduce(len(A), func(m int) (float64, error) {
		lnA, err := expectedLogLikelihood(A[m], qs, aDeps[m])
		if err != nil {
			return 0, fmt.Errorf("predicted KLD modality %d: %w", m, err)
		}
		return -floats.Dot(qo[m], lnA) - tensor.Entropy(qo[m]), nil
	})
}

// PredictedFreeEnergy sums, over modalities, the cross entropy of the
// predicted outcomes against the expected log likelihood.
func PredictedFreeEnergy(qs model.Beliefs, qo [][]float64, A []*tensor.Tensor, aDeps [][]int) (float64, error) {
	return tensor.Reduce(len(A), func(m int) (float64, error) {
		lnA, err := expectedLogLikelihood(A[m], qs, aDeps[m])
		if err != nil {
			return 0, fmt.Errorf("predicted free energy modality %d: %w", m, err)
		}
		return -floats.Dot(qo[m], lnA), nil
	})
}

// ObservationRisk is the negative expected preference minus the total
// entropy of the predicted outcomes.
func ObservationRisk(qo [][]float64, C [][]float64) float64 {
	risk := -Utility(qo, C)
	for _, o := range qo {
		risk -= tensor.Entropy(o)
	}
	return risk
}

// #endregion divergences
