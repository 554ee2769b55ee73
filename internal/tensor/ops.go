package tensor

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
)

// #region constants
// MinVal is the floor applied before taking logarithms.
const MinVal = 2.220446049250313e-16

// #endregion constants

// #region logs
// LogStable returns log(max(x, MinVal)), so log(0) is finite.
func LogStable(x float64) float64 {
	return math.Log(math.Max(x, MinVal))
}

// LogStableVec applies LogStable elementwise.
func LogStableVec(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = LogStable(v)
	}
	return out
}

// XLogX returns x*log(x) with the 0*log(0) = 0 convention. The floor inside
// LogStable makes the zero case fall out of the product without a branch.
func XLogX(x float64) float64 {
	return x * LogStable(x)
}

// #endregion logs

// #region entropy
// Entropy is the Shannon entropy of a probability vector in nats.
func Entropy(p []float64) float64 {
	var h float64
	for _, v := range p {
		h -= XLogX(v)
	}
	return h
}

// ColumnEntropy returns the entropy of each conditional distribution of t
// along axis 0. The result has shape t.Shape[1:].
func ColumnEntropy(t *Tensor) *Tensor {
	rows := t.Shape[0]
	cols := len(t.Data) / rows
	out := make([]float64, cols)
	for o := 0; o < rows; o++ {
		for j, v := range t.Data[o*cols : (o+1)*cols] {
			out[j] -= XLogX(v)
		}
	}
	return &Tensor{Shape: slices.Clone(t.Shape[1:]), Data: out}
}

// #endregion entropy

// #region wnorm
// SpmWnorm returns the Dirichlet weighting 1/sum(a) - 1/a for each entry of a
// concentration tensor, normalizing along axis 0. Entries whose count is not
// positive are zeroed, so empty columns contribute nothing.
func SpmWnorm(a *Tensor) *Tensor {
	rows := a.Shape[0]
	cols := len(a.Data) / rows
	sums := make([]float64, cols)
	for o := 0; o < rows; o++ {
		floats.Add(sums, a.Data[o*cols:(o+1)*cols])
	}

	out := make([]float64, len(a.Data))
	for o := 0; o < rows; o++ {
		for j := 0; j < cols; j++ {
			v := a.Data[o*cols+j]
			if v > 0 {
				out[o*cols+j] = 1/sums[j] - 1/(v+MinVal)
			}
		}
	}
	return &Tensor{Shape: slices.Clone(a.Shape), Data: out}
}

// #endregion wnorm

// #region softmax
// Softmax normalizes exp(x) over x. Entries of -Inf get zero mass.
func Softmax(x []float64) []float64 {
	out := slices.Clone(x)
	if len(out) == 0 {
		return out
	}
	lse := floats.LogSumExp(out)
	for i, v := range out {
		out[i] = math.Exp(v - lse)
	}
	return out
}

// #endregion softmax

// #region reduce
// Reduce folds fn over the indices [0, n) with identity 0 and combiner +.
// It is the map-then-sum used over per-modality and per-factor sequences.
func Reduce(n int, fn func(i int) (float64, error)) (float64, error) {
	var acc float64
	for i := 0; i < n; i++ {
		v, err := fn(i)
		if err != nil {
			return 0, err
		}
		acc += v
	}
	return acc, nil
}

// Gather returns the vectors of xs at the given indices, in index order.
func Gather(xs [][]float64, idx []int) [][]float64 {
	out := make([][]float64, len(idx))
	for i, k := range idx {
		out[i] = xs[k]
	}
	return out
}

// #endregion reduce
