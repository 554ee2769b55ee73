// Package inductive implements goal back-chaining for policy evaluation.
//
// It precomputes, per factor, which levels can reach a goal region within i
// steps of the pruned transition graph, and scores predicted states by how far
// they stray from the shortest such path. This is a shaped-reward heuristic,
// not an exact search: the penalty only looks at the most likely current
// level and one row of the reachability matrix.
package inductive

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/danielpatrickdp/adaptive-state/planner/internal/model"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/tensor"
)

// #region config
// Config holds the inductive planning parameters.
type Config struct {
	Threshold float64 // transitions at or below this probability are pruned
	Depth     int     // rows of the reachability matrix, including the goal row
	Epsilon   float64 // log(Epsilon) is the penalty for leaving the inductive path
}

// DefaultConfig returns the defaults used by the planner.
func DefaultConfig() Config {
	return Config{
		Threshold: 0.5,
		Depth:     5,
		Epsilon:   1e-3,
	}
}

// #endregion config

// #region generate
// GenerateIMatrix builds one (depth, levels) binary matrix per factor. Row 0
// is the goal indicator H[f]; row i marks the levels from which the goal is
// reachable within i steps when every action is allowed and transitions at
// or below threshold are dropped.
//
// Each B[f] must have shape (levels, levels, actions): reachability is only
// defined for factors that depend on themselves alone.
func GenerateIMatrix(H [][]float64, B []*tensor.Tensor, threshold float64, depth int) ([]*tensor.Tensor, error) {
	if depth < 1 {
		return nil, fmt.Errorf("inductive depth must be at least 1, got %d", depth)
	}
	if len(H) != len(B) {
		return nil, fmt.Errorf("%w: %d goal vectors for %d factors", model.ErrShapeMismatch, len(H), len(B))
	}

	out := make([]*tensor.Tensor, len(B))
	for f, b := range B {
		if b.Dim() != 3 || b.Shape[0] != b.Shape[1] {
			return nil, fmt.Errorf("%w: factor %d transition shape %v is not (levels, levels, actions)", model.ErrShapeMismatch, f, b.Shape)
		}
		n := b.Shape[0]
		if len(H[f]) != n {
			return nil, fmt.Errorf("%w: goal %d has %d entries for %d levels", model.ErrShapeMismatch, f, len(H[f]), n)
		}

		// back-chaining walks the adjacency against the transition direction
		back := mat.NewDense(n, n, reachable(b, threshold)).T()
		I := tensor.Zeros(depth, n)
		copy(I.Data[:n], H[f])

		prev := mat.NewVecDense(n, append([]float64(nil), H[f]...))
		for i := 1; i < depth; i++ {
			next := mat.NewVecDense(n, nil)
			next.MulVec(back, prev)
			row := I.Data[i*n : (i+1)*n]
			for s := 0; s < n; s++ {
				if next.AtVec(s) > 0.1 {
					row[s] = 1
				}
				next.SetVec(s, row[s])
			}
			prev = next
		}
		out[f] = I
	}
	return out, nil
}

// reachable returns the row-major adjacency reach[s][s'] = 1 when some action
// moves s' to s with probability above threshold.
func reachable(b *tensor.Tensor, threshold float64) []float64 {
	n, u := b.Shape[0], b.Shape[2]
	out := make([]float64, n*n)
	for s := 0; s < n; s++ {
		for prev := 0; prev < n; prev++ {
			for a := 0; a < u; a++ {
				if b.Data[(s*n+prev)*u+a] > threshold {
					out[s*n+prev] = 1
					break
				}
			}
		}
	}
	return out
}

// #endregion generate

// #region value
// Value scores qsNext against the inductive path leading from the most
// likely level of qs. For each factor it finds the first row m+1 at which the
// goal becomes reachable from that level, then charges log(epsilon) for the
// mass qsNext places on levels not marked in row m. Factors with no path to
// any goal contribute nothing.
//
// The first-hit search assumes each column of I is monotone in the row
// index, which holds when every goal level has a successor inside the goal.
func Value(qs, qsNext model.Beliefs, I []*tensor.Tensor, epsilon float64) (float64, error) {
	if len(I) != len(qs) || len(qsNext) != len(qs) {
		return 0, fmt.Errorf("%w: %d reachability matrices, %d beliefs, %d predictions", model.ErrShapeMismatch, len(I), len(qs), len(qsNext))
	}
	logEps := tensor.LogStable(epsilon)

	return tensor.Reduce(len(qs), func(f int) (float64, error) {
		depth, n := I[f].Shape[0], I[f].Shape[1]
		if len(qs[f]) != n || len(qsNext[f]) != n {
			return 0, fmt.Errorf("%w: factor %d beliefs do not match %d levels", model.ErrShapeMismatch, f, n)
		}
		idx := floats.MaxIdx(qs[f])

		col := make([]float64, depth)
		for i := range col {
			col[i] = I[f].At(i, idx)
		}
		m := max(floats.MaxIdx(col)-1, 0)
		pathAvailable := min(max(floats.Sum(col), 0), 1)

		penalty := make([]float64, n)
		for j := range penalty {
			penalty[j] = (1 - I[f].At(m, j)) * logEps
		}
		return pathAvailable * floats.Dot(penalty, qsNext[f]), nil
	})
}

// #endregion value
