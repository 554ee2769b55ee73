// Package modeltest builds small generative models shared by tests.
package modeltest

import (
	"github.com/danielpatrickdp/adaptive-state/planner/internal/model"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/tensor"
)

// #region builders
// Tensor builds a tensor and panics on a bad shape.
func Tensor(shape []int, data []float64) *tensor.Tensor {
	t, err := tensor.New(shape, data)
	if err != nil {
		panic(err)
	}
	return t
}

// Identity returns an n x n identity likelihood.
func Identity(n int) *tensor.Tensor {
	t := tensor.Zeros(n, n)
	for i := 0; i < n; i++ {
		t.Data[i*n+i] = 1
	}
	return t
}

// Flat returns a tensor whose axis-0 columns are uniform.
func Flat(shape ...int) *tensor.Tensor {
	t := tensor.Zeros(shape...)
	for i := range t.Data {
		t.Data[i] = 1 / float64(shape[0])
	}
	return t
}

// StayTransition returns a (n, n, u) transition where every action keeps the
// current level.
func StayTransition(n, u int) *tensor.Tensor {
	t := tensor.Zeros(n, n, u)
	for s := 0; s < n; s++ {
		for a := 0; a < u; a++ {
			t.Data[(s*n+s)*u+a] = 1
		}
	}
	return t
}

// #endregion builders

// #region models
// TwoFactorGoal has two binary factors and two binary modalities. Action 1 on
// factor 0 drives it to level 0; every other action keeps the current level.
// Modality 0 reads factor 0 exactly and is strongly preferred at outcome 0.
// Modality 1 is uninformative about factor 1.
func TwoFactorGoal() *model.Model {
	b0 := tensor.Zeros(2, 2, 2)
	// stay
	b0.Data[(0*2+0)*2+0] = 1
	b0.Data[(1*2+1)*2+0] = 1
	// reset to level 0
	b0.Data[(0*2+0)*2+1] = 1
	b0.Data[(0*2+1)*2+1] = 1

	return &model.Model{
		A:             []*tensor.Tensor{Identity(2), Flat(2, 2)},
		B:             []*tensor.Tensor{b0, StayTransition(2, 2)},
		C:             [][]float64{{3, -3}, {0, 0}},
		ADependencies: [][]int{{0}, {1}},
		BDependencies: [][]int{{0}, {1}},
	}
}

// UniformTwoFactor has two binary factors, two binary modalities depending on
// both factors, and uniform likelihoods and transitions.
func UniformTwoFactor() *model.Model {
	return &model.Model{
		A:             []*tensor.Tensor{Flat(2, 2, 2), Flat(2, 2, 2)},
		B:             []*tensor.Tensor{Flat(2, 2, 2), Flat(2, 2, 2)},
		C:             [][]float64{{3, -3}, {0, 0}},
		ADependencies: [][]int{{0, 1}, {0, 1}},
		BDependencies: [][]int{{0}, {1}},
	}
}

// Chain has one factor with three levels. Action 0 stays, action 1 advances
// 0 -> 1 -> 2 and keeps 2. The goal indicator marks level 2.
func Chain() *model.Model {
	b := tensor.Zeros(3, 3, 2)
	set := func(next, cur, u int) { b.Data[(next*3+cur)*2+u] = 1 }
	for s := 0; s < 3; s++ {
		set(s, s, 0)
	}
	set(1, 0, 1)
	set(2, 1, 1)
	set(2, 2, 1)

	return &model.Model{
		A:             []*tensor.Tensor{Identity(3)},
		B:             []*tensor.Tensor{b},
		C:             [][]float64{{0, 0, 0}},
		H:             [][]float64{{0, 0, 1}},
		ADependencies: [][]int{{0}},
		BDependencies: [][]int{{0}},
	}
}

// WithCounts attaches Dirichlet counts equal to scale times each A and B
// tensor plus one.
func WithCounts(m *model.Model, scale float64) *model.Model {
	out := *m
	out.PA = make([]*tensor.Tensor, len(m.A))
	for i, a := range m.A {
		out.PA[i] = a.Map(func(v float64) float64 { return scale*v + 1 })
	}
	out.PB = make([]*tensor.Tensor, len(m.B))
	for f, b := range m.B {
		out.PB[f] = b.Map(func(v float64) float64 { return scale*v + 1 })
	}
	return &out
}

// #endregion models
