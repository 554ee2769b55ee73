package model

import (
	"fmt"
	"slices"

	"github.com/danielpatrickdp/adaptive-state/planner/internal/tensor"
)

// #region dimensions
// NumFactors returns the number of hidden-state factors.
func (m *Model) NumFactors() int { return len(m.B) }

// NumModalities returns the number of observation modalities.
func (m *Model) NumModalities() int { return len(m.A) }

// NumStates returns the number of levels of each factor, read from axis 0 of B.
func (m *Model) NumStates() []int {
	out := make([]int, len(m.B))
	for f, b := range m.B {
		if b.Dim() > 0 {
			out[f] = b.Shape[0]
		}
	}
	return out
}

// NumControls returns the number of action levels of each factor, read from
// the last axis of B.
func (m *Model) NumControls() []int {
	out := make([]int, len(m.B))
	for f, b := range m.B {
		if b.Dim() > 0 {
			out[f] = b.Shape[b.Dim()-1]
		}
	}
	return out
}

// NumObs returns the number of observation levels of each modality.
func (m *Model) NumObs() []int {
	out := make([]int, len(m.A))
	for i, a := range m.A {
		if a.Dim() > 0 {
			out[i] = a.Shape[0]
		}
	}
	return out
}

// #endregion dimensions

// #region defaults
// WithDefaults returns a shallow copy with missing dependency maps filled in:
// every modality depends on all factors and every factor depends only on itself.
func (m *Model) WithDefaults() *Model {
	out := *m
	if out.ADependencies == nil {
		all := make([]int, len(m.B))
		for f := range all {
			all[f] = f
		}
		out.ADependencies = make([][]int, len(m.A))
		for i := range out.ADependencies {
			out.ADependencies[i] = slices.Clone(all)
		}
	}
	if out.BDependencies == nil {
		out.BDependencies = make([][]int, len(m.B))
		for f := range out.BDependencies {
			out.BDependencies[f] = []int{f}
		}
	}
	return &out
}

// UniformBeliefs returns a flat belief over every factor.
func (m *Model) UniformBeliefs() Beliefs {
	return Uniform(m.NumStates())
}

// Uniform returns flat beliefs over factors with the given level counts.
func Uniform(levels []int) Beliefs {
	qs := make(Beliefs, len(levels))
	for f, n := range levels {
		qs[f] = make([]float64, n)
		for i := range qs[f] {
			qs[f][i] = 1 / float64(n)
		}
	}
	return qs
}

// #endregion defaults

// #region validate
// Validate checks every shape and dependency contract of the model and
// reports all violations at once. Dependency maps must be present; call
// WithDefaults first when they are implied.
func (m *Model) Validate() error {
	var vs []Violation
	add := func(kind error, format string, args ...any) {
		vs = append(vs, Violation{Kind: kind, Reason: fmt.Sprintf(format, args...)})
	}

	nf := len(m.B)
	if nf == 0 {
		add(ErrShapeMismatch, "model has no transition tensors")
		return &ValidationError{Violations: vs}
	}
	for f, b := range m.B {
		if b == nil {
			add(ErrShapeMismatch, "B[%d] is missing", f)
			continue
		}
		if err := b.Validate(); err != nil {
			add(ErrShapeMismatch, "B[%d]: %v", f, err)
		}
	}
	for i, a := range m.A {
		if a == nil {
			add(ErrShapeMismatch, "A[%d] is missing", i)
			continue
		}
		if err := a.Validate(); err != nil {
			add(ErrShapeMismatch, "A[%d]: %v", i, err)
		}
	}
	if len(vs) > 0 {
		return &ValidationError{Violations: vs}
	}
	ns := m.NumStates()

	checkDeps := func(name string, i int, deps []int) bool {
		ok := true
		for _, d := range deps {
			if d < 0 || d >= nf {
				add(ErrDependencyRange, "%s[%d] depends on factor %d of %d", name, i, d, nf)
				ok = false
			}
		}
		return ok
	}

	if len(m.BDependencies) != nf {
		add(ErrShapeMismatch, "%d B dependency lists for %d factors", len(m.BDependencies), nf)
	} else {
		for f, b := range m.B {
			deps := m.BDependencies[f]
			if !checkDeps("B_dependencies", f, deps) {
				continue
			}
			if b.Dim() != len(deps)+2 {
				add(ErrShapeMismatch, "B[%d] has %d axes, want %d for %d dependencies", f, b.Dim(), len(deps)+2, len(deps))
				continue
			}
			for k, d := range deps {
				if b.Shape[1+k] != ns[d] {
					add(ErrShapeMismatch, "B[%d] axis %d has %d levels, factor %d has %d", f, 1+k, b.Shape[1+k], d, ns[d])
				}
			}
		}
	}

	if len(m.ADependencies) != len(m.A) {
		add(ErrShapeMismatch, "%d A dependency lists for %d modalities", len(m.ADependencies), len(m.A))
	} else {
		for i, a := range m.A {
			deps := m.ADependencies[i]
			if !checkDeps("A_dependencies", i, deps) {
				continue
			}
			if a.Dim() != len(deps)+1 {
				add(ErrShapeMismatch, "A[%d] has %d axes, want %d for %d dependencies", i, a.Dim(), len(deps)+1, len(deps))
				continue
			}
			for k, d := range deps {
				if a.Shape[1+k] != ns[d] {
					add(ErrShapeMismatch, "A[%d] axis %d has %d levels, factor %d has %d", i, 1+k, a.Shape[1+k], d, ns[d])
				}
			}
		}
	}

	if len(m.C) != len(m.A) {
		add(ErrShapeMismatch, "%d preference vectors for %d modalities", len(m.C), len(m.A))
	} else {
		for i, c := range m.C {
			if m.A[i].Dim() == 0 {
				continue
			}
			if len(c) != m.A[i].Shape[0] {
				add(ErrShapeMismatch, "C[%d] has %d entries, A[%d] has %d outcomes", i, len(c), i, m.A[i].Shape[0])
			}
		}
	}

	if m.PA != nil {
		checkMirror("pA", "A", m.PA, m.A, add)
	}
	if m.PB != nil {
		checkMirror("pB", "B", m.PB, m.B, add)
	}

	if m.H != nil {
		if len(m.H) != nf {
			add(ErrShapeMismatch, "%d goal vectors for %d factors", len(m.H), nf)
		} else {
			for f, h := range m.H {
				if len(h) != ns[f] {
					add(ErrShapeMismatch, "H[%d] has %d entries, factor has %d levels", f, len(h), ns[f])
				}
			}
		}
	}

	if len(vs) > 0 {
		return &ValidationError{Violations: vs}
	}
	return nil
}

func checkMirror(name, of string, got, want []*tensor.Tensor, add func(error, string, ...any)) {
	if len(got) != len(want) {
		add(ErrShapeMismatch, "%d %s tensors for %d %s tensors", len(got), name, len(want), of)
		return
	}
	for i := range got {
		if got[i] == nil || !slices.Equal(got[i].Shape, want[i].Shape) || got[i].Validate() != nil {
			add(ErrShapeMismatch, "%s[%d] does not match the shape of %s[%d]", name, i, of, i)
		}
	}
}

// ValidateBeliefs checks that qs has one vector per factor with the right
// number of levels.
func (m *Model) ValidateBeliefs(qs Beliefs) error {
	ns := m.NumStates()
	if len(qs) != len(ns) {
		return fmt.Errorf("%w: %d belief vectors for %d factors", ErrShapeMismatch, len(qs), len(ns))
	}
	for f, q := range qs {
		if len(q) != ns[f] {
			return fmt.Errorf("%w: belief %d has %d levels, factor has %d", ErrShapeMismatch, f, len(q), ns[f])
		}
	}
	return nil
}

// ValidateAction checks one action tuple against the control ranges.
func (m *Model) ValidateAction(u []int) error {
	nc := m.NumControls()
	if len(u) != len(nc) {
		return fmt.Errorf("%w: action tuple has %d entries for %d factors", ErrShapeMismatch, len(u), len(nc))
	}
	for f, a := range u {
		if a < 0 || a >= nc[f] {
			return fmt.Errorf("%w: factor %d action %d not in [0, %d)", ErrActionRange, f, a, nc[f])
		}
	}
	return nil
}

// #endregion validate
