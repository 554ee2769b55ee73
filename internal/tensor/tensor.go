package tensor

import (
	"fmt"
	"slices"
)

// #region constructors
// New builds a tensor, checking that data covers the shape exactly.
func New(shape []int, data []float64) (*Tensor, error) {
	t := &Tensor{Shape: slices.Clone(shape), Data: data}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Zeros returns a zero-filled tensor of the given shape.
func Zeros(shape ...int) *Tensor {
	return &Tensor{Shape: slices.Clone(shape), Data: make([]float64, sizeOf(shape))}
}

// #endregion constructors

// #region accessors
// Dim returns the number of axes.
func (t *Tensor) Dim() int { return len(t.Shape) }

// Size returns the number of elements.
func (t *Tensor) Size() int { return sizeOf(t.Shape) }

// Validate checks that Data has exactly as many elements as Shape describes.
func (t *Tensor) Validate() error {
	for i, n := range t.Shape {
		if n <= 0 {
			return fmt.Errorf("%w: axis %d has non-positive length %d", ErrShape, i, n)
		}
	}
	if want := sizeOf(t.Shape); len(t.Data) != want {
		return fmt.Errorf("%w: shape %v needs %d values, got %d", ErrShape, t.Shape, want, len(t.Data))
	}
	return nil
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	return &Tensor{Shape: slices.Clone(t.Shape), Data: slices.Clone(t.Data)}
}

// At returns the element at the given multi-index. It panics on a bad index,
// like slice indexing does.
func (t *Tensor) At(idx ...int) float64 {
	if len(idx) != len(t.Shape) {
		panic(fmt.Sprintf("tensor: index %v for shape %v", idx, t.Shape))
	}
	off := 0
	for i, k := range idx {
		if k < 0 || k >= t.Shape[i] {
			panic(fmt.Sprintf("tensor: index %v out of range for shape %v", idx, t.Shape))
		}
		off = off*t.Shape[i] + k
	}
	return t.Data[off]
}

// Item returns the value of a scalar or single-element tensor.
func (t *Tensor) Item() (float64, error) {
	if len(t.Data) != 1 {
		return 0, fmt.Errorf("%w: item of tensor with %d values", ErrShape, len(t.Data))
	}
	return t.Data[0], nil
}

// #endregion accessors

// #region transforms
// SliceLast selects index i along the last axis, dropping that axis.
// Transition tensors use it to pick the slice for one action level.
func (t *Tensor) SliceLast(i int) (*Tensor, error) {
	if t.Dim() == 0 {
		return nil, fmt.Errorf("%w: slice of scalar", ErrShape)
	}
	last := t.Shape[t.Dim()-1]
	if i < 0 || i >= last {
		return nil, fmt.Errorf("%w: index %d out of range for last axis of length %d", ErrShape, i, last)
	}
	n := len(t.Data) / last
	out := make([]float64, n)
	for k := 0; k < n; k++ {
		out[k] = t.Data[k*last+i]
	}
	return &Tensor{Shape: slices.Clone(t.Shape[:t.Dim()-1]), Data: out}, nil
}

// Map applies fn elementwise and returns a new tensor.
func (t *Tensor) Map(fn func(float64) float64) *Tensor {
	out := make([]float64, len(t.Data))
	for i, v := range t.Data {
		out[i] = fn(v)
	}
	return &Tensor{Shape: slices.Clone(t.Shape), Data: out}
}

// #endregion transforms

// #region factor-dot
// FactorDot contracts every axis of t that is not listed in keep against the
// vectors in xs, pairing them in ascending axis order. The kept axes remain in
// their original order.
//
// With no contracted axes the result is a copy of t. Axes are contracted one
// at a time, last first, so the joint over the dependent factors is never
// materialized.
func FactorDot(t *Tensor, xs [][]float64, keep ...int) (*Tensor, error) {
	kept := make(map[int]bool, len(keep))
	for _, k := range keep {
		if k < 0 || k >= t.Dim() {
			return nil, fmt.Errorf("%w: keep axis %d for %d-D tensor", ErrShape, k, t.Dim())
		}
		kept[k] = true
	}

	axes := make([]int, 0, t.Dim())
	for ax := 0; ax < t.Dim(); ax++ {
		if !kept[ax] {
			axes = append(axes, ax)
		}
	}
	if len(axes) != len(xs) {
		return nil, fmt.Errorf("%w: %d contracted axes but %d vectors", ErrShape, len(axes), len(xs))
	}

	out := t.Clone()
	for i := len(axes) - 1; i >= 0; i-- {
		var err error
		out, err = contractAxis(out, axes[i], xs[i])
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// contractAxis sums axis ax of t weighted by v.
func contractAxis(t *Tensor, ax int, v []float64) (*Tensor, error) {
	n := t.Shape[ax]
	if len(v) != n {
		return nil, fmt.Errorf("%w: axis %d has length %d, vector has %d", ErrShape, ax, n, len(v))
	}
	outer := sizeOf(t.Shape[:ax])
	inner := sizeOf(t.Shape[ax+1:])

	out := make([]float64, outer*inner)
	for o := 0; o < outer; o++ {
		base := o * n * inner
		row := out[o*inner : (o+1)*inner]
		for k := 0; k < n; k++ {
			w := v[k]
			src := t.Data[base+k*inner : base+(k+1)*inner]
			for j, x := range src {
				row[j] += w * x
			}
		}
	}

	shape := make([]int, 0, t.Dim()-1)
	shape = append(shape, t.Shape[:ax]...)
	shape = append(shape, t.Shape[ax+1:]...)
	return &Tensor{Shape: shape, Data: out}, nil
}

// #endregion factor-dot

// #region helpers
func sizeOf(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// #endregion helpers
