package tensor

import "errors"

// #region errors
// ErrShape reports a tensor whose shape does not fit the requested operation.
var ErrShape = errors.New("tensor shape mismatch")

// #endregion errors

// #region tensor
// Tensor is a dense, row-major array of float64 values.
//
// Modalities and factors have independent cardinalities, so collections of
// tensors are kept as flat slices of independently shaped values rather than
// one rectangular array. A tensor with an empty Shape is a scalar and holds
// exactly one value.
type Tensor struct {
	Shape []int     `json:"shape" yaml:"shape"`
	Data  []float64 `json:"data" yaml:"data"`
}

// #endregion tensor
