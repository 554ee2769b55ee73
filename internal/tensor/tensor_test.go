package tensor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustNew(t *testing.T, shape []int, data []float64) *Tensor {
	t.Helper()
	tn, err := New(shape, data)
	require.NoError(t, err)
	return tn
}

func TestNew_RejectsWrongLength(t *testing.T) {
	_, err := New([]int{2, 3}, make([]float64, 5))
	require.ErrorIs(t, err, ErrShape)
}

func TestFactorDot_IdentityWithNoContractedAxes(t *testing.T) {
	a := mustNew(t, []int{2, 3}, []float64{1, 2, 3, 4, 5, 6})

	out, err := FactorDot(a, nil, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, a.Shape, out.Shape)
	assert.Equal(t, a.Data, out.Data)

	// the result must not alias the input
	out.Data[0] = 42
	assert.Equal(t, 1.0, a.Data[0])
}

func TestFactorDot_DeltaReturnsSlice(t *testing.T) {
	// shape (obs=2, f0=3, f1=2)
	data := []float64{
		0.1, 0.2, 0.3, 0.4, 0.5, 0.6,
		0.9, 0.8, 0.7, 0.6, 0.5, 0.4,
	}
	a := mustNew(t, []int{2, 3, 2}, data)

	out, err := FactorDot(a, [][]float64{{0, 1, 0}, {0, 1}}, 0)
	require.NoError(t, err)
	require.Equal(t, []int{2}, out.Shape)
	assert.Equal(t, a.At(0, 1, 1), out.Data[0])
	assert.Equal(t, a.At(1, 1, 1), out.Data[1])
}

func TestFactorDot_SingleFactorDelta(t *testing.T) {
	b := mustNew(t, []int{3, 3}, []float64{
		0.2, 0.5, 0.0,
		0.3, 0.5, 0.1,
		0.5, 0.0, 0.9,
	})
	out, err := FactorDot(b, [][]float64{{0, 0, 1}}, 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.0, 0.1, 0.9}, out.Data)
}

func TestFactorDot_NormalizedOutput(t *testing.T) {
	// columns over (f0, f1) each sum to 1 along axis 0
	a := mustNew(t, []int{2, 2, 2}, []float64{
		0.3, 0.9, 0.5, 0.2,
		0.7, 0.1, 0.5, 0.8,
	})
	out, err := FactorDot(a, [][]float64{{0.25, 0.75}, {0.6, 0.4}}, 0)
	require.NoError(t, err)

	var sum float64
	for _, v := range out.Data {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-12)

	want := 0.25*0.6*0.3 + 0.25*0.4*0.9 + 0.75*0.6*0.5 + 0.75*0.4*0.2
	assert.InDelta(t, want, out.Data[0], 1e-12)
}

func TestFactorDot_FullContractionIsScalar(t *testing.T) {
	h := mustNew(t, []int{2, 2}, []float64{1, 2, 3, 4})
	out, err := FactorDot(h, [][]float64{{0.5, 0.5}, {1, 0}})
	require.NoError(t, err)
	v, err := out.Item()
	require.NoError(t, err)
	assert.InDelta(t, 2.0, v, 1e-12)
	assert.Empty(t, out.Shape)
}

func TestFactorDot_ArgumentErrors(t *testing.T) {
	a := Zeros(2, 3)

	_, err := FactorDot(a, [][]float64{{1, 0}}, 0)
	assert.ErrorIs(t, err, ErrShape, "wrong vector length")

	_, err = FactorDot(a, [][]float64{{1, 0, 0}, {1}}, 0)
	assert.ErrorIs(t, err, ErrShape, "too many vectors")

	_, err = FactorDot(a, nil, 5)
	assert.ErrorIs(t, err, ErrShape, "bad keep axis")
}

func TestSliceLast(t *testing.T) {
	b := mustNew(t, []int{2, 2, 2}, []float64{1, 2, 3, 4, 5, 6, 7, 8})

	s, err := b.SliceLast(1)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2}, s.Shape)
	assert.Equal(t, []float64{2, 4, 6, 8}, s.Data)

	_, err = b.SliceLast(2)
	assert.ErrorIs(t, err, ErrShape)
}

func TestXLogX_ZeroConvention(t *testing.T) {
	assert.Equal(t, 0.0, XLogX(0))
	assert.False(t, math.IsNaN(Entropy([]float64{0, 1})))
	assert.InDelta(t, 0.0, Entropy([]float64{0, 1}), 1e-12)
	assert.InDelta(t, math.Log(2), Entropy([]float64{0.5, 0.5}), 1e-12)
}

func TestColumnEntropy(t *testing.T) {
	a := mustNew(t, []int{2, 2}, []float64{1, 0.5, 0, 0.5})
	h := ColumnEntropy(a)
	assert.Equal(t, []int{2}, h.Shape)
	assert.InDelta(t, 0.0, h.Data[0], 1e-12)
	assert.InDelta(t, math.Log(2), h.Data[1], 1e-12)
}

func TestSpmWnorm_MasksZeroCounts(t *testing.T) {
	a := mustNew(t, []int{2, 2}, []float64{1, 0, 3, 0})
	w := SpmWnorm(a)
	assert.InDelta(t, 0.25-1.0, w.Data[0], 1e-9)
	assert.InDelta(t, 0.25-1.0/3, w.Data[2], 1e-9)
	assert.Equal(t, 0.0, w.Data[1])
	assert.Equal(t, 0.0, w.Data[3])
	for _, v := range w.Data {
		assert.False(t, math.IsNaN(v))
	}
}

func TestSoftmax(t *testing.T) {
	p := Softmax([]float64{1, 1, math.Inf(-1)})
	assert.InDelta(t, 0.5, p[0], 1e-12)
	assert.InDelta(t, 0.5, p[1], 1e-12)
	assert.Equal(t, 0.0, p[2])

	big := Softmax([]float64{1000, 0})
	assert.InDelta(t, 1.0, big[0], 1e-12)
}

func TestReduce(t *testing.T) {
	sum, err := Reduce(4, func(i int) (float64, error) { return float64(i), nil })
	require.NoError(t, err)
	assert.Equal(t, 6.0, sum)

	empty, err := Reduce(0, func(int) (float64, error) { return 1, nil })
	require.NoError(t, err)
	assert.Equal(t, 0.0, empty)
}
