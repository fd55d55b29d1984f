package shapes

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMake(t *testing.T) {
	s := Make(dtypes.Float32, 2, 3)
	assert.True(t, s.Ok())
	assert.Equal(t, 2, s.Rank())
	assert.Equal(t, 6, s.Size())
	assert.Equal(t, uintptr(24), s.Memory())
	assert.Equal(t, "(Float32)[2 3]", s.String())

	require.Panics(t, func() { Make(dtypes.Float32, 2, 0) })
	require.Panics(t, func() { Make(dtypes.Float32, -1) })
}

func TestScalar(t *testing.T) {
	s := Scalar[float64]()
	assert.True(t, s.Ok())
	assert.True(t, s.IsScalar())
	assert.Equal(t, 0, s.Rank())
	assert.Equal(t, 1, s.Size())
	assert.Equal(t, dtypes.Float64, s.DType)
}

func TestInvalid(t *testing.T) {
	assert.False(t, Invalid().Ok())
	assert.False(t, Shape{}.Ok())
	assert.False(t, Invalid().IsScalar())
}

func TestDim(t *testing.T) {
	s := Make(dtypes.Int32, 4, 5, 6)
	assert.Equal(t, 4, s.Dim(0))
	assert.Equal(t, 6, s.Dim(2))
	assert.Equal(t, 6, s.Dim(-1))
	assert.Equal(t, 4, s.Dim(-3))
	require.Panics(t, func() { s.Dim(3) })
	require.Panics(t, func() { s.Dim(-4) })
}

func TestEqual(t *testing.T) {
	a := Make(dtypes.Float32, 2, 3)
	assert.True(t, a.Equal(Make(dtypes.Float32, 2, 3)))
	assert.False(t, a.Equal(Make(dtypes.Float64, 2, 3)))
	assert.False(t, a.Equal(Make(dtypes.Float32, 3, 2)))
	assert.True(t, a.EqualDimensions(Make(dtypes.Int64, 2, 3)))
	assert.True(t, Scalar[float32]().Equal(Scalar[float32]()))
	assert.False(t, Scalar[float32]().Equal(Scalar[int32]()))
}

func TestClone(t *testing.T) {
	a := Make(dtypes.Float32, 2, 3)
	b := a.Clone()
	b.Dimensions[0] = 7
	assert.Equal(t, 2, a.Dimensions[0])
}
