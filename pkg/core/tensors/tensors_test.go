package tensors

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siddheshmhatre/pytorch/pkg/core/shapes"
)

func TestFromShape(t *testing.T) {
	tensor := FromShape(shapes.Make(dtypes.Float32, 2, 3))
	require.True(t, tensor.Ok())
	assert.Equal(t, 6, tensor.Size())
	assert.Equal(t, []float32{0, 0, 0, 0, 0, 0}, ConstFlatData[float32](tensor))

	require.Panics(t, func() { FromShape(shapes.Invalid()) })
}

func TestFromFlatAndDimensions(t *testing.T) {
	data := []float64{1, 2, 3, 4}
	tensor := FromFlatAndDimensions(data, 2, 2)
	assert.Equal(t, shapes.Make(dtypes.Float64, 2, 2), tensor.Shape())
	assert.Equal(t, data, ConstFlatData[float64](tensor))

	// The data is copied, not aliased.
	data[0] = 100
	assert.Equal(t, float64(1), ConstFlatData[float64](tensor)[0])

	require.Panics(t, func() { FromFlatAndDimensions([]int32{1, 2, 3}, 2, 2) })
}

func TestFromScalar(t *testing.T) {
	tensor := FromScalar(int64(42))
	assert.True(t, tensor.Shape().IsScalar())
	assert.Equal(t, []int64{42}, ConstFlatData[int64](tensor))

	filled := FromScalarAndDimensions(float32(0.5), 3)
	assert.Equal(t, []float32{0.5, 0.5, 0.5}, ConstFlatData[float32](filled))
}

func TestFlatDataDTypeMismatch(t *testing.T) {
	tensor := FromScalar(float32(1))
	require.Panics(t, func() { ConstFlatData[float64](tensor) })
	require.Panics(t, func() { MutableFlatData[int32](tensor) })
}

func TestReset(t *testing.T) {
	tensor := FromScalar(float32(1))
	require.True(t, tensor.Ok())
	tensor.Reset()
	assert.False(t, tensor.Ok())
	require.Panics(t, func() { tensor.DataAddr() })
}

func TestCopyFrom(t *testing.T) {
	src := FromFlatAndDimensions([]int32{1, 2, 3, 4}, 2, 2)
	dst := FromShape(shapes.Make(dtypes.Int32, 4))
	require.NoError(t, dst.CopyFrom(src)) // same dtype and size, dimensions may differ
	assert.Equal(t, []int32{1, 2, 3, 4}, ConstFlatData[int32](dst))

	other := FromShape(shapes.Make(dtypes.Int32, 3))
	require.Error(t, dst.CopyFrom(other))
	require.Error(t, dst.CopyFrom(FromShape(shapes.Make(dtypes.Int64, 4))))
}

func TestEqual(t *testing.T) {
	a := FromFlatAndDimensions([]float32{1, 2}, 2)
	b := FromFlatAndDimensions([]float32{1, 2}, 2)
	c := FromFlatAndDimensions([]float32{1, 3}, 2)
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(FromFlatAndDimensions([]float32{1, 2}, 1, 2)))
}

func TestBufferPool(t *testing.T) {
	shape := shapes.Make(dtypes.Float32, 8)
	buf := GetBuffer(shape)
	require.True(t, buf.Ok())
	assert.False(t, buf.IsBorrowed())
	assert.True(t, buf.Shape().Equal(shape))

	// Returned buffers come back for the same (dtype, size) key.
	PutBuffer(buf)
	assert.False(t, buf.Ok())
	buf2 := GetBuffer(shapes.Make(dtypes.Float32, 2, 4))
	require.True(t, buf2.Ok())
	assert.Equal(t, 8, buf2.Size())
	PutBuffer(buf2)
}

func TestCloneBuffer(t *testing.T) {
	src := FromFlatAndDimensions([]int64{5, 6, 7}, 3)
	clone := CloneBuffer(src)
	assert.True(t, clone.Equal(src))
	assert.NotEqual(t, src.DataAddr(), clone.DataAddr())
	PutBuffer(clone)
}

func TestView(t *testing.T) {
	base := FromFlatAndDimensions([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	view := View(base, shapes.Make(dtypes.Float32, 3, 2))
	require.True(t, view.Ok())
	assert.True(t, view.IsBorrowed())
	assert.Equal(t, base.DataAddr(), view.DataAddr())

	// Writes through the view are visible in the base.
	MutableFlatData[float32](view)[0] = 100
	assert.Equal(t, float32(100), ConstFlatData[float32](base)[0])

	// Views are never pooled, PutBuffer just resets them.
	PutBuffer(view)
	assert.False(t, view.Ok())
	assert.True(t, base.Ok())

	require.Panics(t, func() { View(base, shapes.Make(dtypes.Float32, 7)) })
	require.Panics(t, func() { View(base, shapes.Make(dtypes.Float64, 2, 3)) })
}

func TestFromArena(t *testing.T) {
	arena := make([]byte, 256)
	shape := shapes.Make(dtypes.Float32, 4)

	a := FromArena(arena, 0, shape)
	b := FromArena(arena, 64, shape)
	require.True(t, a.Ok())
	require.True(t, b.Ok())
	assert.True(t, a.IsBorrowed())
	assert.NotEqual(t, a.DataAddr(), b.DataAddr())

	// Same offset means shared storage.
	a2 := FromArena(arena, 0, shapes.Make(dtypes.Float32, 2, 2))
	assert.Equal(t, a.DataAddr(), a2.DataAddr())
	MutableFlatData[float32](a)[0] = 7
	assert.Equal(t, float32(7), ConstFlatData[float32](a2)[0])

	require.Panics(t, func() { FromArena(arena, 256, shape) })
	require.Panics(t, func() { FromArena(arena, -1, shape) })
}

func TestFromArenaDTypes(t *testing.T) {
	arena := make([]byte, 64)
	for _, dtype := range []dtypes.DType{
		dtypes.Bool, dtypes.Int8, dtypes.Int16, dtypes.Int32, dtypes.Int64,
		dtypes.Uint8, dtypes.Uint16, dtypes.Uint32, dtypes.Uint64,
		dtypes.Float16, dtypes.BFloat16, dtypes.Float32, dtypes.Float64,
	} {
		tensor := FromArena(arena, 0, shapes.Make(dtype, 2))
		require.True(t, tensor.Ok(), "dtype %s", dtype)
	}
}

func TestString(t *testing.T) {
	tensor := FromFlatAndDimensions([]int32{1, 2, 3}, 3)
	assert.Equal(t, "(Int32)[3]: [1, 2, 3]", tensor.String())

	big := FromShape(shapes.Make(dtypes.Int32, 100))
	assert.Contains(t, big.String(), "...")

	var nilTensor *Tensor
	assert.Equal(t, "Tensor(nil)", nilTensor.String())
}
