package kernels

import (
	"math"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"

	"github.com/siddheshmhatre/pytorch/pkg/core/graph"
	"github.com/siddheshmhatre/pytorch/pkg/core/shapes"
	"github.com/siddheshmhatre/pytorch/pkg/core/tensors"
)

// run builds a one-op graph and executes the op's kernel directly.
func run(t *testing.T, build func(g *graph.Graph, inputs []*graph.Node) *graph.Node,
	inputs ...*tensors.Tensor) *tensors.Tensor {
	t.Helper()
	g := graph.New(t.Name())
	params := make([]*graph.Node, len(inputs))
	for ii, input := range inputs {
		params[ii] = g.Parameter(string(rune('a'+ii)), input.Shape())
	}
	node := build(g, params)
	kernel, found := Lookup(node.OpType())
	require.True(t, found, "no kernel for %s", node.OpType())
	out := tensors.FromShape(node.Shape())
	require.NoError(t, kernel(node, inputs, out))
	return out
}

func TestLookup(t *testing.T) {
	_, found := Lookup(graph.OpAdd)
	assert.True(t, found)
	_, found = Lookup(graph.OpReshape) // views have no kernel
	assert.False(t, found)
	_, found = Lookup(graph.OpParameter)
	assert.False(t, found)
}

func TestAdd(t *testing.T) {
	out := run(t, func(g *graph.Graph, in []*graph.Node) *graph.Node { return g.Add(in[0], in[1]) },
		tensors.FromFlatAndDimensions([]float32{1, 2, 3}, 3),
		tensors.FromFlatAndDimensions([]float32{10, 20, 30}, 3))
	assert.Equal(t, []float32{11, 22, 33}, tensors.ConstFlatData[float32](out))
}

func TestScalarBroadcast(t *testing.T) {
	x := tensors.FromFlatAndDimensions([]int64{1, 2, 3, 4}, 2, 2)
	scalar := tensors.FromScalar(int64(10))

	out := run(t, func(g *graph.Graph, in []*graph.Node) *graph.Node { return g.Mul(in[0], in[1]) }, x, scalar)
	assert.Equal(t, []int64{10, 20, 30, 40}, tensors.ConstFlatData[int64](out))

	out = run(t, func(g *graph.Graph, in []*graph.Node) *graph.Node { return g.Sub(in[0], in[1]) }, scalar, x)
	assert.Equal(t, []int64{9, 8, 7, 6}, tensors.ConstFlatData[int64](out))
}

func TestMaximum(t *testing.T) {
	out := run(t, func(g *graph.Graph, in []*graph.Node) *graph.Node { return g.Maximum(in[0], in[1]) },
		tensors.FromFlatAndDimensions([]float64{-1, 5, 2}, 3),
		tensors.FromFlatAndDimensions([]float64{0, 3, 7}, 3))
	assert.Equal(t, []float64{0, 5, 7}, tensors.ConstFlatData[float64](out))
}

func TestDiv(t *testing.T) {
	out := run(t, func(g *graph.Graph, in []*graph.Node) *graph.Node { return g.Div(in[0], in[1]) },
		tensors.FromFlatAndDimensions([]int32{10, 9, 8}, 3),
		tensors.FromFlatAndDimensions([]int32{2, 3, 4}, 3))
	assert.Equal(t, []int32{5, 3, 2}, tensors.ConstFlatData[int32](out))
}

func TestDivByZero(t *testing.T) {
	// Integer division by zero is a kernel error, not a panic.
	g := graph.New("div0")
	x := g.Parameter("x", shapes.Make(dtypes.Int32, 2))
	y := g.Parameter("y", shapes.Make(dtypes.Int32, 2))
	node := g.Div(x, y)
	kernel, found := Lookup(graph.OpDiv)
	require.True(t, found)
	out := tensors.FromShape(node.Shape())
	err := kernel(node, []*tensors.Tensor{
		tensors.FromFlatAndDimensions([]int32{1, 2}, 2),
		tensors.FromFlatAndDimensions([]int32{1, 0}, 2),
	}, out)
	require.Error(t, err)

	// Float division by zero follows IEEE semantics.
	outF := run(t, func(g *graph.Graph, in []*graph.Node) *graph.Node { return g.Div(in[0], in[1]) },
		tensors.FromFlatAndDimensions([]float32{1, -1}, 2),
		tensors.FromFlatAndDimensions([]float32{0, 0}, 2))
	flat := tensors.ConstFlatData[float32](outF)
	assert.True(t, math.IsInf(float64(flat[0]), 1))
	assert.True(t, math.IsInf(float64(flat[1]), -1))
}

func TestUnaryOps(t *testing.T) {
	x := tensors.FromFlatAndDimensions([]float32{-2, 0, 3}, 3)

	out := run(t, func(g *graph.Graph, in []*graph.Node) *graph.Node { return g.Neg(in[0]) }, x)
	assert.Equal(t, []float32{2, 0, -3}, tensors.ConstFlatData[float32](out))

	out = run(t, func(g *graph.Graph, in []*graph.Node) *graph.Node { return g.Abs(in[0]) }, x)
	assert.Equal(t, []float32{2, 0, 3}, tensors.ConstFlatData[float32](out))

	out = run(t, func(g *graph.Graph, in []*graph.Node) *graph.Node { return g.Relu(in[0]) }, x)
	assert.Equal(t, []float32{0, 0, 3}, tensors.ConstFlatData[float32](out))

	out = run(t, func(g *graph.Graph, in []*graph.Node) *graph.Node { return g.ReluInPlace(in[0]) }, x)
	assert.Equal(t, []float32{0, 0, 3}, tensors.ConstFlatData[float32](out))

	xInt := tensors.FromFlatAndDimensions([]int64{-5, 5}, 2)
	out = run(t, func(g *graph.Graph, in []*graph.Node) *graph.Node { return g.Abs(in[0]) }, xInt)
	assert.Equal(t, []int64{5, 5}, tensors.ConstFlatData[int64](out))
}

func TestFloatUnaryOps(t *testing.T) {
	x := tensors.FromFlatAndDimensions([]float64{0, 1}, 2)

	out := run(t, func(g *graph.Graph, in []*graph.Node) *graph.Node { return g.Exp(in[0]) }, x)
	flat := tensors.ConstFlatData[float64](out)
	assert.InDelta(t, 1.0, flat[0], 1e-12)
	assert.InDelta(t, math.E, flat[1], 1e-12)

	out = run(t, func(g *graph.Graph, in []*graph.Node) *graph.Node { return g.Sigmoid(in[0]) }, x)
	flat = tensors.ConstFlatData[float64](out)
	assert.InDelta(t, 0.5, flat[0], 1e-12)
	assert.InDelta(t, 1/(1+math.Exp(-1)), flat[1], 1e-12)

	out = run(t, func(g *graph.Graph, in []*graph.Node) *graph.Node { return g.Tanh(in[0]) }, x)
	flat = tensors.ConstFlatData[float64](out)
	assert.InDelta(t, 0.0, flat[0], 1e-12)
	assert.InDelta(t, math.Tanh(1), flat[1], 1e-12)
}

func TestMatMul(t *testing.T) {
	// (2,3) x (3,2) -> (2,2)
	out := run(t, func(g *graph.Graph, in []*graph.Node) *graph.Node { return g.MatMul(in[0], in[1]) },
		tensors.FromFlatAndDimensions([]float32{1, 2, 3, 4, 5, 6}, 2, 3),
		tensors.FromFlatAndDimensions([]float32{7, 8, 9, 10, 11, 12}, 3, 2))
	assert.Equal(t, []float32{58, 64, 139, 154}, tensors.ConstFlatData[float32](out))
}

func TestMatMulInt(t *testing.T) {
	out := run(t, func(g *graph.Graph, in []*graph.Node) *graph.Node { return g.MatMul(in[0], in[1]) },
		tensors.FromFlatAndDimensions([]int32{1, 0, 0, 1}, 2, 2),
		tensors.FromFlatAndDimensions([]int32{5, 6, 7, 8}, 2, 2))
	assert.Equal(t, []int32{5, 6, 7, 8}, tensors.ConstFlatData[int32](out))
}

func TestClone(t *testing.T) {
	x := tensors.FromFlatAndDimensions([]float32{1, 2}, 2)
	out := run(t, func(g *graph.Graph, in []*graph.Node) *graph.Node { return g.Clone(in[0]) }, x)
	assert.True(t, out.Equal(x))
	assert.NotEqual(t, x.DataAddr(), out.DataAddr())
}

func TestFloat16(t *testing.T) {
	toF16 := func(values ...float32) []float16.Float16 {
		out := make([]float16.Float16, len(values))
		for ii, v := range values {
			out[ii] = float16.Fromfloat32(v)
		}
		return out
	}
	out := run(t, func(g *graph.Graph, in []*graph.Node) *graph.Node { return g.Add(in[0], in[1]) },
		tensors.FromFlatAndDimensions(toF16(1, 2), 2),
		tensors.FromFlatAndDimensions(toF16(0.5, 0.25), 2))
	flat := tensors.ConstFlatData[float16.Float16](out)
	assert.Equal(t, float32(1.5), flat[0].Float32())
	assert.Equal(t, float32(2.25), flat[1].Float32())
}

func TestBFloat16(t *testing.T) {
	toBF16 := func(values ...float32) []bfloat16.BFloat16 {
		out := make([]bfloat16.BFloat16, len(values))
		for ii, v := range values {
			out[ii] = bfloat16.FromFloat32(v)
		}
		return out
	}
	out := run(t, func(g *graph.Graph, in []*graph.Node) *graph.Node { return g.Relu(in[0]) },
		tensors.FromFlatAndDimensions(toBF16(-1, 2), 2))
	flat := tensors.ConstFlatData[bfloat16.BFloat16](out)
	assert.Equal(t, float32(0), flat[0].Float32())
	assert.Equal(t, float32(2), flat[1].Float32())
}
