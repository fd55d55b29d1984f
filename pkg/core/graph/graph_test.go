package graph

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siddheshmhatre/pytorch/pkg/core/shapes"
	"github.com/siddheshmhatre/pytorch/pkg/core/tensors"
)

var (
	s23 = shapes.Make(dtypes.Float32, 2, 3)
	s32 = shapes.Make(dtypes.Float32, 3, 2)
)

func TestBuildAndFreeze(t *testing.T) {
	g := New("test")
	x := g.Parameter("x", s23)
	y := g.Parameter("y", s23)
	sum := g.Add(x, y)
	g.Return(sum)

	assert.True(t, g.IsFrozen())
	assert.Equal(t, []*Node{sum}, g.Outputs())
	assert.Equal(t, []*Node{x, y}, g.Parameters())
	assert.Equal(t, x, g.ParameterByName("x"))
	assert.Nil(t, g.ParameterByName("z"))
	assert.Equal(t, 0, x.InputIndex())
	assert.Equal(t, 1, y.InputIndex())

	// Node ids are positions in the node list.
	for ii, node := range g.Nodes() {
		assert.Equal(t, ii, node.ID())
	}

	// Frozen graphs reject new nodes.
	require.Panics(t, func() { g.Add(x, y) })
	require.Panics(t, func() { g.Parameter("z", s23) })
	require.Panics(t, func() { g.Return(sum) })
}

func TestTopologicalOrder(t *testing.T) {
	g := New("topo")
	x := g.Parameter("x", s23)
	a := g.Relu(x)
	b := g.Add(a, x)
	g.Return(b)
	for _, node := range g.Nodes() {
		for _, input := range node.Inputs() {
			assert.Less(t, input.ID(), node.ID())
		}
	}
}

func TestBinaryShapeInference(t *testing.T) {
	g := New("shapes")
	x := g.Parameter("x", s23)
	scalar := g.Parameter("s", shapes.Scalar[float32]())

	assert.True(t, g.Add(x, x).Shape().Equal(s23))
	// Scalar operands broadcast either way.
	assert.True(t, g.Mul(x, scalar).Shape().Equal(s23))
	assert.True(t, g.Sub(scalar, x).Shape().Equal(s23))

	other := g.Parameter("o", s32)
	require.Panics(t, func() { g.Add(x, other) })

	intOperand := g.Parameter("i", shapes.Make(dtypes.Int32, 2, 3))
	require.Panics(t, func() { g.Add(x, intOperand) })
}

func TestFloatOnlyOps(t *testing.T) {
	g := New("float-only")
	x := g.Parameter("x", shapes.Make(dtypes.Int32, 4))
	require.Panics(t, func() { g.Exp(x) })
	require.Panics(t, func() { g.Sigmoid(x) })
	require.Panics(t, func() { g.Tanh(x) })
	assert.NotNil(t, g.Neg(x)) // numeric unary ops accept integers
	assert.NotNil(t, g.Relu(x))
}

func TestMatMulShapeInference(t *testing.T) {
	g := New("matmul")
	lhs := g.Parameter("lhs", s23)
	rhs := g.Parameter("rhs", s32)
	out := g.MatMul(lhs, rhs)
	assert.True(t, out.Shape().Equal(shapes.Make(dtypes.Float32, 2, 2)))

	require.Panics(t, func() { g.MatMul(lhs, lhs) }) // (2,3) x (2,3): contracting mismatch
	vec := g.Parameter("vec", shapes.Make(dtypes.Float32, 3))
	require.Panics(t, func() { g.MatMul(lhs, vec) }) // rank-1 operand
}

func TestReshape(t *testing.T) {
	g := New("reshape")
	x := g.Parameter("x", s23)
	v := g.Reshape(x, 6)
	assert.True(t, v.Shape().Equal(shapes.Make(dtypes.Float32, 6)))
	assert.True(t, v.OpType().IsView())
	require.Panics(t, func() { g.Reshape(x, 7) })
}

func TestOpAttributes(t *testing.T) {
	assert.True(t, OpReluInPlace.IsInPlace())
	assert.False(t, OpRelu.IsInPlace())
	assert.True(t, OpReshape.IsView())
	assert.False(t, OpReluInPlace.IsView())
	assert.Equal(t, "ReluInPlace", OpReluInPlace.String())
	assert.Equal(t, "OpType(?)", OpType(-1).String())
}

func TestNodeString(t *testing.T) {
	g := New("str")
	x := g.Parameter("x", s23)
	y := g.Add(x, x)
	assert.Contains(t, x.String(), `Parameter("x")`)
	assert.Contains(t, y.String(), "Add(#0, #0)")
}

func TestOutputsAreCopied(t *testing.T) {
	g := New("copied")
	x := g.Parameter("x", s23)
	outs := []*Node{g.Relu(x)}
	g.Return(outs...)
	outs[0] = nil
	require.Len(t, g.Outputs(), 1)
	assert.NotNil(t, g.Outputs()[0])
}

func TestConstant(t *testing.T) {
	g := New("const")
	value := tensors.FromFlatAndDimensions([]float32{1, 2, 3}, 3)
	c := g.Constant(value)
	assert.True(t, c.IsConstant())
	assert.True(t, c.Literal().Equal(value))

	// The literal is a copy, not an alias.
	tensors.MutableFlatData[float32](value)[0] = 100
	assert.Equal(t, float32(1), tensors.ConstFlatData[float32](c.Literal())[0])
}

func TestReceiver(t *testing.T) {
	g := New("receiver")
	self := g.Receiver(s23)
	assert.True(t, g.FirstInputIsSelf())
	assert.Equal(t, 0, self.InputIndex())

	g2 := New("late-receiver")
	g2.Parameter("x", s23)
	require.Panics(t, func() { g2.Receiver(s23) })
}

func TestBuildingErrors(t *testing.T) {
	g := New("errors")
	x := g.Parameter("x", s23)
	require.Panics(t, func() { g.Parameter("x", s23) })  // duplicate name
	require.Panics(t, func() { g.Parameter("", s23) })   // empty name
	require.Panics(t, func() { g.Return() })             // no outputs
	require.Panics(t, func() { g.Return(x, x) })         // repeated output

	other := New("other")
	y := other.Parameter("y", s23)
	require.Panics(t, func() { g.Add(x, y) }) // cross-graph input
}
