package graph

import (
	"github.com/gomlx/exceptions"

	"github.com/siddheshmhatre/pytorch/pkg/core/shapes"
)

// This file implements the op methods that add operation nodes to a graph, with their shape
// inference. Binary element-wise ops accept operands of equal shapes, or one operand may be a
// scalar, in which case it is implicitly broadcast.

// binaryOpShape infers the output shape of a binary element-wise op, panicking on
// incompatible operands.
func (g *Graph) binaryOpShape(opType OpType, lhs, rhs *Node) shapes.Shape {
	if lhs.shape.DType != rhs.shape.DType {
		exceptions.Panicf("graph %q: %s operands have different dtypes: %s and %s",
			g.name, opType, lhs.shape, rhs.shape)
	}
	if lhs.shape.IsScalar() {
		return rhs.shape
	}
	if rhs.shape.IsScalar() {
		return lhs.shape
	}
	if !lhs.shape.Equal(rhs.shape) {
		exceptions.Panicf("graph %q: %s operands have incompatible shapes %s and %s "+
			"(only equal shapes or a scalar operand are supported)",
			g.name, opType, lhs.shape, rhs.shape)
	}
	return lhs.shape
}

// addBinaryOp adds a generic binary element-wise op.
func (g *Graph) addBinaryOp(opType OpType, lhs, rhs *Node) *Node {
	g.checkBuilding(opType.String(), lhs, rhs)
	return g.newNode(opType, g.binaryOpShape(opType, lhs, rhs), lhs, rhs)
}

// addUnaryOp adds a generic unary element-wise op, whose output shape equals the input's.
func (g *Graph) addUnaryOp(opType OpType, operand *Node) *Node {
	g.checkBuilding(opType.String(), operand)
	return g.newNode(opType, operand.shape, operand)
}

// Add returns lhs + rhs, element-wise.
func (g *Graph) Add(lhs, rhs *Node) *Node { return g.addBinaryOp(OpAdd, lhs, rhs) }

// Sub returns lhs - rhs, element-wise.
func (g *Graph) Sub(lhs, rhs *Node) *Node { return g.addBinaryOp(OpSub, lhs, rhs) }

// Mul returns lhs * rhs, element-wise.
func (g *Graph) Mul(lhs, rhs *Node) *Node { return g.addBinaryOp(OpMul, lhs, rhs) }

// Div returns lhs / rhs, element-wise.
// For integer dtypes a zero divisor is a kernel execution error at run time.
func (g *Graph) Div(lhs, rhs *Node) *Node { return g.addBinaryOp(OpDiv, lhs, rhs) }

// Maximum returns max(lhs, rhs), element-wise.
func (g *Graph) Maximum(lhs, rhs *Node) *Node { return g.addBinaryOp(OpMaximum, lhs, rhs) }

// Neg returns -x, element-wise.
func (g *Graph) Neg(x *Node) *Node { return g.addUnaryOp(OpNeg, x) }

// Abs returns |x|, element-wise.
func (g *Graph) Abs(x *Node) *Node { return g.addUnaryOp(OpAbs, x) }

// Exp returns e^x, element-wise. Floating point dtypes only.
func (g *Graph) Exp(x *Node) *Node { return g.addFloatUnaryOp(OpExp, x) }

// Relu returns max(x, 0), element-wise.
func (g *Graph) Relu(x *Node) *Node { return g.addUnaryOp(OpRelu, x) }

// ReluInPlace returns max(x, 0) element-wise, annotated so that the output may share
// x's storage. Sharing is a legality declaration consumed by the memory planner, not
// a guarantee: the kernel never assumes it.
func (g *Graph) ReluInPlace(x *Node) *Node { return g.addUnaryOp(OpReluInPlace, x) }

// Sigmoid returns 1/(1+e^-x), element-wise. Floating point dtypes only.
func (g *Graph) Sigmoid(x *Node) *Node { return g.addFloatUnaryOp(OpSigmoid, x) }

// Tanh returns tanh(x), element-wise. Floating point dtypes only.
func (g *Graph) Tanh(x *Node) *Node { return g.addFloatUnaryOp(OpTanh, x) }

// addFloatUnaryOp adds a unary op only defined for floating point dtypes.
func (g *Graph) addFloatUnaryOp(opType OpType, operand *Node) *Node {
	g.checkBuilding(opType.String(), operand)
	if !operand.shape.DType.IsFloat() {
		exceptions.Panicf("graph %q: %s requires a floating point operand, got %s",
			g.name, opType, operand.shape)
	}
	return g.newNode(opType, operand.shape, operand)
}

// MatMul multiplies two rank-2 operands: (m, k) x (k, n) -> (m, n).
func (g *Graph) MatMul(lhs, rhs *Node) *Node {
	g.checkBuilding(OpMatMul.String(), lhs, rhs)
	if lhs.shape.DType != rhs.shape.DType {
		exceptions.Panicf("graph %q: MatMul operands have different dtypes: %s and %s",
			g.name, lhs.shape, rhs.shape)
	}
	if lhs.shape.Rank() != 2 || rhs.shape.Rank() != 2 {
		exceptions.Panicf("graph %q: MatMul requires rank-2 operands, got %s and %s",
			g.name, lhs.shape, rhs.shape)
	}
	if lhs.shape.Dim(1) != rhs.shape.Dim(0) {
		exceptions.Panicf("graph %q: MatMul contracting dimensions don't match: %s x %s",
			g.name, lhs.shape, rhs.shape)
	}
	outputShape := shapes.Make(lhs.shape.DType, lhs.shape.Dim(0), rhs.shape.Dim(1))
	return g.newNode(OpMatMul, outputShape, lhs, rhs)
}

// Reshape returns a view of x with the given dimensions. The total size must not change.
// The output shares x's storage: it is a view, not a copy.
func (g *Graph) Reshape(x *Node, dimensions ...int) *Node {
	g.checkBuilding(OpReshape.String(), x)
	outputShape := shapes.Make(x.shape.DType, dimensions...)
	if outputShape.Size() != x.shape.Size() {
		exceptions.Panicf("graph %q: Reshape from %s to %s changes the total size",
			g.name, x.shape, outputShape)
	}
	return g.newNode(OpReshape, outputShape, x)
}

// Clone returns an explicit copy of x.
func (g *Graph) Clone(x *Node) *Node { return g.addUnaryOp(OpClone, x) }
