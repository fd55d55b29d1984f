package graph

import (
	"fmt"
	"strings"

	"github.com/siddheshmhatre/pytorch/pkg/core/shapes"
	"github.com/siddheshmhatre/pytorch/pkg/core/tensors"
	"github.com/siddheshmhatre/pytorch/pkg/support/xslices"
)

// Node represents the result of one operation in the graph. Each node produces exactly one value;
// the node's id (its position in the graph's node list) is the value's identity for all the
// liveness and aliasing bookkeeping done by the plan compiler.
type Node struct {
	graph *Graph

	// id is the index in Graph.nodes. It is stable: it never changes after creation.
	id int

	opType OpType
	shape  shapes.Shape
	inputs []*Node

	// name and inputIdx are set for OpParameter nodes.
	name     string
	inputIdx int

	// literal is set for OpConstant nodes.
	literal *tensors.Tensor
}

// newNode adds a new node of the given opType and shape to the graph.
// It's used by the op methods when creating new nodes.
func (g *Graph) newNode(opType OpType, shape shapes.Shape, inputs ...*Node) *Node {
	n := &Node{
		graph:  g,
		id:     len(g.nodes),
		opType: opType,
		shape:  shape.Clone(),
		inputs: xslices.Copy(inputs),
	}
	g.nodes = append(g.nodes, n)
	return n
}

// ID returns the node's position in the graph node list. Stable after creation.
func (n *Node) ID() int { return n.id }

// OpType of the operation the node represents.
func (n *Node) OpType() OpType { return n.opType }

// Shape of the node's value.
func (n *Node) Shape() shapes.Shape { return n.shape }

// Graph that owns the node.
func (n *Node) Graph() *Graph { return n.graph }

// Inputs returns the node's input nodes. The slice is owned by the node, don't modify it.
func (n *Node) Inputs() []*Node { return n.inputs }

// Name returns the parameter name for OpParameter nodes, and "" otherwise.
func (n *Node) Name() string { return n.name }

// InputIndex returns the position of an OpParameter node in the graph's input list.
func (n *Node) InputIndex() int { return n.inputIdx }

// Literal returns the constant value of an OpConstant node, and nil otherwise.
// The returned tensor is owned by the node and must not be mutated.
func (n *Node) Literal() *tensors.Tensor { return n.literal }

// IsParameter returns whether the node is a graph input.
func (n *Node) IsParameter() bool { return n.opType == OpParameter }

// IsConstant returns whether the node holds a literal value.
func (n *Node) IsConstant() bool { return n.opType == OpConstant }

// String implements fmt.Stringer.
func (n *Node) String() string {
	var desc string
	switch n.opType {
	case OpParameter:
		desc = fmt.Sprintf("Parameter(%q)", n.name)
	case OpConstant:
		desc = "Constant"
	default:
		inputIds := xslices.Map(n.inputs, func(input *Node) string { return fmt.Sprintf("#%d", input.id) })
		desc = fmt.Sprintf("%s(%s)", n.opType, strings.Join(inputIds, ", "))
	}
	return fmt.Sprintf("#%d: %s -> %s", n.id, desc, n.shape)
}
