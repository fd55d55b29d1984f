// Package graph implements the dataflow graph consumed by the static runtime.
//
// A Graph is built incrementally: operation nodes can only be created after their inputs exist,
// so the node list is always a valid topological (program) order of the dataflow -- the plan
// compiler relies on this invariance.
//
// Graph building errors (shape mismatches, cross-graph inputs, building after Return) panic with
// an exception carrying a stack trace: they are programming errors local to graph construction,
// and handling them at every op would bury the model definition in error checks. Compilation and
// execution errors, in contrast, are returned as values by the runtime/static package.
//
// The graph given to the compiler is expected to be already optimized (inlined, constant-folded,
// frozen): this package does no optimization passes, it only represents dataflow.
package graph

import (
	"fmt"
	"strings"

	"github.com/gomlx/exceptions"

	"github.com/siddheshmhatre/pytorch/pkg/core/shapes"
	"github.com/siddheshmhatre/pytorch/pkg/core/tensors"
	"github.com/siddheshmhatre/pytorch/pkg/support/xslices"
)

// Graph of operations and their data dependencies.
//
// Create one with New, add nodes with the op methods (Parameter, Constant, Add, ...) and declare
// the outputs with Return, after which the graph is frozen and can be compiled.
type Graph struct {
	name   string
	frozen bool

	// nodes are only created when their inputs already exist, so this is a natural topological
	// ordering of the dataflow.
	nodes []*Node

	// parameters, in the order they were created. They define the calling convention.
	parameters      []*Node
	parameterByName map[string]*Node

	// firstInputIsSelf marks the first parameter as the implicit receiver of an object-bound graph.
	firstInputIsSelf bool

	// outputs, set by Return.
	outputs []*Node
}

// New creates an empty graph with the given name.
func New(name string) *Graph {
	return &Graph{
		name:            name,
		parameterByName: make(map[string]*Node),
	}
}

// Name of the graph.
func (g *Graph) Name() string { return g.name }

// Nodes returns the graph nodes in program (topological) order.
// The returned slice is owned by the graph and must not be modified.
func (g *Graph) Nodes() []*Node { return g.nodes }

// Parameters returns the parameter nodes in creation order.
func (g *Graph) Parameters() []*Node { return g.parameters }

// Outputs returns the output nodes set by Return, or nil if the graph is not frozen yet.
func (g *Graph) Outputs() []*Node { return g.outputs }

// IsFrozen returns whether Return has been called: no more nodes can be added.
func (g *Graph) IsFrozen() bool { return g.frozen }

// FirstInputIsSelf returns whether the first parameter denotes the graph's implicit receiver.
func (g *Graph) FirstInputIsSelf() bool { return g.firstInputIsSelf }

// ParameterByName returns the parameter node with the given name, or nil if there is none.
func (g *Graph) ParameterByName(name string) *Node {
	return g.parameterByName[name]
}

// Return declares the graph outputs and freezes the graph.
// Repeated outputs are not supported.
func (g *Graph) Return(outputs ...*Node) {
	g.checkBuilding("Return", outputs...)
	if len(outputs) == 0 {
		exceptions.Panicf("graph %q: Return requires at least one output", g.name)
	}
	seen := make(map[*Node]bool, len(outputs))
	for _, node := range outputs {
		if seen[node] {
			exceptions.Panicf("graph %q: node #%d (%s) repeated in Return -- outputs must be unique",
				g.name, node.id, node.opType)
		}
		seen[node] = true
	}
	g.outputs = xslices.Copy(outputs)
	g.frozen = true
}

// Parameter creates a graph input with the given name and shape.
// Names must be unique; they define the named-argument calling convention.
func (g *Graph) Parameter(name string, shape shapes.Shape) *Node {
	g.checkBuilding("Parameter")
	if name == "" {
		exceptions.Panicf("graph %q: parameters require a non-empty name", g.name)
	}
	if _, found := g.parameterByName[name]; found {
		exceptions.Panicf("graph %q: duplicate parameter name %q", g.name, name)
	}
	if !shape.Ok() {
		exceptions.Panicf("graph %q: Parameter(%q) given an invalid shape", g.name, name)
	}
	node := g.newNode(OpParameter, shape)
	node.name = name
	node.inputIdx = len(g.parameters)
	g.parameters = append(g.parameters, node)
	g.parameterByName[name] = node
	return node
}

// Receiver creates the implicit "self" input of an object-bound graph.
// It must be the first parameter created, and there can be only one.
func (g *Graph) Receiver(shape shapes.Shape) *Node {
	if len(g.parameters) > 0 {
		exceptions.Panicf("graph %q: Receiver must be created before any other parameter", g.name)
	}
	node := g.Parameter("self", shape)
	g.firstInputIsSelf = true
	return node
}

// Constant creates a node holding a literal value. The value is copied.
func (g *Graph) Constant(value *tensors.Tensor) *Node {
	g.checkBuilding("Constant")
	if !value.Ok() {
		exceptions.Panicf("graph %q: Constant given an empty or invalid tensor", g.name)
	}
	node := g.newNode(OpConstant, value.Shape())
	literal := tensors.FromShape(value.Shape())
	if err := literal.CopyFrom(value); err != nil {
		panic(err)
	}
	node.literal = literal
	return node
}

// String lists the nodes of the graph, one per line.
func (g *Graph) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Graph %q: %d nodes, %d parameters, %d outputs\n",
		g.name, len(g.nodes), len(g.parameters), len(g.outputs))
	for _, node := range g.nodes {
		fmt.Fprintf(&sb, "  %s\n", node)
	}
	return sb.String()
}

// checkBuilding panics if the graph is frozen or if any of the given nodes belongs to a
// different graph.
func (g *Graph) checkBuilding(opName string, inputs ...*Node) {
	if g == nil {
		exceptions.Panicf("%s: graph is nil", opName)
	}
	if g.frozen {
		exceptions.Panicf("cannot add %s to graph %q, it is frozen (Return was already called)",
			opName, g.name)
	}
	for idx, node := range inputs {
		if node == nil {
			exceptions.Panicf("%s: input #%d is nil", opName, idx)
		}
		if node.graph != g {
			exceptions.Panicf("%s: input #%d was created on graph %q, cannot use it with graph %q",
				opName, idx, node.graph.name, g.name)
		}
	}
}
