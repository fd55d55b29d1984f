// Package static compiles frozen computation graphs into immutable execution plans
// and runs them through lightweight per-call runtimes with planned memory reuse.
//
// A Module is compiled once from a graph.Graph and is safe for concurrent use;
// each Runtime derived from it owns per-call state (input slots, value slots and
// a memory planner) and must be used by one goroutine at a time. The usual
// pattern is one Module shared by many pooled Runtimes, see RuntimePool.
package static

import (
	"github.com/gomlx/exceptions"
	"k8s.io/klog/v2"

	"github.com/siddheshmhatre/pytorch/pkg/core/graph"
	"github.com/siddheshmhatre/pytorch/pkg/core/tensors"
	"github.com/siddheshmhatre/pytorch/pkg/runtime/kernels"
	"github.com/siddheshmhatre/pytorch/pkg/support/sets"
	"github.com/siddheshmhatre/pytorch/pkg/support/xslices"
)

// Special ValueRef kinds. Non-negative kinds are instruction ordinals.
const (
	// ConstantValue marks a reference into the Module's constant table.
	ConstantValue = -2
	// InputValue marks a reference into the Runtime's input slots.
	InputValue = -1
)

// ValueRef identifies where a value comes from: a constant, a graph input, or the
// output of an instruction in the plan.
type ValueRef struct {
	// Kind is ConstantValue, InputValue, or the ordinal of the producing instruction.
	Kind int
	// Index is the position within the referenced table: constant index, input index,
	// or output index of the producing instruction (always 0 for current ops).
	Index int
}

// IsConstant reports whether the reference points into the constant table.
func (r ValueRef) IsConstant() bool { return r.Kind == ConstantValue }

// IsInput reports whether the reference points at a graph input slot.
func (r ValueRef) IsInput() bool { return r.Kind == InputValue }

// Instruction is one executable step of the compiled plan. View operations carry
// no kernel: the runtime materializes them as zero-copy aliases of their base.
type Instruction struct {
	ordinal int
	node    *graph.Node
	opType  graph.OpType
	kernel  kernels.Kernel // nil for view ops
	inputs  []ValueRef
	isView  bool
}

// Node returns the graph node this instruction was compiled from.
func (in *Instruction) Node() *graph.Node { return in.node }

// OpType returns the instruction's operation.
func (in *Instruction) OpType() graph.OpType { return in.opType }

// Inputs returns the resolved input references. The returned slice is owned by
// the Module and must not be modified.
func (in *Instruction) Inputs() []ValueRef { return in.inputs }

// liveRange is the [firstWrite, lastRead] interval of a value, in instruction
// ordinals. Views charge their uses to the base value's range.
type liveRange struct {
	firstWrite int
	lastRead   int
}

// Module is an immutable compiled plan: the instruction sequence, constant table,
// input schema and the memory-planning metadata shared by all runtimes.
// Compiling the same graph with the same options always yields the same plan.
type Module struct {
	graph *graph.Graph
	opts  Options

	numInputs        int
	inputNames       map[string]int
	firstInputIsSelf bool

	constants    []*tensors.Tensor
	instructions []Instruction
	outputRefs   []ValueRef

	// Per graph-node metadata, indexed by node ID.
	defOf    []ValueRef // where each value is defined
	viewRoot []int      // node ID of the storage root for views, -1 otherwise
	external sets.Set[int]
	// sameStorage groups node IDs that aliasing annotations permit to share
	// storage. Derived exclusively from in-place operations.
	sameStorage map[int][]int
	live        []liveRange // valid only for instruction outputs
	maxInputs   int
	// inputEscapes holds input indices whose storage escapes through an output
	// view; the runtime must not recycle their slots.
	inputEscapes sets.Set[int]

	storagePlan *storagePlan
}

// Compile lowers a frozen graph into an immutable execution plan. It returns a
// *GraphUnsupportedError if the graph uses an operation with no registered kernel,
// or if it was never frozen by graph.Graph.Return.
func Compile(g *graph.Graph, opts Options) (*Module, error) {
	if g == nil {
		exceptions.Panicf("static.Compile: nil graph")
	}
	if !g.IsFrozen() {
		return nil, &GraphUnsupportedError{Graph: g.Name(), Reason: "graph is not frozen, call Graph.Return first"}
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}

	nodes := g.Nodes()
	m := &Module{
		graph:            g,
		opts:             opts,
		numInputs:        len(g.Parameters()),
		inputNames:       make(map[string]int, len(g.Parameters())),
		firstInputIsSelf: g.FirstInputIsSelf(),
		defOf:            make([]ValueRef, len(nodes)),
		viewRoot:         xslices.SliceWithValue(len(nodes), -1),
		external:         sets.Make[int](),
		sameStorage:      make(map[int][]int),
		live:             make([]liveRange, len(nodes)),
	}
	for _, p := range g.Parameters() {
		if p.Name() != "" {
			m.inputNames[p.Name()] = p.InputIndex()
		}
	}

	if err := m.lowerNodes(nodes); err != nil {
		return nil, err
	}
	m.resolveOutputs()
	m.markExternal()
	m.buildAliasGroups()
	m.computeLiveRanges()
	m.storagePlan = m.buildStoragePlan()
	if klog.V(1).Enabled() {
		arenaBytes := 0
		if m.storagePlan != nil {
			arenaBytes = m.storagePlan.arenaBytes
		}
		klog.Infof("static: compiled graph %q: %d instruction(s), %d constant(s), %d byte(s) of arena",
			g.Name(), len(m.instructions), len(m.constants), arenaBytes)
	}
	return m, nil
}

// lowerNodes walks the graph in program order and emits one instruction per
// computing node. Parameters and constants become references, not instructions.
func (m *Module) lowerNodes(nodes []*graph.Node) error {
	for _, node := range nodes {
		id := node.ID()
		switch node.OpType() {
		case graph.OpParameter:
			m.defOf[id] = ValueRef{Kind: InputValue, Index: node.InputIndex()}
			continue
		case graph.OpConstant:
			m.defOf[id] = ValueRef{Kind: ConstantValue, Index: len(m.constants)}
			m.constants = append(m.constants, node.Literal())
			continue
		case graph.OpInvalid:
			return &GraphUnsupportedError{Graph: m.graph.Name(), Node: node, Reason: "invalid operation"}
		}

		ordinal := len(m.instructions)
		// The builder emits nodes in topological order, so every input is
		// already defined by the time we reach its consumer.
		inputs := make([]ValueRef, len(node.Inputs()))
		for ii, in := range node.Inputs() {
			inputs[ii] = m.defOf[in.ID()]
		}
		if len(inputs) > m.maxInputs {
			m.maxInputs = len(inputs)
		}

		isView := node.OpType().IsView()
		var kernel kernels.Kernel
		if !isView {
			var found bool
			kernel, found = kernels.Lookup(node.OpType())
			if !found {
				return &GraphUnsupportedError{Graph: m.graph.Name(), Node: node,
					Reason: "no kernel registered for this operation"}
			}
		} else {
			base := node.Inputs()[0]
			root := base.ID()
			if r := m.viewRoot[root]; r >= 0 {
				root = r
			}
			m.viewRoot[id] = root
		}

		m.defOf[id] = ValueRef{Kind: ordinal, Index: 0}
		m.instructions = append(m.instructions, Instruction{
			ordinal: ordinal,
			node:    node,
			opType:  node.OpType(),
			kernel:  kernel,
			inputs:  inputs,
			isView:  isView,
		})
	}
	return nil
}

func (m *Module) resolveOutputs() {
	outputs := m.graph.Outputs()
	m.outputRefs = make([]ValueRef, len(outputs))
	m.inputEscapes = sets.Make[int]()
	for ii, out := range outputs {
		m.outputRefs[ii] = m.defOf[out.ID()]
		if root := m.viewRoot[out.ID()]; root >= 0 {
			rootNode := m.graph.Nodes()[root]
			if rootNode.OpType() == graph.OpParameter {
				m.inputEscapes.Insert(rootNode.InputIndex())
			}
		}
	}
}

// markExternal computes the set of values whose storage the planner must never
// manage: graph inputs, constants, graph outputs, and any value connected to one
// of those through a view. Externality propagates both ways along view edges, so
// a temporary whose view escapes as an output is itself external.
func (m *Module) markExternal() {
	for _, p := range m.graph.Parameters() {
		m.external.Insert(p.ID())
	}
	for _, node := range m.graph.Nodes() {
		if node.OpType() == graph.OpConstant {
			m.external.Insert(node.ID())
		}
	}
	for _, out := range m.graph.Outputs() {
		m.external.Insert(out.ID())
	}

	// Group values by view storage root: if any member of a root's family is
	// external, the whole family shares storage with it and is external too.
	family := make(map[int][]int)
	for _, node := range m.graph.Nodes() {
		id := node.ID()
		root := id
		if r := m.viewRoot[id]; r >= 0 {
			root = r
		}
		family[root] = append(family[root], id)
	}
	for root, members := range family {
		if len(members) == 1 && members[0] == root {
			continue
		}
		anyExternal := false
		for _, id := range members {
			if m.external.Has(id) {
				anyExternal = true
				break
			}
		}
		if anyExternal {
			for _, id := range members {
				m.external.Insert(id)
			}
		}
	}
}

// buildAliasGroups derives the storage-sharing permission map from in-place
// operation annotations only: an in-place op's output may share storage with its
// first input, and the permission is transitive along chains of in-place ops.
// Values with no aliasing relationship never share storage, regardless of how
// compatible their live ranges look.
func (m *Module) buildAliasGroups() {
	parent := make(map[int]int)
	var find func(int) int
	find = func(x int) int {
		p, ok := parent[x]
		if !ok || p == x {
			return x
		}
		r := find(p)
		parent[x] = r
		return r
	}
	union := func(a, b int) {
		if _, ok := parent[a]; !ok {
			parent[a] = a
		}
		if _, ok := parent[b]; !ok {
			parent[b] = b
		}
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}

	for _, node := range m.graph.Nodes() {
		if node.OpType().IsInPlace() {
			union(node.ID(), node.Inputs()[0].ID())
		}
	}

	groups := make(map[int][]int)
	for x := range parent {
		groups[find(x)] = append(groups[find(x)], x)
	}
	for _, members := range groups {
		for _, id := range members {
			for _, other := range members {
				if other != id {
					m.sameStorage[id] = append(m.sameStorage[id], other)
				}
			}
		}
	}
}

// computeLiveRanges fills m.live for every instruction output. A use of a view
// is charged to the view's storage root, since that is whose storage stays alive.
func (m *Module) computeLiveRanges() {
	for _, inst := range m.instructions {
		id := inst.node.ID()
		m.live[id] = liveRange{firstWrite: inst.ordinal, lastRead: inst.ordinal}
	}
	charge := func(id, ordinal int) {
		if root := m.viewRoot[id]; root >= 0 {
			id = root
		}
		if m.defOf[id].Kind < 0 {
			return // inputs and constants are not planned
		}
		if ordinal > m.live[id].lastRead {
			m.live[id].lastRead = ordinal
		}
	}
	for _, inst := range m.instructions {
		for _, in := range inst.node.Inputs() {
			charge(in.ID(), inst.ordinal)
		}
	}
	// A value read through a view after the view's creation must stay alive:
	// uses of the view were already charged to the root by the loop above.
}

// Graph returns the graph this Module was compiled from.
func (m *Module) Graph() *graph.Graph { return m.graph }

// Options returns the options the Module was compiled with.
func (m *Module) Options() Options { return m.opts }

// NumInputs returns the number of graph inputs, including the receiver if
// FirstInputIsSelf.
func (m *Module) NumInputs() int { return m.numInputs }

// NumOutputs returns the number of graph outputs.
func (m *Module) NumOutputs() int { return len(m.outputRefs) }

// FirstInputIsSelf reports whether input slot 0 is a module receiver rather than
// a data argument.
func (m *Module) FirstInputIsSelf() bool { return m.firstInputIsSelf }

// InputIndex returns the slot of a named input, or -1 if no input has that name.
func (m *Module) InputIndex(name string) int {
	if idx, ok := m.inputNames[name]; ok {
		return idx
	}
	return -1
}

// Constants returns the Module's constant table. The returned tensors are shared
// by every runtime and must not be mutated.
func (m *Module) Constants() []*tensors.Tensor { return m.constants }

// Instructions returns the compiled plan in execution order.
func (m *Module) Instructions() []Instruction { return m.instructions }

// OutputRefs returns where each graph output comes from.
func (m *Module) OutputRefs() []ValueRef { return m.outputRefs }

// IndexMap returns, per instruction ordinal, the resolved input references of
// that instruction. The slices are shared with the Module; treat as read-only.
func (m *Module) IndexMap() map[int][]ValueRef {
	im := make(map[int][]ValueRef, len(m.instructions))
	for ii := range m.instructions {
		im[m.instructions[ii].ordinal] = m.instructions[ii].inputs
	}
	return im
}

// IsExternal reports whether a node's value escapes the plan (input, constant,
// output, or view-connected to one of those).
func (m *Module) IsExternal(nodeID int) bool { return m.external.Has(nodeID) }

// ExternalValues returns the sorted IDs of all nodes whose values escape the
// plan and are therefore never managed by the memory planner.
func (m *Module) ExternalValues() []int { return sets.Sorted(m.external) }

// SameStorageValues returns the node IDs that aliasing annotations permit to
// share storage with the given node, or nil if it aliases nothing.
func (m *Module) SameStorageValues(nodeID int) []int { return m.sameStorage[nodeID] }

// NewRuntime creates a fresh execution context for this Module. Runtimes are not
// safe for concurrent use; create one per goroutine or use a RuntimePool.
func (m *Module) NewRuntime() *Runtime {
	return newRuntime(m)
}
