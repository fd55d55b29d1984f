package static

import (
	"time"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"github.com/siddheshmhatre/pytorch/pkg/core/tensors"
	"github.com/siddheshmhatre/pytorch/pkg/support/sets"
)

// Runtime is a per-call execution context for a compiled Module. It owns the
// input slots, one value slot per graph node and a memory planner with its
// arena. A Runtime is reusable across calls but must not be used concurrently;
// share the Module instead and give each goroutine its own Runtime.
type Runtime struct {
	module  *Module
	planner *memoryPlanner

	receiver   *tensors.Tensor
	inputSlots []*tensors.Tensor
	valueSlots []*tensors.Tensor // indexed by node ID
	opInputs   []*tensors.Tensor // scratch for kernel calls

	// retainForTest keeps the listed node IDs' storage alive through cleanup,
	// so leak detection can be exercised deliberately.
	retainForTest sets.Set[int]
}

func newRuntime(m *Module) *Runtime {
	return &Runtime{
		module:     m,
		planner:    newMemoryPlanner(m),
		inputSlots: make([]*tensors.Tensor, m.numInputs),
		valueSlots: make([]*tensors.Tensor, len(m.graph.Nodes())),
		opInputs:   make([]*tensors.Tensor, m.maxInputs),
	}
}

// Module returns the compiled plan this Runtime executes.
func (rt *Runtime) Module() *Module { return rt.module }

// SetReceiver binds the module receiver for graphs built with Graph.Receiver.
// The receiver is bound by reference, not copied, and persists across calls.
func (rt *Runtime) SetReceiver(t *tensors.Tensor) {
	if !rt.module.firstInputIsSelf {
		exceptions.Panicf("Runtime.SetReceiver: graph %q takes no receiver", rt.module.graph.Name())
	}
	rt.receiver = t
}

// Run executes the plan on the given positional arguments and returns the graph
// outputs in declaration order. Arguments are copied into the runtime's input
// slots, so the caller's tensors are never aliased or mutated. Returned output
// tensors are owned by the caller, except constants (shared, do not mutate) and,
// under OptimizeGraphOutputMemory, arena-backed outputs that are only valid
// until the next call on this Runtime.
func (rt *Runtime) Run(args ...*tensors.Tensor) ([]*tensors.Tensor, error) {
	return rt.RunNamed(args, nil)
}

// RunNamed is Run with an extra set of by-name arguments. Positional args fill
// the first input slots in order; kwargs fill the rest by parameter name. Every
// input must be bound exactly once.
func (rt *Runtime) RunNamed(args []*tensors.Tensor, kwargs map[string]*tensors.Tensor) ([]*tensors.Tensor, error) {
	return rt.runNamed(args, kwargs, nil)
}

func (rt *Runtime) runNamed(args []*tensors.Tensor, kwargs map[string]*tensors.Tensor, metrics *Metrics) ([]*tensors.Tensor, error) {
	var setupStart time.Time
	if metrics != nil {
		setupStart = time.Now()
	}
	if err := rt.bindInputs(args, kwargs); err != nil {
		rt.releaseInputSlots()
		return nil, err
	}
	if metrics != nil {
		metrics.SetupTime += time.Since(setupStart)
		allocStart := time.Now()
		rt.planner.allocate(rt.valueSlots)
		metrics.MemoryAllocTime += time.Since(allocStart)
	} else {
		rt.planner.allocate(rt.valueSlots)
	}

	if err := rt.execute(metrics, nil); err != nil {
		rt.cleanup(nil, metrics)
		return nil, err
	}

	outputs := rt.collectOutputs()
	rt.cleanup(outputs, metrics)
	return outputs, nil
}

// bindInputs validates and copies arguments into the runtime's input slots.
func (rt *Runtime) bindInputs(args []*tensors.Tensor, kwargs map[string]*tensors.Tensor) error {
	m := rt.module
	params := m.graph.Parameters()
	firstData := 0
	if m.firstInputIsSelf {
		if rt.receiver == nil {
			return errors.Errorf("graph %q takes a receiver, call Runtime.SetReceiver first", m.graph.Name())
		}
		if !rt.receiver.Shape().Equal(params[0].Shape()) {
			return errors.Errorf("receiver shape %s does not match expected %s",
				rt.receiver.Shape(), params[0].Shape())
		}
		rt.inputSlots[0] = rt.receiver
		firstData = 1
	}

	numData := m.numInputs - firstData
	if len(args)+len(kwargs) != numData {
		return errors.Errorf("graph %q takes %d input(s), got %d positional and %d named",
			m.graph.Name(), numData, len(args), len(kwargs))
	}
	bound := make([]bool, m.numInputs)
	bind := func(slot int, arg *tensors.Tensor) error {
		if bound[slot] {
			return errors.Errorf("input %q bound more than once", params[slot].Name())
		}
		if arg == nil || !arg.Ok() {
			return errors.Errorf("input %q is nil or invalid", params[slot].Name())
		}
		if !arg.Shape().Equal(params[slot].Shape()) {
			return errors.Errorf("input %q has shape %s, expected %s",
				params[slot].Name(), arg.Shape(), params[slot].Shape())
		}
		buf := tensors.GetBuffer(arg.Shape())
		if err := buf.CopyFrom(arg); err != nil {
			tensors.PutBuffer(buf)
			return err
		}
		rt.inputSlots[slot] = buf
		bound[slot] = true
		return nil
	}

	for ii, arg := range args {
		if err := bind(firstData+ii, arg); err != nil {
			return err
		}
	}
	for name, arg := range kwargs {
		slot := m.InputIndex(name)
		if slot < 0 {
			return errors.Errorf("graph %q has no input named %q", m.graph.Name(), name)
		}
		if err := bind(slot, arg); err != nil {
			return err
		}
	}
	for slot := firstData; slot < m.numInputs; slot++ {
		if !bound[slot] {
			return errors.Errorf("input %q was not bound", params[slot].Name())
		}
	}
	return nil
}

// releaseInputSlots returns partially bound input copies to the pool after a
// failed binding.
func (rt *Runtime) releaseInputSlots() {
	for ii, t := range rt.inputSlots {
		rt.inputSlots[ii] = nil
		if t != nil && t != rt.receiver {
			tensors.PutBuffer(t)
		}
	}
}

// resolve maps a ValueRef to the tensor currently holding that value.
func (rt *Runtime) resolve(ref ValueRef) *tensors.Tensor {
	switch ref.Kind {
	case ConstantValue:
		return rt.module.constants[ref.Index]
	case InputValue:
		t := rt.inputSlots[ref.Index]
		if t == nil {
			exceptions.Panicf("input slot %d is unbound during execution", ref.Index)
		}
		return t
	default:
		id := rt.module.instructions[ref.Kind].node.ID()
		t := rt.valueSlots[id]
		if t == nil || !t.Ok() {
			exceptions.Panicf("value of instruction #%d used before it was computed", ref.Kind)
		}
		return t
	}
}

// execute runs the instruction sequence in program order. If metrics is not nil,
// per-instruction wall time is accumulated into it. If observe is not nil it is
// called after each instruction with the resolved inputs and the produced value.
func (rt *Runtime) execute(metrics *Metrics, observe func(inst *Instruction, inputs []*tensors.Tensor, out *tensors.Tensor)) error {
	for ii := range rt.module.instructions {
		inst := &rt.module.instructions[ii]
		var instStart time.Time
		if metrics != nil {
			instStart = time.Now()
		}

		id := inst.node.ID()
		if inst.isView {
			base := rt.resolve(inst.inputs[0])
			rt.valueSlots[id] = tensors.View(base, inst.node.Shape())
			if observe != nil {
				observe(inst, []*tensors.Tensor{base}, rt.valueSlots[id])
			}
		} else {
			inputs := rt.opInputs[:len(inst.inputs)]
			for jj, ref := range inst.inputs {
				inputs[jj] = rt.resolve(ref)
			}
			out := rt.valueSlots[id]
			if out == nil || !out.Ok() {
				out = tensors.GetBuffer(inst.node.Shape())
				rt.valueSlots[id] = out
			}
			if err := inst.kernel(inst.node, inputs, out); err != nil {
				return &KernelExecutionError{
					Ordinal:  inst.ordinal,
					OpType:   inst.opType,
					NodeName: inst.node.Name(),
					Err:      err,
				}
			}
			if observe != nil {
				observe(inst, inputs, out)
			}
		}

		if metrics != nil {
			metrics.recordInstruction(inst, time.Since(instStart))
		}
	}
	return nil
}

func (rt *Runtime) collectOutputs() []*tensors.Tensor {
	outputs := make([]*tensors.Tensor, len(rt.module.outputRefs))
	for ii, ref := range rt.module.outputRefs {
		outputs[ii] = rt.resolve(ref)
	}
	return outputs
}

// cleanup releases per-call state after a run. Input slots are always emptied.
// Temporaries go back to the buffer pool (or stay cached when CleanupActivations
// is off); storage that escaped to the caller is dropped, never recycled.
func (rt *Runtime) cleanup(outputs []*tensors.Tensor, metrics *Metrics) {
	escaped := func(t *tensors.Tensor) bool {
		for _, out := range outputs {
			if out == t {
				return true
			}
		}
		return false
	}

	var deallocStart time.Time
	if metrics != nil {
		deallocStart = time.Now()
	}

	// Input slots: drop references so bound copies are reclaimed, except the
	// receiver (caller-owned), slots handed back as outputs, and slots whose
	// storage escaped through an output view.
	for ii, t := range rt.inputSlots {
		rt.inputSlots[ii] = nil
		if t == nil || t == rt.receiver || escaped(t) || rt.module.inputEscapes.Has(ii) {
			continue
		}
		tensors.PutBuffer(t)
	}

	cleanupActivations := rt.module.opts.CleanupActivations
	if cleanupActivations {
		rt.planner.deallocateSkipping(rt.valueSlots, rt.retainForTest)
	}

	for ii := range rt.module.instructions {
		inst := &rt.module.instructions[ii]
		id := inst.node.ID()
		t := rt.valueSlots[id]
		if t == nil {
			continue
		}
		if rt.retainForTest.Has(id) {
			continue
		}
		if inst.isView {
			// Views are metadata only, recreated on the next run.
			rt.valueSlots[id] = nil
			continue
		}
		if _, planned := rt.planner.slotIndex(id); planned {
			continue // planner owns these
		}
		if rt.module.external.Has(id) {
			// Ownership transferred to the caller together with the outputs
			// (or a view of them); never recycle it.
			rt.valueSlots[id] = nil
			continue
		}
		if cleanupActivations {
			tensors.PutBuffer(t)
			rt.valueSlots[id] = nil
		}
		// Otherwise keep the buffer cached for the next run.
	}

	if metrics != nil {
		metrics.MemoryDeallocTime += time.Since(deallocStart)
	}
}

// CheckForMemoryLeak verifies no internal value kept storage past cleanup. With
// assumeOutputsConsumed, output slots still holding storage are also flagged.
// When CleanupActivations is off the runtime caches activations on purpose and
// the report is trivially clean.
func (rt *Runtime) CheckForMemoryLeak(assumeOutputsConsumed bool) *LeakReport {
	report := &LeakReport{}
	if !rt.module.opts.CleanupActivations {
		return report
	}
	outputIDs := sets.Make[int]()
	for _, out := range rt.module.graph.Outputs() {
		outputIDs.Insert(out.ID())
	}
	for ii := range rt.module.instructions {
		inst := &rt.module.instructions[ii]
		id := inst.node.ID()
		if inst.isView {
			continue
		}
		t := rt.valueSlots[id]
		held := t != nil && t.Ok()
		if !held {
			continue
		}
		if rt.module.external.Has(id) {
			if _, planned := rt.planner.slotIndex(id); planned {
				continue // planned outputs legitimately stay in the arena
			}
			if !assumeOutputsConsumed && outputIDs.Has(id) {
				continue
			}
			if !outputIDs.Has(id) {
				continue // inputs/constants/aliases are externally owned
			}
		}
		report.LeakedNodes = append(report.LeakedNodes, inst.node)
	}
	return report
}

// PlannerStats returns a human-readable summary of the runtime's memory planner.
func (rt *Runtime) PlannerStats() string { return rt.planner.String() }

// ArenaBytes returns the size of this runtime's planned arena.
func (rt *Runtime) ArenaBytes() int { return rt.planner.ArenaBytes() }

// ArenaGeneration returns how many times the arena has been handed out.
func (rt *Runtime) ArenaGeneration() int64 { return rt.planner.Generation() }
