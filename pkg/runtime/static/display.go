package static

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/siddheshmhatre/pytorch/pkg/core/tensors"
	"github.com/siddheshmhatre/pytorch/pkg/support/xslices"
)

var (
	displayOrdinalStyle = lipgloss.NewStyle().Faint(true)
	displayOpStyle      = lipgloss.NewStyle().Bold(true)
	displayNoteStyle    = lipgloss.NewStyle().Italic(true)
)

// DisplayPlan writes a human-readable listing of the compiled plan: constants,
// inputs, one line per instruction with its resolved references, and the memory
// layout. Meant for debugging, not parsing.
func (m *Module) DisplayPlan(w io.Writer) {
	fmt.Fprintf(w, "Module %q: %d input(s), %d constant(s), %d instruction(s), %d output(s)\n",
		m.graph.Name(), m.numInputs, len(m.constants), len(m.instructions), len(m.outputRefs))
	if m.firstInputIsSelf {
		fmt.Fprintf(w, "  input[0] is the module receiver\n")
	}
	for ii, c := range m.constants {
		fmt.Fprintf(w, "  const[%d]: %s\n", ii, c.Shape())
	}
	for _, p := range m.graph.Parameters() {
		fmt.Fprintf(w, "  input[%d]: %q %s\n", p.InputIndex(), p.Name(), p.Shape())
	}
	for ii := range m.instructions {
		inst := &m.instructions[ii]
		refs := xslices.Map(inst.inputs, formatRef)
		note := ""
		if inst.isView {
			note = displayNoteStyle.Render(" (view)")
		} else if _, planned := m.planSlot(inst.node.ID()); planned {
			note = displayNoteStyle.Render(" (arena)")
		}
		fmt.Fprintf(w, "  %s %s(%s) -> %s%s\n",
			displayOrdinalStyle.Render(fmt.Sprintf("#%03d", inst.ordinal)),
			displayOpStyle.Render(inst.opType.String()),
			strings.Join(refs, ", "), inst.node.Shape(), note)
	}
	outs := xslices.Map(m.outputRefs, formatRef)
	fmt.Fprintf(w, "  return %s\n", strings.Join(outs, ", "))
	if m.storagePlan != nil {
		fmt.Fprintf(w, "  arena: %s in %d slot(s)\n",
			humanize.Bytes(uint64(m.storagePlan.arenaBytes)), len(m.storagePlan.slots))
	}
}

// DisplayNodes runs the program once on the given arguments and writes, for
// each instruction, the op with its input and output values. The run goes
// through the normal binding, planning and cleanup path, so the dump reflects
// exactly what a regular call would compute. Outputs are discarded.
func (rt *Runtime) DisplayNodes(w io.Writer, args []*tensors.Tensor, kwargs map[string]*tensors.Tensor) error {
	if err := rt.bindInputs(args, kwargs); err != nil {
		rt.releaseInputSlots()
		return err
	}
	rt.planner.allocate(rt.valueSlots)
	err := rt.execute(nil, func(inst *Instruction, inputs []*tensors.Tensor, out *tensors.Tensor) {
		ins := xslices.Map(inputs, (*tensors.Tensor).String)
		note := ""
		if inst.isView {
			note = displayNoteStyle.Render(" (view)")
		}
		fmt.Fprintf(w, "%s %s%s\n  in:  %s\n  out: %s\n",
			displayOrdinalStyle.Render(fmt.Sprintf("#%03d", inst.ordinal)),
			displayOpStyle.Render(inst.opType.String()), note,
			strings.Join(ins, "; "), out.String())
	})
	rt.cleanup(nil, nil)
	return err
}

func (m *Module) planSlot(nodeID int) (int, bool) {
	if m.storagePlan == nil {
		return 0, false
	}
	si, ok := m.storagePlan.slotOf[nodeID]
	return si, ok
}

func formatRef(ref ValueRef) string {
	switch ref.Kind {
	case ConstantValue:
		return fmt.Sprintf("const[%d]", ref.Index)
	case InputValue:
		return fmt.Sprintf("input[%d]", ref.Index)
	default:
		return fmt.Sprintf("#%03d", ref.Kind)
	}
}
