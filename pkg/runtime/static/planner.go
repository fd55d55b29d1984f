package static

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/siddheshmhatre/pytorch/pkg/core/tensors"
	"github.com/siddheshmhatre/pytorch/pkg/support/sets"
)

// arenaAlignment is the byte alignment of every planned storage slot.
const arenaAlignment = 64

// storageSlot is one reusable region of the arena. Values listed in members all
// resolve to the same offset; their live ranges were proven compatible and their
// aliasing annotations permit the sharing.
type storageSlot struct {
	offsetBytes int
	sizeBytes   int
	members     []int // node IDs
	isOutput    bool  // planned graph output, never reclaimed mid-run
	lastRead    int   // used during layout only
	aliasRoot   int   // used during layout only
}

// storagePlan is the compile-time memory layout shared by all runtimes of a
// Module: which values live in the arena, where, and who shares with whom.
type storagePlan struct {
	slots      []storageSlot
	slotOf     map[int]int // node ID -> slot index
	arenaBytes int
}

func alignUp(n int) int {
	return (n + arenaAlignment - 1) &^ (arenaAlignment - 1)
}

// buildStoragePlan lays out arena storage for the Module's plannable values.
// Returns nil when out-variant execution is disabled: everything then comes from
// the shared buffer pool instead.
//
// Plannable values are non-view instruction outputs that do not escape the plan.
// With OptimizeGraphOutputMemory, non-view instruction outputs that are graph
// outputs are also planned, each in an exclusive slot. With OptimizeMemory,
// values whose aliasing annotations permit it share a slot when the earlier
// value's last read is no later than the later value's defining instruction.
func (m *Module) buildStoragePlan() *storagePlan {
	if !m.opts.EnableOutVariant {
		return nil
	}
	plan := &storagePlan{slotOf: make(map[int]int)}

	outputIDs := sets.Make[int]()
	for _, out := range m.graph.Outputs() {
		outputIDs.Insert(out.ID())
	}

	aliasRootOf := func(id int) int {
		root := id
		for _, other := range m.sameStorage[id] {
			if other < root {
				root = other
			}
		}
		return root
	}

	// Walk in program order so the greedy sharing below sees values in
	// ascending firstWrite order, which keeps the layout deterministic.
	for ii := range m.instructions {
		inst := &m.instructions[ii]
		if inst.isView {
			continue
		}
		id := inst.node.ID()
		isOutput := outputIDs.Has(id)
		if m.external.Has(id) && !(isOutput && m.opts.OptimizeGraphOutputMemory) {
			continue
		}
		size := int(inst.node.Shape().Memory())
		lr := m.live[id].lastRead
		root := aliasRootOf(id)

		if m.opts.OptimizeMemory && !isOutput && len(m.sameStorage[id]) > 0 {
			// Try to take over a slot of the same aliasing family whose
			// occupant dies at or before this value's defining instruction.
			shared := false
			for si := range plan.slots {
				slot := &plan.slots[si]
				if slot.isOutput || slot.aliasRoot != root {
					continue
				}
				if slot.lastRead > m.live[id].firstWrite {
					continue
				}
				if size > slot.sizeBytes {
					continue
				}
				slot.members = append(slot.members, id)
				slot.lastRead = lr
				plan.slotOf[id] = si
				shared = true
				break
			}
			if shared {
				continue
			}
		}

		plan.slotOf[id] = len(plan.slots)
		plan.slots = append(plan.slots, storageSlot{
			offsetBytes: plan.arenaBytes,
			sizeBytes:   size,
			members:     []int{id},
			isOutput:    isOutput,
			lastRead:    lr,
			aliasRoot:   root,
		})
		plan.arenaBytes += alignUp(size)
	}
	return plan
}

// memoryPlanner owns one runtime's arena and materializes the compile-time
// storage plan into live tensors before each run.
type memoryPlanner struct {
	module     *Module
	plan       *storagePlan
	arena      []byte
	generation int64
	allocated  bool
}

func newMemoryPlanner(m *Module) *memoryPlanner {
	return &memoryPlanner{module: m, plan: m.storagePlan}
}

// enabled reports whether any values are arena-planned at all.
func (p *memoryPlanner) enabled() bool {
	return p != nil && p.plan != nil && len(p.plan.slots) > 0
}

// allocate fills the runtime's value slots with arena-backed tensors for every
// planned value. The arena itself is allocated on first use and reused across
// runs; only the tensor views are recreated.
func (p *memoryPlanner) allocate(valueSlots []*tensors.Tensor) {
	if !p.enabled() || p.allocated {
		return
	}
	if p.arena == nil {
		p.arena = make([]byte, p.plan.arenaBytes)
	}
	for si := range p.plan.slots {
		slot := &p.plan.slots[si]
		for _, id := range slot.members {
			shape := p.module.graph.Nodes()[id].Shape()
			valueSlots[id] = tensors.FromArena(p.arena, slot.offsetBytes, shape)
		}
	}
	p.generation++
	p.allocated = true
}

// deallocateSkipping invalidates the arena tensors of non-output slots, so stale
// references fail loudly instead of silently reading reused bytes. Output slots
// survive the call: the caller owns them until the next allocate. IDs in skip
// are left untouched.
func (p *memoryPlanner) deallocateSkipping(valueSlots []*tensors.Tensor, skip sets.Set[int]) {
	if !p.enabled() || !p.allocated {
		return
	}
	for si := range p.plan.slots {
		slot := &p.plan.slots[si]
		if slot.isOutput {
			continue
		}
		for _, id := range slot.members {
			if skip.Has(id) {
				continue
			}
			if t := valueSlots[id]; t != nil {
				t.Reset()
			}
			valueSlots[id] = nil
		}
	}
	p.allocated = false
}

// slotIndex returns the arena slot a value resolves to, if it is planned.
func (p *memoryPlanner) slotIndex(nodeID int) (int, bool) {
	if p == nil || p.plan == nil {
		return 0, false
	}
	si, ok := p.plan.slotOf[nodeID]
	return si, ok
}

// Generation returns how many times the arena has been handed out. It increments
// once per allocate, which tests use to confirm the arena is reused, not regrown.
func (p *memoryPlanner) Generation() int64 { return p.generation }

// ArenaBytes returns the total planned arena size in bytes.
func (p *memoryPlanner) ArenaBytes() int {
	if p == nil || p.plan == nil {
		return 0
	}
	return p.plan.arenaBytes
}

// NumSlots returns the number of distinct storage regions in the arena.
func (p *memoryPlanner) NumSlots() int {
	if p == nil || p.plan == nil {
		return 0
	}
	return len(p.plan.slots)
}

// NumManagedValues returns how many values resolve into the arena.
func (p *memoryPlanner) NumManagedValues() int {
	if p == nil || p.plan == nil {
		return 0
	}
	return len(p.plan.slotOf)
}

func (p *memoryPlanner) String() string {
	if !p.enabled() {
		return "memory planner: disabled"
	}
	return fmt.Sprintf("memory planner: %s arena, %d slots for %d values, generation %d",
		humanize.Bytes(uint64(p.plan.arenaBytes)), p.NumSlots(), p.NumManagedValues(), p.generation)
}
