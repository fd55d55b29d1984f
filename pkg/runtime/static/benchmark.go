package static

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/muesli/termenv"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/siddheshmhatre/pytorch/pkg/core/tensors"
	"github.com/siddheshmhatre/pytorch/pkg/support/sets"
)

// Metrics is the per-instruction timing breakdown collected by
// Runtime.BenchmarkIndividualOps. All times are totals over the measured runs;
// use the Avg* helpers for per-run numbers.
type Metrics struct {
	// SetupTime covers input validation and copy-binding.
	SetupTime time.Duration
	// MemoryAllocTime covers arena allocation and tensor materialization.
	MemoryAllocTime time.Duration
	// MemoryDeallocTime covers cleanup at the end of each run.
	MemoryDeallocTime time.Duration
	// TotalTime is wall time over the measured runs, end to end.
	TotalTime time.Duration

	// WarmupRuns and MainRuns are the run counts the metrics were taken with.
	WarmupRuns int
	MainRuns   int

	// TimePerInstruction holds total time per plan ordinal.
	TimePerInstruction []time.Duration
	// TimePerOpType and InstancesPerOpType aggregate by operation.
	TimePerOpType      map[string]time.Duration
	InstancesPerOpType map[string]int
	// PercentPerOpType is each operation's share of total instruction time.
	PercentPerOpType map[string]float64
	// OutNodes names the operations that produce graph outputs.
	OutNodes sets.Set[string]

	// NumInstructions and ArenaBytes describe the plan being measured.
	NumInstructions int
	ArenaBytes      int
}

func newMetrics(rt *Runtime) *Metrics {
	m := &Metrics{
		TimePerInstruction: make([]time.Duration, len(rt.module.instructions)),
		TimePerOpType:      make(map[string]time.Duration),
		InstancesPerOpType: make(map[string]int),
		PercentPerOpType:   make(map[string]float64),
		NumInstructions:    len(rt.module.instructions),
		ArenaBytes:         rt.planner.ArenaBytes(),
	}
	for ii := range rt.module.instructions {
		m.InstancesPerOpType[rt.module.instructions[ii].opType.String()]++
	}
	m.OutNodes = sets.Make[string](len(rt.module.outputRefs))
	for _, ref := range rt.module.outputRefs {
		if ref.Kind >= 0 {
			m.OutNodes.Insert(rt.module.instructions[ref.Kind].opType.String())
		}
	}
	return m
}

func (m *Metrics) recordInstruction(inst *Instruction, d time.Duration) {
	m.TimePerInstruction[inst.ordinal] += d
	m.TimePerOpType[inst.opType.String()] += d
}

func (m *Metrics) finalize() {
	var total time.Duration
	for _, d := range m.TimePerOpType {
		total += d
	}
	for op, d := range m.TimePerOpType {
		if total > 0 {
			m.PercentPerOpType[op] = 100 * float64(d) / float64(total)
		}
	}
}

// AvgRunTime returns the mean wall time of one execution.
func (m *Metrics) AvgRunTime() time.Duration {
	if m.MainRuns == 0 {
		return 0
	}
	return m.TotalTime / time.Duration(m.MainRuns)
}

// BenchmarkIndividualOps measures per-instruction time over mainRuns executions,
// after warmupRuns unmeasured executions that also populate pools and the arena.
func (rt *Runtime) BenchmarkIndividualOps(args []*tensors.Tensor, kwargs map[string]*tensors.Tensor,
	warmupRuns, mainRuns int) (*Metrics, error) {
	if mainRuns <= 0 {
		return nil, errors.Errorf("BenchmarkIndividualOps: mainRuns must be positive, got %d", mainRuns)
	}
	for ii := 0; ii < warmupRuns; ii++ {
		if _, err := rt.RunNamed(args, kwargs); err != nil {
			return nil, errors.WithMessagef(err, "warmup run %d", ii)
		}
	}
	metrics := newMetrics(rt)
	metrics.WarmupRuns = warmupRuns
	metrics.MainRuns = mainRuns
	start := time.Now()
	for ii := 0; ii < mainRuns; ii++ {
		if _, err := rt.runNamed(args, kwargs, metrics); err != nil {
			return nil, errors.WithMessagef(err, "measured run %d", ii)
		}
	}
	metrics.TotalTime = time.Since(start)
	metrics.finalize()
	return metrics, nil
}

// Benchmark runs BenchmarkIndividualOps and pretty-prints the results to stdout,
// with a progress bar while measuring.
func (rt *Runtime) Benchmark(args []*tensors.Tensor, kwargs map[string]*tensors.Tensor,
	warmupRuns, mainRuns int) (*Metrics, error) {
	if mainRuns <= 0 {
		return nil, errors.Errorf("Benchmark: mainRuns must be positive, got %d", mainRuns)
	}
	for ii := 0; ii < warmupRuns; ii++ {
		if _, err := rt.RunNamed(args, kwargs); err != nil {
			return nil, errors.WithMessagef(err, "warmup run %d", ii)
		}
	}

	bar := progressbar.NewOptions(mainRuns,
		progressbar.OptionSetDescription("benchmarking"),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionClearOnFinish(),
	)
	metrics := newMetrics(rt)
	metrics.WarmupRuns = warmupRuns
	metrics.MainRuns = mainRuns
	start := time.Now()
	for ii := 0; ii < mainRuns; ii++ {
		if _, err := rt.runNamed(args, kwargs, metrics); err != nil {
			return nil, errors.WithMessagef(err, "measured run %d", ii)
		}
		_ = bar.Add(1)
	}
	metrics.TotalTime = time.Since(start)
	metrics.finalize()
	fmt.Println(metrics.String())
	return metrics, nil
}

// String renders the metrics as a table, one row per operation type, sorted by
// total time. Styling follows the terminal's color capabilities.
func (m *Metrics) String() string {
	type row struct {
		op        string
		total     time.Duration
		instances int
		percent   float64
	}
	rows := make([]row, 0, len(m.TimePerOpType))
	for op, d := range m.TimePerOpType {
		rows = append(rows, row{op, d, m.InstancesPerOpType[op], m.PercentPerOpType[op]})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].total > rows[j].total })

	plain := termenv.NewOutput(os.Stdout).Profile == termenv.Ascii
	headerStyle := lipgloss.NewStyle().Bold(true)
	if plain {
		headerStyle = lipgloss.NewStyle()
	}
	t := lgtable.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row < 0 {
				return headerStyle
			}
			return lipgloss.NewStyle().PaddingLeft(1).PaddingRight(1)
		}).
		Headers("Op", "Instances", "Total", "Per Run", "%")
	perRun := func(d time.Duration) time.Duration {
		if m.MainRuns == 0 {
			return 0
		}
		return d / time.Duration(m.MainRuns)
	}
	for _, r := range rows {
		t.Row(r.op, fmt.Sprintf("%d", r.instances), r.total.String(),
			perRun(r.total).String(), fmt.Sprintf("%.1f%%", r.percent))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d instruction(s), %d run(s) (%d warmup), avg %s/run, arena %s\n",
		m.NumInstructions, m.MainRuns, m.WarmupRuns, m.AvgRunTime(),
		humanize.Bytes(uint64(m.ArenaBytes)))
	fmt.Fprintf(&sb, "setup %s, alloc %s, dealloc %s (totals)\n",
		m.SetupTime, m.MemoryAllocTime, m.MemoryDeallocTime)
	sb.WriteString(t.Render())
	return sb.String()
}
