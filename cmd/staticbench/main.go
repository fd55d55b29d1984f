// Command staticbench compiles a sample feed-forward graph, prints its execution
// plan and benchmarks it, reporting per-operation timing and planner statistics.
//
// Example:
//
//	staticbench -batch 32 -features 256 -hidden 512 -runs 1000
package main

import (
	"flag"
	"fmt"
	"math/rand/v2"
	"os"

	"github.com/gomlx/gopjrt/dtypes"
	"k8s.io/klog/v2"

	"github.com/siddheshmhatre/pytorch/pkg/core/graph"
	"github.com/siddheshmhatre/pytorch/pkg/core/shapes"
	"github.com/siddheshmhatre/pytorch/pkg/core/tensors"
	"github.com/siddheshmhatre/pytorch/pkg/runtime/static"
)

var (
	flagBatch    = flag.Int("batch", 32, "Batch size of the sample graph input.")
	flagFeatures = flag.Int("features", 256, "Number of input features.")
	flagHidden   = flag.Int("hidden", 512, "Size of the hidden layer.")
	flagWarmup   = flag.Int("warmup", 10, "Warm-up executions before measuring.")
	flagRuns     = flag.Int("runs", 1000, "Measured executions.")
	flagPlan     = flag.Bool("plan", false, "Print the compiled plan before benchmarking.")
	flagNodes    = flag.Bool("nodes", false, "Run once and dump every instruction with its input and output values.")
	flagNoMemory = flag.Bool("no_memory_planning", false,
		"Disable the memory planner: every temporary comes from the buffer pool instead of the arena.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if flag.NArg() > 0 {
		klog.Errorf("Unexpected arguments %v. See 'staticbench -help'.", flag.Args())
		os.Exit(1)
	}

	g := buildSampleGraph(*flagBatch, *flagFeatures, *flagHidden)
	opts := static.DefaultOptions()
	if *flagNoMemory {
		opts = static.Options{CleanupActivations: true}
	}
	m, err := static.Compile(g, opts)
	if err != nil {
		klog.Errorf("Compilation failed: %+v", err)
		os.Exit(1)
	}
	if *flagPlan {
		m.DisplayPlan(os.Stdout)
		fmt.Println()
	}

	rt := m.NewRuntime()
	x := randomInput(*flagBatch, *flagFeatures)
	if *flagNodes {
		if err := rt.DisplayNodes(os.Stdout, []*tensors.Tensor{x}, nil); err != nil {
			klog.Errorf("Node dump failed: %+v", err)
			os.Exit(1)
		}
		fmt.Println()
	}
	if _, err := rt.Benchmark([]*tensors.Tensor{x}, nil, *flagWarmup, *flagRuns); err != nil {
		klog.Errorf("Benchmark failed: %+v", err)
		os.Exit(1)
	}
	fmt.Println(rt.PlannerStats())
}

// buildSampleGraph returns a frozen two-layer network: sigmoid(relu(x.w0+b0).w1+b1).
// Biases are scalars, which the element-wise ops broadcast.
func buildSampleGraph(batch, features, hidden int) *graph.Graph {
	g := graph.New("staticbench")
	x := g.Parameter("x", shapes.Make(dtypes.Float32, batch, features))
	w0 := g.Constant(randomTensor(features, hidden))
	b0 := g.Constant(tensors.FromScalar(float32(0.1)))
	w1 := g.Constant(randomTensor(hidden, 1))
	b1 := g.Constant(tensors.FromScalar(float32(-0.1)))

	layer0 := g.ReluInPlace(g.Add(g.MatMul(x, w0), b0))
	g.Return(g.Sigmoid(g.Add(g.MatMul(layer0, w1), b1)))
	return g
}

func randomTensor(dimensions ...int) *tensors.Tensor {
	t := tensors.FromShape(shapes.Make(dtypes.Float32, dimensions...))
	flat := tensors.MutableFlatData[float32](t)
	for ii := range flat {
		flat[ii] = rand.Float32()*2 - 1
	}
	return t
}

func randomInput(batch, features int) *tensors.Tensor {
	return randomTensor(batch, features)
}
