// Package kernels implements the operation kernels executed by the static runtime.
//
// A Kernel is an out-variant callable: it reads its input tensors and writes the result into a
// pre-shaped output tensor provided by the engine. Where that output storage comes from (the
// memory planner arena, the tensor buffer pool, or a fresh allocation) is entirely the engine's
// decision: kernels never allocate their own outputs and never assume anything about storage
// sharing between inputs and output beyond element-wise safety.
//
// Kernels are registered per operation type in init() functions, one file per op family. The plan
// compiler resolves each instruction to its kernel once, at compile time; a missing kernel makes
// the graph unsupported.
package kernels

import (
	"github.com/gomlx/exceptions"

	"github.com/siddheshmhatre/pytorch/pkg/core/graph"
	"github.com/siddheshmhatre/pytorch/pkg/core/tensors"
)

// Kernel executes one operation: it reads inputs and writes the result into out.
// out arrives valid and already shaped with the node's output shape.
//
// An in-place annotated op may find out sharing storage with inputs[0]; every kernel must be
// correct in that case (element-wise reads before writes).
type Kernel func(node *graph.Node, inputs []*tensors.Tensor, out *tensors.Tensor) error

// kernels is populated during initialization (init functions) for the ops implemented.
// Entries left nil make the op unsupported.
var kernels [graph.OpTypeLast]Kernel

// Register the kernel for the given op type. Registering twice is a bug.
func Register(opType graph.OpType, kernel Kernel) {
	if kernels[opType] != nil {
		exceptions.Panicf("kernels.Register: kernel for %s registered twice", opType)
	}
	kernels[opType] = kernel
}

// Lookup returns the kernel registered for the given op type.
func Lookup(opType graph.OpType) (Kernel, bool) {
	if opType < 0 || opType >= graph.OpTypeLast || kernels[opType] == nil {
		return nil, false
	}
	return kernels[opType], true
}
