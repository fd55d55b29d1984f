package kernels

import (
	"github.com/siddheshmhatre/pytorch/pkg/core/graph"
	"github.com/siddheshmhatre/pytorch/pkg/core/tensors"
)

func init() {
	Register(graph.OpClone, execClone)
}

// execClone copies the input into out.
func execClone(node *graph.Node, inputs []*tensors.Tensor, out *tensors.Tensor) error {
	return out.CopyFrom(inputs[0])
}
