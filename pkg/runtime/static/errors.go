package static

import (
	"fmt"
	"strings"

	"github.com/siddheshmhatre/pytorch/pkg/core/graph"
)

// GraphUnsupportedError reports that a graph cannot be compiled, typically because
// one of its operations has no registered kernel. Compilation is all-or-nothing:
// there is no partial fallback for individual nodes.
type GraphUnsupportedError struct {
	// Graph is the name of the offending graph.
	Graph string
	// Node is the node that could not be compiled, if the failure is node-specific.
	Node *graph.Node
	// Reason is a short human-readable explanation.
	Reason string
}

func (e *GraphUnsupportedError) Error() string {
	if e.Node != nil {
		return fmt.Sprintf("graph %q cannot be compiled: node #%d (%s): %s",
			e.Graph, e.Node.ID(), e.Node.OpType(), e.Reason)
	}
	return fmt.Sprintf("graph %q cannot be compiled: %s", e.Graph, e.Reason)
}

// KernelExecutionError wraps a kernel failure with the position of the failing
// instruction, so callers can tell which operation in the plan went wrong.
type KernelExecutionError struct {
	// Ordinal is the position of the failing instruction in the execution plan.
	Ordinal int
	// OpType is the operation that failed.
	OpType graph.OpType
	// NodeName is the node's debug name, if any.
	NodeName string
	// Err is the underlying kernel error.
	Err error
}

func (e *KernelExecutionError) Error() string {
	if e.NodeName != "" {
		return fmt.Sprintf("instruction #%d (%s, %q) failed: %v", e.Ordinal, e.OpType, e.NodeName, e.Err)
	}
	return fmt.Sprintf("instruction #%d (%s) failed: %v", e.Ordinal, e.OpType, e.Err)
}

func (e *KernelExecutionError) Unwrap() error { return e.Err }

// LeakReport is the result of Runtime.CheckForMemoryLeak: the set of internal
// values whose storage survived cleanup when it should not have.
type LeakReport struct {
	// LeakedNodes lists the graph nodes whose values still held storage.
	LeakedNodes []*graph.Node
}

// Ok reports whether no leak was found.
func (r *LeakReport) Ok() bool { return len(r.LeakedNodes) == 0 }

func (r *LeakReport) String() string {
	if r.Ok() {
		return "no leaked values"
	}
	parts := make([]string, 0, len(r.LeakedNodes))
	for _, n := range r.LeakedNodes {
		parts = append(parts, fmt.Sprintf("#%d (%s)", n.ID(), n.OpType()))
	}
	return fmt.Sprintf("%d leaked value(s): %s", len(r.LeakedNodes), strings.Join(parts, ", "))
}
