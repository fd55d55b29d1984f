package kernels

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/pkg/errors"
	"github.com/x448/float16"
	"golang.org/x/exp/constraints"

	"github.com/siddheshmhatre/pytorch/pkg/core/graph"
	"github.com/siddheshmhatre/pytorch/pkg/core/tensors"
)

// This file implements the binary element-wise operations. Operands either have equal shapes or
// one of them is a scalar, which is implicitly broadcast -- the graph builder already checked
// this, kernels only dispatch on it.

func init() {
	Register(graph.OpAdd, makeBinaryKernel(
		func(a, b float32) float32 { return a + b },
		func(a, b float64) float64 { return a + b },
		func(a, b int32) int32 { return a + b },
		func(a, b int64) int64 { return a + b }))
	Register(graph.OpSub, makeBinaryKernel(
		func(a, b float32) float32 { return a - b },
		func(a, b float64) float64 { return a - b },
		func(a, b int32) int32 { return a - b },
		func(a, b int64) int64 { return a - b }))
	Register(graph.OpMul, makeBinaryKernel(
		func(a, b float32) float32 { return a * b },
		func(a, b float64) float64 { return a * b },
		func(a, b int32) int32 { return a * b },
		func(a, b int64) int64 { return a * b }))
	Register(graph.OpMaximum, makeBinaryKernel(
		maxOf[float32], maxOf[float64], maxOf[int32], maxOf[int64]))
	Register(graph.OpDiv, execDiv)
}

// execBinaryGeneric applies fn element-wise. One of lhs/rhs may have length 1 (a scalar being
// broadcast); out always has the full length.
func execBinaryGeneric[T any](lhs, rhs, out []T, fn func(a, b T) T) {
	switch {
	case len(lhs) == len(rhs):
		for ii := range out {
			out[ii] = fn(lhs[ii], rhs[ii])
		}
	case len(lhs) == 1:
		lhsValue := lhs[0]
		for ii := range out {
			out[ii] = fn(lhsValue, rhs[ii])
		}
	case len(rhs) == 1:
		rhsValue := rhs[0]
		for ii := range out {
			out[ii] = fn(lhs[ii], rhsValue)
		}
	}
}

// execBinaryF16 is execBinaryGeneric for float16, computing in float32.
func execBinaryF16(lhs, rhs, out []float16.Float16, fn func(a, b float32) float32) {
	fn16 := func(a, b float16.Float16) float16.Float16 {
		return float16.Fromfloat32(fn(a.Float32(), b.Float32()))
	}
	execBinaryGeneric(lhs, rhs, out, fn16)
}

// execBinaryBF16 is execBinaryGeneric for bfloat16, computing in float32.
func execBinaryBF16(lhs, rhs, out []bfloat16.BFloat16, fn func(a, b float32) float32) {
	fn16 := func(a, b bfloat16.BFloat16) bfloat16.BFloat16 {
		return bfloat16.FromFloat32(fn(a.Float32(), b.Float32()))
	}
	execBinaryGeneric(lhs, rhs, out, fn16)
}

// makeBinaryKernel builds a Kernel dispatching on the operands' dtype to the given typed
// implementations. Float16 and BFloat16 are computed via the float32 implementation.
func makeBinaryKernel(
	fnF32 func(a, b float32) float32,
	fnF64 func(a, b float64) float64,
	fnI32 func(a, b int32) int32,
	fnI64 func(a, b int64) int64) Kernel {
	return func(node *graph.Node, inputs []*tensors.Tensor, out *tensors.Tensor) error {
		lhs, rhs := inputs[0], inputs[1]
		switch out.DType() {
		case dtypes.Float32:
			execBinaryGeneric(tensors.ConstFlatData[float32](lhs), tensors.ConstFlatData[float32](rhs),
				tensors.MutableFlatData[float32](out), fnF32)
		case dtypes.Float64:
			execBinaryGeneric(tensors.ConstFlatData[float64](lhs), tensors.ConstFlatData[float64](rhs),
				tensors.MutableFlatData[float64](out), fnF64)
		case dtypes.Int32:
			execBinaryGeneric(tensors.ConstFlatData[int32](lhs), tensors.ConstFlatData[int32](rhs),
				tensors.MutableFlatData[int32](out), fnI32)
		case dtypes.Int64:
			execBinaryGeneric(tensors.ConstFlatData[int64](lhs), tensors.ConstFlatData[int64](rhs),
				tensors.MutableFlatData[int64](out), fnI64)
		case dtypes.Float16:
			execBinaryF16(tensors.ConstFlatData[float16.Float16](lhs), tensors.ConstFlatData[float16.Float16](rhs),
				tensors.MutableFlatData[float16.Float16](out), fnF32)
		case dtypes.BFloat16:
			execBinaryBF16(tensors.ConstFlatData[bfloat16.BFloat16](lhs), tensors.ConstFlatData[bfloat16.BFloat16](rhs),
				tensors.MutableFlatData[bfloat16.BFloat16](out), fnF32)
		default:
			return errors.Errorf("unsupported dtype %s for %s", out.DType(), node.OpType())
		}
		return nil
	}
}

// execDiv needs its own kernel: integer division by zero must surface as an execution error
// instead of a runtime panic.
func execDiv(node *graph.Node, inputs []*tensors.Tensor, out *tensors.Tensor) error {
	lhs, rhs := inputs[0], inputs[1]
	switch out.DType() {
	case dtypes.Float32:
		execBinaryGeneric(tensors.ConstFlatData[float32](lhs), tensors.ConstFlatData[float32](rhs),
			tensors.MutableFlatData[float32](out), func(a, b float32) float32 { return a / b })
	case dtypes.Float64:
		execBinaryGeneric(tensors.ConstFlatData[float64](lhs), tensors.ConstFlatData[float64](rhs),
			tensors.MutableFlatData[float64](out), func(a, b float64) float64 { return a / b })
	case dtypes.Int32:
		if err := checkNoZeros(tensors.ConstFlatData[int32](rhs)); err != nil {
			return err
		}
		execBinaryGeneric(tensors.ConstFlatData[int32](lhs), tensors.ConstFlatData[int32](rhs),
			tensors.MutableFlatData[int32](out), func(a, b int32) int32 { return a / b })
	case dtypes.Int64:
		if err := checkNoZeros(tensors.ConstFlatData[int64](rhs)); err != nil {
			return err
		}
		execBinaryGeneric(tensors.ConstFlatData[int64](lhs), tensors.ConstFlatData[int64](rhs),
			tensors.MutableFlatData[int64](out), func(a, b int64) int64 { return a / b })
	case dtypes.Float16:
		execBinaryF16(tensors.ConstFlatData[float16.Float16](lhs), tensors.ConstFlatData[float16.Float16](rhs),
			tensors.MutableFlatData[float16.Float16](out), func(a, b float32) float32 { return a / b })
	case dtypes.BFloat16:
		execBinaryBF16(tensors.ConstFlatData[bfloat16.BFloat16](lhs), tensors.ConstFlatData[bfloat16.BFloat16](rhs),
			tensors.MutableFlatData[bfloat16.BFloat16](out), func(a, b float32) float32 { return a / b })
	default:
		return errors.Errorf("unsupported dtype %s for %s", out.DType(), node.OpType())
	}
	return nil
}

// maxOf returns the larger of a and b. The builtin max cannot be passed as a function value.
func maxOf[T constraints.Ordered](a, b T) T {
	if a > b {
		return a
	}
	return b
}

// checkNoZeros returns an error if any divisor is zero.
func checkNoZeros[T constraints.Integer](divisors []T) error {
	for ii, divisor := range divisors {
		if divisor == 0 {
			return errors.Errorf("integer division by zero (divisor flat index %d)", ii)
		}
	}
	return nil
}
