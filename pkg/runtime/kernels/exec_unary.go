package kernels

import (
	"math"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/pkg/errors"
	"github.com/x448/float16"

	"github.com/siddheshmhatre/pytorch/pkg/core/graph"
	"github.com/siddheshmhatre/pytorch/pkg/core/tensors"
)

// This file implements the unary element-wise operations.

func init() {
	Register(graph.OpNeg, makeNumericUnaryKernel(
		func(x float32) float32 { return -x },
		func(x float64) float64 { return -x },
		func(x int32) int32 { return -x },
		func(x int64) int64 { return -x }))
	Register(graph.OpAbs, makeNumericUnaryKernel(
		absFloat[float32], absFloat[float64], absInt[int32], absInt[int64]))
	reluKernel := makeNumericUnaryKernel(
		reluGeneric[float32], reluGeneric[float64], reluGeneric[int32], reluGeneric[int64])
	Register(graph.OpRelu, reluKernel)
	// The in-place variant computes the same function; only its storage annotation differs, and
	// that is handled by the memory planner, never by the kernel.
	Register(graph.OpReluInPlace, reluKernel)
	Register(graph.OpExp, makeFloatUnaryKernel(
		func(x float32) float32 { return float32(math.Exp(float64(x))) },
		math.Exp))
	Register(graph.OpSigmoid, makeFloatUnaryKernel(
		func(x float32) float32 { return float32(1 / (1 + math.Exp(-float64(x)))) },
		func(x float64) float64 { return 1 / (1 + math.Exp(-x)) }))
	Register(graph.OpTanh, makeFloatUnaryKernel(
		func(x float32) float32 { return float32(math.Tanh(float64(x))) },
		math.Tanh))
}

func execUnaryGeneric[T any](input, out []T, fn func(x T) T) {
	for ii, x := range input {
		out[ii] = fn(x)
	}
}

func absFloat[T float32 | float64](x T) T {
	return T(math.Abs(float64(x)))
}

func absInt[T int32 | int64](x T) T {
	if x < 0 {
		return -x
	}
	return x
}

func reluGeneric[T float32 | float64 | int32 | int64](x T) T {
	if x < 0 {
		return 0
	}
	return x
}

// makeNumericUnaryKernel builds a Kernel for ops defined on both integer and floating dtypes.
// Float16 and BFloat16 dispatch through the float32 implementation.
func makeNumericUnaryKernel(
	fnF32 func(x float32) float32,
	fnF64 func(x float64) float64,
	fnI32 func(x int32) int32,
	fnI64 func(x int64) int64) Kernel {
	return func(node *graph.Node, inputs []*tensors.Tensor, out *tensors.Tensor) error {
		input := inputs[0]
		switch out.DType() {
		case dtypes.Float32:
			execUnaryGeneric(tensors.ConstFlatData[float32](input), tensors.MutableFlatData[float32](out), fnF32)
		case dtypes.Float64:
			execUnaryGeneric(tensors.ConstFlatData[float64](input), tensors.MutableFlatData[float64](out), fnF64)
		case dtypes.Int32:
			execUnaryGeneric(tensors.ConstFlatData[int32](input), tensors.MutableFlatData[int32](out), fnI32)
		case dtypes.Int64:
			execUnaryGeneric(tensors.ConstFlatData[int64](input), tensors.MutableFlatData[int64](out), fnI64)
		case dtypes.Float16:
			execUnaryGeneric(tensors.ConstFlatData[float16.Float16](input),
				tensors.MutableFlatData[float16.Float16](out),
				func(x float16.Float16) float16.Float16 { return float16.Fromfloat32(fnF32(x.Float32())) })
		case dtypes.BFloat16:
			execUnaryGeneric(tensors.ConstFlatData[bfloat16.BFloat16](input),
				tensors.MutableFlatData[bfloat16.BFloat16](out),
				func(x bfloat16.BFloat16) bfloat16.BFloat16 { return bfloat16.FromFloat32(fnF32(x.Float32())) })
		default:
			return errors.Errorf("unsupported dtype %s for %s", out.DType(), node.OpType())
		}
		return nil
	}
}

// makeFloatUnaryKernel builds a Kernel for ops only defined on floating dtypes.
func makeFloatUnaryKernel(fnF32 func(x float32) float32, fnF64 func(x float64) float64) Kernel {
	return func(node *graph.Node, inputs []*tensors.Tensor, out *tensors.Tensor) error {
		input := inputs[0]
		switch out.DType() {
		case dtypes.Float32:
			execUnaryGeneric(tensors.ConstFlatData[float32](input), tensors.MutableFlatData[float32](out), fnF32)
		case dtypes.Float64:
			execUnaryGeneric(tensors.ConstFlatData[float64](input), tensors.MutableFlatData[float64](out), fnF64)
		case dtypes.Float16:
			execUnaryGeneric(tensors.ConstFlatData[float16.Float16](input),
				tensors.MutableFlatData[float16.Float16](out),
				func(x float16.Float16) float16.Float16 { return float16.Fromfloat32(fnF32(x.Float32())) })
		case dtypes.BFloat16:
			execUnaryGeneric(tensors.ConstFlatData[bfloat16.BFloat16](input),
				tensors.MutableFlatData[bfloat16.BFloat16](out),
				func(x bfloat16.BFloat16) bfloat16.BFloat16 { return bfloat16.FromFloat32(fnF32(x.Float32())) })
		default:
			return errors.Errorf("unsupported dtype %s for %s", out.DType(), node.OpType())
		}
		return nil
	}
}
