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

func init() {
	Register(graph.OpMatMul, execMatMul)
}

// execMatMul multiplies two rank-2 operands: (m, k) x (k, n) -> (m, n).
// A simple i/k/j loop ordering: the inner-most loop walks both rhs and out contiguously.
func execMatMul(node *graph.Node, inputs []*tensors.Tensor, out *tensors.Tensor) error {
	lhs, rhs := inputs[0], inputs[1]
	m := lhs.Shape().Dim(0)
	k := lhs.Shape().Dim(1)
	n := rhs.Shape().Dim(1)
	switch out.DType() {
	case dtypes.Float32:
		matMulGeneric(tensors.ConstFlatData[float32](lhs), tensors.ConstFlatData[float32](rhs),
			tensors.MutableFlatData[float32](out), m, k, n)
	case dtypes.Float64:
		matMulGeneric(tensors.ConstFlatData[float64](lhs), tensors.ConstFlatData[float64](rhs),
			tensors.MutableFlatData[float64](out), m, k, n)
	case dtypes.Int32:
		matMulGeneric(tensors.ConstFlatData[int32](lhs), tensors.ConstFlatData[int32](rhs),
			tensors.MutableFlatData[int32](out), m, k, n)
	case dtypes.Int64:
		matMulGeneric(tensors.ConstFlatData[int64](lhs), tensors.ConstFlatData[int64](rhs),
			tensors.MutableFlatData[int64](out), m, k, n)
	case dtypes.Float16:
		matMulF16(tensors.ConstFlatData[float16.Float16](lhs), tensors.ConstFlatData[float16.Float16](rhs),
			tensors.MutableFlatData[float16.Float16](out), m, k, n)
	case dtypes.BFloat16:
		matMulBF16(tensors.ConstFlatData[bfloat16.BFloat16](lhs), tensors.ConstFlatData[bfloat16.BFloat16](rhs),
			tensors.MutableFlatData[bfloat16.BFloat16](out), m, k, n)
	default:
		return errors.Errorf("unsupported dtype %s for %s", out.DType(), node.OpType())
	}
	return nil
}

func matMulGeneric[T constraints.Integer | constraints.Float](lhs, rhs, out []T, m, k, n int) {
	for ii := range out {
		out[ii] = 0
	}
	for i := 0; i < m; i++ {
		for kk := 0; kk < k; kk++ {
			lhsValue := lhs[i*k+kk]
			rhsRow := rhs[kk*n : (kk+1)*n]
			outRow := out[i*n : (i+1)*n]
			for j, rhsValue := range rhsRow {
				outRow[j] += lhsValue * rhsValue
			}
		}
	}
}

// matMulF16 accumulates in float32, matching the usual half-precision GEMM contract.
func matMulF16(lhs, rhs, out []float16.Float16, m, k, n int) {
	acc := make([]float32, n)
	for i := 0; i < m; i++ {
		for j := range acc {
			acc[j] = 0
		}
		for kk := 0; kk < k; kk++ {
			lhsValue := lhs[i*k+kk].Float32()
			rhsRow := rhs[kk*n : (kk+1)*n]
			for j, rhsValue := range rhsRow {
				acc[j] += lhsValue * rhsValue.Float32()
			}
		}
		outRow := out[i*n : (i+1)*n]
		for j, value := range acc {
			outRow[j] = float16.Fromfloat32(value)
		}
	}
}

func matMulBF16(lhs, rhs, out []bfloat16.BFloat16, m, k, n int) {
	acc := make([]float32, n)
	for i := 0; i < m; i++ {
		for j := range acc {
			acc[j] = 0
		}
		for kk := 0; kk < k; kk++ {
			lhsValue := lhs[i*k+kk].Float32()
			rhsRow := rhs[kk*n : (kk+1)*n]
			for j, rhsValue := range rhsRow {
				acc[j] += lhsValue * rhsValue.Float32()
			}
		}
		outRow := out[i*n : (i+1)*n]
		for j, value := range acc {
			outRow[j] = bfloat16.FromFloat32(value)
		}
	}
}
