package tensors

import (
	"reflect"
	"sync"

	"github.com/gomlx/gopjrt/dtypes"

	"github.com/siddheshmhatre/pytorch/pkg/core/shapes"
	"github.com/siddheshmhatre/pytorch/pkg/support/xsync"
)

// This file implements pooling of tensor buffers, so repeated executions of the same plan that
// cannot use planner-arena storage still amortize allocations.

type bufferPoolKey struct {
	dtype  dtypes.DType
	length int
}

// bufferPools maps (dtype, length) to a sync.Pool of *Tensor with owned storage of that size.
var bufferPools xsync.SyncMap[bufferPoolKey, *sync.Pool]

func getBufferPool(dtype dtypes.DType, length int) *sync.Pool {
	key := bufferPoolKey{dtype: dtype, length: length}
	pool, ok := bufferPools.Load(key)
	if !ok {
		pool, _ = bufferPools.LoadOrStore(key, &sync.Pool{
			New: func() any {
				return &Tensor{
					flat:  reflect.MakeSlice(reflect.SliceOf(dtype.GoType()), length, length).Interface(),
					shape: shapes.Make(dtype, length),
				}
			},
		})
	}
	return pool
}

// GetBuffer returns a pooled tensor with the given shape. Contents are unspecified: the caller is
// expected to overwrite every element.
//
// Call PutBuffer when done with it, after which any references to it should be dropped.
func GetBuffer(shape shapes.Shape) *Tensor {
	pool := getBufferPool(shape.DType, shape.Size())
	t := pool.Get().(*Tensor)
	t.shape = shape.Clone()
	t.valid = true
	t.borrowed = false
	return t
}

// PutBuffer returns a tensor taken with GetBuffer to the pool.
// Borrowed (view or arena) storage is not pooled; the tensor is simply reset.
func PutBuffer(t *Tensor) {
	if t == nil || !t.Ok() {
		return
	}
	if t.borrowed {
		t.Reset()
		return
	}
	t.valid = false
	pool := getBufferPool(t.shape.DType, t.shape.Size())
	pool.Put(t)
}

// CloneBuffer returns a pooled tensor with a copy of the contents of t.
func CloneBuffer(t *Tensor) *Tensor {
	clone := GetBuffer(t.Shape())
	_ = clone.CopyFrom(t)
	return clone
}
