package tensors

import (
	"unsafe"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/x448/float16"

	"github.com/siddheshmhatre/pytorch/pkg/core/shapes"
)

// This file implements tensors whose storage is carved out of a larger arena allocated in one go,
// the representation used by the memory planner for temporary values of a compiled plan.

// View returns a tensor that shares t's storage but has the given shape.
// The shape must have the same dtype and total size as t's.
//
// The returned tensor storage is borrowed: it is never pooled, and becomes invalid
// when the base tensor storage is released.
func View(t *Tensor, shape shapes.Shape) *Tensor {
	if !t.Ok() {
		exceptions.Panicf("tensors.View: base tensor is empty or invalid")
	}
	if shape.DType != t.shape.DType || shape.Size() != t.shape.Size() {
		exceptions.Panicf("tensors.View: shape %s incompatible with base shape %s", shape, t.shape)
	}
	return &Tensor{
		shape:    shape.Clone(),
		valid:    true,
		flat:     t.flat,
		borrowed: true,
	}
}

// FromArena returns a tensor of the given shape whose storage is the byte range
// [offset, offset+shape.Memory()) of arena. The tensor is borrowed: never pooled,
// valid only while the arena is.
func FromArena(arena []byte, offset int, shape shapes.Shape) *Tensor {
	numBytes := int(shape.Memory())
	if offset < 0 || offset+numBytes > len(arena) {
		exceptions.Panicf("tensors.FromArena: range [%d, %d) out of the %d-byte arena",
			offset, offset+numBytes, len(arena))
	}
	return &Tensor{
		shape:    shape.Clone(),
		valid:    true,
		flat:     flatFromBytes(arena[offset:offset+numBytes], shape.DType, shape.Size()),
		borrowed: true,
	}
}

// flatFromBytes reinterprets data as a []T of the given dtype with size elements.
func flatFromBytes(data []byte, dtype dtypes.DType, size int) any {
	ptr := unsafe.Pointer(&data[0])
	switch dtype {
	case dtypes.Bool:
		return unsafe.Slice((*bool)(ptr), size)
	case dtypes.Int8:
		return unsafe.Slice((*int8)(ptr), size)
	case dtypes.Int16:
		return unsafe.Slice((*int16)(ptr), size)
	case dtypes.Int32:
		return unsafe.Slice((*int32)(ptr), size)
	case dtypes.Int64:
		return unsafe.Slice((*int64)(ptr), size)
	case dtypes.Uint8:
		return unsafe.Slice((*uint8)(ptr), size)
	case dtypes.Uint16:
		return unsafe.Slice((*uint16)(ptr), size)
	case dtypes.Uint32:
		return unsafe.Slice((*uint32)(ptr), size)
	case dtypes.Uint64:
		return unsafe.Slice((*uint64)(ptr), size)
	case dtypes.Float16:
		return unsafe.Slice((*float16.Float16)(ptr), size)
	case dtypes.BFloat16:
		return unsafe.Slice((*bfloat16.BFloat16)(ptr), size)
	case dtypes.Float32:
		return unsafe.Slice((*float32)(ptr), size)
	case dtypes.Float64:
		return unsafe.Slice((*float64)(ptr), size)
	default:
		exceptions.Panicf("tensors.FromArena: unsupported dtype %s", dtype)
	}
	return nil
}
