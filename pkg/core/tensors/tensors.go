// Package tensors implements a Tensor, a representation of a multidimensional array.
//
// Tensors are defined by their shape (a data type and its axes' dimensions) and their actual
// content, always stored as a flat (1D) slice of the corresponding Go type.
//
// There are various ways to construct a Tensor from local data:
//
//   - FromShape(shape shapes.Shape): creates a tensor with the given shape, and zero values.
//   - FromScalarAndDimensions[T](value T, dimensions ...int): creates a tensor with the
//     given dimensions, filled with the scalar value given.
//   - FromFlatAndDimensions[T](data []T, dimensions ...int): creates a tensor with the
//     given dimensions and copies the flattened values from data.
//
// A tensor's storage may be exclusively owned, taken from the package buffer pool (see GetBuffer
// and PutBuffer), or borrowed: a view into another tensor or into a larger arena allocated in one
// go (see View and FromArena). Borrowed storage is never returned to the pool.
package tensors

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"

	"github.com/siddheshmhatre/pytorch/pkg/core/shapes"
)

// Tensor holds a shape and a reference to its flat data.
//
// The flat data may be shared -- for temporary values of compiled plans it is taken from larger
// blobs of bytes allocated in one go -- or owned by the tensor.
type Tensor struct {
	shape shapes.Shape
	valid bool

	// flat is always a slice of the underlying data type (shape.DType), or nil for an empty tensor.
	flat any

	// borrowed storage (a view or an arena sub-slice) is not owned and never pooled.
	borrowed bool
}

// FromShape returns a tensor of the given shape, with zero-initialized owned storage.
func FromShape(shape shapes.Shape) *Tensor {
	if !shape.Ok() {
		exceptions.Panicf("tensors.FromShape: invalid shape %s", shape)
	}
	return &Tensor{
		shape: shape.Clone(),
		valid: true,
		flat:  reflect.MakeSlice(reflect.SliceOf(shape.DType.GoType()), shape.Size(), shape.Size()).Interface(),
	}
}

// FromFlatAndDimensions creates a tensor with the given dimensions, with a copy of the flattened
// values in data.
func FromFlatAndDimensions[T dtypes.Supported](data []T, dimensions ...int) *Tensor {
	shape := shapes.Make(dtypes.FromGenericsType[T](), dimensions...)
	if shape.Size() != len(data) {
		exceptions.Panicf("tensors.FromFlatAndDimensions: shape %s needs %d values, %d given",
			shape, shape.Size(), len(data))
	}
	t := FromShape(shape)
	copy(t.flat.([]T), data)
	return t
}

// FromScalarAndDimensions creates a tensor with the given dimensions, filled with the given value.
func FromScalarAndDimensions[T dtypes.Supported](value T, dimensions ...int) *Tensor {
	shape := shapes.Make(dtypes.FromGenericsType[T](), dimensions...)
	t := FromShape(shape)
	flat := t.flat.([]T)
	for ii := range flat {
		flat[ii] = value
	}
	return t
}

// FromScalar creates a scalar (rank-0) tensor holding the given value.
func FromScalar[T dtypes.Supported](value T) *Tensor {
	return FromScalarAndDimensions[T](value)
}

// Shape of the tensor, includes the DType.
func (t *Tensor) Shape() shapes.Shape {
	if t == nil {
		return shapes.Invalid()
	}
	return t.shape
}

// DType is a shortcut to Tensor.Shape().DType.
func (t *Tensor) DType() dtypes.DType { return t.Shape().DType }

// Size is a shortcut to Tensor.Shape().Size.
func (t *Tensor) Size() int { return t.shape.Size() }

// Ok returns whether the tensor is valid and holds storage.
func (t *Tensor) Ok() bool { return t != nil && t.valid && t.flat != nil }

// IsBorrowed reports whether the tensor storage is a view into another tensor or an arena.
func (t *Tensor) IsBorrowed() bool { return t.borrowed }

// Flat returns the underlying flat data as an `any` holding a []T of the shape's dtype.
func (t *Tensor) Flat() any { return t.flat }

// Reset drops the reference to the storage, leaving the tensor empty (Ok() == false).
// It does NOT return pooled storage: use PutBuffer for that.
func (t *Tensor) Reset() {
	t.flat = nil
	t.valid = false
	t.borrowed = false
}

// ConstFlatData gives typed read access to the tensor's flat data.
// It panics if T doesn't match the tensor's dtype.
func ConstFlatData[T dtypes.Supported](t *Tensor) []T {
	if !t.Ok() {
		exceptions.Panicf("tensors.ConstFlatData: tensor is empty or invalid")
	}
	if t.shape.DType != dtypes.FromGenericsType[T]() {
		exceptions.Panicf("tensors.ConstFlatData[%s]: tensor has dtype %s",
			dtypes.FromGenericsType[T](), t.shape.DType)
	}
	return t.flat.([]T)
}

// MutableFlatData gives typed read-write access to the tensor's flat data.
// It panics if T doesn't match the tensor's dtype.
func MutableFlatData[T dtypes.Supported](t *Tensor) []T {
	return ConstFlatData[T](t)
}

// CopyFrom copies the flat contents of other into t. Shapes must have the same dtype and size.
func (t *Tensor) CopyFrom(other *Tensor) error {
	if !t.Ok() || !other.Ok() {
		return errors.Errorf("Tensor.CopyFrom: empty or invalid tensor (dst.Ok()=%v, src.Ok()=%v)",
			t.Ok(), other.Ok())
	}
	if t.shape.DType != other.shape.DType || t.shape.Size() != other.shape.Size() {
		return errors.Errorf("Tensor.CopyFrom: incompatible shapes %s and %s", t.shape, other.shape)
	}
	reflect.Copy(reflect.ValueOf(t.flat), reflect.ValueOf(other.flat))
	return nil
}

// DataAddr returns the address of the first element of the underlying storage.
// Two tensors share storage iff their data addresses are equal.
// It panics on an empty tensor.
func (t *Tensor) DataAddr() uintptr {
	if !t.Ok() {
		exceptions.Panicf("Tensor.DataAddr: tensor is empty or invalid")
	}
	return reflect.ValueOf(t.flat).Pointer()
}

// Equal checks for bit-equality of dtype, dimensions and contents.
func (t *Tensor) Equal(other *Tensor) bool {
	if !t.Ok() || !other.Ok() {
		return t.Ok() == other.Ok()
	}
	if !t.shape.Equal(other.shape) {
		return false
	}
	return reflect.DeepEqual(t.flat, other.flat)
}

// maxStringValues is the largest number of values printed by Tensor.String.
const maxStringValues = 16

// String prints the shape and up to maxStringValues values.
func (t *Tensor) String() string {
	if t == nil {
		return "Tensor(nil)"
	}
	if !t.Ok() {
		return fmt.Sprintf("Tensor(%s, empty)", t.shape)
	}
	flatV := reflect.ValueOf(t.flat)
	numValues := flatV.Len()
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: [", t.shape)
	for ii := 0; ii < min(numValues, maxStringValues); ii++ {
		if ii > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%v", flatV.Index(ii).Interface())
	}
	if numValues > maxStringValues {
		sb.WriteString(", ...")
	}
	sb.WriteString("]")
	return sb.String()
}
