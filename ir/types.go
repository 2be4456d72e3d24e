// Copyright 2025 go-mmagen Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ir

import (
	"fmt"
	"slices"
	"strings"
)

// Dynamic marks an extent or static index that is only known at runtime.
const Dynamic int64 = -1

// ElemType is a scalar element type.
type ElemType string

const (
	F16   ElemType = "f16"
	BF16  ElemType = "bf16"
	F32   ElemType = "f32"
	I8    ElemType = "i8"
	I32   ElemType = "i32"
	Index ElemType = "index"
)

// IsFloat reports whether e is a floating-point element type.
func (e ElemType) IsFloat() bool {
	return e == F16 || e == BF16 || e == F32
}

// BitWidth returns the storage width of e in bits.
func (e ElemType) BitWidth() int {
	switch e {
	case I8:
		return 8
	case F16, BF16:
		return 16
	case F32, I32:
		return 32
	case Index:
		return 64
	default:
		return 0
	}
}

// TypeKind distinguishes scalars from the two shaped containers.
type TypeKind int

const (
	// ScalarKind is a single element.
	ScalarKind TypeKind = iota

	// VectorKind is a register-level value with static shape.
	VectorKind

	// TensorKind is an immutable value-semantics tensor, possibly dynamic.
	TensorKind
)

// String returns a human-readable name for the TypeKind.
func (k TypeKind) String() string {
	switch k {
	case ScalarKind:
		return "Scalar"
	case VectorKind:
		return "Vector"
	case TensorKind:
		return "Tensor"
	default:
		return fmt.Sprintf("TypeKind(%d)", k)
	}
}

// Type describes the type of a Value.
//
// Type holds a slice, so compare with Equal rather than ==.
type Type struct {
	Kind  TypeKind
	Shape []int64
	Elem  ElemType
}

// Scalar returns the scalar type of elem.
func Scalar(elem ElemType) Type { return Type{Kind: ScalarKind, Elem: elem} }

// IndexType returns the scalar index type.
func IndexType() Type { return Scalar(Index) }

// Vector returns vector<shape x elem>.
func Vector(shape []int64, elem ElemType) Type {
	return Type{Kind: VectorKind, Shape: slices.Clone(shape), Elem: elem}
}

// Tensor returns tensor<shape x elem>.
func Tensor(shape []int64, elem ElemType) Type {
	return Type{Kind: TensorKind, Shape: slices.Clone(shape), Elem: elem}
}

// IsShaped reports whether t is a vector or tensor.
func (t Type) IsShaped() bool { return t.Kind == VectorKind || t.Kind == TensorKind }

// IsVector reports whether t is a vector.
func (t Type) IsVector() bool { return t.Kind == VectorKind }

// IsTensor reports whether t is a tensor.
func (t Type) IsTensor() bool { return t.Kind == TensorKind }

// Rank returns the number of dimensions (0 for scalars).
func (t Type) Rank() int { return len(t.Shape) }

// HasStaticShape reports whether no extent is Dynamic.
func (t Type) HasStaticShape() bool { return !slices.Contains(t.Shape, Dynamic) }

// NumElements returns the product of the extents, or Dynamic.
func (t Type) NumElements() int64 {
	n := int64(1)
	for _, d := range t.Shape {
		if d == Dynamic {
			return Dynamic
		}
		n *= d
	}
	return n
}

// WithShape returns a type of the same kind and element with a new shape.
func (t Type) WithShape(shape []int64) Type {
	return Type{Kind: t.Kind, Shape: slices.Clone(shape), Elem: t.Elem}
}

// Equal reports whether two types are identical.
func (t Type) Equal(o Type) bool {
	return t.Kind == o.Kind && t.Elem == o.Elem && slices.Equal(t.Shape, o.Shape)
}

// String renders t in the usual textual form, e.g. "vector<4x4xf16>".
func (t Type) String() string {
	if t.Kind == ScalarKind {
		return string(t.Elem)
	}
	var sb strings.Builder
	if t.Kind == VectorKind {
		sb.WriteString("vector<")
	} else {
		sb.WriteString("tensor<")
	}
	for _, d := range t.Shape {
		if d == Dynamic {
			sb.WriteString("?")
		} else {
			fmt.Fprintf(&sb, "%d", d)
		}
		sb.WriteString("x")
	}
	sb.WriteString(string(t.Elem))
	sb.WriteString(">")
	return sb.String()
}

// IsRankReducedShape reports whether reduced can be obtained from full by
// dropping some unit extents.
func IsRankReducedShape(full, reduced []int64) bool {
	if len(reduced) > len(full) {
		return false
	}
	j := 0
	for _, d := range full {
		if j < len(reduced) && reduced[j] == d {
			j++
			continue
		}
		if d != 1 {
			return false
		}
	}
	return j == len(reduced)
}
