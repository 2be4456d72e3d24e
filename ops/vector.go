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

package ops

import (
	"slices"

	"github.com/samber/lo"

	"github.com/ajroetker/go-mmagen/ir"
)

// Vector op names.
const (
	ExtractStridedSliceOpName = "vector.extract_strided_slice"
	InsertStridedSliceOpName  = "vector.insert_strided_slice"
	ShapeCastOpName           = "vector.shape_cast"
	BroadcastOpName           = "vector.broadcast"
	ExtractOpName             = "vector.extract"
	TransferReadOpName        = "vector.transfer_read"
	TransferWriteOpName       = "vector.transfer_write"
)

func init() {
	ir.RegisterOp(ir.OpDef{Name: ExtractStridedSliceOpName, Summary: "extract a strided sub-vector", Verify: verifyExtractStridedSlice})
	ir.RegisterOp(ir.OpDef{Name: InsertStridedSliceOpName, Summary: "insert a sub-vector at static offsets", Verify: verifyInsertStridedSlice})
	ir.RegisterOp(ir.OpDef{Name: ShapeCastOpName, Summary: "size-preserving reshape of a vector", Verify: verifyShapeCast})
	ir.RegisterOp(ir.OpDef{Name: BroadcastOpName, Summary: "broadcast to a higher-rank vector", Verify: verifyBroadcast})
	ir.RegisterOp(ir.OpDef{Name: ExtractOpName, Summary: "extract a sub-vector at a static position", Verify: verifyExtract})
	ir.RegisterOp(ir.OpDef{Name: TransferReadOpName, Summary: "read a vector from a tensor", Verify: verifyTransferRead})
	ir.RegisterOp(ir.OpDef{Name: TransferWriteOpName, Summary: "write a vector into a tensor", Verify: verifyTransferWrite})
}

// ExtractStridedSlice extracts the sub-vector of src at offsets with the
// given sizes and strides. Trailing dimensions not covered are kept whole.
func ExtractStridedSlice(b *ir.Builder, src *ir.Value, offsets, sizes, strides []int64) *ir.Value {
	st := src.Type()
	shape := append(slices.Clone(sizes), st.Shape[len(sizes):]...)
	return b.Create(ir.OperationState{
		Name:        ExtractStridedSliceOpName,
		Operands:    []*ir.Value{src},
		ResultTypes: []ir.Type{ir.Vector(shape, st.Elem)},
		Attrs: ir.Attributes{
			"offsets": slices.Clone(offsets),
			"sizes":   slices.Clone(sizes),
			"strides": slices.Clone(strides),
		},
	}).Result(0)
}

// InsertStridedSlice inserts src into dest at offsets and returns the
// updated dest value.
func InsertStridedSlice(b *ir.Builder, src, dest *ir.Value, offsets, strides []int64) *ir.Value {
	return b.Create(ir.OperationState{
		Name:        InsertStridedSliceOpName,
		Operands:    []*ir.Value{src, dest},
		ResultTypes: []ir.Type{dest.Type()},
		Attrs: ir.Attributes{
			"offsets": slices.Clone(offsets),
			"strides": slices.Clone(strides),
		},
	}).Result(0)
}

// ShapeCast reshapes src to t. The element count must be preserved.
func ShapeCast(b *ir.Builder, t ir.Type, src *ir.Value) *ir.Value {
	return b.Create(ir.OperationState{
		Name:        ShapeCastOpName,
		Operands:    []*ir.Value{src},
		ResultTypes: []ir.Type{t},
	}).Result(0)
}

// Broadcast expands src to the vector type t.
func Broadcast(b *ir.Builder, t ir.Type, src *ir.Value) *ir.Value {
	return b.Create(ir.OperationState{
		Name:        BroadcastOpName,
		Operands:    []*ir.Value{src},
		ResultTypes: []ir.Type{t},
	}).Result(0)
}

// Extract returns the sub-vector of src at the static leading position. A
// full-rank position yields a scalar.
func Extract(b *ir.Builder, src *ir.Value, position []int64) *ir.Value {
	st := src.Type()
	var t ir.Type
	if len(position) == st.Rank() {
		t = ir.Scalar(st.Elem)
	} else {
		t = ir.Vector(st.Shape[len(position):], st.Elem)
	}
	return b.Create(ir.OperationState{
		Name:        ExtractOpName,
		Operands:    []*ir.Value{src},
		ResultTypes: []ir.Type{t},
		Attrs:       ir.Attributes{"static_position": slices.Clone(position)},
	}).Result(0)
}

// TransferRead reads a vector of type t from source starting at indices,
// padding out-of-bounds lanes with padding. Every dimension is marked in
// bounds.
func TransferRead(b *ir.Builder, t ir.Type, source *ir.Value, indices []*ir.Value, padding *ir.Value) *ir.Value {
	operands := append([]*ir.Value{source}, indices...)
	operands = append(operands, padding)
	return b.Create(ir.OperationState{
		Name:        TransferReadOpName,
		Operands:    operands,
		ResultTypes: []ir.Type{t},
		Attrs:       ir.Attributes{"in_bounds": lo.Times(t.Rank(), func(int) bool { return true })},
	}).Result(0)
}

// TransferWrite writes vec into dest starting at indices and returns the
// updated tensor.
func TransferWrite(b *ir.Builder, vec, dest *ir.Value, indices []*ir.Value) *ir.Value {
	operands := append([]*ir.Value{vec, dest}, indices...)
	return b.Create(ir.OperationState{
		Name:        TransferWriteOpName,
		Operands:    operands,
		ResultTypes: []ir.Type{dest.Type()},
		Attrs:       ir.Attributes{"in_bounds": lo.Times(vec.Type().Rank(), func(int) bool { return true })},
	}).Result(0)
}

func verifyExtractStridedSlice(op *ir.Operation) error {
	if op.NumOperands() != 1 || op.NumResults() != 1 {
		return ir.EmitOpError(op, "expected one operand and one result")
	}
	src := op.Operand(0).Type()
	offsets, sizes, strides := op.I64ArrayAttr("offsets"), op.I64ArrayAttr("sizes"), op.I64ArrayAttr("strides")
	if !src.IsVector() {
		return ir.EmitOpError(op, "source must be a vector, got %s", src)
	}
	if len(offsets) != len(sizes) || len(offsets) != len(strides) || len(offsets) > src.Rank() {
		return ir.EmitOpError(op, "expected offsets, sizes and strides of equal length at most %d", src.Rank())
	}
	for i := range offsets {
		if offsets[i] < 0 || sizes[i] < 1 || offsets[i]+sizes[i] > src.Shape[i] {
			return ir.EmitOpError(op, "slice [%d, %d) out of bounds for dimension %d of size %d",
				offsets[i], offsets[i]+sizes[i], i, src.Shape[i])
		}
		if strides[i] != 1 {
			return ir.EmitOpError(op, "only unit strides are supported")
		}
	}
	want := ir.Vector(append(slices.Clone(sizes), src.Shape[len(sizes):]...), src.Elem)
	if got := op.Result(0).Type(); !got.Equal(want) {
		return ir.EmitOpError(op, "expected result type %s, got %s", want, got)
	}
	return nil
}

func verifyInsertStridedSlice(op *ir.Operation) error {
	if op.NumOperands() != 2 || op.NumResults() != 1 {
		return ir.EmitOpError(op, "expected two operands and one result")
	}
	src, dest := op.Operand(0).Type(), op.Operand(1).Type()
	offsets, strides := op.I64ArrayAttr("offsets"), op.I64ArrayAttr("strides")
	if !src.IsVector() || !dest.IsVector() || src.Elem != dest.Elem {
		return ir.EmitOpError(op, "expected vectors of the same element type, got %s and %s", src, dest)
	}
	if src.Rank() > dest.Rank() {
		return ir.EmitOpError(op, "source rank %d exceeds destination rank %d", src.Rank(), dest.Rank())
	}
	if len(offsets) != dest.Rank() || len(strides) != src.Rank() {
		return ir.EmitOpError(op, "expected %d offsets and %d strides", dest.Rank(), src.Rank())
	}
	lead := dest.Rank() - src.Rank()
	for i, off := range offsets {
		size := int64(1)
		if i >= lead {
			size = src.Shape[i-lead]
		}
		if off < 0 || off+size > dest.Shape[i] {
			return ir.EmitOpError(op, "insertion out of bounds in dimension %d", i)
		}
	}
	if !op.Result(0).Type().Equal(dest) {
		return ir.EmitOpError(op, "result type must match destination type %s", dest)
	}
	return nil
}

func verifyShapeCast(op *ir.Operation) error {
	if op.NumOperands() != 1 || op.NumResults() != 1 {
		return ir.EmitOpError(op, "expected one operand and one result")
	}
	src, dst := op.Operand(0).Type(), op.Result(0).Type()
	if !src.IsVector() || !dst.IsVector() || src.Elem != dst.Elem {
		return ir.EmitOpError(op, "expected vectors of the same element type, got %s and %s", src, dst)
	}
	if src.NumElements() != dst.NumElements() {
		return ir.EmitOpError(op, "cast from %s to %s does not preserve the element count", src, dst)
	}
	return nil
}

func verifyBroadcast(op *ir.Operation) error {
	if op.NumOperands() != 1 || op.NumResults() != 1 {
		return ir.EmitOpError(op, "expected one operand and one result")
	}
	src, dst := op.Operand(0).Type(), op.Result(0).Type()
	if !dst.IsVector() || src.Elem != dst.Elem || src.IsTensor() {
		return ir.EmitOpError(op, "cannot broadcast %s to %s", src, dst)
	}
	if src.Rank() > dst.Rank() {
		return ir.EmitOpError(op, "source rank %d exceeds result rank %d", src.Rank(), dst.Rank())
	}
	lead := dst.Rank() - src.Rank()
	for i, d := range src.Shape {
		if d != 1 && d != dst.Shape[lead+i] {
			return ir.EmitOpError(op, "dimension %d of %s is incompatible with %s", i, src, dst)
		}
	}
	return nil
}

func verifyExtract(op *ir.Operation) error {
	if op.NumOperands() != 1 || op.NumResults() != 1 {
		return ir.EmitOpError(op, "expected one operand and one result")
	}
	src := op.Operand(0).Type()
	pos := op.I64ArrayAttr("static_position")
	if !src.IsVector() || len(pos) > src.Rank() {
		return ir.EmitOpError(op, "invalid position of length %d for %s", len(pos), src)
	}
	for i, p := range pos {
		if p < 0 || p >= src.Shape[i] {
			return ir.EmitOpError(op, "position %d out of bounds in dimension %d", p, i)
		}
	}
	return nil
}

func verifyTransferRead(op *ir.Operation) error {
	if op.NumOperands() < 2 || op.NumResults() != 1 {
		return ir.EmitOpError(op, "expected a source, indices and a padding value")
	}
	source := op.Operand(0).Type()
	vec := op.Result(0).Type()
	indices := op.NumOperands() - 2
	if !source.IsShaped() || indices != source.Rank() {
		return ir.EmitOpError(op, "expected %d indices for %s, got %d", source.Rank(), source, indices)
	}
	if !vec.IsVector() || vec.Elem != source.Elem || vec.Rank() > source.Rank() {
		return ir.EmitOpError(op, "cannot read %s from %s", vec, source)
	}
	if pad := op.Operand(op.NumOperands() - 1).Type(); pad.IsShaped() || pad.Elem != source.Elem {
		return ir.EmitOpError(op, "padding must be a %s scalar, got %s", source.Elem, pad)
	}
	return nil
}

func verifyTransferWrite(op *ir.Operation) error {
	if op.NumOperands() < 2 || op.NumResults() != 1 {
		return ir.EmitOpError(op, "expected a vector, a destination and indices")
	}
	vec, dest := op.Operand(0).Type(), op.Operand(1).Type()
	if indices := op.NumOperands() - 2; !dest.IsTensor() || indices != dest.Rank() {
		return ir.EmitOpError(op, "expected %d indices for %s, got %d", dest.Rank(), dest, indices)
	}
	if !vec.IsVector() || vec.Elem != dest.Elem || vec.Rank() > dest.Rank() {
		return ir.EmitOpError(op, "cannot write %s into %s", vec, dest)
	}
	if !op.Result(0).Type().Equal(dest) {
		return ir.EmitOpError(op, "result type must match destination type %s", dest)
	}
	return nil
}
