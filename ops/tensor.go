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
	"github.com/ajroetker/go-mmagen/ir"
)

// Tensor op names.
const (
	EmptyOpName               = "tensor.empty"
	ExtractSliceOpName        = "tensor.extract_slice"
	InsertSliceOpName         = "tensor.insert_slice"
	ParallelInsertSliceOpName = "tensor.parallel_insert_slice"
)

func init() {
	ir.RegisterOp(ir.OpDef{Name: EmptyOpName, Summary: "uninitialized tensor", Verify: verifyEmpty})
	ir.RegisterOp(ir.OpDef{Name: ExtractSliceOpName, Summary: "extract a tensor slice", Verify: verifyExtractSlice})
	ir.RegisterOp(ir.OpDef{Name: InsertSliceOpName, Summary: "insert a tensor slice", Verify: verifyInsertSlice})
	ir.RegisterOp(ir.OpDef{Name: ParallelInsertSliceOpName, Summary: "per-worker slice write into a shared output", Verify: verifyParallelInsertSlice})
}

// Empty builds an uninitialized tensor of type t. dynamicSizes provides the
// extents of the dynamic dimensions in order.
func Empty(b *ir.Builder, t ir.Type, dynamicSizes ...*ir.Value) *ir.Value {
	return b.Create(ir.OperationState{
		Name:        EmptyOpName,
		Operands:    dynamicSizes,
		ResultTypes: []ir.Type{t},
	}).Result(0)
}

// ExtractSlice builds a tensor.extract_slice whose result type is inferred
// from sizes.
func ExtractSlice(b *ir.Builder, source *ir.Value, p SliceParams) *ir.Value {
	return ExtractSliceWithType(b, InferSliceType(source.Type().Elem, p.Sizes), source, p)
}

// ExtractSliceWithType builds a tensor.extract_slice with an explicit, possibly
// rank-reduced, result type.
func ExtractSliceWithType(b *ir.Builder, t ir.Type, source *ir.Value, p SliceParams) *ir.Value {
	operands, attrs := SliceOperands([]*ir.Value{source}, p)
	return b.Create(ir.OperationState{
		Name:        ExtractSliceOpName,
		Operands:    operands,
		ResultTypes: []ir.Type{t},
		Attrs:       attrs,
	}).Result(0)
}

// InsertSlice inserts source into dest and returns the updated tensor.
func InsertSlice(b *ir.Builder, source, dest *ir.Value, p SliceParams) *ir.Value {
	operands, attrs := SliceOperands([]*ir.Value{source, dest}, p)
	return b.Create(ir.OperationState{
		Name:        InsertSliceOpName,
		Operands:    operands,
		ResultTypes: []ir.Type{dest.Type()},
		Attrs:       attrs,
	}).Result(0)
}

// ParallelInsertSlice builds a per-worker write of source into the shared
// output dest. It must be created inside an scf.forall.in_parallel block.
func ParallelInsertSlice(b *ir.Builder, source, dest *ir.Value, p SliceParams) *ir.Operation {
	operands, attrs := SliceOperands([]*ir.Value{source, dest}, p)
	return b.Create(ir.OperationState{
		Name:     ParallelInsertSliceOpName,
		Operands: operands,
		Attrs:    attrs,
	})
}

// SliceSource returns the sliced tensor of an extract_slice, or the inserted
// tensor of an insert_slice or parallel_insert_slice.
func SliceSource(op *ir.Operation) *ir.Value { return op.Operand(0) }

// SliceDest returns the destination of an insert_slice or
// parallel_insert_slice.
func SliceDest(op *ir.Operation) *ir.Value { return op.Operand(1) }

func verifyEmpty(op *ir.Operation) error {
	if op.NumResults() != 1 || !op.Result(0).Type().IsTensor() {
		return ir.EmitOpError(op, "expected a single tensor result")
	}
	t := op.Result(0).Type()
	if want := countDynamic(t.Shape); op.NumOperands() != want {
		return ir.EmitOpError(op, "expected %d dynamic sizes for %s, got %d", want, t, op.NumOperands())
	}
	return nil
}

func verifyExtractSlice(op *ir.Operation) error {
	if err := VerifySliceAttrs(op, 1); err != nil {
		return err
	}
	src := op.Operand(0).Type()
	p := MixedSliceParams(op, 1)
	if !src.IsTensor() || p.Rank() != src.Rank() {
		return ir.EmitOpError(op, "expected %d slice dimensions for %s, got %d", src.Rank(), src, p.Rank())
	}
	inferred := InferSliceType(src.Elem, p.Sizes)
	res := op.Result(0).Type()
	if res.Elem != src.Elem || !ir.IsRankReducedShape(inferred.Shape, res.Shape) {
		return ir.EmitOpError(op, "result type %s is not a rank reduction of %s", res, inferred)
	}
	return nil
}

func verifyInsertLike(op *ir.Operation) error {
	if err := VerifySliceAttrs(op, 2); err != nil {
		return err
	}
	src, dest := op.Operand(0).Type(), op.Operand(1).Type()
	p := MixedSliceParams(op, 2)
	if !dest.IsTensor() || p.Rank() != dest.Rank() {
		return ir.EmitOpError(op, "expected %d slice dimensions for %s, got %d", dest.Rank(), dest, p.Rank())
	}
	inferred := InferSliceType(dest.Elem, p.Sizes)
	if src.Elem != dest.Elem || !ir.IsRankReducedShape(inferred.Shape, src.Shape) {
		return ir.EmitOpError(op, "source type %s is not a rank reduction of %s", src, inferred)
	}
	return nil
}

func verifyInsertSlice(op *ir.Operation) error {
	if err := verifyInsertLike(op); err != nil {
		return err
	}
	if op.NumResults() != 1 || !op.Result(0).Type().Equal(op.Operand(1).Type()) {
		return ir.EmitOpError(op, "result type must match the destination type")
	}
	return nil
}

func verifyParallelInsertSlice(op *ir.Operation) error {
	if err := verifyInsertLike(op); err != nil {
		return err
	}
	if op.NumResults() != 0 {
		return ir.EmitOpError(op, "expected no results")
	}
	if parent := op.ParentOp(); parent == nil || parent.Name != InParallelOpName {
		return ir.EmitOpError(op, "expected to be nested in %s", InParallelOpName)
	}
	return nil
}
