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

package gpu

import (
	"github.com/ajroetker/go-mmagen/ir"
	"github.com/ajroetker/go-mmagen/ops"
)

// Shuffle and barrier op names.
const (
	ShuffleTensorOpName = "gpu.shuffle_tensor"
	YieldOpName         = "gpu.yield"
	ValueBarrierOpName  = "gpu.value_barrier"
)

func init() {
	ir.RegisterOp(ir.OpDef{
		Name:          ShuffleTensorOpName,
		Summary:       "stage a worker slice into a shared tensor and read back a view",
		Verify:        verifyShuffleTensor,
		VerifyRegions: verifyShuffleTensorRegions,
	})
	ir.RegisterOp(ir.OpDef{
		Name:         YieldOpName,
		Summary:      "yield the value read back by a shuffle",
		IsTerminator: true,
		Verify:       verifyYield,
	})
	ir.RegisterOp(ir.OpDef{
		Name:    ValueBarrierOpName,
		Summary: "synchronize all workers on a value",
		Verify:  verifyValueBarrier,
	})
}

// ShuffleTensorOp wraps a gpu.shuffle_tensor operation. Operands are the
// source slice, the destination, then the dynamic offsets, sizes and strides.
type ShuffleTensorOp struct {
	*ir.Operation
}

// AsShuffleTensor returns op as a ShuffleTensorOp when it is a
// gpu.shuffle_tensor.
func AsShuffleTensor(op *ir.Operation) (ShuffleTensorOp, bool) {
	if op == nil || op.Name != ShuffleTensorOpName {
		return ShuffleTensorOp{}, false
	}
	return ShuffleTensorOp{op}, true
}

// BuildShuffleTensor creates a gpu.shuffle_tensor with an empty body block
// whose single argument has the destination type. The caller terminates the
// body with a gpu.yield.
func BuildShuffleTensor(b *ir.Builder, resultType ir.Type, source, dest *ir.Value, p ops.SliceParams) ShuffleTensorOp {
	operands, attrs := ops.SliceOperands([]*ir.Value{source, dest}, p)
	op := b.Create(ir.OperationState{
		Name:        ShuffleTensorOpName,
		Operands:    operands,
		ResultTypes: []ir.Type{resultType},
		Attrs:       attrs,
		NumRegions:  1,
	})
	b.CreateBlock(op.Region(0), dest.Type())
	return ShuffleTensorOp{op}
}

// Source returns the staged slice.
func (s ShuffleTensorOp) Source() *ir.Value { return s.Operand(0) }

// Dest returns the shared destination tensor.
func (s ShuffleTensorOp) Dest() *ir.Value { return s.Operand(1) }

// SliceParams returns the mixed offsets, sizes and strides.
func (s ShuffleTensorOp) SliceParams() ops.SliceParams { return ops.MixedSliceParams(s.Operation, 2) }

// Body returns the body block.
func (s ShuffleTensorOp) Body() *ir.Block { return s.Region(0).Front() }

// Yield builds a gpu.yield of v.
func Yield(b *ir.Builder, v *ir.Value) *ir.Operation {
	return b.Create(ir.OperationState{Name: YieldOpName, Operands: []*ir.Value{v}})
}

// ValueBarrier builds a gpu.value_barrier on v.
func ValueBarrier(b *ir.Builder, v *ir.Value) *ir.Value {
	return b.Create(ir.OperationState{
		Name:        ValueBarrierOpName,
		Operands:    []*ir.Value{v},
		ResultTypes: []ir.Type{v.Type()},
	}).Result(0)
}

// BarrierHasTensorSemantics reports whether a gpu.value_barrier wraps a
// tensor, in which case it is only an ordering marker.
func BarrierHasTensorSemantics(op *ir.Operation) bool {
	return op.Operand(0).Type().IsTensor()
}

func verifyShuffleTensor(op *ir.Operation) error {
	if err := ops.VerifySliceAttrs(op, 2); err != nil {
		return err
	}
	if op.NumResults() != 1 {
		return ir.EmitOpError(op, "expected one result")
	}
	s := ShuffleTensorOp{op}
	dest := s.Dest().Type()
	if !dest.IsTensor() {
		return ir.EmitOpError(op, "destination must be a tensor, got %s", dest)
	}
	p := s.SliceParams()
	if p.Rank() != dest.Rank() {
		return ir.EmitOpError(op, "expected %d slice dimensions, got %d", dest.Rank(), p.Rank())
	}
	expected := ops.InferSliceType(dest.Elem, p.Sizes)
	source := s.Source().Type()
	if !ir.IsRankReducedShape(expected.Shape, source.Shape) {
		return ir.EmitOpError(op, "Invalid source slice type")
	}
	if dest.Elem != source.Elem || dest.Elem != op.Result(0).Type().Elem {
		return ir.EmitOpError(op, "Element type mismatch between source and destination")
	}
	return nil
}

func verifyShuffleTensorRegions(op *ir.Operation) error {
	s := ShuffleTensorOp{op}
	if op.NumRegions() != 1 || len(op.Region(0).Blocks()) != 1 {
		return ir.EmitOpError(op, "expected a single-block region")
	}
	body := s.Body()
	if body.NumArguments() != 1 {
		return ir.EmitOpError(op, "expected the block to have a single argument")
	}
	if !body.Argument(0).Type().Equal(s.Dest().Type()) {
		return ir.EmitOpError(op, "expected block to have single argument type of %s", s.Dest().Type())
	}
	term := body.Terminator()
	if term == nil || term.Name != YieldOpName {
		return ir.EmitOpError(op, "expected body to end in %s", YieldOpName)
	}
	if !term.Operand(0).Type().Equal(op.Result(0).Type()) {
		return ir.EmitOpError(op, "expected yield type to match result type")
	}
	return nil
}

func verifyYield(op *ir.Operation) error {
	if op.NumOperands() != 1 || op.NumResults() != 0 {
		return ir.EmitOpError(op, "expected one operand and no results")
	}
	if parent := op.ParentOp(); parent == nil || parent.Name != ShuffleTensorOpName {
		return ir.EmitOpError(op, "expected parent %s", ShuffleTensorOpName)
	}
	return nil
}

func verifyValueBarrier(op *ir.Operation) error {
	if op.NumOperands() != 1 || op.NumResults() != 1 {
		return ir.EmitOpError(op, "expected one operand and one result")
	}
	if in, out := op.Operand(0).Type(), op.Result(0).Type(); !in.Equal(out) {
		return ir.EmitOpError(op, "result type %s must match input type %s", out, in)
	}
	if !op.Operand(0).Type().IsShaped() {
		return ir.EmitOpError(op, "expected a vector or tensor input")
	}
	return nil
}
