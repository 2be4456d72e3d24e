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

// Package ops defines the generic operations the MMA transformations build
// on: constants, vector slicing and transfers, tensor slices, the scf.forall
// worker loop, affine index arithmetic, and the concrete GPU intrinsics.
//
// Each op is registered with the ir op registry in an init function and comes
// with a typed builder and, where useful, a small accessor wrapper.
package ops

import (
	"fmt"

	"github.com/ajroetker/go-mmagen/ir"
)

// Attribute names shared by slice-like ops.
const (
	AttrStaticOffsets = "static_offsets"
	AttrStaticSizes   = "static_sizes"
	AttrStaticStrides = "static_strides"
)

// SliceParams holds the mixed offsets, sizes and strides of a slice-like op.
type SliceParams struct {
	Offsets []ir.OpFoldResult
	Sizes   []ir.OpFoldResult
	Strides []ir.OpFoldResult
}

// Rank returns the number of sliced dimensions.
func (p SliceParams) Rank() int { return len(p.Offsets) }

// UnitStrides returns rank strides of 1.
func UnitStrides(rank int) []ir.OpFoldResult {
	out := make([]ir.OpFoldResult, rank)
	for i := range out {
		out[i] = ir.StaticIndex(1)
	}
	return out
}

// SliceOperands lays out prefix operands followed by the dynamic offsets,
// sizes and strides of p, and returns the matching static attributes.
func SliceOperands(prefix []*ir.Value, p SliceParams) ([]*ir.Value, ir.Attributes) {
	if len(p.Sizes) != p.Rank() || len(p.Strides) != p.Rank() {
		panic(fmt.Sprintf("ops: slice with %d offsets, %d sizes, %d strides",
			len(p.Offsets), len(p.Sizes), len(p.Strides)))
	}
	dynOffsets, staticOffsets := ir.DispatchIndexOpFoldResults(p.Offsets)
	dynSizes, staticSizes := ir.DispatchIndexOpFoldResults(p.Sizes)
	dynStrides, staticStrides := ir.DispatchIndexOpFoldResults(p.Strides)
	operands := append([]*ir.Value{}, prefix...)
	operands = append(operands, dynOffsets...)
	operands = append(operands, dynSizes...)
	operands = append(operands, dynStrides...)
	return operands, ir.Attributes{
		AttrStaticOffsets: staticOffsets,
		AttrStaticSizes:   staticSizes,
		AttrStaticStrides: staticStrides,
	}
}

// MixedSliceParams reads the slice parameters of op, whose first prefix
// operands are not part of the slice description.
func MixedSliceParams(op *ir.Operation, prefix int) SliceParams {
	staticOffsets := op.I64ArrayAttr(AttrStaticOffsets)
	staticSizes := op.I64ArrayAttr(AttrStaticSizes)
	staticStrides := op.I64ArrayAttr(AttrStaticStrides)
	dyn := op.Operands()[prefix:]
	take := func(static []int64) []ir.OpFoldResult {
		n := countDynamic(static)
		out := ir.MixedValues(static, dyn[:n])
		dyn = dyn[n:]
		return out
	}
	return SliceParams{
		Offsets: take(staticOffsets),
		Sizes:   take(staticSizes),
		Strides: take(staticStrides),
	}
}

// VerifySliceAttrs checks the static arrays of a slice-like op against its
// operand count.
func VerifySliceAttrs(op *ir.Operation, prefix int) error {
	offsets := op.I64ArrayAttr(AttrStaticOffsets)
	sizes := op.I64ArrayAttr(AttrStaticSizes)
	strides := op.I64ArrayAttr(AttrStaticStrides)
	if len(offsets) != len(sizes) || len(offsets) != len(strides) {
		return ir.EmitOpError(op, "expected equal numbers of offsets, sizes and strides, got %d, %d and %d",
			len(offsets), len(sizes), len(strides))
	}
	want := prefix + countDynamic(offsets) + countDynamic(sizes) + countDynamic(strides)
	if op.NumOperands() != want {
		return ir.EmitOpError(op, "expected %d operands, got %d", want, op.NumOperands())
	}
	for _, v := range op.Operands()[prefix:] {
		if !v.Type().Equal(ir.IndexType()) {
			return ir.EmitOpError(op, "slice operands must be index typed, got %s", v.Type())
		}
	}
	return nil
}

// InferSliceType returns the tensor type addressed by sizes, with dynamic
// extents for dynamic sizes.
func InferSliceType(elem ir.ElemType, sizes []ir.OpFoldResult) ir.Type {
	shape := make([]int64, len(sizes))
	for i, s := range sizes {
		if s.IsStatic() {
			shape[i] = s.Static
		} else {
			shape[i] = ir.Dynamic
		}
	}
	return ir.Tensor(shape, elem)
}

func countDynamic(static []int64) int {
	n := 0
	for _, s := range static {
		if s == ir.Dynamic {
			n++
		}
	}
	return n
}
