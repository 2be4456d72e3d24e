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
	"fmt"

	"github.com/ajroetker/go-mmagen/ir"
	"github.com/ajroetker/go-mmagen/ops"
)

// LowerMultiMmaPattern replaces a vector gpu.multi_mma with no iteration
// bounds by the concrete intrinsic of its kind, reshaping operands to the
// intrinsic's native vector types and the result back to the accumulator
// type.
func LowerMultiMmaPattern() ir.Pattern {
	return ir.Pattern{
		Name:    "lower-multi-mma",
		Root:    MultiMmaOpName,
		Benefit: 1,
		MatchAndRewrite: func(rw *ir.Rewriter, op *ir.Operation) error {
			return lowerMultiMma(rw, MultiMmaOp{op})
		},
	}
}

func lowerMultiMma(rw *ir.Rewriter, mma MultiMmaOp) error {
	if !mma.HasVectorSemantics() {
		return rw.NotifyMatchFailure(mma.Operation, "lowering to concrete op requires vector semantics")
	}
	if len(mma.IterationBounds()) != 0 {
		return rw.NotifyMatchFailure(mma.Operation, "must be a single mma operation")
	}
	aType, bType, cType := mma.Kind().ABCVectorTypes()
	operands := []*ir.Value{mma.Lhs(), mma.Rhs(), mma.Acc()}
	natives := []ir.Type{aType, bType, cType}
	for i, v := range operands {
		if got, want := v.Type().NumElements(), natives[i].NumElements(); got != want {
			panic(fmt.Sprintf("gpu: operand %d of %s has %d elements, intrinsic %s expects %d",
				i, mma.Operation, got, mma.Kind().Name(), want))
		}
	}
	for i, v := range operands {
		if !v.Type().Equal(natives[i]) {
			operands[i] = ops.ShapeCast(rw.Builder, natives[i], v)
		}
	}
	concrete, err := mma.Kind().BuildMmaOperation(rw.Builder, cType, operands[0], operands[1], operands[2])
	if err != nil {
		panic(fmt.Sprintf("gpu: building %s for %s: %v", mma.Kind().Name(), mma.Operation, err))
	}
	rw.ReplaceOp(mma.Operation, ops.ShapeCast(rw.Builder, mma.AccType(), concrete))
	return nil
}

// DropMultiMmaUnitDimsPattern folds away the outer dimensions of a vector
// gpu.multi_mma whose iteration bounds are all 1, leaving an op with empty
// maps whose result is broadcast back to the original type.
func DropMultiMmaUnitDimsPattern() ir.Pattern {
	return ir.Pattern{
		Name:    "drop-multi-mma-unit-dims",
		Root:    MultiMmaOpName,
		Benefit: 1,
		MatchAndRewrite: func(rw *ir.Rewriter, op *ir.Operation) error {
			return dropMultiMmaUnitDims(rw, MultiMmaOp{op})
		},
	}
}

func dropMultiMmaUnitDims(rw *ir.Rewriter, mma MultiMmaOp) error {
	if mma.HasTensorSemantics() {
		return rw.NotifyMatchFailure(mma.Operation, "unimplemented: unit dim dropping for tensor mma ops")
	}
	bounds := mma.IterationBounds()
	if len(bounds) == 0 {
		return rw.NotifyMatchFailure(mma.Operation, "no dimensions to fold")
	}
	if !allOnes(bounds) {
		return rw.NotifyMatchFailure(mma.Operation, "not all iteration bounds are unit")
	}

	dropLeading := func(v *ir.Value, outerRank int) *ir.Value {
		if outerRank == 0 {
			return v
		}
		return ops.Extract(rw.Builder, v, make([]int64, outerRank))
	}
	lhs := dropLeading(mma.Lhs(), mma.LhsOuterRank())
	rhs := dropLeading(mma.Rhs(), mma.RhsOuterRank())
	acc := dropLeading(mma.Acc(), mma.AccOuterRank())

	folded := BuildMultiMma(rw.Builder, lhs, rhs, acc, EmptyIndexingMaps(), []IteratorType{}, mma.Kind())
	rw.ReplaceOp(mma.Operation, ops.Broadcast(rw.Builder, mma.ResultType(), folded.Result(0)))
	return nil
}
