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
	"github.com/samber/lo"

	"github.com/ajroetker/go-mmagen/ir"
	"github.com/ajroetker/go-mmagen/ops"
)

// VectorizeStaticMultiMmaPattern rewrites a tensor gpu.multi_mma with static
// shapes into full-shape transfer reads, a vector gpu.multi_mma and a
// transfer write back into the accumulator tensor.
func VectorizeStaticMultiMmaPattern() ir.Pattern {
	return ir.Pattern{
		Name:    "vectorize-static-multi-mma",
		Root:    MultiMmaOpName,
		Benefit: 1,
		MatchAndRewrite: func(rw *ir.Rewriter, op *ir.Operation) error {
			return vectorizeStaticMultiMma(rw, MultiMmaOp{op})
		},
	}
}

func zeroIndices(b *ir.Builder, rank int) []*ir.Value {
	if rank == 0 {
		return nil
	}
	zero := ops.ConstantIndex(b, 0)
	return lo.Times(rank, func(int) *ir.Value { return zero })
}

// readFull reads the whole of source as a vector of the same shape.
func readFull(b *ir.Builder, source, padding *ir.Value) *ir.Value {
	t := source.Type()
	return ops.TransferRead(b, ir.Vector(t.Shape, t.Elem), source, zeroIndices(b, t.Rank()), padding)
}

func vectorizeStaticMultiMma(rw *ir.Rewriter, mma MultiMmaOp) error {
	if !mma.HasTensorSemantics() {
		return rw.NotifyMatchFailure(mma.Operation, "mma op must have tensor semantics")
	}
	for _, t := range []ir.Type{mma.LhsType(), mma.RhsType(), mma.AccType()} {
		if !t.HasStaticShape() {
			return rw.NotifyMatchFailure(mma.Operation, "non-static shape for vectorization")
		}
	}

	lhsPad := ops.Zero(rw.Builder, ir.Scalar(mma.LhsType().Elem))
	rhsPad := ops.Zero(rw.Builder, ir.Scalar(mma.RhsType().Elem))
	accPad := ops.Zero(rw.Builder, ir.Scalar(mma.ResultType().Elem))

	lhs := readFull(rw.Builder, mma.Lhs(), lhsPad)
	rhs := readFull(rw.Builder, mma.Rhs(), rhsPad)
	acc := readFull(rw.Builder, mma.Acc(), accPad)
	vectorized := BuildMultiMma(rw.Builder, lhs, rhs, acc, mma.IndexingMaps(), mma.IteratorTypes(), mma.Kind())

	written := ops.TransferWrite(rw.Builder, vectorized.Result(0), mma.Acc(), zeroIndices(rw.Builder, mma.AccType().Rank()))
	rw.ReplaceOp(mma.Operation, written)
	return nil
}

// VectorizeStaticShuffleTensorResultPattern turns a gpu.shuffle_tensor with a
// static tensor result into one that yields a vector read from the same
// view, written back into a fresh tensor after the shuffle.
func VectorizeStaticShuffleTensorResultPattern() ir.Pattern {
	return ir.Pattern{
		Name:    "vectorize-static-shuffle-tensor-result",
		Root:    ShuffleTensorOpName,
		Benefit: 1,
		MatchAndRewrite: func(rw *ir.Rewriter, op *ir.Operation) error {
			return vectorizeShuffleTensorResult(rw, ShuffleTensorOp{op})
		},
	}
}

func vectorizeShuffleTensorResult(rw *ir.Rewriter, shuffle ShuffleTensorOp) error {
	resultType := shuffle.Result(0).Type()
	if !resultType.IsTensor() {
		return rw.NotifyMatchFailure(shuffle.Operation, "result is not a tensor")
	}
	if !resultType.HasStaticShape() {
		return rw.NotifyMatchFailure(shuffle.Operation, "non-static shape for vectorization")
	}

	vectorType := ir.Vector(resultType.Shape, resultType.Elem)
	padding := ops.Zero(rw.Builder, ir.Scalar(resultType.Elem))
	vectorized := BuildShuffleTensor(rw.Builder, vectorType, shuffle.Source(), shuffle.Dest(), shuffle.SliceParams())

	oldYield := shuffle.Body().Terminator()
	newBody := vectorized.Body()
	rw.MergeBlocks(shuffle.Body(), newBody, newBody.Arguments())

	rw.SetInsertionPointToEnd(newBody)
	read := readFull(rw.Builder, oldYield.Operand(0), padding)
	Yield(rw.Builder, read)
	rw.EraseOp(oldYield)

	rw.SetInsertionPointAfter(vectorized.Operation)
	empty := ops.Empty(rw.Builder, resultType)
	written := ops.TransferWrite(rw.Builder, vectorized.Result(0), empty, zeroIndices(rw.Builder, resultType.Rank()))
	rw.ReplaceOp(shuffle.Operation, written)
	return nil
}
