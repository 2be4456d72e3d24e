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
	"slices"

	"github.com/samber/lo"

	"github.com/ajroetker/go-mmagen/affine"
	"github.com/ajroetker/go-mmagen/ir"
	"github.com/ajroetker/go-mmagen/ops"
)

// linearizeMap computes d0 * d1 + d2: the running linear id scaled by an
// axis extent plus that axis' index.
var linearizeMap = affine.NewMap(3, 0, affine.Add(affine.Mul(affine.Dim(0), affine.Dim(1)), affine.Dim(2)))

// FuseForallIntoSlice fuses producer, a worker loop whose single result is
// read inside consumer through chain, into consumer. chain is a sequence of
// single-use ops starting at the user of producer's result and ending in a
// tensor.extract_slice.
//
// The producer body is inlined into consumer with its worker ids recovered
// by delinearizing consumer's linear worker id, and its single parallel
// write becomes a gpu.shuffle_tensor whose body holds chain. Both loops must
// have zero lower bounds, unit steps, equal static trip counts and equal
// homogeneous mappings.
func FuseForallIntoSlice(rw *ir.Rewriter, producer, consumer ops.ForallOp, chain []*ir.Operation) error {
	if len(chain) == 0 {
		return rw.NotifyMatchFailure(producer.Operation, "empty consumer chain")
	}
	slice := chain[len(chain)-1]
	if slice.Name != ops.ExtractSliceOpName {
		return rw.NotifyMatchFailure(slice, "consumer chain must end in %s", ops.ExtractSliceOpName)
	}
	if producer.NumResults() != 1 {
		return rw.NotifyMatchFailure(producer.Operation, "producer loop must have a single result")
	}
	producerResult := producer.Result(0)
	if !slices.Contains(chain[0].Operands(), producerResult) {
		return rw.NotifyMatchFailure(chain[0], "consumer chain does not start at the producer result")
	}
	for _, u := range producerResult.Uses() {
		if !slices.Contains(chain, u.Owner) {
			return rw.NotifyMatchFailure(producer.Operation, "producer result escapes the consumer chain")
		}
		if u.Owner != chain[0] {
			return rw.NotifyMatchFailure(u.Owner, "producer result must only be used by the head of the consumer chain")
		}
	}
	if producer.IsAncestor(consumer.Operation) || consumer.IsAncestor(producer.Operation) {
		return rw.NotifyMatchFailure(producer.Operation, "producer and consumer loops are nested")
	}
	for _, op := range chain {
		if op.Block() != slice.Block() || !consumer.IsAncestor(op) {
			return rw.NotifyMatchFailure(op, "consumer chain must live in the block of the slice inside the consumer loop")
		}
	}

	producerTrips, ok := producer.TripCount()
	consumerTrips, ok2 := consumer.TripCount()
	if !ok || !ok2 || producerTrips != consumerTrips {
		return rw.NotifyMatchFailure(producer.Operation, "producer and consumer loops do not have the same trip count")
	}
	mapping := producer.Mapping()
	if len(mapping) == 0 || !slices.Equal(mapping, consumer.Mapping()) {
		return rw.NotifyMatchFailure(producer.Operation, "producer and consumer loops do not have the same mapping")
	}
	if !lo.EveryBy(mapping, func(m ops.Mapping) bool { return m.Kind == mapping[0].Kind }) {
		return rw.NotifyMatchFailure(producer.Operation, "mapping is not homogeneous")
	}
	if !producer.HasUnitSteps() || !consumer.HasUnitSteps() {
		return rw.NotifyMatchFailure(producer.Operation, "loops must have unit steps")
	}
	if !producer.HasZeroLowerBounds() || !consumer.HasZeroLowerBounds() {
		return rw.NotifyMatchFailure(producer.Operation, "loops must have zero lower bounds")
	}
	producerBounds, ok := producer.StaticUpperBounds()
	if !ok {
		return rw.NotifyMatchFailure(producer.Operation, "producer loop must have static upper bounds")
	}
	if len(producer.InParallelBlock().Operations()) != 1 || len(producer.ParallelInserts()) != 1 {
		return rw.NotifyMatchFailure(producer.Operation, "producer loop must have a single parallel insert")
	}
	parallelInsert := producer.ParallelInserts()[0]
	terminator := producer.Terminator()

	rw.SetInsertionPoint(slice)
	linearID := ir.StaticIndex(0)
	consumerBounds := consumer.MixedUpperBounds()
	for i, iv := range consumer.InductionVars() {
		linearID = ops.MakeComposedFoldedAffineApply(rw.Builder, linearizeMap,
			[]ir.OpFoldResult{linearID, consumerBounds[i], ir.DynamicIndex(iv)})
	}
	ids := ops.DelinearizeIndex(rw.Builder, ops.Materialize(rw.Builder, linearID), ir.StaticIndices(producerBounds...))

	rw.InlineBlockBefore(producer.Body(), slice, append(ids, producer.Outputs()...))

	rw.SetInsertionPointAfter(terminator)
	shuffle := BuildShuffleTensor(rw.Builder, slice.Result(0).Type(),
		ops.SliceSource(parallelInsert), ops.SliceDest(parallelInsert), ops.MixedSliceParams(parallelInsert, 2))
	rw.SetInsertionPointToStart(shuffle.Body())
	yield := Yield(rw.Builder, slice.Result(0))
	for _, op := range chain {
		rw.MoveOpBefore(op, yield)
	}
	rw.ReplaceUsesOfWith(chain[0], producerResult, shuffle.Body().Argument(0))
	rw.ReplaceAllUsesExcept(slice.Result(0), shuffle.Result(0), yield)

	rw.EraseOp(parallelInsert)
	rw.EraseOp(terminator)
	rw.EraseOp(producer.Operation)
	return nil
}

// FuseForallPattern fuses an scf.forall whose single result flows through a
// single-use chain into a tensor.extract_slice inside another scf.forall.
func FuseForallPattern() ir.Pattern {
	return ir.Pattern{
		Name:    "fuse-forall-into-slice",
		Root:    ops.ForallOpName,
		Benefit: 1,
		MatchAndRewrite: func(rw *ir.Rewriter, op *ir.Operation) error {
			if op.NumResults() != 1 {
				return rw.NotifyMatchFailure(op, "producer loop must have a single result")
			}
			chain, ok := ir.ConsumerChain(op.Result(0), func(user *ir.Operation) bool {
				return user.Name == ops.ExtractSliceOpName
			})
			if !ok {
				return rw.NotifyMatchFailure(op, "result does not reach a %s through single-use ops", ops.ExtractSliceOpName)
			}
			consumer, ok := enclosingForall(chain[len(chain)-1])
			if !ok {
				return rw.NotifyMatchFailure(op, "slice is not inside a worker loop")
			}
			return FuseForallIntoSlice(rw, ops.ForallOp{Operation: op}, consumer, chain)
		},
	}
}

func enclosingForall(op *ir.Operation) (ops.ForallOp, bool) {
	for cur := op.ParentOp(); cur != nil; cur = cur.ParentOp() {
		if f, ok := ops.AsForall(cur); ok {
			return f, true
		}
	}
	return ops.ForallOp{}, false
}
