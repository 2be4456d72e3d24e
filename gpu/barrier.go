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

// LowerShuffleTensorPattern expands a gpu.shuffle_tensor into an insert of
// the source into the destination fenced by a write barrier, the inlined
// body, and a read barrier on the value the body yields.
func LowerShuffleTensorPattern() ir.Pattern {
	return ir.Pattern{
		Name:    "lower-shuffle-tensor",
		Root:    ShuffleTensorOpName,
		Benefit: 1,
		MatchAndRewrite: func(rw *ir.Rewriter, op *ir.Operation) error {
			return lowerShuffleTensor(rw, ShuffleTensorOp{op})
		},
	}
}

func lowerShuffleTensor(rw *ir.Rewriter, shuffle ShuffleTensorOp) error {
	inserted := ops.InsertSlice(rw.Builder, shuffle.Source(), shuffle.Dest(), shuffle.SliceParams())
	writeBarrier := ValueBarrier(rw.Builder, inserted)

	yield := shuffle.Body().Terminator()
	rw.InlineBlockBefore(shuffle.Body(), shuffle.Operation, []*ir.Value{writeBarrier})

	// Read the yielded value after inlining: a body that yields its
	// argument now yields the write barrier.
	replacement := yield.Operand(0)
	rw.SetInsertionPointAfterValue(replacement)
	readBarrier := ValueBarrier(rw.Builder, replacement)
	rw.ReplaceAllUsesWith(shuffle.Result(0), readBarrier)
	rw.EraseOp(yield)
	rw.EraseOp(shuffle.Operation)
	return nil
}

// LowerValueBarrierPattern replaces a vector gpu.value_barrier by a plain
// gpu.barrier, forwarding its input. Tensor barriers are left alone.
func LowerValueBarrierPattern() ir.Pattern {
	return ir.Pattern{
		Name:    "lower-value-barrier",
		Root:    ValueBarrierOpName,
		Benefit: 1,
		MatchAndRewrite: func(rw *ir.Rewriter, op *ir.Operation) error {
			if BarrierHasTensorSemantics(op) {
				return rw.NotifyMatchFailure(op, "tensor value barriers only order tensor accesses")
			}
			ops.Barrier(rw.Builder)
			rw.ReplaceOp(op, op.Operand(0))
			return nil
		},
	}
}
