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

// GPU primitive op names.
const (
	BarrierOpName = "gpu.barrier"
	MfmaOpName    = "amdgpu.mfma"
	WmmaOpName    = "amdgpu.wmma"
)

func init() {
	ir.RegisterOp(ir.OpDef{Name: BarrierOpName, Summary: "workgroup-wide rendezvous", Verify: verifyBarrier})
	ir.RegisterOp(ir.OpDef{Name: MfmaOpName, Summary: "matrix fused multiply-add intrinsic", Verify: verifyIntrinsic})
	ir.RegisterOp(ir.OpDef{Name: WmmaOpName, Summary: "wave matrix multiply-accumulate intrinsic", Verify: verifyIntrinsic})
}

// Barrier builds a gpu.barrier.
func Barrier(b *ir.Builder) *ir.Operation {
	return b.Create(ir.OperationState{Name: BarrierOpName})
}

// IntrinsicShape is the per-call M, N, K of a hardware MMA instruction.
type IntrinsicShape struct {
	M, N, K int64
}

// Mfma builds an amdgpu.mfma computing c + a*b for one block.
func Mfma(b *ir.Builder, shape IntrinsicShape, resultType ir.Type, a, bv, c *ir.Value) *ir.Value {
	return buildIntrinsic(b, MfmaOpName, shape, resultType, a, bv, c)
}

// Wmma builds an amdgpu.wmma computing c + a*b.
func Wmma(b *ir.Builder, shape IntrinsicShape, resultType ir.Type, a, bv, c *ir.Value) *ir.Value {
	return buildIntrinsic(b, WmmaOpName, shape, resultType, a, bv, c)
}

func buildIntrinsic(b *ir.Builder, name string, shape IntrinsicShape, resultType ir.Type, a, bv, c *ir.Value) *ir.Value {
	attrs := ir.Attributes{"m": shape.M, "n": shape.N, "k": shape.K}
	if name == MfmaOpName {
		attrs["blocks"] = int64(1)
	}
	return b.Create(ir.OperationState{
		Name:        name,
		Operands:    []*ir.Value{a, bv, c},
		ResultTypes: []ir.Type{resultType},
		Attrs:       attrs,
	}).Result(0)
}

func verifyBarrier(op *ir.Operation) error {
	if op.NumOperands() != 0 || op.NumResults() != 0 {
		return ir.EmitOpError(op, "expected no operands and no results")
	}
	return nil
}

func verifyIntrinsic(op *ir.Operation) error {
	if op.NumOperands() != 3 || op.NumResults() != 1 {
		return ir.EmitOpError(op, "expected three operands and one result")
	}
	for i, v := range op.Operands() {
		if t := v.Type(); !t.IsVector() || t.Rank() != 1 {
			return ir.EmitOpError(op, "operand %d must be a 1-D vector, got %s", i, t)
		}
	}
	if a, b := op.Operand(0).Type(), op.Operand(1).Type(); a.Elem != b.Elem {
		return ir.EmitOpError(op, "A and B element types differ: %s vs %s", a.Elem, b.Elem)
	}
	if c, r := op.Operand(2).Type(), op.Result(0).Type(); !c.Equal(r) {
		return ir.EmitOpError(op, "result type %s must match accumulator type %s", r, c)
	}
	for _, name := range []string{"m", "n", "k"} {
		if v, ok := op.Attr(name).(int64); !ok || v <= 0 {
			return ir.EmitOpError(op, "requires a positive '%s' attribute", name)
		}
	}
	return nil
}
