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
	"testing"

	"github.com/stretchr/testify/require"
)

// Ops used only by the tests of this package.
const (
	testConst = "test.const"
	testAdd   = "test.add"
	testWrap  = "test.wrap"
	testLoop  = "test.loop"
	testRet   = "test.ret"
)

func init() {
	RegisterOp(OpDef{Name: testConst})
	RegisterOp(OpDef{Name: testAdd, Verify: func(op *Operation) error {
		if op.NumOperands() != 2 {
			return EmitOpError(op, "expected two operands")
		}
		return nil
	}})
	RegisterOp(OpDef{Name: testWrap})
	RegisterOp(OpDef{Name: testLoop})
	RegisterOp(OpDef{Name: testRet, IsTerminator: true})
}

func i32() Type { return Scalar(I32) }

func constOp(b *Builder, v int64) *Value {
	return b.Create(OperationState{Name: testConst, ResultTypes: []Type{i32()}, Attrs: Attributes{"value": v}}).Result(0)
}

func addOp(b *Builder, x, y *Value) *Value {
	return b.Create(OperationState{Name: testAdd, Operands: []*Value{x, y}, ResultTypes: []Type{x.Type()}}).Result(0)
}

func retOp(b *Builder, vs ...*Value) *Operation {
	return b.Create(OperationState{Name: testRet, Operands: vs})
}

func constValue(v *Value) (int64, bool) {
	def := v.DefiningOp()
	if def == nil || def.Name != testConst {
		return 0, false
	}
	c, ok := def.Attr("value").(int64)
	return c, ok
}

// newAddChain builds arg0 + 0 + 0 and returns it.
func newAddChain(t *testing.T) *Function {
	t.Helper()
	fn := NewFunction("chain", i32())
	b := NewBuilder(fn)
	zero := constOp(b, 0)
	x := addOp(b, fn.Params()[0], zero)
	y := addOp(b, x, zero)
	retOp(b, y)
	require.NoError(t, Verify(fn))
	return fn
}

// foldAddZero rewrites x + 0 to x.
var foldAddZero = Pattern{
	Name:    "fold-add-zero",
	Root:    testAdd,
	Benefit: 1,
	MatchAndRewrite: func(rw *Rewriter, op *Operation) error {
		if c, ok := constValue(op.Operand(1)); !ok || c != 0 {
			return rw.NotifyMatchFailure(op, "rhs is not zero")
		}
		rw.ReplaceOp(op, op.Operand(0))
		return nil
	},
}
