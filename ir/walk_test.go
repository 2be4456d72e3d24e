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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypes(t *testing.T) {
	v := Vector([]int64{4, 16}, F16)
	assert.Equal(t, "vector<4x16xf16>", v.String())
	assert.Equal(t, int64(64), v.NumElements())
	assert.True(t, v.IsShaped())
	assert.True(t, v.HasStaticShape())

	dyn := Tensor([]int64{Dynamic, 8}, BF16)
	assert.Equal(t, "tensor<?x8xbf16>", dyn.String())
	assert.Equal(t, Dynamic, dyn.NumElements())
	assert.False(t, dyn.HasStaticShape())
	assert.True(t, dyn.WithShape([]int64{2, 8}).Equal(Tensor([]int64{2, 8}, BF16)))
	assert.False(t, v.Equal(Tensor([]int64{4, 16}, F16)))

	assert.Equal(t, "index", IndexType().String())
	assert.Equal(t, 0, IndexType().Rank())
	assert.Equal(t, 16, BF16.BitWidth())
	assert.True(t, F32.IsFloat())
	assert.False(t, I8.IsFloat())
}

func TestIsRankReducedShape(t *testing.T) {
	assert.True(t, IsRankReducedShape([]int64{1, 8, 1}, []int64{8}))
	assert.True(t, IsRankReducedShape([]int64{2, 8}, []int64{2, 8}))
	assert.True(t, IsRankReducedShape([]int64{1, 1}, nil))
	assert.False(t, IsRankReducedShape([]int64{2, 8}, []int64{8}))
	assert.False(t, IsRankReducedShape([]int64{8}, []int64{1, 8}))
}

func TestOpFoldResults(t *testing.T) {
	fn := NewFunction("fold", IndexType())
	arg := fn.Params()[0]
	mixed := []OpFoldResult{StaticIndex(2), DynamicIndex(arg), StaticIndex(0)}

	dynamic, static := DispatchIndexOpFoldResults(mixed)
	assert.Equal(t, []*Value{arg}, dynamic)
	assert.Equal(t, []int64{2, Dynamic, 0}, static)
	assert.Equal(t, mixed, MixedValues(static, dynamic))

	assert.Equal(t, "2", mixed[0].String())
	assert.Equal(t, "<dynamic>", mixed[1].String())
	assert.True(t, mixed[2].IsConstantInt(0))
	assert.Equal(t, StaticIndices(2, 0), []OpFoldResult{mixed[0], mixed[2]})
}

func TestWalkOrderAndQueries(t *testing.T) {
	fn := NewFunction("walk", i32())
	b := NewBuilder(fn)
	arg := fn.Params()[0]
	loop := newLoop(b, arg)
	last := retOp(b, loop.Result(0))
	body := loop.Region(0).Front()
	b.SetInsertionPointToEnd(body)
	inner := addOp(b, body.Argument(0), body.Argument(0))
	c := constOp(b, 3)

	names := make([]string, 0)
	Walk(fn, func(op *Operation) { names = append(names, op.Name) })
	assert.Equal(t, []string{testLoop, testAdd, testConst, testRet}, names)

	assert.Len(t, OpsNamed(fn, testAdd), 1)
	assert.Same(t, c.DefiningOp(), FirstOpNamed(fn, testConst))
	assert.Nil(t, FirstOpNamed(fn, "test.missing"))

	assert.True(t, IsDefinedInside(loop, inner))
	assert.True(t, IsDefinedInside(loop, body.Argument(0)))
	assert.False(t, IsDefinedInside(loop, arg))
	assert.Same(t, loop, inner.DefiningOp().ParentOp())
	assert.True(t, loop.IsAncestor(inner.DefiningOp()))
	assert.True(t, loop.IsBeforeInBlock(last))
	assert.Same(t, last, fn.Entry().Terminator())
}

func TestConsumerChain(t *testing.T) {
	fn := NewFunction("chain", i32())
	b := NewBuilder(fn)
	arg := fn.Params()[0]
	one := constOp(b, 1)
	x := addOp(b, arg, one)
	y := addOp(b, x, one)
	ret := retOp(b, y)

	chain, ok := ConsumerChain(arg, func(op *Operation) bool { return op.Name == testRet })
	require.True(t, ok)
	assert.Equal(t, []*Operation{x.DefiningOp(), y.DefiningOp(), ret}, chain)

	// one has two users.
	_, ok = ConsumerChain(one, func(*Operation) bool { return true })
	assert.False(t, ok)
}
