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
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajroetker/go-mmagen/ir"
	"github.com/ajroetker/go-mmagen/ops"
)

// buildShuffle stages a 1x8 row into a 4x8 tensor. The body yields its
// argument when identity is set, and a 2x8 slice of it otherwise.
func buildShuffle(t testing.TB, identity bool) (*ir.Function, ShuffleTensorOp) {
	t.Helper()
	fn := ir.NewFunction("shuffle", tensor(ir.F32, 1, 8), tensor(ir.F32, 4, 8))
	b := ir.NewBuilder(fn)
	p := fn.Params()
	params := ops.SliceParams{
		Offsets: ir.StaticIndices(0, 0),
		Sizes:   ir.StaticIndices(1, 8),
		Strides: ops.UnitStrides(2),
	}
	resultType := tensor(ir.F32, 2, 8)
	if identity {
		resultType = p[1].Type()
	}
	shuffle := BuildShuffleTensor(b, resultType, p[0], p[1], params)

	b.SetInsertionPointToEnd(shuffle.Body())
	yielded := shuffle.Body().Argument(0)
	if !identity {
		yielded = ops.ExtractSlice(b, yielded, ops.SliceParams{
			Offsets: ir.StaticIndices(0, 0),
			Sizes:   ir.StaticIndices(2, 8),
			Strides: ops.UnitStrides(2),
		})
	}
	Yield(b, yielded)

	b.SetInsertionPointToEnd(fn.Entry())
	ops.Return(b, shuffle.Result(0))
	require.NoError(t, ir.Verify(fn))
	return fn, shuffle
}

func opNames(block *ir.Block) []string {
	var names []string
	for _, op := range block.Operations() {
		names = append(names, op.Name)
	}
	return names
}

func TestVectorizeStaticMultiMma(t *testing.T) {
	fn := ir.NewFunction("tensor_matmul", tensor(ir.F16, 2, 2, 4), tensor(ir.F16, 2, 2, 4), tensor(ir.F32, 2, 2, 4))
	b := ir.NewBuilder(fn)
	p := fn.Params()
	mma := BuildMultiMma(b, p[0], p[1], p[2], matmulMaps(t), matmulIterators, MFMA_F32_16x16x16_F16)
	ops.Return(b, mma.Result(0))
	require.NoError(t, ir.Verify(fn))

	require.NoError(t, ir.ApplyPattern(fn, mma.Operation, VectorizeStaticMultiMmaPattern()))
	require.NoError(t, ir.Verify(fn))

	reads := ir.OpsNamed(fn, ops.TransferReadOpName)
	require.Len(t, reads, 3)
	for i, r := range reads {
		assert.Same(t, p[i], r.Operand(0))
		assert.Equal(t, p[i].Type().Shape, r.Result(0).Type().Shape)
		assert.True(t, r.Result(0).Type().IsVector())
	}

	vectorized := multiMmas(fn)
	require.Len(t, vectorized, 1)
	assert.True(t, vectorized[0].HasVectorSemantics())
	assert.Equal(t, []int64{2, 2, 2}, vectorized[0].IterationBounds())
	assert.Same(t, mma.Kind(), vectorized[0].Kind())

	write := returned(fn).DefiningOp()
	require.Equal(t, ops.TransferWriteOpName, write.Name)
	assert.Same(t, vectorized[0].Result(0), write.Operand(0))
	assert.Same(t, p[2], write.Operand(1))
}

func TestVectorizeStaticMultiMmaMatchFailures(t *testing.T) {
	t.Run("vector semantics", func(t *testing.T) {
		fn, mma := buildMatmul(t, 2, 2, 2)
		err := ir.ApplyPattern(fn, mma.Operation, VectorizeStaticMultiMmaPattern())
		require.True(t, ir.IsMatchFailure(err))
		assert.Contains(t, err.Error(), "tensor semantics")
	})
	t.Run("dynamic shape", func(t *testing.T) {
		fn := ir.NewFunction("dynamic", tensor(ir.F16, ir.Dynamic, 2, 4), tensor(ir.F16, 2, 2, 4), tensor(ir.F32, ir.Dynamic, 2, 4))
		b := ir.NewBuilder(fn)
		p := fn.Params()
		mma := BuildMultiMma(b, p[0], p[1], p[2], matmulMaps(t), matmulIterators, MFMA_F32_16x16x16_F16)
		err := ir.ApplyPattern(fn, mma.Operation, VectorizeStaticMultiMmaPattern())
		require.True(t, ir.IsMatchFailure(err))
		assert.Contains(t, err.Error(), "non-static shape for vectorization")
	})
}

func TestVectorizeStaticShuffleTensorResult(t *testing.T) {
	fn, shuffle := buildShuffle(t, false)
	require.NoError(t, ir.ApplyPattern(fn, shuffle.Operation, VectorizeStaticShuffleTensorResultPattern()))
	require.NoError(t, ir.Verify(fn))
	assert.True(t, shuffle.IsErased())

	shuffles := ir.OpsNamed(fn, ShuffleTensorOpName)
	require.Len(t, shuffles, 1)
	vectorized := ShuffleTensorOp{shuffles[0]}
	assert.Equal(t, "vector<2x8xf32>", vectorized.Result(0).Type().String())
	assert.Same(t, fn.Params()[0], vectorized.Source())
	assert.Same(t, fn.Params()[1], vectorized.Dest())

	body := vectorized.Body()
	assert.Equal(t, []string{ops.ExtractSliceOpName, ops.ConstantOpName, ops.TransferReadOpName, YieldOpName}, opNames(body))
	slice := body.Operations()[0]
	assert.Same(t, body.Argument(0), slice.Operand(0))
	read := body.Terminator().Operand(0).DefiningOp()
	assert.Same(t, slice.Result(0), read.Operand(0))

	write := returned(fn).DefiningOp()
	require.Equal(t, ops.TransferWriteOpName, write.Name)
	assert.Same(t, vectorized.Result(0), write.Operand(0))
	assert.Equal(t, ops.EmptyOpName, write.Operand(1).DefiningOp().Name)
	assert.Equal(t, "tensor<2x8xf32>", returned(fn).Type().String())

	err := ir.ApplyPattern(fn, vectorized.Operation, VectorizeStaticShuffleTensorResultPattern())
	require.True(t, ir.IsMatchFailure(err))
	assert.Contains(t, err.Error(), "result is not a tensor")
}

func TestVectorizationPatternsConverge(t *testing.T) {
	fn, _ := buildShuffle(t, true)
	set := ir.NewPatternSet()
	PopulateVectorizationPatterns(set)
	changed, err := ir.ApplyPatternsGreedily(context.Background(), fn, set, ir.GreedyConfig{})
	require.NoError(t, err)
	assert.True(t, changed)
	require.NoError(t, ir.Verify(fn))
	assert.Equal(t, 1, countOps(fn, ShuffleTensorOpName))
	assert.Equal(t, 1, countOps(fn, ops.TransferWriteOpName))
}
