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

// buildNative returns a function holding a gpu.multi_mma with empty maps.
func buildNative(t testing.TB, kind MmaKind, lhs, rhs, acc ir.Type) (*ir.Function, MultiMmaOp) {
	t.Helper()
	fn := ir.NewFunction("native", lhs, rhs, acc)
	b := ir.NewBuilder(fn)
	p := fn.Params()
	mma := BuildMultiMma(b, p[0], p[1], p[2], EmptyIndexingMaps(), nil, kind)
	ops.Return(b, mma.Result(0))
	require.NoError(t, ir.Verify(fn))
	return fn, mma
}

func TestLowerMultiMmaCastsToNativeTypes(t *testing.T) {
	fn, mma := buildNative(t, MFMA_F32_16x16x16_F16, vec(ir.F16, 1, 1, 4), vec(ir.F16, 1, 1, 4), vec(ir.F32, 1, 1, 4))
	require.NoError(t, ir.ApplyPattern(fn, mma.Operation, LowerMultiMmaPattern()))
	require.NoError(t, ir.Verify(fn))

	mfma := ir.FirstOpNamed(fn, ops.MfmaOpName)
	require.NotNil(t, mfma)
	for i, want := range []string{"vector<4xf16>", "vector<4xf16>", "vector<4xf32>"} {
		operand := mfma.Operand(i)
		assert.Equal(t, want, operand.Type().String())
		assert.Equal(t, ops.ShapeCastOpName, operand.DefiningOp().Name)
		assert.Same(t, fn.Params()[i], operand.DefiningOp().Operand(0))
	}
	assert.Equal(t, int64(16), mfma.Attr("m"))

	out := returned(fn)
	assert.Equal(t, ops.ShapeCastOpName, out.DefiningOp().Name)
	assert.Same(t, mfma.Result(0), out.DefiningOp().Operand(0))
	assert.Equal(t, "vector<1x1x4xf32>", out.Type().String())
	assert.Zero(t, countOps(fn, MultiMmaOpName))
}

func TestLowerMultiMmaKeepsNativeOperands(t *testing.T) {
	fn, mma := buildNative(t, WMMA_F32_16x16x16_F16, vec(ir.F16, 16), vec(ir.F16, 16), vec(ir.F32, 8))
	require.NoError(t, ir.ApplyPattern(fn, mma.Operation, LowerMultiMmaPattern()))
	require.NoError(t, ir.Verify(fn))

	wmma := ir.FirstOpNamed(fn, ops.WmmaOpName)
	require.NotNil(t, wmma)
	assert.Equal(t, fn.Params(), wmma.Operands())
	assert.Equal(t, 1, countOps(fn, ops.ShapeCastOpName), "only the result is cast back")
}

func TestLowerMultiMmaMatchFailures(t *testing.T) {
	t.Run("tensor semantics", func(t *testing.T) {
		fn, mma := buildNative(t, MFMA_F32_16x16x16_F16, tensor(ir.F16, 4), tensor(ir.F16, 4), tensor(ir.F32, 4))
		err := ir.ApplyPattern(fn, mma.Operation, LowerMultiMmaPattern())
		require.True(t, ir.IsMatchFailure(err))
		assert.Contains(t, err.Error(), "lowering to concrete op requires vector semantics")
	})
	t.Run("outer dimensions", func(t *testing.T) {
		fn, mma := buildMatmul(t, 2, 2, 2)
		err := ir.ApplyPattern(fn, mma.Operation, LowerMultiMmaPattern())
		require.True(t, ir.IsMatchFailure(err))
		assert.Contains(t, err.Error(), "must be a single mma operation")
	})
}

func TestLowerMultiMmaPanicsOnElementCountMismatch(t *testing.T) {
	fn, mma := buildNative(t, MFMA_F32_16x16x16_F16, vec(ir.F16, 8), vec(ir.F16, 4), vec(ir.F32, 4))
	assert.Panics(t, func() {
		_ = ir.ApplyPattern(fn, mma.Operation, LowerMultiMmaPattern())
	})
}

func TestDropMultiMmaUnitDims(t *testing.T) {
	fn, mma := buildMatmul(t, 1, 1, 1)
	require.Equal(t, []int64{1, 1, 1}, mma.IterationBounds())
	require.NoError(t, ir.ApplyPattern(fn, mma.Operation, DropMultiMmaUnitDimsPattern()))
	require.NoError(t, ir.Verify(fn))

	extracts := ir.OpsNamed(fn, ops.ExtractOpName)
	require.Len(t, extracts, 3)
	for _, e := range extracts {
		assert.Equal(t, []int64{0, 0}, e.I64ArrayAttr("static_position"))
	}

	folded := multiMmas(fn)
	require.Len(t, folded, 1)
	assert.Empty(t, folded[0].IterationBounds())
	assert.Equal(t, "vector<4xf16>", folded[0].LhsType().String())
	assert.Equal(t, "vector<4xf32>", folded[0].ResultType().String())

	out := returned(fn)
	assert.Equal(t, ops.BroadcastOpName, out.DefiningOp().Name)
	assert.True(t, out.Type().Equal(mma.ResultType()))
}

func TestDropMultiMmaUnitDimsMatchFailures(t *testing.T) {
	t.Run("non-unit bounds", func(t *testing.T) {
		fn, mma := buildMatmul(t, 1, 2, 1)
		err := ir.ApplyPattern(fn, mma.Operation, DropMultiMmaUnitDimsPattern())
		require.True(t, ir.IsMatchFailure(err))
		assert.Contains(t, err.Error(), "not all iteration bounds are unit")
	})
	t.Run("no bounds", func(t *testing.T) {
		fn, mma := buildNative(t, MFMA_F32_16x16x16_F16, vec(ir.F16, 4), vec(ir.F16, 4), vec(ir.F32, 4))
		err := ir.ApplyPattern(fn, mma.Operation, DropMultiMmaUnitDimsPattern())
		require.True(t, ir.IsMatchFailure(err))
		assert.Contains(t, err.Error(), "no dimensions to fold")
	})
	t.Run("tensor semantics", func(t *testing.T) {
		fn := ir.NewFunction("tensor", tensor(ir.F16, 1, 1, 4), tensor(ir.F16, 1, 1, 4), tensor(ir.F32, 1, 1, 4))
		b := ir.NewBuilder(fn)
		p := fn.Params()
		mma := BuildMultiMma(b, p[0], p[1], p[2], matmulMaps(t), matmulIterators, MFMA_F32_16x16x16_F16)
		err := ir.ApplyPattern(fn, mma.Operation, DropMultiMmaUnitDimsPattern())
		require.True(t, ir.IsMatchFailure(err))
		assert.Contains(t, err.Error(), "unimplemented: unit dim dropping for tensor mma ops")
	})
}

func TestUnrollAndLowerToIntrinsics(t *testing.T) {
	fn, _ := buildMatmul(t, 2, 2, 2)
	set := ir.NewPatternSet()
	PopulateUnrollPatterns(set, unitUnroll())
	PopulateDropUnitDimsPatterns(set)
	PopulateLowerMultiMmaPatterns(set)

	changed, err := ir.ApplyPatternsGreedily(context.Background(), fn, set, ir.GreedyConfig{})
	require.NoError(t, err)
	require.True(t, changed)
	require.NoError(t, ir.Verify(fn))
	assert.Zero(t, countOps(fn, MultiMmaOpName))
	assert.Equal(t, 8, countOps(fn, ops.MfmaOpName))
	assert.Equal(t, "vector<2x2x4xf32>", returned(fn).Type().String())
}

func TestDropThenLower(t *testing.T) {
	fn, _ := buildMatmul(t, 1, 1, 1)
	set := ir.NewPatternSet()
	PopulateDropUnitDimsPatterns(set)
	PopulateLowerMultiMmaPatterns(set)

	_, err := ir.ApplyPatternsGreedily(context.Background(), fn, set, ir.GreedyConfig{})
	require.NoError(t, err)
	require.NoError(t, ir.Verify(fn))

	mfma := ir.FirstOpNamed(fn, ops.MfmaOpName)
	require.NotNil(t, mfma)
	for i := range 3 {
		assert.Equal(t, ops.ExtractOpName, mfma.Operand(i).DefiningOp().Name)
	}
	assert.Equal(t, ops.BroadcastOpName, returned(fn).DefiningOp().Name)
}
