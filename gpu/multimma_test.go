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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajroetker/go-mmagen/affine"
	"github.com/ajroetker/go-mmagen/ir"
	"github.com/ajroetker/go-mmagen/ops"
)

func TestMultiMmaVerify(t *testing.T) {
	matmul := []string{"(d0, d1, d2) -> (d0, d2)", "(d0, d1, d2) -> (d2, d1)", "(d0, d1, d2) -> (d0, d1)"}
	tests := []struct {
		name          string
		lhs, rhs, acc ir.Type
		maps          []string
		iterators     []IteratorType
		want          string
	}{
		{
			name: "valid",
		},
		{
			name: "missing map",
			maps: matmul[:2],
			want: "expected an indexing map for each operand",
		},
		{
			name: "symbolic map",
			maps: []string{"(d0, d1, d2)[s0] -> (d0, d2)", matmul[1], matmul[2]},
			want: "expected indexing map 0 to have no symbols",
		},
		{
			name: "map input count",
			maps: []string{"(d0, d1) -> (d0, d1)", matmul[1], matmul[2]},
			want: "expected indexing map 0 to have 3 number of inputs",
		},
		{
			name: "no inner dimensions",
			maps: []string{"(d0, d1, d2) -> (d0, d2, d1)", matmul[1], matmul[2]},
			want: "expected indexing map 0 to have fewer than 3 number of outputs",
		},
		{
			name: "not a projected permutation",
			maps: []string{"(d0, d1, d2) -> (d0 + d2, d2)", matmul[1], matmul[2]},
			want: "projected permutation",
		},
		{
			name: "dynamic inner dim",
			lhs:  tensor(ir.F16, 2, 2, ir.Dynamic),
			rhs:  tensor(ir.F16, 2, 2, 4),
			acc:  tensor(ir.F32, 2, 2, 4),
			want: "Unexpected dynamic inner dim for operand 0",
		},
		{
			name: "mixed containers",
			lhs:  tensor(ir.F16, 2, 2, 4),
			want: "same container kind",
		},
		{
			name: "unclassified dimension",
			rhs:  vec(ir.F16, 2, 4),
			acc:  vec(ir.F32, 2, 4),
			maps: []string{matmul[0], "(d0, d1, d2) -> (d2)", "(d0, d1, d2) -> (d0)"},
			want: "failed to infer contraction dims",
		},
		{
			name:      "parallel iterator missing from accumulator",
			iterators: []IteratorType{Parallel, Parallel, Parallel},
			want:      "expected parallel iterator 2 to be indexed by the accumulator",
		},
		{
			name: "lhs shape",
			lhs:  vec(ir.F16, 3, 2, 4),
			want: "lhs shape does not match iteration bounds",
		},
		{
			name: "rhs shape",
			rhs:  vec(ir.F16, 3, 2, 4),
			want: "rhs shape does not match iteration bounds",
		},
		{
			name: "element type",
			lhs:  vec(ir.F32, 2, 2, 4),
			want: "lhs element type f32 does not match expected element type f16 for intrinsic",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			lhs, rhs, acc := vec(ir.F16, 2, 2, 4), vec(ir.F16, 2, 2, 4), vec(ir.F32, 2, 2, 4)
			if tc.lhs.Shape != nil {
				lhs = tc.lhs
			}
			if tc.rhs.Shape != nil {
				rhs = tc.rhs
			}
			if tc.acc.Shape != nil {
				acc = tc.acc
			}
			maps, iterators := tc.maps, tc.iterators
			if maps == nil {
				maps = matmul
			}
			if iterators == nil {
				iterators = matmulIterators
			}
			fn := ir.NewFunction("verify", lhs, rhs, acc)
			b := ir.NewBuilder(fn)
			p := fn.Params()
			mma := BuildMultiMma(b, p[0], p[1], p[2], parseMaps(t, maps...), iterators, MFMA_F32_16x16x16_F16)

			err := ir.VerifyOp(mma.Operation)
			if tc.want == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
			assert.Contains(t, err.Error(), "'gpu.multi_mma' op")
		})
	}
}

func TestIterationBounds(t *testing.T) {
	_, mma := buildMatmul(t, 2, 3, 5)
	bounds := mma.IterationBounds()
	assert.Equal(t, []int64{2, 3, 5}, bounds)
	assert.Equal(t, bounds, mma.IterationBounds())
	assert.Equal(t, bounds, mma.ShapeForUnroll())

	assert.Equal(t, 2, mma.LhsOuterRank())
	assert.Equal(t, []int64{4}, mma.LhsInnerShape())
	assert.Equal(t, []int64{4}, mma.AccInnerShape())
	assert.True(t, mma.HasVectorSemantics())
	assert.False(t, mma.HasTensorSemantics())
}

func TestNativeMultiMmaHasNoBounds(t *testing.T) {
	fn := ir.NewFunction("native", vec(ir.F16, 4), vec(ir.F16, 4), vec(ir.F32, 4))
	b := ir.NewBuilder(fn)
	p := fn.Params()
	mma := BuildMultiMma(b, p[0], p[1], p[2], EmptyIndexingMaps(), nil, MFMA_F32_16x16x16_F16)
	require.NoError(t, ir.Verify(fn))

	assert.Empty(t, mma.IterationBounds())
	for _, m := range mma.IndexingMaps() {
		assert.True(t, m.IsEmpty())
	}
	assert.Equal(t, []int64{4}, mma.LhsInnerShape())
}

func TestBuildMultiMmaFromExprs(t *testing.T) {
	fn := ir.NewFunction("exprs", vec(ir.F16, 2, 2, 4), vec(ir.F16, 2, 2, 4), vec(ir.F32, 2, 2, 4))
	b := ir.NewBuilder(fn)
	p := fn.Params()
	d := affine.Dims(3)
	mma := BuildMultiMmaFromExprs(b, p[0], p[1], p[2],
		[][]affine.Expr{{d[0], d[2]}, {d[2], d[1]}, {d[0], d[1]}}, matmulIterators, MFMA_F32_16x16x16_F16)
	require.NoError(t, ir.VerifyOp(mma.Operation))

	want := matmulMaps(t)
	got := mma.IndexingMaps()
	require.Len(t, got, 3)
	for i := range want {
		assert.True(t, want[i].Equal(got[i]), "map %d: %s", i, got[i])
	}
	assert.Equal(t, matmulIterators, mma.IteratorTypes())
	assert.Same(t, MFMA_F32_16x16x16_F16, mma.Kind())

	same, ok := AsMultiMma(mma.Operation)
	require.True(t, ok)
	assert.Same(t, mma.Operation, same.Operation)
	_, ok = AsMultiMma(p[0].DefiningOp())
	assert.False(t, ok)
}

func TestIteratorTypeText(t *testing.T) {
	for _, it := range []IteratorType{Parallel, Reduction} {
		text, err := it.MarshalText()
		require.NoError(t, err)
		var back IteratorType
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, it, back)
	}
	_, err := ParseIteratorType("window")
	assert.Error(t, err)
}

func TestMmaKinds(t *testing.T) {
	names := make([]string, 0)
	for _, k := range MmaKinds() {
		names = append(names, k.Name())
	}
	assert.Equal(t, []string{
		"MFMA_F32_16x16x16_F16",
		"MFMA_F32_16x16x4_F32",
		"MFMA_F32_32x32x8_F16",
		"MFMA_I32_16x16x32_I8",
		"WMMA_F32_16x16x16_F16",
	}, names)

	k, ok := LookupMmaKind("WMMA_F32_16x16x16_F16")
	require.True(t, ok)
	a, bElem, c := k.ABCElementTypes()
	assert.Equal(t, []ir.ElemType{ir.F16, ir.F16, ir.F32}, []ir.ElemType{a, bElem, c})
	assert.Panics(t, func() { RegisterMmaKind(k) })

	fn := ir.NewFunction("build", vec(ir.F16, 4), vec(ir.F16, 4), vec(ir.F32, 4))
	b := ir.NewBuilder(fn)
	p := fn.Params()
	_, err := MFMA_F32_16x16x16_F16.BuildMmaOperation(b, vec(ir.F32, 4), p[0], p[1], p[2])
	require.NoError(t, err)
	assert.Equal(t, 1, countOps(fn, ops.MfmaOpName))

	_, err = MFMA_F32_16x16x16_F16.BuildMmaOperation(b, vec(ir.F32, 4), p[2], p[1], p[2])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "A operand has type vector<4xf32>")
}
