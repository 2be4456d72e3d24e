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

	"github.com/stretchr/testify/require"

	"github.com/ajroetker/go-mmagen/affine"
	"github.com/ajroetker/go-mmagen/ir"
	"github.com/ajroetker/go-mmagen/ops"
)

func vec(elem ir.ElemType, shape ...int64) ir.Type    { return ir.Vector(shape, elem) }
func tensor(elem ir.ElemType, shape ...int64) ir.Type { return ir.Tensor(shape, elem) }

func parseMaps(t testing.TB, srcs ...string) []affine.Map {
	t.Helper()
	maps := make([]affine.Map, len(srcs))
	for i, s := range srcs {
		m, err := affine.Parse(s)
		require.NoError(t, err)
		maps[i] = m
	}
	return maps
}

// matmulMaps index lhs[m, k], rhs[k, n] and acc[m, n] over (m, n, k).
func matmulMaps(t testing.TB) []affine.Map {
	return parseMaps(t,
		"(d0, d1, d2) -> (d0, d2)",
		"(d0, d1, d2) -> (d2, d1)",
		"(d0, d1, d2) -> (d0, d1)")
}

var matmulIterators = []IteratorType{Parallel, Parallel, Reduction}

// buildMatmul returns a function holding a single vector gpu.multi_mma of
// m x n x k tiles of MFMA_F32_16x16x16_F16, whose result is returned.
func buildMatmul(t testing.TB, m, n, k int64) (*ir.Function, MultiMmaOp) {
	t.Helper()
	fn := ir.NewFunction("matmul", vec(ir.F16, m, k, 4), vec(ir.F16, k, n, 4), vec(ir.F32, m, n, 4))
	b := ir.NewBuilder(fn)
	p := fn.Params()
	mma := BuildMultiMma(b, p[0], p[1], p[2], matmulMaps(t), matmulIterators, MFMA_F32_16x16x16_F16)
	ops.Return(b, mma.Result(0))
	require.NoError(t, ir.Verify(fn))
	return fn, mma
}

// buildMatvec returns a gpu.multi_mma over (m, k) with lhs[m, k], rhs[k] and
// acc[m], all of extent 2.
func buildMatvec(t testing.TB) (*ir.Function, MultiMmaOp) {
	t.Helper()
	fn := ir.NewFunction("matvec", vec(ir.F16, 2, 2, 4), vec(ir.F16, 2, 4), vec(ir.F32, 2, 4))
	b := ir.NewBuilder(fn)
	p := fn.Params()
	maps := parseMaps(t, "(d0, d1) -> (d0, d1)", "(d0, d1) -> (d1)", "(d0, d1) -> (d0)")
	mma := BuildMultiMma(b, p[0], p[1], p[2], maps, []IteratorType{Parallel, Reduction}, MFMA_F32_16x16x16_F16)
	ops.Return(b, mma.Result(0))
	require.NoError(t, ir.Verify(fn))
	return fn, mma
}

func returned(fn *ir.Function) *ir.Value {
	return ops.ReturnedValues(fn)[0]
}

func countOps(fn *ir.Function, name string) int {
	return len(ir.OpsNamed(fn, name))
}

func multiMmas(fn *ir.Function) []MultiMmaOp {
	var out []MultiMmaOp
	for _, op := range ir.OpsNamed(fn, MultiMmaOpName) {
		out = append(out, MultiMmaOp{op})
	}
	return out
}
