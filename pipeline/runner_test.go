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

package pipeline

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajroetker/go-mmagen/gpu"
	"github.com/ajroetker/go-mmagen/internal/logger"
	"github.com/ajroetker/go-mmagen/ir"
	"github.com/ajroetker/go-mmagen/ops"
)

func loadMatmul(t *testing.T) []Problem {
	t.Helper()
	problems, err := LoadProblems("testdata/matmul.json")
	require.NoError(t, err)
	return problems
}

func TestCompileDefaultPipeline(t *testing.T) {
	var logs bytes.Buffer
	ctx := logger.WithContext(context.Background(), logger.Text(&logs, slog.LevelInfo))

	m, report, err := Compile(ctx, DefaultConfig(), "kernels", loadMatmul(t))
	require.NoError(t, err)
	_, err = uuid.Parse(report.RunID)
	require.NoError(t, err)
	require.Len(t, report.Functions, 2)

	matmul := report.Functions[0]
	assert.Equal(t, "matmul_2x2x2", matmul.Name)
	assert.Len(t, matmul.Stages, len(StageNames))
	assert.Equal(t, 8, matmul.Ops[ops.MfmaOpName])
	assert.Zero(t, matmul.Ops[gpu.MultiMmaOpName])
	assert.Equal(t, 1, matmul.Ops[ops.ReturnOpName])

	// The tensor problem is vectorized first, then unrolled into two wmma
	// calls threaded along k for each of the two rows.
	matvec := report.Functions[1]
	assert.Equal(t, 4, matvec.Ops[ops.WmmaOpName])
	assert.Equal(t, 3, matvec.Ops[ops.TransferReadOpName])
	assert.Equal(t, 1, matvec.Ops[ops.TransferWriteOpName])
	assert.Zero(t, matvec.Ops[gpu.MultiMmaOpName])

	for _, fn := range m.Functions {
		require.NoError(t, ir.Verify(fn))
	}
	assert.Contains(t, logs.String(), "run_id="+report.RunID)
	assert.Contains(t, logs.String(), "module compiled")
}

func TestStageReportsChanges(t *testing.T) {
	m, report, err := Compile(context.Background(), DefaultConfig(), "kernels", loadMatmul(t)[:1])
	require.NoError(t, err)
	require.NotNil(t, m)
	changed := map[string]bool{}
	for _, s := range report.Functions[0].Stages {
		changed[s.Stage] = s.Changed
	}
	assert.Equal(t, map[string]bool{
		StageVectorize:     false,
		StageUnroll:        true,
		StageDropUnitDims:  false,
		StageLowerMultiMma: true,
		StageFuseForall:    false,
		StageLowerShuffle:  false,
		StageLowerBarrier:  false,
	}, changed)
}

func TestCompilePartialUnroll(t *testing.T) {
	cfg, err := LoadConfig("testdata/partial.yaml")
	require.NoError(t, err)
	problems := loadMatmul(t)[:1]
	problems[0].Lhs = []int64{2, 4}
	problems[0].Rhs = []int64{4, 2}

	m, report, err := Compile(context.Background(), cfg, "partial", problems)
	require.NoError(t, err)
	// 2x2 parallel tiles by 2 reduction tiles, none of them native.
	assert.Equal(t, 8, report.Functions[0].Ops[gpu.MultiMmaOpName])
	assert.Zero(t, report.Functions[0].Ops[ops.MfmaOpName])
	for _, op := range ir.OpsNamed(m.Functions[0], gpu.MultiMmaOpName) {
		mma, ok := gpu.AsMultiMma(op)
		require.True(t, ok)
		assert.Equal(t, []int64{1, 1, 2}, mma.IterationBounds())
	}
}

func TestRunnerReportsNonConvergence(t *testing.T) {
	cfg := Config{Stages: []Stage{{Name: StageUnroll}}, MaxIterations: 1, Workers: 1}
	_, _, err := Compile(context.Background(), cfg, "capped", loadMatmul(t)[:1])
	require.ErrorIs(t, err, ir.ErrNoConvergence)
	assert.Contains(t, err.Error(), "stage unroll")
}

func TestRunnerHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := DefaultConfig()
	cfg.Workers = 1
	_, _, err := Compile(ctx, cfg, "canceled", loadMatmul(t))
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunnerRecoversPanics(t *testing.T) {
	// A native op whose lhs does not hold as many elements as the intrinsic
	// operand verifies, but cannot be lowered.
	fn := ir.NewFunction("broken",
		ir.Vector([]int64{8}, ir.F16), ir.Vector([]int64{4}, ir.F16), ir.Vector([]int64{4}, ir.F32))
	b := ir.NewBuilder(fn)
	p := fn.Params()
	mma := gpu.BuildMultiMma(b, p[0], p[1], p[2], gpu.EmptyIndexingMaps(), nil, gpu.MFMA_F32_16x16x16_F16)
	ops.Return(b, mma.Result(0))
	require.NoError(t, ir.Verify(fn))

	r, err := NewRunner(Config{Stages: []Stage{{Name: StageLowerMultiMma}}}, WithLogger(logger.Nop()))
	require.NoError(t, err)
	defer r.Close()
	report, err := r.RunFunction(context.Background(), fn)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "function broken: internal compiler error")
	assert.Equal(t, "broken", report.Name)
}

func TestNewRunnerValidates(t *testing.T) {
	_, err := NewRunner(Config{Stages: []Stage{{Name: "bogus"}}})
	require.Error(t, err)
}

func TestEmit(t *testing.T) {
	m, _, err := Compile(context.Background(), DefaultConfig(), "kernels", loadMatmul(t)[:1])
	require.NoError(t, err)

	text, err := Emit(m, FormatText)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(text), "func @matmul_2x2x2("))
	assert.Equal(t, 8, strings.Count(string(text), `"amdgpu.mfma"`))

	data, err := Emit(m, FormatJSON)
	require.NoError(t, err)
	var funcs []ir.FunctionJSON
	require.NoError(t, json.Unmarshal(data, &funcs))
	require.Len(t, funcs, 1)
	assert.Equal(t, "matmul_2x2x2", funcs[0].Name)

	_, err = Emit(m, "yaml")
	require.Error(t, err)
}

func TestOpHistogram(t *testing.T) {
	fn, err := loadMatmul(t)[0].Build()
	require.NoError(t, err)
	counts := OpHistogram(fn)
	assert.Equal(t, []string{ops.ReturnOpName, gpu.MultiMmaOpName}, OpNames(counts))
}
