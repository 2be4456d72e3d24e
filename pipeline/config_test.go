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
	"os"
	"path/filepath"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajroetker/go-mmagen/gpu"
)

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig("testdata/partial.yaml")
	require.NoError(t, err)
	want := Config{
		Stages: []Stage{
			{Name: StageUnroll, NativeShape: []int64{1, 1, 2}, TraversalOrder: []int{1, 0, 2}},
			{Name: StageLowerMultiMma},
		},
		MaxIterations: 4,
		Workers:       2,
		VerifyEach:    true,
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestParseConfigDefaultsStages(t *testing.T) {
	cfg, err := ParseConfig([]byte("workers: 3\n"))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, DefaultConfig().Stages, cfg.Stages)
	assert.False(t, cfg.VerifyEach)
}

func TestParseConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown stage", "stages: [vectorize, tile]", `stage 1: unknown stage "tile"`},
		{"options on wrong stage", "stages: [{name: vectorize, native_shape: [1]}]", "vectorize does not take unroll options"},
		{"non-positive extent", "stages: [{name: unroll, native_shape: [1, 0]}]", "native_shape extents must be positive"},
		{"negative workers", "workers: -1", "workers must not be negative"},
		{"negative iterations", "max_iterations: -2", "max_iterations must not be negative"},
		{"malformed", "stages: [", "parsing pipeline config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading pipeline config")
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	names := make([]string, len(cfg.Stages))
	for i, s := range cfg.Stages {
		names[i] = s.Name
		assert.Positive(t, s.Patterns().Len(), "stage %s", s.Name)
	}
	assert.Equal(t, StageNames, names)
}

func TestLoadProblems(t *testing.T) {
	problems, err := LoadProblems("testdata/matmul.json")
	require.NoError(t, err)
	require.Len(t, problems, 2)
	assert.Equal(t, "matmul_2x2x2", problems[0].Name)
	assert.Equal(t, []gpu.IteratorType{gpu.Parallel, gpu.Parallel, gpu.Reduction}, problems[0].IteratorTypes)
	assert.Equal(t, TensorSemantics, problems[1].Semantics)

	fn, err := problems[1].Build()
	require.NoError(t, err)
	types := make([]string, 0, 3)
	for _, p := range fn.Params() {
		types = append(types, p.Type().String())
	}
	assert.Equal(t, []string{"tensor<2x2x16xf16>", "tensor<2x16xf16>", "tensor<2x8xf32>"}, types)
}

func TestParseSingleProblem(t *testing.T) {
	data := `{"name": "one", "kind": "MFMA_F32_16x16x16_F16", "lhs": [1], "rhs": [1], "acc": [],
		"indexing_maps": ["(k) -> (k)", "(k) -> (k)", "(k) -> ()"], "iterator_types": ["reduction"]}`
	problems, err := ParseProblems([]byte(data))
	require.NoError(t, err)
	require.Len(t, problems, 1)
	fn, err := problems[0].Build()
	require.NoError(t, err)
	assert.Equal(t, "vector<4xf32>", fn.Params()[2].Type().String())

	_, err = ParseProblems([]byte(`{"name": 3}`))
	require.Error(t, err)
	_, err = ParseProblems([]byte(`[{"iterator_types": ["window"]}]`))
	require.Error(t, err)
}

func TestProblemBuildErrors(t *testing.T) {
	valid := func() Problem {
		return Problem{
			Name: "p", Kind: "MFMA_F32_16x16x16_F16",
			Lhs: []int64{2, 2}, Rhs: []int64{2, 2}, Acc: []int64{2, 2},
			IndexingMaps:  []string{"(m, n, k) -> (m, k)", "(m, n, k) -> (k, n)", "(m, n, k) -> (m, n)"},
			IteratorTypes: []gpu.IteratorType{gpu.Parallel, gpu.Parallel, gpu.Reduction},
		}
	}
	tests := []struct {
		name   string
		mutate func(p *Problem)
		want   string
	}{
		{"no name", func(p *Problem) { p.Name = "" }, "problem has no name"},
		{"unknown kind", func(p *Problem) { p.Kind = "MFMA_X" }, `unknown mma kind "MFMA_X"`},
		{"unknown semantics", func(p *Problem) { p.Semantics = "memref" }, `unknown semantics "memref"`},
		{"map count", func(p *Problem) { p.IndexingMaps = p.IndexingMaps[:2] }, "expected 3 indexing maps, got 2"},
		{"bad map", func(p *Problem) { p.IndexingMaps[0] = "(m, n, k) -> (m +" }, "parsing affine map"},
		{"shape mismatch", func(p *Problem) { p.Lhs = []int64{2, 3} }, "shape does not match iteration bounds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid()
			tt.mutate(&p)
			_, err := p.Build()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
	_, err := valid().Build()
	require.NoError(t, err)
}

func TestBuildModuleRejectsDuplicates(t *testing.T) {
	problems, err := LoadProblems("testdata/matmul.json")
	require.NoError(t, err)
	_, err = BuildModule("dup", []Problem{problems[0], problems[0]})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate problem name "matmul_2x2x2"`)
}

func TestLoadProblemsMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))
	_, err := LoadProblems(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "p.json")
}

func TestStageJSONForms(t *testing.T) {
	var cfg Config
	require.NoError(t, json.Unmarshal([]byte(`{"stages": ["vectorize", {"name": "unroll", "native_shape": [1, 2]}]}`), &cfg))
	assert.Equal(t, []Stage{{Name: StageVectorize}, {Name: StageUnroll, NativeShape: []int64{1, 2}}}, cfg.Stages)
	require.Error(t, json.Unmarshal([]byte(`{"stages": [3]}`), &cfg))
}
