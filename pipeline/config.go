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

	json "github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/ajroetker/go-mmagen/gpu"
	"github.com/ajroetker/go-mmagen/ir"
)

// Stage names accepted in a pipeline configuration.
const (
	StageVectorize     = "vectorize"
	StageUnroll        = "unroll"
	StageDropUnitDims  = "drop-unit-dims"
	StageLowerMultiMma = "lower-multi-mma"
	StageFuseForall    = "fuse-forall"
	StageLowerShuffle  = "lower-shuffle"
	StageLowerBarrier  = "lower-barrier"
)

// StageNames lists every known stage in canonical order.
var StageNames = []string{
	StageVectorize,
	StageUnroll,
	StageDropUnitDims,
	StageLowerMultiMma,
	StageFuseForall,
	StageLowerShuffle,
	StageLowerBarrier,
}

// Stage is one greedy rewrite round of the pipeline.
type Stage struct {
	Name string `yaml:"name" json:"name"`

	// NativeShape is the unroll target for StageUnroll. Empty means unit
	// tiles along every iteration dimension.
	NativeShape []int64 `yaml:"native_shape,omitempty" json:"native_shape,omitempty"`

	// TraversalOrder is the tile loop order for StageUnroll, outermost
	// first. Empty means the natural order.
	TraversalOrder []int `yaml:"traversal_order,omitempty" json:"traversal_order,omitempty"`
}

// UnmarshalYAML accepts either a bare stage name or a mapping.
func (s *Stage) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*s = Stage{Name: node.Value}
		return nil
	}
	type plain Stage
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*s = Stage(p)
	return nil
}

// UnmarshalJSON accepts either a bare stage name or an object.
func (s *Stage) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*s = Stage{Name: name}
		return nil
	}
	type plain Stage
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = Stage(p)
	return nil
}

// Config describes a compilation pipeline.
type Config struct {
	// Stages run in order, each to a fixed point.
	Stages []Stage `yaml:"stages" json:"stages"`

	// MaxIterations caps the greedy sweeps of each stage. Zero means
	// ir.DefaultMaxIterations.
	MaxIterations int `yaml:"max_iterations" json:"max_iterations,omitempty"`

	// Workers is the number of functions compiled concurrently. Zero means
	// GOMAXPROCS.
	Workers int `yaml:"workers" json:"workers,omitempty"`

	// VerifyEach verifies every function after each stage.
	VerifyEach bool `yaml:"verify_each" json:"verify_each,omitempty"`
}

// DefaultConfig runs every stage once in canonical order, unrolling to unit
// tiles, and verifies after each stage.
func DefaultConfig() Config {
	return Config{
		Stages:     lo.Map(StageNames, func(name string, _ int) Stage { return Stage{Name: name} }),
		VerifyEach: true,
	}
}

// ParseConfig decodes a YAML configuration. Stages left out of the document
// default to DefaultConfig's stages.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "parsing pipeline config")
	}
	if len(cfg.Stages) == 0 {
		cfg.Stages = DefaultConfig().Stages
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads and parses the YAML configuration at path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "reading pipeline config %s", path)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return Config{}, errors.Wrapf(err, "in %s", path)
	}
	return cfg, nil
}

// Validate checks stage names and unroll options.
func (c Config) Validate() error {
	if c.MaxIterations < 0 {
		return errors.Errorf("max_iterations must not be negative, got %d", c.MaxIterations)
	}
	if c.Workers < 0 {
		return errors.Errorf("workers must not be negative, got %d", c.Workers)
	}
	for i, s := range c.Stages {
		if !lo.Contains(StageNames, s.Name) {
			return errors.Errorf("stage %d: unknown stage %q", i, s.Name)
		}
		if s.Name != StageUnroll && (len(s.NativeShape) > 0 || len(s.TraversalOrder) > 0) {
			return errors.Errorf("stage %d: %s does not take unroll options", i, s.Name)
		}
		if lo.SomeBy(s.NativeShape, func(d int64) bool { return d <= 0 }) {
			return errors.Errorf("stage %d: native_shape extents must be positive, got %v", i, s.NativeShape)
		}
	}
	return nil
}

// Patterns returns the pattern set applied by the stage.
func (s Stage) Patterns() *ir.PatternSet {
	set := ir.NewPatternSet()
	switch s.Name {
	case StageVectorize:
		gpu.PopulateVectorizationPatterns(set)
	case StageUnroll:
		gpu.PopulateUnrollPatterns(set, s.unrollOptions())
	case StageDropUnitDims:
		gpu.PopulateDropUnitDimsPatterns(set)
	case StageLowerMultiMma:
		gpu.PopulateLowerMultiMmaPatterns(set)
	case StageFuseForall:
		gpu.PopulateFuseForallPatterns(set)
	case StageLowerShuffle:
		gpu.PopulateLowerShuffleTensorPatterns(set)
	case StageLowerBarrier:
		gpu.PopulateLowerValueBarrierPatterns(set)
	}
	return set
}

func (s Stage) unrollOptions() gpu.UnrollOptions {
	opts := gpu.UnrollOptions{NativeShape: gpu.UnitNativeShape}
	if len(s.NativeShape) > 0 {
		opts.NativeShape = gpu.FixedNativeShape(s.NativeShape)
	}
	if len(s.TraversalOrder) > 0 {
		opts.TraversalOrder = gpu.FixedTraversalOrder(s.TraversalOrder)
	}
	return opts
}
