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

// Package pipeline drives the gpu rewrite patterns over whole modules: it
// loads problem descriptions and YAML configurations, runs the configured
// stages on every function, and emits the result.
package pipeline

import (
	"context"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/ajroetker/go-mmagen/internal/logger"
	"github.com/ajroetker/go-mmagen/internal/workerpool"
	"github.com/ajroetker/go-mmagen/ir"
)

// Runner compiles modules with a fixed configuration. Functions of a module
// are compiled concurrently; each function is rewritten by one goroutine.
type Runner struct {
	cfg  Config
	pool *workerpool.Pool
	log  logger.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger used when the context carries none.
func WithLogger(l logger.Logger) Option {
	return func(r *Runner) {
		r.log = l
	}
}

// NewRunner validates cfg and starts the worker pool. Close releases it.
func NewRunner(cfg Config, opts ...Option) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Runner{cfg: cfg}
	for _, opt := range opts {
		opt(r)
	}
	r.pool = workerpool.New(cfg.Workers)
	return r, nil
}

// Config returns the runner configuration.
func (r *Runner) Config() Config { return r.cfg }

// Close stops the worker pool.
func (r *Runner) Close() {
	r.pool.Close()
}

// StageReport records the outcome of one stage on one function.
type StageReport struct {
	Stage    string        `json:"stage"`
	Changed  bool          `json:"changed"`
	Duration time.Duration `json:"duration_ns"`
}

// FunctionReport records the stages run on a function and the operations
// left once they are done.
type FunctionReport struct {
	Name   string         `json:"name"`
	Stages []StageReport  `json:"stages"`
	Ops    map[string]int `json:"ops"`
}

// Report is the outcome of a Run.
type Report struct {
	RunID     string           `json:"run_id"`
	Functions []FunctionReport `json:"functions"`
}

// Run compiles every function of m in place.
func (r *Runner) Run(ctx context.Context, m *ir.Module) (*Report, error) {
	report := &Report{
		RunID:     uuid.NewString(),
		Functions: make([]FunctionReport, len(m.Functions)),
	}
	log := r.logger(ctx).With("run_id", report.RunID, "module", m.Name)
	ctx = logger.WithContext(ctx, log)
	log.Info("compiling module", "functions", len(m.Functions), "stages", len(r.cfg.Stages))

	err := r.pool.ForEach(ctx, len(m.Functions), func(ctx context.Context, i int) error {
		fr, err := r.RunFunction(ctx, m.Functions[i])
		report.Functions[i] = fr
		return err
	})
	if err != nil {
		return report, errors.Wrapf(err, "run %s", report.RunID)
	}
	log.Info("module compiled")
	return report, nil
}

// RunFunction applies every configured stage to fn, each to a fixed point.
// A panic raised by a pattern is reported as an error naming the function.
func (r *Runner) RunFunction(ctx context.Context, fn *ir.Function) (report FunctionReport, err error) {
	report.Name = fn.Name
	log := r.logger(ctx).With("func", fn.Name)
	defer func() {
		if p := recover(); p != nil {
			err = errors.Errorf("function %s: internal compiler error: %v", fn.Name, p)
		}
	}()

	for _, stage := range r.cfg.Stages {
		start := time.Now()
		changed, err := ir.ApplyPatternsGreedily(ctx, fn, stage.Patterns(), ir.GreedyConfig{
			MaxIterations: r.cfg.MaxIterations,
			Logger:        log.With("stage", stage.Name),
		})
		report.Stages = append(report.Stages, StageReport{Stage: stage.Name, Changed: changed, Duration: time.Since(start)})
		if err != nil {
			return report, errors.Wrapf(err, "stage %s", stage.Name)
		}
		if r.cfg.VerifyEach {
			if err := ir.Verify(fn); err != nil {
				return report, errors.Wrapf(ir.VerifyError(fn, err), "after stage %s", stage.Name)
			}
		}
		log.Debug("stage done", "stage", stage.Name, "changed", changed)
	}
	report.Ops = OpHistogram(fn)
	return report, nil
}

// logger prefers the context logger, then the runner's, then Default.
func (r *Runner) logger(ctx context.Context) logger.Logger {
	if l, ok := logger.Lookup(ctx); ok {
		return l
	}
	if r.log != nil {
		return r.log
	}
	return logger.Default()
}

// OpHistogram counts the operations of fn by name.
func OpHistogram(fn *ir.Function) map[string]int {
	counts := map[string]int{}
	ir.Walk(fn, func(op *ir.Operation) {
		counts[op.Name]++
	})
	return counts
}

// OpNames returns the sorted operation names of a histogram.
func OpNames(counts map[string]int) []string {
	return slices.Sorted(maps.Keys(counts))
}
