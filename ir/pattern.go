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
	"context"
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/ajroetker/go-mmagen/internal/logger"
)

// MatchFailure reports that a pattern does not apply to an operation. It is
// never fatal: the driver moves on to the next pattern.
type MatchFailure struct {
	Op     *Operation
	Reason string
}

// Error implements error.
func (m *MatchFailure) Error() string {
	return fmt.Sprintf("%s: %s", m.Op, m.Reason)
}

// IsMatchFailure reports whether err is (or wraps) a MatchFailure.
func IsMatchFailure(err error) bool {
	var mf *MatchFailure
	return errors.As(err, &mf)
}

// ErrNoConvergence is returned when the greedy driver hits its iteration cap.
var ErrNoConvergence = errors.New("pattern application did not converge")

// Pattern defines a rewrite rooted at one kind of operation.
type Pattern struct {
	// Name identifies this pattern for debugging.
	Name string

	// Root restricts matching to ops with this name; empty matches any op.
	Root string

	// Benefit determines application order (higher = tried first).
	Benefit int

	// MatchAndRewrite either returns a MatchFailure without touching the IR,
	// or commits a complete rewrite and returns nil.
	MatchAndRewrite func(rw *Rewriter, op *Operation) error
}

// PatternSet is an ordered collection of patterns.
type PatternSet struct {
	patterns []Pattern
}

// NewPatternSet returns a set holding ps.
func NewPatternSet(ps ...Pattern) *PatternSet {
	s := &PatternSet{}
	s.Add(ps...)
	return s
}

// Add appends patterns to the set.
func (s *PatternSet) Add(ps ...Pattern) {
	s.patterns = append(s.patterns, ps...)
}

// Len returns the number of patterns.
func (s *PatternSet) Len() int { return len(s.patterns) }

// Sorted returns the patterns by descending benefit, keeping insertion order
// among equals.
func (s *PatternSet) Sorted() []Pattern {
	out := make([]Pattern, len(s.patterns))
	copy(out, s.patterns)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Benefit > out[j].Benefit
	})
	return out
}

// GreedyConfig configures ApplyPatternsGreedily.
type GreedyConfig struct {
	// MaxIterations caps the number of full sweeps over the function.
	// Zero means DefaultMaxIterations.
	MaxIterations int

	// Logger receives debug traces of applied and rejected patterns.
	Logger logger.Logger
}

// DefaultMaxIterations is the sweep cap used when none is configured.
const DefaultMaxIterations = 10

// ApplyPattern tries a single pattern on op.
func ApplyPattern(fn *Function, op *Operation, p Pattern) error {
	rw := NewRewriter(fn)
	rw.SetInsertionPoint(op)
	return p.MatchAndRewrite(rw, op)
}

// ApplyPatternsGreedily runs the patterns over fn until a sweep makes no
// change. Operations created by a successful rewrite are revisited within
// the same sweep. It returns whether anything changed.
func ApplyPatternsGreedily(ctx context.Context, fn *Function, set *PatternSet, cfg GreedyConfig) (bool, error) {
	maxIter := cfg.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	log = log.With("func", fn.Name)
	patterns := set.Sorted()
	rw := NewRewriter(fn)
	changedAny := false

	for iter := 0; iter < maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return changedAny, err
		}
		changed := false
		worklist := CollectOps(fn)
		for len(worklist) > 0 {
			op := worklist[0]
			worklist = worklist[1:]
			if op.erased {
				continue
			}
			for _, p := range patterns {
				if p.Root != "" && p.Root != op.Name {
					continue
				}
				rw.ResetTracking()
				rw.SetInsertionPoint(op)
				err := p.MatchAndRewrite(rw, op)
				if err == nil {
					log.Debug("pattern applied", "pattern", p.Name, "op", op.String())
					changed = true
					worklist = append(worklist, rw.Created()...)
					break
				}
				if !IsMatchFailure(err) {
					return changedAny || changed, errors.Wrapf(err, "pattern %s on %s", p.Name, op)
				}
				if rw.Changed() {
					panic(fmt.Sprintf("ir: pattern %s mutated %s before failing: %v", p.Name, op, err))
				}
				log.Debug("pattern did not match", "pattern", p.Name, "reason", err.Error())
			}
		}
		changedAny = changedAny || changed
		if !changed {
			log.Debug("patterns converged", "iterations", iter+1)
			return changedAny, nil
		}
	}
	return changedAny, errors.Wrapf(ErrNoConvergence, "function %s after %d iterations", fn.Name, maxIter)
}
