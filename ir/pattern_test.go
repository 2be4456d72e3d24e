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
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func returnedValue(fn *Function) *Value {
	return fn.Entry().Terminator().Operand(0)
}

func TestGreedyReachesFixpoint(t *testing.T) {
	fn := newAddChain(t)
	set := NewPatternSet(foldAddZero)

	changed, err := ApplyPatternsGreedily(context.Background(), fn, set, GreedyConfig{})
	require.NoError(t, err)
	assert.True(t, changed)
	require.NoError(t, Verify(fn))
	assert.Same(t, fn.Params()[0], returnedValue(fn))
	assert.Empty(t, OpsNamed(fn, testAdd))

	changed, err = ApplyPatternsGreedily(context.Background(), fn, set, GreedyConfig{})
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestGreedyRevisitsCreatedOps(t *testing.T) {
	fn := NewFunction("wrap", i32())
	b := NewBuilder(fn)
	wrapped := b.Create(OperationState{Name: testWrap, Operands: fn.Params(), ResultTypes: []Type{i32()}}).Result(0)
	retOp(b, wrapped)

	// unwrap turns wrap(x) into x + 0, which foldAddZero then removes.
	unwrap := Pattern{
		Name: "unwrap",
		Root: testWrap,
		MatchAndRewrite: func(rw *Rewriter, op *Operation) error {
			zero := constOp(rw.Builder, 0)
			rw.ReplaceOp(op, addOp(rw.Builder, op.Operand(0), zero))
			return nil
		},
	}

	// Both rewrites fit in the first sweep; the second only confirms.
	changed, err := ApplyPatternsGreedily(context.Background(), fn, NewPatternSet(unwrap, foldAddZero), GreedyConfig{MaxIterations: 2})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Same(t, fn.Params()[0], returnedValue(fn))
}

func TestGreedyNoConvergence(t *testing.T) {
	fn := NewFunction("flip")
	b := NewBuilder(fn)
	one, two := constOp(b, 1), constOp(b, 2)
	retOp(b, one)

	// flip alternates the returned constant forever without creating ops.
	flip := Pattern{
		Name: "flip",
		Root: testRet,
		MatchAndRewrite: func(rw *Rewriter, op *Operation) error {
			if op.Operand(0) == one {
				rw.ReplaceUsesOfWith(op, one, two)
			} else {
				rw.ReplaceUsesOfWith(op, two, one)
			}
			return nil
		},
	}
	_, err := ApplyPatternsGreedily(context.Background(), fn, NewPatternSet(flip), GreedyConfig{MaxIterations: 3})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoConvergence)
	assert.Contains(t, err.Error(), "after 3 iterations")
}

func TestGreedyBenefitOrder(t *testing.T) {
	var applied []string
	record := func(name string, benefit int) Pattern {
		return Pattern{
			Name:    name,
			Root:    testAdd,
			Benefit: benefit,
			MatchAndRewrite: func(rw *Rewriter, op *Operation) error {
				applied = append(applied, name)
				rw.ReplaceOp(op, op.Operand(0))
				return nil
			},
		}
	}
	fn := newAddChain(t)
	set := NewPatternSet(record("low", 1), record("high", 5))
	assert.Equal(t, "high", set.Sorted()[0].Name)
	assert.Equal(t, 2, set.Len())

	_, err := ApplyPatternsGreedily(context.Background(), fn, set, GreedyConfig{})
	require.NoError(t, err)
	assert.Equal(t, []string{"high", "high"}, applied)
}

func TestGreedyPropagatesErrors(t *testing.T) {
	fn := newAddChain(t)
	boom := Pattern{
		Name: "boom",
		Root: testAdd,
		MatchAndRewrite: func(*Rewriter, *Operation) error {
			return errors.New("unsupported")
		},
	}
	_, err := ApplyPatternsGreedily(context.Background(), fn, NewPatternSet(boom), GreedyConfig{})
	require.Error(t, err)
	assert.False(t, IsMatchFailure(err))
	assert.Contains(t, err.Error(), "pattern boom")
	assert.Contains(t, err.Error(), "unsupported")
}

func TestGreedyPanicsOnMutationBeforeFailure(t *testing.T) {
	fn := newAddChain(t)
	sloppy := Pattern{
		Name: "sloppy",
		Root: testAdd,
		MatchAndRewrite: func(rw *Rewriter, op *Operation) error {
			constOp(rw.Builder, 7)
			return rw.NotifyMatchFailure(op, "changed my mind")
		},
	}
	assert.Panics(t, func() {
		_, _ = ApplyPatternsGreedily(context.Background(), fn, NewPatternSet(sloppy), GreedyConfig{})
	})
}

func TestGreedyHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	changed, err := ApplyPatternsGreedily(ctx, newAddChain(t), NewPatternSet(foldAddZero), GreedyConfig{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, changed)
}

func TestApplyPattern(t *testing.T) {
	fn := newAddChain(t)
	adds := OpsNamed(fn, testAdd)
	require.Len(t, adds, 2)

	require.NoError(t, ApplyPattern(fn, adds[1], foldAddZero))
	assert.Same(t, adds[0].Result(0), returnedValue(fn))

	err := ApplyPattern(fn, fn.Entry().Operations()[0], Pattern{
		Name: "never",
		MatchAndRewrite: func(rw *Rewriter, op *Operation) error {
			return rw.NotifyMatchFailure(op, "no %s here", "match")
		},
	})
	require.True(t, IsMatchFailure(err))
	assert.Contains(t, err.Error(), "no match here")
}
