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

package workerpool

import (
	"context"
	"runtime"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	pool := New(4)
	defer pool.Close()
	assert.Equal(t, 4, pool.NumWorkers())
}

func TestNewDefault(t *testing.T) {
	pool := New(0)
	defer pool.Close()
	assert.Equal(t, runtime.GOMAXPROCS(0), pool.NumWorkers())
}

func TestForEach(t *testing.T) {
	pool := New(4)
	defer pool.Close()

	n := 100
	results := make([]int, n)
	err := pool.ForEach(context.Background(), n, func(_ context.Context, i int) error {
		results[i] = i * 2
		return nil
	})
	require.NoError(t, err)
	for i := range n {
		assert.Equal(t, i*2, results[i], "results[%d]", i)
	}
}

func TestForEachZero(t *testing.T) {
	pool := New(4)
	defer pool.Close()

	called := false
	require.NoError(t, pool.ForEach(context.Background(), 0, func(context.Context, int) error {
		called = true
		return nil
	}))
	assert.False(t, called)
}

func TestForEachReturnsFirstError(t *testing.T) {
	pool := New(4)
	defer pool.Close()

	errBad := errors.New("bad function")
	var calls atomic.Int32
	err := pool.ForEach(context.Background(), 1000, func(_ context.Context, i int) error {
		calls.Add(1)
		if i >= 3 {
			return errBad
		}
		return nil
	})
	require.ErrorIs(t, err, errBad)
	// Each worker stops at its first failing index.
	assert.LessOrEqual(t, int(calls.Load()), 3+pool.NumWorkers())
}

func TestForEachCanceled(t *testing.T) {
	pool := New(2)
	defer pool.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := pool.ForEach(ctx, 10, func(context.Context, int) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
}

func TestForEachAfterClose(t *testing.T) {
	pool := New(4)
	pool.Close()
	pool.Close()

	sum := 0
	err := pool.ForEach(context.Background(), 10, func(_ context.Context, i int) error {
		sum += i
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 45, sum)
}

func TestForEachSequentialForOneWorker(t *testing.T) {
	pool := New(1)
	defer pool.Close()

	var order []int
	require.NoError(t, pool.ForEach(context.Background(), 5, func(_ context.Context, i int) error {
		order = append(order, i)
		return nil
	}))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func BenchmarkForEach(b *testing.B) {
	pool := New(runtime.GOMAXPROCS(0))
	defer pool.Close()
	data := make([]int, 4096)
	b.ResetTimer()
	for b.Loop() {
		_ = pool.ForEach(context.Background(), len(data), func(_ context.Context, i int) error {
			data[i]++
			return nil
		})
	}
}
