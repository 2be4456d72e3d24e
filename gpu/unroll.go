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
	"fmt"
	"iter"
	"slices"

	"github.com/samber/lo"

	"github.com/ajroetker/go-mmagen/affine"
	"github.com/ajroetker/go-mmagen/ir"
	"github.com/ajroetker/go-mmagen/ops"
)

// UnrollOptions configures UnrollMultiMmaPattern.
type UnrollOptions struct {
	// NativeShape returns the tile shape to unroll op to, over its iteration
	// dimensions. It must be set.
	NativeShape func(op MultiMmaOp) ([]int64, bool)

	// FilterConstraint, when set, reports whether op may be unrolled.
	FilterConstraint func(op MultiMmaOp) bool

	// TraversalOrder, when set, returns the tile loop order, outermost
	// first. The default is row-major over iterator positions.
	TraversalOrder func(op MultiMmaOp) ([]int, bool)
}

// UnitNativeShape unrolls every iteration dimension down to 1.
func UnitNativeShape(op MultiMmaOp) ([]int64, bool) {
	return lo.Times(len(op.IteratorTypes()), func(int) int64 { return 1 }), true
}

// FixedNativeShape returns a NativeShape callback that always answers shape.
func FixedNativeShape(shape []int64) func(MultiMmaOp) ([]int64, bool) {
	return func(MultiMmaOp) ([]int64, bool) { return slices.Clone(shape), true }
}

// FixedTraversalOrder returns a TraversalOrder callback that always answers
// order.
func FixedTraversalOrder(order []int) func(MultiMmaOp) ([]int, bool) {
	return func(MultiMmaOp) ([]int, bool) { return slices.Clone(order), true }
}

// ComputeShapeRatio divides shape by tile per dimension. It fails on a rank
// mismatch or when some dimension is not an exact multiple.
func ComputeShapeRatio(shape, tile []int64) ([]int64, bool) {
	if len(shape) != len(tile) {
		return nil, false
	}
	ratio := make([]int64, len(shape))
	for i := range shape {
		if tile[i] <= 0 || shape[i] < 0 || shape[i]%tile[i] != 0 {
			return nil, false
		}
		ratio[i] = shape[i] / tile[i]
	}
	return ratio, true
}

// StaticTileOffsets enumerates the offset of every tile of shape, stepping
// by tile. order lists the dimensions from the outermost loop to the
// innermost one.
func StaticTileOffsets(shape, tile []int64, order []int) iter.Seq[[]int64] {
	return func(yield func([]int64) bool) {
		n := len(shape)
		grid := make([]int64, n)
		total := int64(1)
		for i, d := range order {
			grid[i] = shape[d] / tile[d]
			total *= grid[i]
		}
		coords := make([]int64, n)
		for lin := int64(0); lin < total; lin++ {
			rem := lin
			for i := n - 1; i >= 0; i-- {
				coords[i] = rem % grid[i]
				rem /= grid[i]
			}
			offsets := make([]int64, n)
			for i, d := range order {
				offsets[d] = coords[i] * tile[d]
			}
			if !yield(offsets) {
				return
			}
		}
	}
}

// accCache maps accumulator-space offsets to the latest partial result.
// Entries keep their first-insertion position; storing an existing key
// replaces its value in place.
type accCache struct {
	index  map[string]int
	keys   [][]int64
	values []*ir.Value
}

func newAccCache() *accCache {
	return &accCache{index: map[string]int{}}
}

func cacheKey(offsets []int64) string { return fmt.Sprint(offsets) }

func (c *accCache) lookup(offsets []int64) (*ir.Value, bool) {
	i, ok := c.index[cacheKey(offsets)]
	if !ok {
		return nil, false
	}
	return c.values[i], true
}

func (c *accCache) store(offsets []int64, v *ir.Value) {
	key := cacheKey(offsets)
	if i, ok := c.index[key]; ok {
		c.values[i] = v
		return
	}
	c.index[key] = len(c.keys)
	c.keys = append(c.keys, slices.Clone(offsets))
	c.values = append(c.values, v)
}

func (c *accCache) len() int { return len(c.keys) }

// all yields the entries in first-insertion order.
func (c *accCache) all() iter.Seq2[[]int64, *ir.Value] {
	return func(yield func([]int64, *ir.Value) bool) {
		for i, k := range c.keys {
			if !yield(k, c.values[i]) {
				return
			}
		}
	}
}

// UnrollMultiMmaPattern tiles a vector gpu.multi_mma whose iteration bounds
// exceed the native shape into a grid of native-shape ops, threading partial
// accumulators along reduction dimensions.
func UnrollMultiMmaPattern(opts UnrollOptions) ir.Pattern {
	return ir.Pattern{
		Name:    "unroll-multi-mma",
		Root:    MultiMmaOpName,
		Benefit: 1,
		MatchAndRewrite: func(rw *ir.Rewriter, op *ir.Operation) error {
			return unrollMultiMma(rw, MultiMmaOp{op}, opts)
		},
	}
}

func unrollOrder(numLoops int, mma MultiMmaOp, opts UnrollOptions) []int {
	order := lo.Range(numLoops)
	if opts.TraversalOrder != nil {
		if custom, ok := opts.TraversalOrder(mma); ok {
			order = custom
		}
	}
	return order
}

func isPermutation(order []int, n int) bool {
	if len(order) != n {
		return false
	}
	seen := make([]bool, n)
	for _, d := range order {
		if d < 0 || d >= n || seen[d] {
			return false
		}
		seen[d] = true
	}
	return true
}

func allOnes(xs []int64) bool {
	return lo.EveryBy(xs, func(x int64) bool { return x == 1 })
}

func unrollMultiMma(rw *ir.Rewriter, mma MultiMmaOp, opts UnrollOptions) error {
	if opts.FilterConstraint != nil && !opts.FilterConstraint(mma) {
		return rw.NotifyMatchFailure(mma.Operation, "unrolling filter")
	}
	if opts.NativeShape == nil {
		panic("gpu: unrolling expects a native shape callback")
	}
	if !mma.HasVectorSemantics() {
		return rw.NotifyMatchFailure(mma.Operation, "unrolling requires vector semantics")
	}
	originalSize := mma.ShapeForUnroll()
	targetShape, ok := opts.NativeShape(mma)
	if !ok {
		return rw.NotifyMatchFailure(mma.Operation, "unspecified native unroll shape")
	}
	ratio, ok := ComputeShapeRatio(originalSize, targetShape)
	if !ok {
		return rw.NotifyMatchFailure(mma.Operation, "operation unroll shape not divisible by target shape")
	}
	if allOnes(ratio) {
		return rw.NotifyMatchFailure(mma.Operation, "operation already unrolled to native shape")
	}
	loopOrder := unrollOrder(len(originalSize), mma, opts)
	if !isPermutation(loopOrder, len(originalSize)) {
		return rw.NotifyMatchFailure(mma.Operation, "invalid traversal order %v", loopOrder)
	}

	maps := mma.IndexingMaps()
	lhsMap, rhsMap, accMap := maps[0], maps[1], maps[2]
	innerAccShape := mma.AccInnerShape()
	dstType := mma.ResultType()

	// Tiles that are already native carry no iteration space.
	tileMaps, tileIterators := maps, mma.IteratorTypes()
	if allOnes(targetShape) {
		tileMaps, tileIterators = EmptyIndexingMaps(), []IteratorType{}
	}

	extract := func(operand *ir.Value, m affine.Map, offsets []int64) *ir.Value {
		sizes := m.ApplyPermutation(targetShape)
		strides := lo.Times(len(offsets), func(int) int64 { return 1 })
		return ops.ExtractStridedSlice(rw.Builder, operand, offsets, sizes, strides)
	}

	cache := newAccCache()
	for offsets := range StaticTileOffsets(originalSize, targetShape, loopOrder) {
		lhsOffsets := lhsMap.ApplyPermutation(offsets)
		lhs := extract(mma.Lhs(), lhsMap, lhsOffsets)
		rhsOffsets := rhsMap.ApplyPermutation(offsets)
		rhs := extract(mma.Rhs(), rhsMap, rhsOffsets)

		accOffsets := accMap.ApplyPermutation(offsets)
		acc, ok := cache.lookup(accOffsets)
		if !ok {
			acc = extract(mma.Acc(), accMap, accOffsets)
		}

		dstShape := append(accMap.ApplyPermutation(targetShape), innerAccShape...)
		tile := rw.Clone(mma.Operation, []ir.Type{ir.Vector(dstShape, dstType.Elem)}, []*ir.Value{lhs, rhs, acc})
		tile.Attrs[AttrIndexingMaps] = slices.Clone(tileMaps)
		tile.Attrs[AttrIteratorTypes] = slices.Clone(tileIterators)

		cache.store(accOffsets, tile.Result(0))
	}

	result := ops.Zero(rw.Builder, dstType)
	for offsets, partial := range cache.all() {
		fullOffsets := append(slices.Clone(offsets), make([]int64, len(innerAccShape))...)
		strides := lo.Times(len(fullOffsets), func(int) int64 { return 1 })
		result = ops.InsertStridedSlice(rw.Builder, partial, result, fullOffsets, strides)
	}
	rw.ReplaceOp(mma.Operation, result)
	return nil
}
