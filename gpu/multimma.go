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

// Package gpu implements the structured MMA contraction op and its
// transformations: verification, iteration bounds, unrolling to the native
// intrinsic shape, lowering to a concrete intrinsic, unit-dim folding and
// vectorization. It also provides the shuffle and value barrier ops used to
// redistribute data among workers, their lowerings, and the fusion of two
// worker loops across a shuffle.
package gpu

import (
	"fmt"
	"slices"

	"github.com/pkg/errors"

	"github.com/ajroetker/go-mmagen/affine"
	"github.com/ajroetker/go-mmagen/ir"
)

// MultiMmaOpName is the name of the structured MMA contraction op.
const MultiMmaOpName = "gpu.multi_mma"

// MultiMma attribute names.
const (
	AttrIndexingMaps  = "indexing_maps"
	AttrIteratorTypes = "iterator_types"
	AttrKind          = "kind"
)

func init() {
	ir.RegisterOp(ir.OpDef{
		Name:    MultiMmaOpName,
		Summary: "contraction over outer dimensions of native MMA tiles",
		Verify: func(op *ir.Operation) error {
			return MultiMmaOp{op}.Verify()
		},
	})
}

// IteratorType tags one iteration dimension.
type IteratorType int

const (
	// Parallel dimensions appear in the accumulator.
	Parallel IteratorType = iota

	// Reduction dimensions are contracted away.
	Reduction
)

// String returns "parallel" or "reduction".
func (t IteratorType) String() string {
	switch t {
	case Parallel:
		return "parallel"
	case Reduction:
		return "reduction"
	default:
		return fmt.Sprintf("IteratorType(%d)", int(t))
	}
}

// ParseIteratorType parses "parallel" or "reduction".
func ParseIteratorType(s string) (IteratorType, error) {
	switch s {
	case "parallel":
		return Parallel, nil
	case "reduction":
		return Reduction, nil
	}
	return 0, errors.Errorf("unknown iterator type %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (t IteratorType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *IteratorType) UnmarshalText(text []byte) error {
	parsed, err := ParseIteratorType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// EmptyIndexingMaps returns the three "() -> ()" maps of an op that is
// already at the native intrinsic shape.
func EmptyIndexingMaps() []affine.Map {
	return []affine.Map{affine.Empty(), affine.Empty(), affine.Empty()}
}

// MultiMmaOp wraps a gpu.multi_mma operation.
type MultiMmaOp struct {
	*ir.Operation
}

// AsMultiMma returns op as a MultiMmaOp when it is a gpu.multi_mma.
func AsMultiMma(op *ir.Operation) (MultiMmaOp, bool) {
	if op == nil || op.Name != MultiMmaOpName {
		return MultiMmaOp{}, false
	}
	return MultiMmaOp{op}, true
}

// BuildMultiMma creates a gpu.multi_mma. The result type is the accumulator
// type.
func BuildMultiMma(b *ir.Builder, lhs, rhs, acc *ir.Value, maps []affine.Map, iterators []IteratorType, kind MmaKind) MultiMmaOp {
	return MultiMmaOp{b.Create(ir.OperationState{
		Name:        MultiMmaOpName,
		Operands:    []*ir.Value{lhs, rhs, acc},
		ResultTypes: []ir.Type{acc.Type()},
		Attrs: ir.Attributes{
			AttrIndexingMaps:  slices.Clone(maps),
			AttrIteratorTypes: slices.Clone(iterators),
			AttrKind:          kind,
		},
	})}
}

// BuildMultiMmaFromExprs creates a gpu.multi_mma from per-operand result
// expressions, inferring the map dimension count.
func BuildMultiMmaFromExprs(b *ir.Builder, lhs, rhs, acc *ir.Value, exprs [][]affine.Expr, iterators []IteratorType, kind MmaKind) MultiMmaOp {
	return BuildMultiMma(b, lhs, rhs, acc, affine.InferFromExprList(exprs), iterators, kind)
}

// Lhs returns the A operand.
func (m MultiMmaOp) Lhs() *ir.Value { return m.Operand(0) }

// Rhs returns the B operand.
func (m MultiMmaOp) Rhs() *ir.Value { return m.Operand(1) }

// Acc returns the accumulator operand.
func (m MultiMmaOp) Acc() *ir.Value { return m.Operand(2) }

// LhsType returns the A operand type.
func (m MultiMmaOp) LhsType() ir.Type { return m.Lhs().Type() }

// RhsType returns the B operand type.
func (m MultiMmaOp) RhsType() ir.Type { return m.Rhs().Type() }

// AccType returns the accumulator type.
func (m MultiMmaOp) AccType() ir.Type { return m.Acc().Type() }

// ResultType returns the result type.
func (m MultiMmaOp) ResultType() ir.Type { return m.Result(0).Type() }

// IndexingMaps returns the lhs, rhs and acc maps.
func (m MultiMmaOp) IndexingMaps() []affine.Map {
	maps, _ := m.Attr(AttrIndexingMaps).([]affine.Map)
	return slices.Clone(maps)
}

// IteratorTypes returns the per-dimension iterator kinds.
func (m MultiMmaOp) IteratorTypes() []IteratorType {
	its, _ := m.Attr(AttrIteratorTypes).([]IteratorType)
	return slices.Clone(its)
}

// Kind returns the intrinsic kind.
func (m MultiMmaOp) Kind() MmaKind {
	k, _ := m.Attr(AttrKind).(MmaKind)
	return k
}

// HasTensorSemantics reports whether the operands are tensors.
func (m MultiMmaOp) HasTensorSemantics() bool { return m.AccType().IsTensor() }

// HasVectorSemantics reports whether the operands are vectors.
func (m MultiMmaOp) HasVectorSemantics() bool { return m.AccType().IsVector() }

func (m MultiMmaOp) outerRank(i int) int {
	maps := m.IndexingMaps()
	if i >= len(maps) {
		return 0
	}
	return maps[i].NumResults()
}

// LhsOuterRank returns the number of lhs dimensions addressed by its map.
func (m MultiMmaOp) LhsOuterRank() int { return m.outerRank(0) }

// RhsOuterRank returns the number of rhs dimensions addressed by its map.
func (m MultiMmaOp) RhsOuterRank() int { return m.outerRank(1) }

// AccOuterRank returns the number of acc dimensions addressed by its map.
func (m MultiMmaOp) AccOuterRank() int { return m.outerRank(2) }

// LhsInnerShape returns the native trailing lhs dimensions.
func (m MultiMmaOp) LhsInnerShape() []int64 { return m.LhsType().Shape[m.LhsOuterRank():] }

// RhsInnerShape returns the native trailing rhs dimensions.
func (m MultiMmaOp) RhsInnerShape() []int64 { return m.RhsType().Shape[m.RhsOuterRank():] }

// AccInnerShape returns the native trailing acc dimensions.
func (m MultiMmaOp) AccInnerShape() []int64 { return m.AccType().Shape[m.AccOuterRank():] }

// IterationBounds derives the extent of every iteration dimension in
// iterator order: reduction extents are read from the lhs, parallel extents
// from the accumulator.
func (m MultiMmaOp) IterationBounds() []int64 {
	maps := m.IndexingMaps()
	lhsShape := m.LhsType().Shape
	accShape := m.ResultType().Shape
	bounds := make([]int64, 0, len(m.IteratorTypes()))
	for i, it := range m.IteratorTypes() {
		target := affine.Dim(i)
		if it == Reduction {
			pos := maps[0].ResultPosition(target)
			if pos < 0 {
				panic(fmt.Sprintf("gpu: reduction dimension d%d of %s is not indexed by the lhs", i, m.Operation))
			}
			bounds = append(bounds, lhsShape[pos])
			continue
		}
		pos := maps[2].ResultPosition(target)
		if pos < 0 {
			panic(fmt.Sprintf("gpu: parallel dimension d%d of %s is not indexed by the accumulator", i, m.Operation))
		}
		bounds = append(bounds, accShape[pos])
	}
	return bounds
}

// ShapeForUnroll returns the shape the unroller tiles: the iteration bounds.
func (m MultiMmaOp) ShapeForUnroll() []int64 { return m.IterationBounds() }

// Verify checks the op's maps, shapes and element types.
func (m MultiMmaOp) Verify() error {
	op := m.Operation
	if op.NumOperands() != 3 || op.NumResults() != 1 {
		return ir.EmitOpError(op, "expected three operands and one result")
	}
	types := []ir.Type{m.LhsType(), m.RhsType(), m.AccType()}
	for i, t := range types {
		if !t.IsShaped() {
			return ir.EmitOpError(op, "operand %d must be a vector or tensor, got %s", i, t)
		}
		if t.Kind != types[2].Kind {
			return ir.EmitOpError(op, "expected operands of the same container kind, operand %d is %s", i, t)
		}
	}
	if !m.ResultType().Equal(m.AccType()) {
		return ir.EmitOpError(op, "result type %s must match accumulator type %s", m.ResultType(), m.AccType())
	}
	if m.Kind() == nil {
		return ir.EmitOpError(op, "requires a 'kind' attribute")
	}

	maps := m.IndexingMaps()
	if len(maps) != 3 {
		return ir.EmitOpError(op, "expected an indexing map for each operand")
	}
	iterators := m.IteratorTypes()
	numIterators := len(iterators)
	for i, am := range maps {
		if am.NumSymbols != 0 {
			return ir.EmitOpError(op, "expected indexing map %d to have no symbols", i)
		}
		rank := types[i].Rank()
		if am.NumDims != numIterators {
			return ir.EmitOpError(op, "expected indexing map %d to have %d number of inputs", i, numIterators)
		}
		if am.NumResults() >= rank {
			return ir.EmitOpError(op, "expected indexing map %d to have fewer than %d number of outputs", i, rank)
		}
		for _, size := range types[i].Shape[am.NumResults():] {
			if size == ir.Dynamic {
				return ir.EmitOpError(op, "Unexpected dynamic inner dim for operand %d of type %s", i, types[i])
			}
		}
		if !am.IsProjectedPermutation() {
			return ir.EmitOpError(op, "expected indexing map %d to be a projected permutation of its inputs", i)
		}
	}

	if numIterators > 0 {
		if _, err := affine.InferContractionDims(maps); err != nil {
			return ir.EmitOpError(op, "failed to infer contraction dims")
		}
	}
	for i, it := range iterators {
		if it == Reduction && !maps[0].UsesDim(i) {
			return ir.EmitOpError(op, "expected reduction iterator %d to be indexed by the lhs", i)
		}
		if it == Parallel && !maps[2].UsesDim(i) {
			return ir.EmitOpError(op, "expected parallel iterator %d to be indexed by the accumulator", i)
		}
	}

	bounds := m.IterationBounds()
	for i, role := range []string{"lhs", "rhs", "accumulator"} {
		if !shapeMatchesBounds(types[i], maps[i], bounds) {
			return ir.EmitOpError(op, "%s shape does not match iteration bounds", role)
		}
	}

	a, b, c := m.Kind().ABCElementTypes()
	for i, check := range []struct {
		role string
		want ir.ElemType
	}{{"lhs", a}, {"rhs", b}, {"accumulator", c}} {
		if got := types[i].Elem; got != check.want {
			return ir.EmitOpError(op, "%s element type %s does not match expected element type %s for intrinsic",
				check.role, got, check.want)
		}
	}
	return nil
}

// shapeMatchesBounds compares the outer dimensions of t, read through m,
// with the iteration bounds.
func shapeMatchesBounds(t ir.Type, m affine.Map, bounds []int64) bool {
	for i := range m.Results {
		if t.Shape[i] != bounds[m.DimPosition(i)] {
			return false
		}
	}
	return true
}
