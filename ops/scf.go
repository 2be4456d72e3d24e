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

package ops

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/ajroetker/go-mmagen/ir"
)

// scf op names.
const (
	ForallOpName     = "scf.forall"
	InParallelOpName = "scf.forall.in_parallel"
)

// Forall attribute names.
const (
	AttrStaticLowerBound = "static_lower_bound"
	AttrStaticUpperBound = "static_upper_bound"
	AttrStaticStep       = "static_step"
	AttrMapping          = "mapping"
)

func init() {
	ir.RegisterOp(ir.OpDef{
		Name:          ForallOpName,
		Summary:       "multi-dimensional worker-parallel loop",
		Verify:        verifyForall,
		VerifyRegions: verifyForallRegions,
	})
	ir.RegisterOp(ir.OpDef{
		Name:          InParallelOpName,
		Summary:       "terminator holding the per-worker parallel writes",
		IsTerminator:  true,
		VerifyRegions: verifyInParallel,
	})
}

// MappingKind is the hardware execution unit a loop axis is distributed on.
type MappingKind int

const (
	// ThreadMapping distributes an axis over threads.
	ThreadMapping MappingKind = iota

	// WarpMapping distributes an axis over warps.
	WarpMapping
)

// String returns the mapping kind's name.
func (k MappingKind) String() string {
	switch k {
	case ThreadMapping:
		return "thread"
	case WarpMapping:
		return "warp"
	default:
		return fmt.Sprintf("MappingKind(%d)", int(k))
	}
}

// Mapping labels one loop axis with the execution unit dimension it runs on.
type Mapping struct {
	Kind MappingKind
	Dim  int
}

// Thread returns a thread mapping along dim (0 = x).
func Thread(dim int) Mapping { return Mapping{Kind: ThreadMapping, Dim: dim} }

// Warp returns a warp mapping along dim (0 = x).
func Warp(dim int) Mapping { return Mapping{Kind: WarpMapping, Dim: dim} }

// String renders m as e.g. "#gpu.thread<x>".
func (m Mapping) String() string {
	var dim string
	switch m.Dim {
	case 0:
		dim = "x"
	case 1:
		dim = "y"
	case 2:
		dim = "z"
	default:
		dim = fmt.Sprintf("linear_dim_%d", m.Dim-3)
	}
	return fmt.Sprintf("#gpu.%s<%s>", m.Kind, dim)
}

// ForallParams describes an scf.forall to build.
type ForallParams struct {
	LowerBounds []ir.OpFoldResult
	UpperBounds []ir.OpFoldResult
	Steps       []ir.OpFoldResult
	Outputs     []*ir.Value
	Mapping     []Mapping
}

// NormalizedForallParams returns params with zero lower bounds, unit steps
// and static upper bounds.
func NormalizedForallParams(upperBounds []int64, outputs []*ir.Value, mapping ...Mapping) ForallParams {
	return ForallParams{
		LowerBounds: ir.StaticIndices(make([]int64, len(upperBounds))...),
		UpperBounds: ir.StaticIndices(upperBounds...),
		Steps:       UnitStrides(len(upperBounds)),
		Outputs:     outputs,
		Mapping:     mapping,
	}
}

// ForallOp wraps an scf.forall operation.
type ForallOp struct {
	*ir.Operation
}

// AsForall returns op as a ForallOp when it is an scf.forall.
func AsForall(op *ir.Operation) (ForallOp, bool) {
	if op == nil || op.Name != ForallOpName {
		return ForallOp{}, false
	}
	return ForallOp{op}, true
}

// Forall builds an scf.forall whose body holds only an empty in_parallel
// terminator. Body operations go before Terminator(); parallel writes go into
// InParallelBlock().
func Forall(b *ir.Builder, p ForallParams) ForallOp {
	rank := len(p.UpperBounds)
	if len(p.LowerBounds) != rank || len(p.Steps) != rank {
		panic(fmt.Sprintf("ops: forall with %d lower bounds, %d upper bounds, %d steps",
			len(p.LowerBounds), rank, len(p.Steps)))
	}
	dynLbs, staticLbs := ir.DispatchIndexOpFoldResults(p.LowerBounds)
	dynUbs, staticUbs := ir.DispatchIndexOpFoldResults(p.UpperBounds)
	dynSteps, staticSteps := ir.DispatchIndexOpFoldResults(p.Steps)
	operands := append(append(append(dynLbs, dynUbs...), dynSteps...), p.Outputs...)
	attrs := ir.Attributes{
		AttrStaticLowerBound: staticLbs,
		AttrStaticUpperBound: staticUbs,
		AttrStaticStep:       staticSteps,
	}
	if len(p.Mapping) > 0 {
		attrs[AttrMapping] = append([]Mapping{}, p.Mapping...)
	}
	outTypes := lo.Map(p.Outputs, func(v *ir.Value, _ int) ir.Type { return v.Type() })
	op := b.Create(ir.OperationState{
		Name:        ForallOpName,
		Operands:    operands,
		ResultTypes: outTypes,
		Attrs:       attrs,
		NumRegions:  1,
	})
	argTypes := append(lo.Times(rank, func(int) ir.Type { return ir.IndexType() }), outTypes...)
	body := b.CreateBlock(op.Region(0), argTypes...)

	saved := b.SaveInsertionPoint()
	b.SetInsertionPointToEnd(body)
	term := b.Create(ir.OperationState{Name: InParallelOpName, NumRegions: 1})
	b.CreateBlock(term.Region(0))
	b.RestoreInsertionPoint(saved)
	return ForallOp{op}
}

// Rank returns the number of loop axes.
func (f ForallOp) Rank() int { return len(f.I64ArrayAttr(AttrStaticUpperBound)) }

func (f ForallOp) dynamicCounts() (lbs, ubs, steps int) {
	return countDynamic(f.I64ArrayAttr(AttrStaticLowerBound)),
		countDynamic(f.I64ArrayAttr(AttrStaticUpperBound)),
		countDynamic(f.I64ArrayAttr(AttrStaticStep))
}

// MixedLowerBounds returns the lower bounds.
func (f ForallOp) MixedLowerBounds() []ir.OpFoldResult {
	lbs, _, _ := f.dynamicCounts()
	return ir.MixedValues(f.I64ArrayAttr(AttrStaticLowerBound), f.Operands()[:lbs])
}

// MixedUpperBounds returns the upper bounds.
func (f ForallOp) MixedUpperBounds() []ir.OpFoldResult {
	lbs, ubs, _ := f.dynamicCounts()
	return ir.MixedValues(f.I64ArrayAttr(AttrStaticUpperBound), f.Operands()[lbs:lbs+ubs])
}

// MixedSteps returns the steps.
func (f ForallOp) MixedSteps() []ir.OpFoldResult {
	lbs, ubs, steps := f.dynamicCounts()
	return ir.MixedValues(f.I64ArrayAttr(AttrStaticStep), f.Operands()[lbs+ubs:lbs+ubs+steps])
}

// Outputs returns the shared output operands.
func (f ForallOp) Outputs() []*ir.Value {
	lbs, ubs, steps := f.dynamicCounts()
	return f.Operands()[lbs+ubs+steps:]
}

// Mapping returns the per-axis mapping, or nil when unmapped.
func (f ForallOp) Mapping() []Mapping {
	m, _ := f.Attr(AttrMapping).([]Mapping)
	return m
}

// Body returns the loop body block.
func (f ForallOp) Body() *ir.Block { return f.Region(0).Front() }

// InductionVars returns the per-axis worker indices.
func (f ForallOp) InductionVars() []*ir.Value {
	return f.Body().Arguments()[:f.Rank()]
}

// RegionOutArgs returns the block arguments tied to the shared outputs.
func (f ForallOp) RegionOutArgs() []*ir.Value {
	return f.Body().Arguments()[f.Rank():]
}

// Terminator returns the scf.forall.in_parallel terminator.
func (f ForallOp) Terminator() *ir.Operation { return f.Body().Terminator() }

// InParallelBlock returns the block holding the parallel writes.
func (f ForallOp) InParallelBlock() *ir.Block { return f.Terminator().Region(0).Front() }

// ParallelInserts returns the tensor.parallel_insert_slice ops of the
// terminator.
func (f ForallOp) ParallelInserts() []*ir.Operation {
	return lo.Filter(f.InParallelBlock().Operations(), func(op *ir.Operation, _ int) bool {
		return op.Name == ParallelInsertSliceOpName
	})
}

// StaticUpperBounds returns the upper bounds when they are all static.
func (f ForallOp) StaticUpperBounds() ([]int64, bool) {
	return staticValues(f.MixedUpperBounds())
}

// HasZeroLowerBounds reports whether every lower bound is statically zero.
func (f ForallOp) HasZeroLowerBounds() bool {
	return lo.EveryBy(f.MixedLowerBounds(), func(r ir.OpFoldResult) bool { return r.IsConstantInt(0) })
}

// HasUnitSteps reports whether every step is statically one.
func (f ForallOp) HasUnitSteps() bool {
	return lo.EveryBy(f.MixedSteps(), func(r ir.OpFoldResult) bool { return r.IsConstantInt(1) })
}

// TripCount returns the product of the static trip counts of every axis.
func (f ForallOp) TripCount() (int64, bool) {
	lbs, ok := staticValues(f.MixedLowerBounds())
	if !ok {
		return 0, false
	}
	ubs, ok := staticValues(f.MixedUpperBounds())
	if !ok {
		return 0, false
	}
	steps, ok := staticValues(f.MixedSteps())
	if !ok {
		return 0, false
	}
	total := int64(1)
	for i := range ubs {
		if steps[i] <= 0 {
			return 0, false
		}
		total *= (ubs[i] - lbs[i] + steps[i] - 1) / steps[i]
	}
	return total, true
}

func staticValues(rs []ir.OpFoldResult) ([]int64, bool) {
	out := make([]int64, len(rs))
	for i, r := range rs {
		c, ok := r.ConstantInt()
		if !ok {
			return nil, false
		}
		out[i] = c
	}
	return out, true
}

func verifyForall(op *ir.Operation) error {
	f := ForallOp{op}
	rank := f.Rank()
	if len(f.I64ArrayAttr(AttrStaticLowerBound)) != rank || len(f.I64ArrayAttr(AttrStaticStep)) != rank {
		return ir.EmitOpError(op, "expected %d lower bounds and steps", rank)
	}
	lbs, ubs, steps := f.dynamicCounts()
	if op.NumOperands() < lbs+ubs+steps {
		return ir.EmitOpError(op, "expected at least %d operands, got %d", lbs+ubs+steps, op.NumOperands())
	}
	for _, v := range op.Operands()[:lbs+ubs+steps] {
		if !v.Type().Equal(ir.IndexType()) {
			return ir.EmitOpError(op, "bounds must be index typed, got %s", v.Type())
		}
	}
	outs := f.Outputs()
	if op.NumResults() != len(outs) {
		return ir.EmitOpError(op, "expected %d results, got %d", len(outs), op.NumResults())
	}
	for i, out := range outs {
		if !out.Type().IsTensor() || !out.Type().Equal(op.Result(i).Type()) {
			return ir.EmitOpError(op, "result %d type %s does not match shared output type %s",
				i, op.Result(i).Type(), out.Type())
		}
	}
	if m := f.Mapping(); m != nil && len(m) != rank {
		return ir.EmitOpError(op, "expected %d mapping entries, got %d", rank, len(m))
	}
	if op.NumRegions() != 1 || len(op.Region(0).Blocks()) != 1 {
		return ir.EmitOpError(op, "expected a single-block body")
	}
	body := f.Body()
	if body.NumArguments() != rank+len(outs) {
		return ir.EmitOpError(op, "expected %d body arguments, got %d", rank+len(outs), body.NumArguments())
	}
	for i, out := range outs {
		if !body.Argument(rank + i).Type().Equal(out.Type()) {
			return ir.EmitOpError(op, "body argument %d type mismatch", rank+i)
		}
	}
	return nil
}

func verifyForallRegions(op *ir.Operation) error {
	term := op.Region(0).Front().Terminator()
	if term == nil || term.Name != InParallelOpName {
		return ir.EmitOpError(op, "expected body to end in %s", InParallelOpName)
	}
	return nil
}

func verifyInParallel(op *ir.Operation) error {
	parent := op.ParentOp()
	if parent == nil || parent.Name != ForallOpName {
		return ir.EmitOpError(op, "expected parent %s", ForallOpName)
	}
	if op.NumRegions() != 1 || len(op.Region(0).Blocks()) != 1 {
		return ir.EmitOpError(op, "expected a single-block region")
	}
	outArgs := ForallOp{parent}.RegionOutArgs()
	for _, nested := range op.Region(0).Front().Operations() {
		if nested.Name != ParallelInsertSliceOpName {
			return ir.EmitOpError(op, "may only contain %s, found %s", ParallelInsertSliceOpName, nested.Name)
		}
		if !lo.Contains(outArgs, SliceDest(nested)) {
			return ir.EmitOpError(op, "parallel write destination must be a shared output argument")
		}
	}
	return nil
}
