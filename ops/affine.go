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
	"slices"

	"github.com/ajroetker/go-mmagen/affine"
	"github.com/ajroetker/go-mmagen/ir"
)

// Affine op names.
const (
	ApplyOpName            = "affine.apply"
	DelinearizeIndexOpName = "affine.delinearize_index"
)

func init() {
	ir.RegisterOp(ir.OpDef{Name: ApplyOpName, Summary: "evaluate a single-result affine map on index values", Verify: verifyApply})
	ir.RegisterOp(ir.OpDef{Name: DelinearizeIndexOpName, Summary: "split a linear index against a basis", Verify: verifyDelinearize})
}

// Apply builds an affine.apply of the single-result map m.
func Apply(b *ir.Builder, m affine.Map, operands []*ir.Value) *ir.Value {
	return b.Create(ir.OperationState{
		Name:        ApplyOpName,
		Operands:    operands,
		ResultTypes: []ir.Type{ir.IndexType()},
		Attrs:       ir.Attributes{"map": m},
	}).Result(0)
}

// ApplyMap returns the map of an affine.apply.
func ApplyMap(op *ir.Operation) affine.Map {
	m, _ := op.Attr("map").(affine.Map)
	return m
}

// MakeComposedFoldedAffineApply evaluates m on operands, composing with
// operands produced by other affine.apply ops and folding constants. It only
// builds an affine.apply when the result is neither constant nor a bare
// operand.
func MakeComposedFoldedAffineApply(b *ir.Builder, m affine.Map, operands []ir.OpFoldResult) ir.OpFoldResult {
	if m.NumResults() != 1 || m.NumSymbols != 0 || len(operands) != m.NumDims {
		panic("ops: composed affine.apply needs a single-result map without symbols over its operands")
	}
	var values []*ir.Value
	valueDim := func(v *ir.Value) affine.Expr {
		if i := slices.Index(values, v); i >= 0 {
			return affine.Dim(i)
		}
		values = append(values, v)
		return affine.Dim(len(values) - 1)
	}
	var repl []affine.Expr
	for _, opnd := range operands {
		if c, ok := opnd.ConstantInt(); ok {
			repl = append(repl, affine.Constant(c))
			continue
		}
		def := opnd.Value.DefiningOp()
		if def != nil && def.Name == ApplyOpName {
			inner := ApplyMap(def)
			innerRepl := make([]affine.Expr, inner.NumDims)
			for i, v := range def.Operands() {
				if c, ok := ConstantIntValue(v); ok {
					innerRepl[i] = affine.Constant(c)
				} else {
					innerRepl[i] = valueDim(v)
				}
			}
			repl = append(repl, inner.Results[0].ReplaceDims(innerRepl))
			continue
		}
		repl = append(repl, valueDim(opnd.Value))
	}
	composed := m.ReplaceDims(repl, len(values)).SimplifyWithConstants(nil)
	compressed, kept := composed.CompressUnusedDims()
	result := compressed.Results[0]
	if result.IsConstant() {
		return ir.StaticIndex(result.Value)
	}
	if result.IsDim() {
		return ir.DynamicIndex(values[kept[result.Pos]])
	}
	args := make([]*ir.Value, len(kept))
	for i, k := range kept {
		args[i] = values[k]
	}
	return ir.DynamicIndex(Apply(b, compressed, args))
}

// DelinearizeIndex splits linear into one index per basis entry, most
// significant first.
func DelinearizeIndex(b *ir.Builder, linear *ir.Value, basis []ir.OpFoldResult) []*ir.Value {
	dyn, static := ir.DispatchIndexOpFoldResults(basis)
	resultTypes := make([]ir.Type, len(basis))
	for i := range resultTypes {
		resultTypes[i] = ir.IndexType()
	}
	return b.Create(ir.OperationState{
		Name:        DelinearizeIndexOpName,
		Operands:    append([]*ir.Value{linear}, dyn...),
		ResultTypes: resultTypes,
		Attrs:       ir.Attributes{"static_basis": static},
	}).Results()
}

func verifyApply(op *ir.Operation) error {
	m, ok := op.Attr("map").(affine.Map)
	if !ok {
		return ir.EmitOpError(op, "requires a 'map' attribute")
	}
	if m.NumResults() != 1 {
		return ir.EmitOpError(op, "map must have exactly one result, got %d", m.NumResults())
	}
	if op.NumOperands() != m.NumDims+m.NumSymbols {
		return ir.EmitOpError(op, "expected %d operands for %s, got %d", m.NumDims+m.NumSymbols, m, op.NumOperands())
	}
	for _, v := range op.Operands() {
		if !v.Type().Equal(ir.IndexType()) {
			return ir.EmitOpError(op, "operands must be index typed, got %s", v.Type())
		}
	}
	return nil
}

func verifyDelinearize(op *ir.Operation) error {
	static := op.I64ArrayAttr("static_basis")
	if op.NumOperands() != 1+countDynamic(static) {
		return ir.EmitOpError(op, "expected %d operands, got %d", 1+countDynamic(static), op.NumOperands())
	}
	if op.NumResults() != len(static) {
		return ir.EmitOpError(op, "expected %d results, got %d", len(static), op.NumResults())
	}
	for _, s := range static {
		if s != ir.Dynamic && s <= 0 {
			return ir.EmitOpError(op, "basis entries must be positive, got %d", s)
		}
	}
	return nil
}
