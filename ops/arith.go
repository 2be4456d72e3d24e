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
	"github.com/ajroetker/go-mmagen/ir"
)

// Arith op names.
const (
	ConstantOpName = "arith.constant"
)

func init() {
	ir.RegisterOp(ir.OpDef{
		Name:    ConstantOpName,
		Summary: "splat constant of a scalar, vector or tensor type",
		Verify:  verifyConstant,
	})
	ir.ConstantIntResolver = ConstantIntValue
}

// Constant builds a constant of type t whose every element is value.
func Constant(b *ir.Builder, t ir.Type, value int64) *ir.Value {
	var attr any = value
	if t.Elem.IsFloat() {
		attr = float64(value)
	}
	return b.Create(ir.OperationState{
		Name:        ConstantOpName,
		ResultTypes: []ir.Type{t},
		Attrs:       ir.Attributes{"value": attr},
	}).Result(0)
}

// ConstantIndex builds an index constant.
func ConstantIndex(b *ir.Builder, v int64) *ir.Value {
	return Constant(b, ir.IndexType(), v)
}

// Zero builds a zero constant of type t.
func Zero(b *ir.Builder, t ir.Type) *ir.Value {
	return Constant(b, t, 0)
}

// Materialize returns r as a value, building an index constant when r is
// static.
func Materialize(b *ir.Builder, r ir.OpFoldResult) *ir.Value {
	if r.IsStatic() {
		return ConstantIndex(b, r.Static)
	}
	return r.Value
}

// ConstantIntValue returns the integer held by an index or integer scalar
// arith.constant.
func ConstantIntValue(v *ir.Value) (int64, bool) {
	def := v.DefiningOp()
	if def == nil || def.Name != ConstantOpName || v.Type().IsShaped() {
		return 0, false
	}
	c, ok := def.Attr("value").(int64)
	return c, ok
}

// IsZeroConstant reports whether v is a splat zero constant.
func IsZeroConstant(v *ir.Value) bool {
	def := v.DefiningOp()
	if def == nil || def.Name != ConstantOpName {
		return false
	}
	switch c := def.Attr("value").(type) {
	case int64:
		return c == 0
	case float64:
		return c == 0
	}
	return false
}

func verifyConstant(op *ir.Operation) error {
	if op.NumOperands() != 0 || op.NumResults() != 1 {
		return ir.EmitOpError(op, "expected no operands and one result")
	}
	t := op.Result(0).Type()
	switch op.Attr("value").(type) {
	case int64:
		if t.Elem.IsFloat() {
			return ir.EmitOpError(op, "integer value for floating point type %s", t)
		}
	case float64:
		if !t.Elem.IsFloat() {
			return ir.EmitOpError(op, "floating point value for type %s", t)
		}
	default:
		return ir.EmitOpError(op, "requires an integer or floating point 'value' attribute")
	}
	if t.IsShaped() && !t.HasStaticShape() {
		return ir.EmitOpError(op, "splat constant requires a static shape, got %s", t)
	}
	return nil
}
