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
	"fmt"

	"github.com/samber/lo"
)

// OpFoldResult is either a static index or a dynamic index-typed Value.
type OpFoldResult struct {
	Value  *Value
	Static int64
}

// StaticIndex returns a static OpFoldResult.
func StaticIndex(v int64) OpFoldResult { return OpFoldResult{Static: v} }

// DynamicIndex wraps a Value as an OpFoldResult.
func DynamicIndex(v *Value) OpFoldResult { return OpFoldResult{Value: v} }

// StaticIndices converts a list of ints to OpFoldResults.
func StaticIndices(vs ...int64) []OpFoldResult {
	return lo.Map(vs, func(v int64, _ int) OpFoldResult { return StaticIndex(v) })
}

// IsStatic reports whether r holds a static value.
func (r OpFoldResult) IsStatic() bool { return r.Value == nil }

// String renders r as its integer or a value placeholder.
func (r OpFoldResult) String() string {
	if r.IsStatic() {
		return fmt.Sprintf("%d", r.Static)
	}
	return "<dynamic>"
}

// ConstantIntResolver returns the constant integer held by a value when its
// defining op is a known constant. The ops package installs the resolver for
// arith.constant.
var ConstantIntResolver func(v *Value) (int64, bool)

// ConstantInt returns the static value of r, looking through constant ops.
func (r OpFoldResult) ConstantInt() (int64, bool) {
	if r.IsStatic() {
		return r.Static, true
	}
	if ConstantIntResolver != nil {
		return ConstantIntResolver(r.Value)
	}
	return 0, false
}

// IsConstantInt reports whether r is statically equal to v.
func (r OpFoldResult) IsConstantInt(v int64) bool {
	c, ok := r.ConstantInt()
	return ok && c == v
}

// DispatchIndexOpFoldResults splits a mixed list into dynamic operands and a
// static array in which dynamic entries are Dynamic.
func DispatchIndexOpFoldResults(mixed []OpFoldResult) (dynamic []*Value, static []int64) {
	static = make([]int64, len(mixed))
	for i, r := range mixed {
		if r.IsStatic() {
			static[i] = r.Static
			continue
		}
		static[i] = Dynamic
		dynamic = append(dynamic, r.Value)
	}
	return dynamic, static
}

// MixedValues rebuilds a mixed list from static and dynamic storage.
func MixedValues(static []int64, dynamic []*Value) []OpFoldResult {
	out := make([]OpFoldResult, len(static))
	next := 0
	for i, s := range static {
		if s == Dynamic {
			out[i] = DynamicIndex(dynamic[next])
			next++
			continue
		}
		out[i] = StaticIndex(s)
	}
	return out
}
