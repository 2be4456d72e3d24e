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

package affine

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// Map is an affine map (d0, ..., dN)[s0, ..., sM] -> (e0, ..., eK).
//
// The zero Map is the empty map () -> (), used by native-shape MMA
// operations that have no remaining iteration space.
type Map struct {
	NumDims    int
	NumSymbols int
	Results    []Expr
}

// NewMap returns a map over numDims dims and numSymbols symbols.
func NewMap(numDims, numSymbols int, results ...Expr) Map {
	return Map{NumDims: numDims, NumSymbols: numSymbols, Results: results}
}

// Empty returns the map () -> ().
func Empty() Map { return Map{} }

// MultiDimIdentity returns (d0, ..., dn-1) -> (d0, ..., dn-1).
func MultiDimIdentity(n int) Map {
	return NewMap(n, 0, Dims(n)...)
}

// InferFromExprList builds one map per expression list, all sharing the
// smallest dim and symbol counts that cover every list.
func InferFromExprList(lists [][]Expr) []Map {
	numDims, numSyms := 0, 0
	for _, list := range lists {
		for _, e := range list {
			d, s := e.maxPositions()
			numDims = max(numDims, d)
			numSyms = max(numSyms, s)
		}
	}
	return lo.Map(lists, func(list []Expr, _ int) Map {
		return NewMap(numDims, numSyms, list...)
	})
}

// NumResults returns the number of result expressions.
func (m Map) NumResults() int { return len(m.Results) }

// IsEmpty reports whether m is () -> ().
func (m Map) IsEmpty() bool {
	return m.NumDims == 0 && m.NumSymbols == 0 && len(m.Results) == 0
}

// IsProjectedPermutation reports whether every result is a distinct bare
// dimension, i.e. m is a permutation of a subset of its inputs.
func (m Map) IsProjectedPermutation() bool {
	if m.NumSymbols != 0 {
		return false
	}
	seen := make([]bool, m.NumDims)
	for _, e := range m.Results {
		if !e.IsDim() || e.Pos >= m.NumDims || seen[e.Pos] {
			return false
		}
		seen[e.Pos] = true
	}
	return true
}

// ResultPosition returns the index of the first result equal to target, or
// -1 when target is not a result of m.
func (m Map) ResultPosition(target Expr) int {
	for i, e := range m.Results {
		if e.Equal(target) {
			return i
		}
	}
	return -1
}

// DimPosition returns the dimension referenced by result i. It panics when
// the result is not a bare dimension.
func (m Map) DimPosition(i int) int {
	e := m.Results[i]
	if !e.IsDim() {
		panic(fmt.Sprintf("affine: result %d of %s is not a dimension", i, m))
	}
	return e.Pos
}

// UsesDim reports whether dimension pos appears in any result.
func (m Map) UsesDim(pos int) bool {
	return lo.SomeBy(m.Results, func(e Expr) bool { return e.usesDim(pos) })
}

// ApplyPermutation projects a per-dimension vector through a projected
// permutation: out[i] = in[dim(result i)].
func (m Map) ApplyPermutation(in []int64) []int64 {
	out := make([]int64, len(m.Results))
	for i := range m.Results {
		out[i] = in[m.DimPosition(i)]
	}
	return out
}

// Eval evaluates every result with the given dim and symbol values.
func (m Map) Eval(dims, syms []int64) ([]int64, error) {
	if len(dims) != m.NumDims || len(syms) != m.NumSymbols {
		return nil, errors.Errorf("affine map %s expects %d dims and %d symbols, got %d and %d",
			m, m.NumDims, m.NumSymbols, len(dims), len(syms))
	}
	out := make([]int64, len(m.Results))
	for i, e := range m.Results {
		v, err := e.Eval(dims, syms)
		if err != nil {
			return nil, errors.Wrapf(err, "evaluating result %d of %s", i, m)
		}
		out[i] = v
	}
	return out, nil
}

// SimplifyWithConstants substitutes the known dimension values and folds
// constant sub-expressions. Dimension numbering is unchanged.
func (m Map) SimplifyWithConstants(known map[int]int64) Map {
	return NewMap(m.NumDims, m.NumSymbols, lo.Map(m.Results, func(e Expr, _ int) Expr {
		return e.simplify(known)
	})...)
}

// Equal reports structural equality of two maps.
func (m Map) Equal(o Map) bool {
	if m.NumDims != o.NumDims || m.NumSymbols != o.NumSymbols || len(m.Results) != len(o.Results) {
		return false
	}
	for i := range m.Results {
		if !m.Results[i].Equal(o.Results[i]) {
			return false
		}
	}
	return true
}

// String renders m in the usual textual form, e.g. "(d0, d1, d2) -> (d0, d2)".
func (m Map) String() string {
	var sb strings.Builder
	sb.WriteString("(")
	for i := range m.NumDims {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "d%d", i)
	}
	sb.WriteString(")")
	if m.NumSymbols > 0 {
		sb.WriteString("[")
		for i := range m.NumSymbols {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "s%d", i)
		}
		sb.WriteString("]")
	}
	sb.WriteString(" -> (")
	sb.WriteString(strings.Join(lo.Map(m.Results, func(e Expr, _ int) string { return e.String() }), ", "))
	sb.WriteString(")")
	return sb.String()
}

// MarshalText implements encoding.TextMarshaler so maps serialize as their
// textual form in JSON and YAML.
func (m Map) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler using Parse.
func (m *Map) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ReplaceDims substitutes repl[i] for dimension i in every result, producing
// a map over numDims dimensions.
func (m Map) ReplaceDims(repl []Expr, numDims int) Map {
	return NewMap(numDims, m.NumSymbols, lo.Map(m.Results, func(e Expr, _ int) Expr {
		return e.ReplaceDims(repl)
	})...)
}

// CompressUnusedDims renumbers the dimensions that appear in some result
// densely and drops the rest. It returns the new map and, for each kept
// dimension, its original position.
func (m Map) CompressUnusedDims() (Map, []int) {
	var kept []int
	repl := make([]Expr, m.NumDims)
	for d := range m.NumDims {
		if m.UsesDim(d) {
			repl[d] = Dim(len(kept))
			kept = append(kept, d)
		} else {
			repl[d] = Constant(0)
		}
	}
	return m.ReplaceDims(repl, len(kept)), kept
}
