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

// Package affine implements the small slice of affine-map algebra the MMA
// transformations need: dimension/symbol/constant expressions combined with
// + and *, maps from iteration dimensions to operand coordinates, projected
// permutation queries, permutation application, constant folding and
// contraction-dimension inference.
package affine

import (
	"fmt"

	"github.com/pkg/errors"
)

// ExprKind categorizes affine expressions.
type ExprKind int

const (
	// ExprDim is an iteration dimension reference (d0, d1, ...).
	ExprDim ExprKind = iota

	// ExprSymbol is a symbol reference (s0, s1, ...).
	ExprSymbol

	// ExprConstant is an integer literal.
	ExprConstant

	// ExprAdd is the sum of two expressions.
	ExprAdd

	// ExprMul is the product of two expressions.
	ExprMul
)

// String returns a human-readable name for the ExprKind.
func (k ExprKind) String() string {
	switch k {
	case ExprDim:
		return "Dim"
	case ExprSymbol:
		return "Symbol"
	case ExprConstant:
		return "Constant"
	case ExprAdd:
		return "Add"
	case ExprMul:
		return "Mul"
	default:
		return fmt.Sprintf("ExprKind(%d)", k)
	}
}

// Expr is an affine expression tree. Leaves are dims, symbols and constants;
// inner nodes are Add and Mul with both children set.
type Expr struct {
	Kind ExprKind

	// Pos is the dimension or symbol position for ExprDim/ExprSymbol.
	Pos int

	// Value is the literal for ExprConstant.
	Value int64

	// LHS and RHS are the operands of ExprAdd/ExprMul.
	LHS, RHS *Expr
}

// Dim returns the expression for dimension pos.
func Dim(pos int) Expr { return Expr{Kind: ExprDim, Pos: pos} }

// Symbol returns the expression for symbol pos.
func Symbol(pos int) Expr { return Expr{Kind: ExprSymbol, Pos: pos} }

// Constant returns a literal expression.
func Constant(v int64) Expr { return Expr{Kind: ExprConstant, Value: v} }

// Add returns lhs + rhs.
func Add(lhs, rhs Expr) Expr {
	return Expr{Kind: ExprAdd, LHS: &lhs, RHS: &rhs}
}

// Mul returns lhs * rhs.
func Mul(lhs, rhs Expr) Expr {
	return Expr{Kind: ExprMul, LHS: &lhs, RHS: &rhs}
}

// Dims returns the n dimension expressions d0..d(n-1).
func Dims(n int) []Expr {
	out := make([]Expr, n)
	for i := range out {
		out[i] = Dim(i)
	}
	return out
}

// IsDim reports whether e is a bare dimension reference.
func (e Expr) IsDim() bool { return e.Kind == ExprDim }

// IsConstant reports whether e is a literal.
func (e Expr) IsConstant() bool { return e.Kind == ExprConstant }

// Equal reports structural equality.
func (e Expr) Equal(o Expr) bool {
	if e.Kind != o.Kind {
		return false
	}
	switch e.Kind {
	case ExprDim, ExprSymbol:
		return e.Pos == o.Pos
	case ExprConstant:
		return e.Value == o.Value
	default:
		return e.LHS.Equal(*o.LHS) && e.RHS.Equal(*o.RHS)
	}
}

// maxPositions returns one past the largest dim and symbol positions used.
func (e Expr) maxPositions() (dims, syms int) {
	switch e.Kind {
	case ExprDim:
		return e.Pos + 1, 0
	case ExprSymbol:
		return 0, e.Pos + 1
	case ExprAdd, ExprMul:
		ld, ls := e.LHS.maxPositions()
		rd, rs := e.RHS.maxPositions()
		return max(ld, rd), max(ls, rs)
	default:
		return 0, 0
	}
}

// usesDim reports whether dimension pos appears anywhere in e.
func (e Expr) usesDim(pos int) bool {
	switch e.Kind {
	case ExprDim:
		return e.Pos == pos
	case ExprAdd, ExprMul:
		return e.LHS.usesDim(pos) || e.RHS.usesDim(pos)
	default:
		return false
	}
}

// Eval evaluates e with the given dimension and symbol values.
func (e Expr) Eval(dims, syms []int64) (int64, error) {
	switch e.Kind {
	case ExprDim:
		if e.Pos >= len(dims) {
			return 0, errors.Errorf("d%d out of range for %d dims", e.Pos, len(dims))
		}
		return dims[e.Pos], nil
	case ExprSymbol:
		if e.Pos >= len(syms) {
			return 0, errors.Errorf("s%d out of range for %d symbols", e.Pos, len(syms))
		}
		return syms[e.Pos], nil
	case ExprConstant:
		return e.Value, nil
	}
	l, err := e.LHS.Eval(dims, syms)
	if err != nil {
		return 0, err
	}
	r, err := e.RHS.Eval(dims, syms)
	if err != nil {
		return 0, err
	}
	if e.Kind == ExprAdd {
		return l + r, nil
	}
	return l * r, nil
}

// simplify substitutes known dimension values and folds constants.
func (e Expr) simplify(known map[int]int64) Expr {
	switch e.Kind {
	case ExprDim:
		if v, ok := known[e.Pos]; ok {
			return Constant(v)
		}
		return e
	case ExprSymbol, ExprConstant:
		return e
	}
	l := e.LHS.simplify(known)
	r := e.RHS.simplify(known)
	if l.IsConstant() && r.IsConstant() {
		if e.Kind == ExprAdd {
			return Constant(l.Value + r.Value)
		}
		return Constant(l.Value * r.Value)
	}
	if e.Kind == ExprAdd {
		switch {
		case l.IsConstant() && l.Value == 0:
			return r
		case r.IsConstant() && r.Value == 0:
			return l
		}
		return Add(l, r)
	}
	switch {
	case l.IsConstant() && l.Value == 0, r.IsConstant() && r.Value == 0:
		return Constant(0)
	case l.IsConstant() && l.Value == 1:
		return r
	case r.IsConstant() && r.Value == 1:
		return l
	}
	return Mul(l, r)
}

// String renders e the way affine maps are printed, e.g. "d0 * 4 + s0".
func (e Expr) String() string {
	switch e.Kind {
	case ExprDim:
		return fmt.Sprintf("d%d", e.Pos)
	case ExprSymbol:
		return fmt.Sprintf("s%d", e.Pos)
	case ExprConstant:
		return fmt.Sprintf("%d", e.Value)
	case ExprAdd:
		return e.LHS.String() + " + " + e.RHS.String()
	default:
		wrap := func(x *Expr) string {
			if x.Kind == ExprAdd {
				return "(" + x.String() + ")"
			}
			return x.String()
		}
		return wrap(e.LHS) + " * " + wrap(e.RHS)
	}
}

// ReplaceDims substitutes repl[i] for every occurrence of dimension i.
func (e Expr) ReplaceDims(repl []Expr) Expr {
	switch e.Kind {
	case ExprDim:
		return repl[e.Pos]
	case ExprAdd:
		return Add(e.LHS.ReplaceDims(repl), e.RHS.ReplaceDims(repl))
	case ExprMul:
		return Mul(e.LHS.ReplaceDims(repl), e.RHS.ReplaceDims(repl))
	default:
		return e
	}
}
