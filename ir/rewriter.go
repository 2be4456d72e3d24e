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
	"slices"
)

// Rewriter is a Builder that also mutates the graph. Every mutation goes
// through it so use-lists stay consistent and the pattern driver can track
// what changed.
type Rewriter struct {
	*Builder

	// created collects operations built since the last reset.
	created []*Operation

	// changed is set by any mutation.
	changed bool
}

// NewRewriter creates a rewriter for fn.
func NewRewriter(fn *Function, opts ...BuilderOption) *Rewriter {
	rw := &Rewriter{Builder: NewBuilder(fn, opts...)}
	rw.listener = func(op *Operation) {
		rw.created = append(rw.created, op)
		rw.changed = true
	}
	return rw
}

// Changed reports whether the graph was mutated since the last ResetTracking.
func (rw *Rewriter) Changed() bool { return rw.changed }

// Created returns the operations created since the last ResetTracking.
func (rw *Rewriter) Created() []*Operation { return slices.Clone(rw.created) }

// ResetTracking clears the change tracking state.
func (rw *Rewriter) ResetTracking() {
	rw.created = rw.created[:0]
	rw.changed = false
}

// NotifyMatchFailure returns a MatchFailure for op with a formatted reason.
// It never mutates the graph.
func (rw *Rewriter) NotifyMatchFailure(op *Operation, format string, args ...any) error {
	return &MatchFailure{Op: op, Reason: fmt.Sprintf(format, args...)}
}

// ReplaceAllUsesWith redirects every use of from to to.
func (rw *Rewriter) ReplaceAllUsesWith(from, to *Value) {
	rw.replaceUsesIf(from, to, func(Use) bool { return true })
}

// ReplaceAllUsesExcept redirects every use of from to to, except uses owned
// by except.
func (rw *Rewriter) ReplaceAllUsesExcept(from, to *Value, except *Operation) {
	rw.replaceUsesIf(from, to, func(u Use) bool { return u.Owner != except })
}

// ReplaceUsesOfWith redirects the uses of from inside op only.
func (rw *Rewriter) ReplaceUsesOfWith(op *Operation, from, to *Value) {
	rw.replaceUsesIf(from, to, func(u Use) bool { return u.Owner == op })
}

func (rw *Rewriter) replaceUsesIf(from, to *Value, pred func(Use) bool) {
	if from == to {
		return
	}
	for _, u := range from.Uses() {
		if pred(u) {
			u.Owner.SetOperand(u.Index, to)
			rw.changed = true
		}
	}
}

// ReplaceOp replaces every result of op with the matching value and erases
// op.
func (rw *Rewriter) ReplaceOp(op *Operation, values ...*Value) {
	if len(values) != len(op.results) {
		panic(fmt.Sprintf("ir: replacing %s: %d values for %d results", op, len(values), len(op.results)))
	}
	for i, r := range op.results {
		rw.ReplaceAllUsesWith(r, values[i])
	}
	rw.EraseOp(op)
}

// EraseOp detaches op and everything nested in it. Its results must be dead.
func (rw *Rewriter) EraseOp(op *Operation) {
	for _, r := range op.results {
		if len(r.uses) != 0 {
			panic(fmt.Sprintf("ir: erasing %s whose result %d still has %d uses", op, r.index, len(r.uses)))
		}
	}
	rw.dropAll(op)
	if op.block != nil {
		op.block.remove(op)
	}
	rw.changed = true
}

// dropAll releases operand uses of op and nested ops, marking them erased.
func (rw *Rewriter) dropAll(op *Operation) {
	for _, region := range op.regions {
		for _, block := range region.blocks {
			for _, nested := range slices.Backward(block.ops) {
				rw.dropAll(nested)
			}
			block.ops = nil
		}
	}
	for i, v := range op.operands {
		v.removeUse(Use{Owner: op, Index: i})
	}
	op.operands = nil
	op.erased = true
}

// InlineBlockBefore moves every operation of src right before `before`,
// replacing uses of src's arguments with args. src is left empty.
func (rw *Rewriter) InlineBlockBefore(src *Block, before *Operation, args []*Value) {
	rw.replaceBlockArgs(src, args)
	dest := before.block
	for _, op := range src.Operations() {
		src.remove(op)
		dest.insertAt(dest.indexOf(before), op)
	}
	rw.changed = true
}

// MergeBlocks appends every operation of src to the end of dest, replacing
// uses of src's arguments with args. src is left empty.
func (rw *Rewriter) MergeBlocks(src, dest *Block, args []*Value) {
	rw.replaceBlockArgs(src, args)
	for _, op := range src.Operations() {
		src.remove(op)
		dest.insertAt(len(dest.ops), op)
	}
	rw.changed = true
}

func (rw *Rewriter) replaceBlockArgs(src *Block, args []*Value) {
	if len(args) != len(src.args) {
		panic(fmt.Sprintf("ir: inlining block with %d arguments using %d values", len(src.args), len(args)))
	}
	for i, a := range src.args {
		rw.ReplaceAllUsesWith(a, args[i])
	}
}

// MoveOpBefore moves op right before `before`, possibly across blocks.
func (rw *Rewriter) MoveOpBefore(op, before *Operation) {
	if op.block != nil {
		op.block.remove(op)
	}
	before.block.insertAt(before.block.indexOf(before), op)
	rw.changed = true
}

// Clone copies op at the insertion point with new operands and result
// types. Attributes are copied and regions are cloned deeply, remapping
// values defined inside them.
func (rw *Rewriter) Clone(op *Operation, resultTypes []Type, operands []*Value) *Operation {
	mapping := make(map[*Value]*Value)
	clone := rw.Create(OperationState{
		Name:        op.Name,
		Operands:    operands,
		ResultTypes: resultTypes,
		Attrs:       op.Attrs.Clone(),
		NumRegions:  len(op.regions),
		Loc:         op.Loc,
	})
	rw.cloneRegions(op, clone, mapping)
	return clone
}

func (rw *Rewriter) cloneRegions(src, dst *Operation, mapping map[*Value]*Value) {
	saved := rw.SaveInsertionPoint()
	defer rw.RestoreInsertionPoint(saved)
	for ri, region := range src.regions {
		for _, block := range region.blocks {
			argTypes := make([]Type, len(block.args))
			for i, a := range block.args {
				argTypes[i] = a.typ
			}
			nb := dst.regions[ri].AddBlock(argTypes...)
			for i, a := range block.args {
				mapping[a] = nb.args[i]
			}
			rw.SetInsertionPointToEnd(nb)
			for _, nested := range block.ops {
				operands := make([]*Value, len(nested.operands))
				for i, v := range nested.operands {
					if m, ok := mapping[v]; ok {
						operands[i] = m
					} else {
						operands[i] = v
					}
				}
				c := rw.Create(OperationState{
					Name:        nested.Name,
					Operands:    operands,
					ResultTypes: nested.ResultTypes(),
					Attrs:       nested.Attrs.Clone(),
					NumRegions:  len(nested.regions),
					Loc:         nested.Loc,
				})
				for i, r := range nested.results {
					mapping[r] = c.results[i]
				}
				rw.cloneRegions(nested, c, mapping)
			}
		}
	}
}
