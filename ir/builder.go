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

import "fmt"

// OperationState collects everything needed to create an operation.
type OperationState struct {
	Name        string
	Operands    []*Value
	ResultTypes []Type
	Attrs       Attributes
	NumRegions  int
	Loc         Location
}

// Builder creates operations at an insertion point inside one function.
type Builder struct {
	// fn is the function whose arena receives new operations.
	fn *Function

	// block and before describe the insertion point: new operations go
	// before `before`, or at the end of block when before is nil.
	block  *Block
	before *Operation

	// loc is the default location for new operations.
	loc Location

	// listener observes created operations (used by the rewriter).
	listener func(op *Operation)
}

// BuilderOption configures the Builder.
type BuilderOption func(*Builder)

// WithLocation sets the default location for created operations.
func WithLocation(loc Location) BuilderOption {
	return func(b *Builder) {
		b.loc = loc
	}
}

// AtEndOf places the initial insertion point at the end of block.
func AtEndOf(block *Block) BuilderOption {
	return func(b *Builder) {
		b.block = block
		b.before = nil
	}
}

// NewBuilder creates a builder for fn. By default it inserts at the end of
// the function's entry block.
func NewBuilder(fn *Function, opts ...BuilderOption) *Builder {
	b := &Builder{
		fn:    fn,
		block: fn.Entry(),
		loc:   UnknownLoc,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Function returns the function being built.
func (b *Builder) Function() *Function { return b.fn }

// InsertionBlock returns the block receiving new operations.
func (b *Builder) InsertionBlock() *Block { return b.block }

// InsertionPoint is a saved builder position.
type InsertionPoint struct {
	block  *Block
	before *Operation
}

// SaveInsertionPoint returns the current position; pair it with
// RestoreInsertionPoint the way a scoped guard would.
func (b *Builder) SaveInsertionPoint() InsertionPoint {
	return InsertionPoint{block: b.block, before: b.before}
}

// RestoreInsertionPoint moves back to a saved position.
func (b *Builder) RestoreInsertionPoint(ip InsertionPoint) {
	b.block, b.before = ip.block, ip.before
}

// SetInsertionPoint inserts subsequent operations right before op.
func (b *Builder) SetInsertionPoint(op *Operation) {
	if op.block == nil {
		panic(fmt.Sprintf("ir: %s is not in a block", op))
	}
	b.block, b.before = op.block, op
}

// SetInsertionPointAfter inserts subsequent operations right after op.
func (b *Builder) SetInsertionPointAfter(op *Operation) {
	if op.block == nil {
		panic(fmt.Sprintf("ir: %s is not in a block", op))
	}
	b.block = op.block
	b.before = nil
	if i := op.block.indexOf(op); i+1 < len(op.block.ops) {
		b.before = op.block.ops[i+1]
	}
}

// SetInsertionPointAfterValue inserts right after v's definition, or at the
// start of its block for block arguments.
func (b *Builder) SetInsertionPointAfterValue(v *Value) {
	if v.def != nil {
		b.SetInsertionPointAfter(v.def)
		return
	}
	b.SetInsertionPointToStart(v.block)
}

// SetInsertionPointToStart inserts at the beginning of block.
func (b *Builder) SetInsertionPointToStart(block *Block) {
	b.block = block
	b.before = nil
	if len(block.ops) > 0 {
		b.before = block.ops[0]
	}
}

// SetInsertionPointToEnd inserts at the end of block.
func (b *Builder) SetInsertionPointToEnd(block *Block) {
	b.block, b.before = block, nil
}

// Create builds an operation from state and inserts it.
func (b *Builder) Create(state OperationState) *Operation {
	if b.block == nil {
		panic("ir: builder has no insertion block")
	}
	op := b.newDetached(state)
	b.insert(op)
	return op
}

func (b *Builder) newDetached(state OperationState) *Operation {
	loc := state.Loc
	if loc == "" {
		loc = b.loc
	}
	attrs := state.Attrs
	if attrs == nil {
		attrs = Attributes{}
	}
	op := &Operation{
		ID:    b.fn.NewOpID(),
		Name:  state.Name,
		Attrs: attrs,
		Loc:   loc,
		fn:    b.fn,
	}
	op.operands = make([]*Value, len(state.Operands))
	for i, v := range state.Operands {
		if v == nil {
			panic(fmt.Sprintf("ir: nil operand %d for %s", i, state.Name))
		}
		op.operands[i] = v
		v.addUse(Use{Owner: op, Index: i})
	}
	op.results = make([]*Value, len(state.ResultTypes))
	for i, t := range state.ResultTypes {
		op.results[i] = &Value{typ: t, def: op, index: i}
	}
	for range state.NumRegions {
		op.regions = append(op.regions, &Region{parent: op})
	}
	b.fn.AllOps[op.ID] = op
	return op
}

func (b *Builder) insert(op *Operation) {
	i := len(b.block.ops)
	if b.before != nil {
		i = b.block.indexOf(b.before)
		if i < 0 {
			panic(fmt.Sprintf("ir: insertion point %s left its block", b.before))
		}
	}
	b.block.insertAt(i, op)
	if b.listener != nil {
		b.listener(op)
	}
}

// CreateBlock appends a block with argTypes to region. The insertion point
// is unchanged.
func (b *Builder) CreateBlock(region *Region, argTypes ...Type) *Block {
	return region.AddBlock(argTypes...)
}
