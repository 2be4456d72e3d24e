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

// Package ir provides the program representation the MMA transformations
// operate on: SSA values with owned use-lists, operations with attributes and
// nested regions, a per-function operation arena, a builder/rewriter that
// expresses every change as "build new ops, redirect uses, erase old", an op
// registry with verifiers, and a fixed-point pattern driver.
package ir

import (
	"fmt"
	"slices"
	"strings"
)

// Use records that operand Index of Owner reads a value.
type Use struct {
	Owner *Operation
	Index int
}

// Value is an SSA value: either result Index of its defining operation, or
// argument Index of a block.
type Value struct {
	typ   Type
	def   *Operation
	block *Block
	index int
	uses  []Use
}

// Type returns the value's type.
func (v *Value) Type() Type { return v.typ }

// DefiningOp returns the producing operation, or nil for block arguments.
func (v *Value) DefiningOp() *Operation { return v.def }

// IsBlockArgument reports whether v is a block argument.
func (v *Value) IsBlockArgument() bool { return v.block != nil }

// OwnerBlock returns the block for a block argument, or the block of the
// defining operation.
func (v *Value) OwnerBlock() *Block {
	if v.block != nil {
		return v.block
	}
	if v.def != nil {
		return v.def.block
	}
	return nil
}

// Index returns the result or argument number.
func (v *Value) Index() int { return v.index }

// Uses returns a snapshot of the value's use-list.
func (v *Value) Uses() []Use { return slices.Clone(v.uses) }

// NumUses returns the number of uses.
func (v *Value) NumUses() int { return len(v.uses) }

// HasOneUse reports whether v has exactly one use.
func (v *Value) HasOneUse() bool { return len(v.uses) == 1 }

// Users returns the distinct operations using v, in use order.
func (v *Value) Users() []*Operation {
	var users []*Operation
	for _, u := range v.uses {
		if !slices.Contains(users, u.Owner) {
			users = append(users, u.Owner)
		}
	}
	return users
}

func (v *Value) addUse(u Use) { v.uses = append(v.uses, u) }

func (v *Value) removeUse(u Use) {
	for i, x := range v.uses {
		if x == u {
			v.uses = slices.Delete(v.uses, i, i+1)
			return
		}
	}
}

// Location is a free-form source location attached to operations.
type Location string

// UnknownLoc is used when no better location is available.
const UnknownLoc Location = "loc(unknown)"

// Attributes maps attribute names to values. Values are plain Go data
// (int64, []int64, string, affine maps, dialect-specific types).
type Attributes map[string]any

// Clone returns a shallow copy of the attribute dictionary.
func (a Attributes) Clone() Attributes {
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Operation is a node in the IR graph.
type Operation struct {
	// ID is unique within the owning function's arena.
	ID int

	// Name is the fully qualified op name, e.g. "gpu.multi_mma".
	Name string

	// Attrs holds the op's attributes.
	Attrs Attributes

	// Loc is the op's source location.
	Loc Location

	operands []*Value
	results  []*Value
	regions  []*Region
	block    *Block
	fn       *Function
	erased   bool
}

// Dialect returns the part of Name before the first dot.
func (op *Operation) Dialect() string {
	d, _, _ := strings.Cut(op.Name, ".")
	return d
}

// NumOperands returns the number of operands.
func (op *Operation) NumOperands() int { return len(op.operands) }

// Operand returns operand i.
func (op *Operation) Operand(i int) *Value { return op.operands[i] }

// Operands returns a copy of the operand list.
func (op *Operation) Operands() []*Value { return slices.Clone(op.operands) }

// NumResults returns the number of results.
func (op *Operation) NumResults() int { return len(op.results) }

// Result returns result i.
func (op *Operation) Result(i int) *Value { return op.results[i] }

// Results returns a copy of the result list.
func (op *Operation) Results() []*Value { return slices.Clone(op.results) }

// ResultTypes returns the types of all results.
func (op *Operation) ResultTypes() []Type {
	types := make([]Type, len(op.results))
	for i, r := range op.results {
		types[i] = r.typ
	}
	return types
}

// NumRegions returns the number of attached regions.
func (op *Operation) NumRegions() int { return len(op.regions) }

// Region returns region i.
func (op *Operation) Region(i int) *Region { return op.regions[i] }

// Block returns the block containing op, or nil if detached.
func (op *Operation) Block() *Block { return op.block }

// ParentOp returns the operation owning the region that contains op.
func (op *Operation) ParentOp() *Operation {
	if op.block == nil || op.block.parent == nil {
		return nil
	}
	return op.block.parent.parent
}

// Function returns the function whose arena owns op.
func (op *Operation) Function() *Function { return op.fn }

// IsErased reports whether op has been erased.
func (op *Operation) IsErased() bool { return op.erased }

// IsAncestor reports whether op is other or transitively contains it.
func (op *Operation) IsAncestor(other *Operation) bool {
	for cur := other; cur != nil; cur = cur.ParentOp() {
		if cur == op {
			return true
		}
	}
	return false
}

// IsBeforeInBlock reports whether op precedes other in the same block.
func (op *Operation) IsBeforeInBlock(other *Operation) bool {
	if op.block == nil || op.block != other.block {
		return false
	}
	return op.block.indexOf(op) < op.block.indexOf(other)
}

// SetOperand replaces operand i, keeping use-lists consistent.
func (op *Operation) SetOperand(i int, v *Value) {
	old := op.operands[i]
	old.removeUse(Use{Owner: op, Index: i})
	op.operands[i] = v
	v.addUse(Use{Owner: op, Index: i})
}

// Attr returns attribute name, or nil.
func (op *Operation) Attr(name string) any { return op.Attrs[name] }

// I64ArrayAttr returns an []int64 attribute, or nil if absent.
func (op *Operation) I64ArrayAttr(name string) []int64 {
	v, _ := op.Attrs[name].([]int64)
	return v
}

// String returns a short debug form, e.g. "gpu.multi_mma#12".
func (op *Operation) String() string {
	return fmt.Sprintf("%s#%d", op.Name, op.ID)
}

// Block is a list of operations with typed arguments.
type Block struct {
	args   []*Value
	ops    []*Operation
	parent *Region
}

// NumArguments returns the number of block arguments.
func (b *Block) NumArguments() int { return len(b.args) }

// Argument returns argument i.
func (b *Block) Argument(i int) *Value { return b.args[i] }

// Arguments returns a copy of the argument list.
func (b *Block) Arguments() []*Value { return slices.Clone(b.args) }

// AddArgument appends a new argument of type t.
func (b *Block) AddArgument(t Type) *Value {
	v := &Value{typ: t, block: b, index: len(b.args)}
	b.args = append(b.args, v)
	return v
}

// Operations returns a snapshot of the block's operations.
func (b *Block) Operations() []*Operation { return slices.Clone(b.ops) }

// NumOperations returns the number of operations in the block.
func (b *Block) NumOperations() int { return len(b.ops) }

// Terminator returns the last operation, or nil for an empty block.
func (b *Block) Terminator() *Operation {
	if len(b.ops) == 0 {
		return nil
	}
	return b.ops[len(b.ops)-1]
}

// ParentRegion returns the region holding b.
func (b *Block) ParentRegion() *Region { return b.parent }

// ParentOp returns the operation holding b's region.
func (b *Block) ParentOp() *Operation {
	if b.parent == nil {
		return nil
	}
	return b.parent.parent
}

func (b *Block) indexOf(op *Operation) int {
	return slices.Index(b.ops, op)
}

func (b *Block) insertAt(i int, op *Operation) {
	b.ops = slices.Insert(b.ops, i, op)
	op.block = b
}

func (b *Block) remove(op *Operation) {
	if i := b.indexOf(op); i >= 0 {
		b.ops = slices.Delete(b.ops, i, i+1)
	}
	op.block = nil
}

// Region is an ordered list of blocks attached to an operation.
type Region struct {
	blocks []*Block
	parent *Operation
}

// Blocks returns a snapshot of the region's blocks.
func (r *Region) Blocks() []*Block { return slices.Clone(r.blocks) }

// Front returns the first block, or nil for an empty region.
func (r *Region) Front() *Block {
	if len(r.blocks) == 0 {
		return nil
	}
	return r.blocks[0]
}

// ParentOp returns the operation owning r.
func (r *Region) ParentOp() *Operation { return r.parent }

// AddBlock appends a new block with the given argument types.
func (r *Region) AddBlock(argTypes ...Type) *Block {
	b := &Block{parent: r}
	for _, t := range argTypes {
		b.AddArgument(t)
	}
	r.blocks = append(r.blocks, b)
	return b
}

// Function is a named top-level body. It owns the arena of every operation
// created inside it.
type Function struct {
	// Name is the function name.
	Name string

	// Body holds a single entry block whose arguments are the function
	// parameters.
	Body *Region

	// AllOps maps ID to operation for quick lookup.
	AllOps map[int]*Operation

	// nextID is used to allocate unique operation IDs.
	nextID int
}

// NewFunction creates a function with one entry block taking params.
func NewFunction(name string, params ...Type) *Function {
	fn := &Function{
		Name:   name,
		Body:   &Region{},
		AllOps: make(map[int]*Operation),
	}
	fn.Body.AddBlock(params...)
	return fn
}

// NewOpID allocates and returns a new unique operation ID.
func (fn *Function) NewOpID() int {
	id := fn.nextID
	fn.nextID++
	return id
}

// Entry returns the entry block.
func (fn *Function) Entry() *Block { return fn.Body.Front() }

// Params returns the entry block arguments.
func (fn *Function) Params() []*Value { return fn.Entry().Arguments() }

// GetOp returns the live operation with the given ID, or nil.
func (fn *Function) GetOp(id int) *Operation {
	op := fn.AllOps[id]
	if op == nil || op.erased {
		return nil
	}
	return op
}

// Module is a collection of functions compiled together.
type Module struct {
	Name      string
	Functions []*Function
}

// NewModule creates an empty module.
func NewModule(name string) *Module {
	return &Module{Name: name}
}

// Add appends fn to the module.
func (m *Module) Add(fn *Function) {
	m.Functions = append(m.Functions, fn)
}

// Lookup returns the function named name, or nil.
func (m *Module) Lookup(name string) *Function {
	for _, fn := range m.Functions {
		if fn.Name == name {
			return fn
		}
	}
	return nil
}
