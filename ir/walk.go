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

// WalkRegion visits every operation in r in pre-order: an operation before
// the operations nested in its regions. Returning false from visit stops the
// walk.
func WalkRegion(r *Region, visit func(op *Operation) bool) bool {
	for _, block := range r.blocks {
		for _, op := range block.Operations() {
			if !visit(op) {
				return false
			}
			for _, nested := range op.regions {
				if !WalkRegion(nested, visit) {
					return false
				}
			}
		}
	}
	return true
}

// Walk visits every operation of fn in pre-order.
func Walk(fn *Function, visit func(op *Operation)) {
	WalkRegion(fn.Body, func(op *Operation) bool {
		visit(op)
		return true
	})
}

// CollectOps returns every live operation of fn in pre-order.
func CollectOps(fn *Function) []*Operation {
	var ops []*Operation
	Walk(fn, func(op *Operation) {
		ops = append(ops, op)
	})
	return ops
}

// OpsNamed returns the operations of fn with the given name, in pre-order.
func OpsNamed(fn *Function, name string) []*Operation {
	var ops []*Operation
	Walk(fn, func(op *Operation) {
		if op.Name == name {
			ops = append(ops, op)
		}
	})
	return ops
}

// FirstOpNamed returns the first operation of fn with the given name, or nil.
func FirstOpNamed(fn *Function, name string) *Operation {
	var found *Operation
	WalkRegion(fn.Body, func(op *Operation) bool {
		if op.Name == name {
			found = op
			return false
		}
		return true
	})
	return found
}

// ConsumerChain follows single-use def-use edges from v until an operation
// satisfying stop is reached. Every op on the way must have exactly one
// result with exactly one use. It returns the chain including the stopping
// op, or false when the walk leaves the single-consumer path.
func ConsumerChain(v *Value, stop func(op *Operation) bool) ([]*Operation, bool) {
	var chain []*Operation
	cur := v
	for {
		if !cur.HasOneUse() {
			return nil, false
		}
		op := cur.uses[0].Owner
		chain = append(chain, op)
		if stop(op) {
			return chain, true
		}
		if len(op.results) != 1 {
			return nil, false
		}
		cur = op.results[0]
	}
}

// IsDefinedInside reports whether v is defined inside one of op's regions.
func IsDefinedInside(op *Operation, v *Value) bool {
	owner := v.OwnerBlock()
	if owner == nil {
		return false
	}
	parent := owner.ParentOp()
	return parent != nil && op.IsAncestor(parent)
}
