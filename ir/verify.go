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
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// OpDef describes a registered operation.
type OpDef struct {
	// Name is the fully qualified op name.
	Name string

	// Summary is a one-line description used by tooling.
	Summary string

	// IsTerminator marks ops that must end their block.
	IsTerminator bool

	// Verify checks operands, results and attributes.
	Verify func(op *Operation) error

	// VerifyRegions checks nested regions after they were verified.
	VerifyRegions func(op *Operation) error
}

var (
	registryMu sync.RWMutex
	registry   = map[string]*OpDef{}
)

// RegisterOp adds def to the op registry. Registering a name twice panics.
func RegisterOp(def OpDef) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[def.Name]; dup {
		panic(fmt.Sprintf("ir: op %q registered twice", def.Name))
	}
	registry[def.Name] = &def
}

// LookupOp returns the definition registered for name.
func LookupOp(name string) (*OpDef, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	def, ok := registry[name]
	return def, ok
}

// RegisteredOps returns the sorted names of all registered ops.
func RegisteredOps() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Diagnostic is a verification error attached to an operation.
type Diagnostic struct {
	Op      *Operation
	Message string
}

// Error implements error.
func (d *Diagnostic) Error() string {
	return fmt.Sprintf("%s: '%s' op %s", d.Op.Loc, d.Op.Name, d.Message)
}

// EmitOpError returns a Diagnostic for op.
func EmitOpError(op *Operation, format string, args ...any) error {
	return &Diagnostic{Op: op, Message: fmt.Sprintf(format, args...)}
}

// Verify checks every operation of fn: registered op verifiers, terminator
// placement, and that operands are defined before use.
func Verify(fn *Function) error {
	return verifyRegion(fn.Body, map[*Value]bool{})
}

// VerifyOp checks a single operation and everything nested in it, assuming
// values defined outside of it are valid.
func VerifyOp(op *Operation) error {
	return verifyOp(op, nil)
}

func verifyRegion(r *Region, visible map[*Value]bool) error {
	for _, block := range r.blocks {
		scope := make(map[*Value]bool, len(visible)+len(block.args))
		for v := range visible {
			scope[v] = true
		}
		for _, a := range block.args {
			scope[a] = true
		}
		for i, op := range block.ops {
			if err := verifyOp(op, scope); err != nil {
				return err
			}
			if def, ok := LookupOp(op.Name); ok && def.IsTerminator && i != len(block.ops)-1 {
				return EmitOpError(op, "must be the last operation in its block")
			}
			for _, res := range op.results {
				scope[res] = true
			}
		}
	}
	return nil
}

// verifyOp verifies op. visible is nil when dominance is not checked.
func verifyOp(op *Operation, visible map[*Value]bool) error {
	if op.erased {
		return EmitOpError(op, "was erased but is still reachable")
	}
	if visible != nil {
		for i, v := range op.operands {
			if !visible[v] {
				return EmitOpError(op, "operand %d does not dominate its use", i)
			}
		}
	}
	def, ok := LookupOp(op.Name)
	if !ok {
		return EmitOpError(op, "is not registered")
	}
	if def.Verify != nil {
		if err := def.Verify(op); err != nil {
			return err
		}
	}
	for _, region := range op.regions {
		nested := visible
		if nested == nil {
			nested = map[*Value]bool{}
			for _, v := range op.operands {
				nested[v] = true
			}
			markOutsideValues(region, nested)
		}
		if err := verifyRegion(region, nested); err != nil {
			return err
		}
	}
	if def.VerifyRegions != nil {
		if err := def.VerifyRegions(op); err != nil {
			return err
		}
	}
	return nil
}

// markOutsideValues adds every value used inside r but defined outside it,
// so VerifyOp can skip dominance checks for the enclosing scope.
func markOutsideValues(r *Region, visible map[*Value]bool) {
	for _, block := range r.blocks {
		for _, op := range block.ops {
			for _, v := range op.operands {
				if owner := v.OwnerBlock(); owner == nil || !regionContains(r, owner) {
					visible[v] = true
				}
			}
			for _, nested := range op.regions {
				markOutsideValues(nested, visible)
			}
		}
	}
}

func regionContains(r *Region, b *Block) bool {
	for cur := b; cur != nil; {
		if cur.parent == r {
			return true
		}
		parentOp := cur.ParentOp()
		if parentOp == nil {
			return false
		}
		cur = parentOp.block
	}
	return false
}

// VerifyError wraps an error from Verify with the function name.
func VerifyError(fn *Function, err error) error {
	return errors.Wrapf(err, "verifying function %s", fn.Name)
}
