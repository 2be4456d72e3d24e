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

import "github.com/ajroetker/go-mmagen/ir"

// ReturnOpName terminates a function body.
const ReturnOpName = "func.return"

func init() {
	ir.RegisterOp(ir.OpDef{
		Name:         ReturnOpName,
		Summary:      "return values from the function",
		IsTerminator: true,
		Verify: func(op *ir.Operation) error {
			if op.NumResults() != 0 {
				return ir.EmitOpError(op, "expected no results")
			}
			if op.ParentOp() != nil {
				return ir.EmitOpError(op, "expected to terminate a function body")
			}
			return nil
		},
	})
}

// Return builds a func.return of values.
func Return(b *ir.Builder, values ...*ir.Value) *ir.Operation {
	return b.Create(ir.OperationState{Name: ReturnOpName, Operands: values})
}

// ReturnedValues returns the operands of fn's terminating func.return, or nil
// when fn does not end in one.
func ReturnedValues(fn *ir.Function) []*ir.Value {
	term := fn.Entry().Terminator()
	if term == nil || term.Name != ReturnOpName {
		return nil
	}
	return term.Operands()
}
