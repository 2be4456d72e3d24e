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
	"maps"
	"slices"

	json "github.com/goccy/go-json"
	"github.com/samber/lo"
)

// FunctionJSON is the structured export of a function.
type FunctionJSON struct {
	Name   string      `json:"name"`
	Params []ValueJSON `json:"params"`
	Ops    []OpJSON    `json:"ops"`
}

// ValueJSON names a value and its type.
type ValueJSON struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// OpJSON is one exported operation.
type OpJSON struct {
	ID       int               `json:"id"`
	Name     string            `json:"name"`
	Operands []string          `json:"operands,omitempty"`
	Results  []ValueJSON       `json:"results,omitempty"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Regions  [][]BlockJSON     `json:"regions,omitempty"`
}

// BlockJSON is one exported block.
type BlockJSON struct {
	Args []ValueJSON `json:"args,omitempty"`
	Ops  []OpJSON    `json:"ops"`
}

// Export converts fn to its structured form, naming values the same way the
// textual printer does.
func Export(fn *Function) FunctionJSON {
	p := NewPrinter()
	p.reset()
	entry := fn.Entry()
	return FunctionJSON{
		Name:   fn.Name,
		Params: p.exportValues(entry.args),
		Ops:    p.exportOps(entry.ops),
	}
}

// MarshalFunction encodes fn as indented JSON.
func MarshalFunction(fn *Function) ([]byte, error) {
	return json.MarshalIndent(Export(fn), "", "  ")
}

func (p *Printer) exportValues(vs []*Value) []ValueJSON {
	return lo.Map(vs, func(v *Value, _ int) ValueJSON {
		return ValueJSON{Name: p.name(v), Type: v.typ.String()}
	})
}

func (p *Printer) exportOps(ops []*Operation) []OpJSON {
	out := make([]OpJSON, 0, len(ops))
	for _, op := range ops {
		j := OpJSON{
			ID:       op.ID,
			Name:     op.Name,
			Operands: lo.Map(op.operands, func(v *Value, _ int) string { return p.name(v) }),
			Results:  p.exportValues(op.results),
		}
		if len(op.Attrs) > 0 {
			j.Attrs = make(map[string]string, len(op.Attrs))
			for _, k := range slices.Sorted(maps.Keys(op.Attrs)) {
				j.Attrs[k] = FormatAttribute(op.Attrs[k])
			}
		}
		for _, region := range op.regions {
			blocks := lo.Map(region.blocks, func(b *Block, _ int) BlockJSON {
				return BlockJSON{Args: p.exportValues(b.args), Ops: p.exportOps(b.ops)}
			})
			j.Regions = append(j.Regions, blocks)
		}
		out = append(out, j)
	}
	return out
}
