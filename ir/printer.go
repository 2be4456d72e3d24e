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
	"bytes"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/ajroetker/go-mmagen/affine"
)

// Printer renders functions in a generic textual form:
//
//	%2 = "gpu.multi_mma"(%arg0, %arg1, %0) {kind = ...} : (vector<...>, ...) -> vector<...>
//
// Values are numbered in definition order so the output is stable and
// suitable for golden tests.
type Printer struct {
	buf    *bytes.Buffer
	indent int

	// names maps values to their printed names.
	names map[*Value]string

	// nextValue numbers op results; nextArg numbers block arguments.
	nextValue int
	nextArg   int
}

// NewPrinter creates a printer.
func NewPrinter() *Printer {
	return &Printer{buf: &bytes.Buffer{}}
}

// Print renders fn.
func Print(fn *Function) string {
	return NewPrinter().PrintFunction(fn)
}

// PrintFunction renders fn.
func (p *Printer) PrintFunction(fn *Function) string {
	p.reset()
	entry := fn.Entry()
	params := lo.Map(entry.args, func(a *Value, _ int) string {
		return p.name(a) + ": " + a.typ.String()
	})
	p.writef("func @%s(%s) {\n", fn.Name, strings.Join(params, ", "))
	p.indent++
	for _, op := range entry.ops {
		p.printOp(op)
	}
	p.indent--
	p.writef("}\n")
	return p.buf.String()
}

// PrintModule renders every function of m separated by blank lines.
func (p *Printer) PrintModule(m *Module) string {
	parts := lo.Map(m.Functions, func(fn *Function, _ int) string {
		return p.PrintFunction(fn)
	})
	return strings.Join(parts, "\n")
}

func (p *Printer) reset() {
	p.buf.Reset()
	p.indent = 0
	p.names = make(map[*Value]string)
	p.nextValue = 0
	p.nextArg = 0
}

func (p *Printer) name(v *Value) string {
	if n, ok := p.names[v]; ok {
		return n
	}
	var n string
	if v.IsBlockArgument() {
		n = fmt.Sprintf("%%arg%d", p.nextArg)
		p.nextArg++
	} else {
		n = fmt.Sprintf("%%%d", p.nextValue)
		p.nextValue++
	}
	p.names[v] = n
	return n
}

func (p *Printer) printOp(op *Operation) {
	var sb strings.Builder
	if len(op.results) > 0 {
		sb.WriteString(strings.Join(lo.Map(op.results, func(r *Value, _ int) string { return p.name(r) }), ", "))
		sb.WriteString(" = ")
	}
	fmt.Fprintf(&sb, "%q(%s)", op.Name, strings.Join(lo.Map(op.operands, func(v *Value, _ int) string { return p.name(v) }), ", "))
	if attrs := FormatAttributes(op.Attrs); attrs != "" {
		sb.WriteString(" ")
		sb.WriteString(attrs)
	}
	operandTypes := lo.Map(op.operands, func(v *Value, _ int) string { return v.typ.String() })
	resultTypes := lo.Map(op.results, func(v *Value, _ int) string { return v.typ.String() })
	fmt.Fprintf(&sb, " : (%s) -> ", strings.Join(operandTypes, ", "))
	if len(resultTypes) == 1 {
		sb.WriteString(resultTypes[0])
	} else {
		fmt.Fprintf(&sb, "(%s)", strings.Join(resultTypes, ", "))
	}
	if len(op.regions) == 0 {
		p.writef("%s\n", sb.String())
		return
	}
	p.writef("%s (", sb.String())
	for i, region := range op.regions {
		if i > 0 {
			p.buf.WriteString(", ")
		}
		p.printRegion(region)
	}
	p.buf.WriteString(")\n")
}

func (p *Printer) printRegion(r *Region) {
	p.buf.WriteString("{\n")
	for _, block := range r.blocks {
		args := lo.Map(block.args, func(a *Value, _ int) string {
			return p.name(a) + ": " + a.typ.String()
		})
		p.writef("^bb(%s):\n", strings.Join(args, ", "))
		p.indent++
		for _, op := range block.ops {
			p.printOp(op)
		}
		p.indent--
	}
	p.writef("}")
}

// FormatAttributes renders an attribute dictionary with sorted keys, or ""
// when it is empty.
func FormatAttributes(attrs Attributes) string {
	if len(attrs) == 0 {
		return ""
	}
	keys := slices.Sorted(maps.Keys(attrs))
	parts := lo.Map(keys, func(k string, _ int) string {
		return k + " = " + FormatAttribute(attrs[k])
	})
	return "{" + strings.Join(parts, ", ") + "}"
}

// FormatAttribute renders one attribute value.
func FormatAttribute(v any) string {
	switch a := v.(type) {
	case string:
		return fmt.Sprintf("%q", a)
	case []int64:
		return "[" + strings.Join(lo.Map(a, func(x int64, _ int) string { return fmt.Sprint(x) }), ", ") + "]"
	case []string:
		return "[" + strings.Join(lo.Map(a, func(x string, _ int) string { return fmt.Sprintf("%q", x) }), ", ") + "]"
	case []affine.Map:
		return "[" + strings.Join(lo.Map(a, func(m affine.Map, _ int) string { return "affine_map<" + m.String() + ">" }), ", ") + "]"
	case affine.Map:
		return "affine_map<" + a.String() + ">"
	case fmt.Stringer:
		return a.String()
	default:
		return fmt.Sprint(a)
	}
}

// writef writes a formatted line with indentation.
func (p *Printer) writef(format string, args ...any) {
	for i := 0; i < p.indent; i++ {
		p.buf.WriteString("  ")
	}
	fmt.Fprintf(p.buf, format, args...)
}
