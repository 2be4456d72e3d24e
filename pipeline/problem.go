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

package pipeline

import (
	"bytes"
	"os"
	"slices"

	json "github.com/goccy/go-json"
	"github.com/pkg/errors"

	"github.com/ajroetker/go-mmagen/affine"
	"github.com/ajroetker/go-mmagen/gpu"
	"github.com/ajroetker/go-mmagen/ir"
	"github.com/ajroetker/go-mmagen/ops"
)

// Operand semantics of a problem.
const (
	VectorSemantics = "vector"
	TensorSemantics = "tensor"
)

// Problem describes one gpu.multi_mma to compile. Operand shapes list the
// outer dimensions only; the native vector shape of the intrinsic is
// appended to each of them.
//
//	{
//	  "name": "matmul_2x2x2",
//	  "kind": "MFMA_F32_16x16x16_F16",
//	  "lhs": [2, 2], "rhs": [2, 2], "acc": [2, 2],
//	  "indexing_maps": ["(m, n, k) -> (m, k)", "(m, n, k) -> (k, n)", "(m, n, k) -> (m, n)"],
//	  "iterator_types": ["parallel", "parallel", "reduction"]
//	}
type Problem struct {
	Name          string             `json:"name"`
	Kind          string             `json:"kind"`
	Semantics     string             `json:"semantics,omitempty"`
	Lhs           []int64            `json:"lhs"`
	Rhs           []int64            `json:"rhs"`
	Acc           []int64            `json:"acc"`
	IndexingMaps  []string           `json:"indexing_maps"`
	IteratorTypes []gpu.IteratorType `json:"iterator_types"`
}

// ParseProblems decodes a JSON problem or a JSON array of problems.
func ParseProblems(data []byte) ([]Problem, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var problems []Problem
		if err := json.Unmarshal(trimmed, &problems); err != nil {
			return nil, errors.Wrap(err, "decoding problems")
		}
		return problems, nil
	}
	var p Problem
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return nil, errors.Wrap(err, "decoding problem")
	}
	return []Problem{p}, nil
}

// LoadProblems reads the problems stored in the JSON file at path.
func LoadProblems(path string) ([]Problem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading problem file %s", path)
	}
	problems, err := ParseProblems(data)
	if err != nil {
		return nil, errors.Wrapf(err, "in %s", path)
	}
	return problems, nil
}

// Build creates a function taking the lhs, rhs and acc operands, applying a
// single gpu.multi_mma and returning its result. The function is verified.
func (p Problem) Build() (*ir.Function, error) {
	if p.Name == "" {
		return nil, errors.New("problem has no name")
	}
	kind, ok := gpu.LookupMmaKind(p.Kind)
	if !ok {
		return nil, errors.Errorf("problem %s: unknown mma kind %q", p.Name, p.Kind)
	}
	var newType func(shape []int64, elem ir.ElemType) ir.Type
	switch p.Semantics {
	case "", VectorSemantics:
		newType = ir.Vector
	case TensorSemantics:
		newType = ir.Tensor
	default:
		return nil, errors.Errorf("problem %s: unknown semantics %q", p.Name, p.Semantics)
	}
	if len(p.IndexingMaps) != 3 {
		return nil, errors.Errorf("problem %s: expected 3 indexing maps, got %d", p.Name, len(p.IndexingMaps))
	}
	maps := make([]affine.Map, len(p.IndexingMaps))
	for i, text := range p.IndexingMaps {
		m, err := affine.Parse(text)
		if err != nil {
			return nil, errors.Wrapf(err, "problem %s", p.Name)
		}
		maps[i] = m
	}

	aElem, bElem, cElem := kind.ABCElementTypes()
	aVec, bVec, cVec := kind.ABCVectorTypes()
	operandType := func(outer []int64, native ir.Type, elem ir.ElemType) ir.Type {
		return newType(slices.Concat(outer, native.Shape), elem)
	}
	fn := ir.NewFunction(p.Name,
		operandType(p.Lhs, aVec, aElem),
		operandType(p.Rhs, bVec, bElem),
		operandType(p.Acc, cVec, cElem),
	)
	b := ir.NewBuilder(fn, ir.WithLocation(ir.Location(p.Name)))
	params := fn.Params()
	mma := gpu.BuildMultiMma(b, params[0], params[1], params[2], maps, p.IteratorTypes, kind)
	ops.Return(b, mma.Result(0))
	if err := ir.Verify(fn); err != nil {
		return nil, ir.VerifyError(fn, err)
	}
	return fn, nil
}

// BuildModule builds every problem into one module. Function names must be
// unique.
func BuildModule(name string, problems []Problem) (*ir.Module, error) {
	m := ir.NewModule(name)
	for _, p := range problems {
		if m.Lookup(p.Name) != nil {
			return nil, errors.Errorf("duplicate problem name %q", p.Name)
		}
		fn, err := p.Build()
		if err != nil {
			return nil, err
		}
		m.Add(fn)
	}
	return m, nil
}
