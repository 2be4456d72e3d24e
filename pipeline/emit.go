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
	"context"

	json "github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/ajroetker/go-mmagen/ir"
)

// Output formats accepted by Emit.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Emit renders m in the given format: the generic textual form, or the
// structured JSON export of every function.
func Emit(m *ir.Module, format string) ([]byte, error) {
	switch format {
	case "", FormatText:
		return []byte(ir.NewPrinter().PrintModule(m)), nil
	case FormatJSON:
		funcs := lo.Map(m.Functions, func(fn *ir.Function, _ int) ir.FunctionJSON { return ir.Export(fn) })
		return json.MarshalIndent(funcs, "", "  ")
	}
	return nil, errors.Errorf("unknown output format %q", format)
}

// Compile builds problems into a module named name and runs cfg over it.
// The runner is created and closed for this call only.
func Compile(ctx context.Context, cfg Config, name string, problems []Problem) (*ir.Module, *Report, error) {
	m, err := BuildModule(name, problems)
	if err != nil {
		return nil, nil, err
	}
	r, err := NewRunner(cfg)
	if err != nil {
		return nil, nil, err
	}
	defer r.Close()
	report, err := r.Run(ctx, m)
	return m, report, err
}
