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

package gpu

import (
	"fmt"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/ajroetker/go-mmagen/ir"
	"github.com/ajroetker/go-mmagen/ops"
)

// MmaKind describes one hardware MMA intrinsic: the element type and native
// vector type it expects for each of the A, B and C roles, and how to emit
// the concrete call.
type MmaKind interface {
	// Name is the discriminant, e.g. "MFMA_F32_16x16x16_F16".
	Name() string

	// ABCElementTypes returns the element types of A, B and C.
	ABCElementTypes() (a, b, c ir.ElemType)

	// ABCVectorTypes returns the native vector types of A, B and C.
	ABCVectorTypes() (a, b, c ir.Type)

	// MNKShape returns the logical M, N, K of one intrinsic call.
	MNKShape() (m, n, k int64)

	// BuildMmaOperation emits the concrete call on operands already cast to
	// the native vector types.
	BuildMmaOperation(b *ir.Builder, resultType ir.Type, lhs, rhs, acc *ir.Value) (*ir.Value, error)
}

// mmaIntrinsic is an MmaKind backed by amdgpu.mfma or amdgpu.wmma.
type mmaIntrinsic struct {
	name                string
	m, n, k             int64
	aElem, bElem, cElem ir.ElemType
	aLen, bLen, cLen    int64
	wmma                bool
}

func (k *mmaIntrinsic) Name() string { return k.name }

func (k *mmaIntrinsic) ABCElementTypes() (a, b, c ir.ElemType) {
	return k.aElem, k.bElem, k.cElem
}

func (k *mmaIntrinsic) ABCVectorTypes() (a, b, c ir.Type) {
	return ir.Vector([]int64{k.aLen}, k.aElem),
		ir.Vector([]int64{k.bLen}, k.bElem),
		ir.Vector([]int64{k.cLen}, k.cElem)
}

func (k *mmaIntrinsic) MNKShape() (m, n, kk int64) { return k.m, k.n, k.k }

func (k *mmaIntrinsic) BuildMmaOperation(b *ir.Builder, resultType ir.Type, lhs, rhs, acc *ir.Value) (*ir.Value, error) {
	aType, bType, cType := k.ABCVectorTypes()
	for _, check := range []struct {
		role      string
		got, want ir.Type
	}{
		{"A", lhs.Type(), aType},
		{"B", rhs.Type(), bType},
		{"C", acc.Type(), cType},
		{"result", resultType, cType},
	} {
		if !check.got.Equal(check.want) {
			return nil, errors.Errorf("%s: %s operand has type %s, expected %s", k.name, check.role, check.got, check.want)
		}
	}
	shape := ops.IntrinsicShape{M: k.m, N: k.n, K: k.k}
	if k.wmma {
		return ops.Wmma(b, shape, resultType, lhs, rhs, acc), nil
	}
	return ops.Mfma(b, shape, resultType, lhs, rhs, acc), nil
}

// String renders the kind as an attribute, e.g. "#gpu.mma_layout<WMMA_F32_16x16x16_F16>".
func (k *mmaIntrinsic) String() string {
	return fmt.Sprintf("#gpu.mma_layout<%s>", k.name)
}

var (
	kindsMu sync.RWMutex
	kinds   = map[string]MmaKind{}
)

// RegisterMmaKind makes k available to LookupMmaKind. Registering a name
// twice panics.
func RegisterMmaKind(k MmaKind) {
	kindsMu.Lock()
	defer kindsMu.Unlock()
	if _, dup := kinds[k.Name()]; dup {
		panic(fmt.Sprintf("gpu: mma kind %q registered twice", k.Name()))
	}
	kinds[k.Name()] = k
}

// LookupMmaKind returns the kind registered under name.
func LookupMmaKind(name string) (MmaKind, bool) {
	kindsMu.RLock()
	defer kindsMu.RUnlock()
	k, ok := kinds[name]
	return k, ok
}

// MmaKinds returns every registered kind sorted by name.
func MmaKinds() []MmaKind {
	kindsMu.RLock()
	defer kindsMu.RUnlock()
	out := make([]MmaKind, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Built-in intrinsic kinds.
var (
	MFMA_F32_16x16x4_F32 MmaKind = &mmaIntrinsic{
		name: "MFMA_F32_16x16x4_F32", m: 16, n: 16, k: 4,
		aElem: ir.F32, bElem: ir.F32, cElem: ir.F32,
		aLen: 1, bLen: 1, cLen: 4,
	}
	MFMA_F32_16x16x16_F16 MmaKind = &mmaIntrinsic{
		name: "MFMA_F32_16x16x16_F16", m: 16, n: 16, k: 16,
		aElem: ir.F16, bElem: ir.F16, cElem: ir.F32,
		aLen: 4, bLen: 4, cLen: 4,
	}
	MFMA_F32_32x32x8_F16 MmaKind = &mmaIntrinsic{
		name: "MFMA_F32_32x32x8_F16", m: 32, n: 32, k: 8,
		aElem: ir.F16, bElem: ir.F16, cElem: ir.F32,
		aLen: 4, bLen: 4, cLen: 16,
	}
	MFMA_I32_16x16x32_I8 MmaKind = &mmaIntrinsic{
		name: "MFMA_I32_16x16x32_I8", m: 16, n: 16, k: 32,
		aElem: ir.I8, bElem: ir.I8, cElem: ir.I32,
		aLen: 8, bLen: 8, cLen: 4,
	}
	WMMA_F32_16x16x16_F16 MmaKind = &mmaIntrinsic{
		name: "WMMA_F32_16x16x16_F16", m: 16, n: 16, k: 16,
		aElem: ir.F16, bElem: ir.F16, cElem: ir.F32,
		aLen: 16, bLen: 16, cLen: 8,
		wmma: true,
	}
)

func init() {
	for _, k := range []MmaKind{
		MFMA_F32_16x16x4_F32,
		MFMA_F32_16x16x16_F16,
		MFMA_F32_32x32x8_F16,
		MFMA_I32_16x16x32_I8,
		WMMA_F32_16x16x16_F16,
	} {
		RegisterMmaKind(k)
	}
}
