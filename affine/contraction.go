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

package affine

import (
	"fmt"

	"github.com/pkg/errors"
)

// ContractionRole is the role an iteration dimension plays in a contraction
// lhs(A) x rhs(B) -> acc(C).
type ContractionRole int

const (
	// RoleNone means the dimension could not be classified.
	RoleNone ContractionRole = iota

	// RoleBatch dimensions index A, B and C.
	RoleBatch

	// RoleM dimensions index A and C but not B.
	RoleM

	// RoleN dimensions index B and C but not A.
	RoleN

	// RoleK dimensions index A and B but not C; they are contracted away.
	RoleK
)

// String returns a human-readable name for the ContractionRole.
func (r ContractionRole) String() string {
	switch r {
	case RoleBatch:
		return "batch"
	case RoleM:
		return "m"
	case RoleN:
		return "n"
	case RoleK:
		return "k"
	case RoleNone:
		return "none"
	default:
		return fmt.Sprintf("ContractionRole(%d)", r)
	}
}

// ContractionDims partitions the iteration dimensions of a contraction.
type ContractionDims struct {
	Batch []int
	M     []int
	N     []int
	K     []int
}

// Role returns the role of dimension d, or RoleNone.
func (c ContractionDims) Role(d int) ContractionRole {
	for _, group := range []struct {
		dims []int
		role ContractionRole
	}{{c.Batch, RoleBatch}, {c.M, RoleM}, {c.N, RoleN}, {c.K, RoleK}} {
		for _, x := range group.dims {
			if x == d {
				return group.role
			}
		}
	}
	return RoleNone
}

// ClassifyDim returns the contraction role of dimension d given whether it is
// indexed by the lhs, rhs and acc maps.
func ClassifyDim(inA, inB, inC bool) ContractionRole {
	switch {
	case inA && inB && inC:
		return RoleBatch
	case inA && !inB && inC:
		return RoleM
	case !inA && inB && inC:
		return RoleN
	case inA && inB && !inC:
		return RoleK
	default:
		return RoleNone
	}
}

// InferContractionDims classifies every iteration dimension of the three
// maps (lhs, rhs, acc). It fails when the maps are not three projected
// permutations over the same dimensions, or when some dimension has no
// consistent role (for example it only indexes one operand).
func InferContractionDims(maps []Map) (ContractionDims, error) {
	var dims ContractionDims
	if len(maps) != 3 {
		return dims, errors.Errorf("expected 3 indexing maps, got %d", len(maps))
	}
	numDims := maps[0].NumDims
	for i, m := range maps {
		if m.NumDims != numDims {
			return dims, errors.Errorf("map %d has %d dims, expected %d", i, m.NumDims, numDims)
		}
		if !m.IsProjectedPermutation() {
			return dims, errors.Errorf("map %d (%s) is not a projected permutation", i, m)
		}
	}
	for d := range numDims {
		role := ClassifyDim(maps[0].UsesDim(d), maps[1].UsesDim(d), maps[2].UsesDim(d))
		switch role {
		case RoleBatch:
			dims.Batch = append(dims.Batch, d)
		case RoleM:
			dims.M = append(dims.M, d)
		case RoleN:
			dims.N = append(dims.N, d)
		case RoleK:
			dims.K = append(dims.K, d)
		default:
			return ContractionDims{}, errors.Errorf("dimension d%d has no contraction role", d)
		}
	}
	return dims, nil
}
