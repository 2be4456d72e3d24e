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

import "github.com/ajroetker/go-mmagen/ir"

// PopulateUnrollPatterns adds the gpu.multi_mma unrolling pattern.
func PopulateUnrollPatterns(set *ir.PatternSet, opts UnrollOptions) {
	set.Add(UnrollMultiMmaPattern(opts))
}

// PopulateLowerMultiMmaPatterns adds the lowering of native gpu.multi_mma ops
// to intrinsics.
func PopulateLowerMultiMmaPatterns(set *ir.PatternSet) {
	set.Add(LowerMultiMmaPattern())
}

// PopulateDropUnitDimsPatterns adds the unit-dimension folding of
// gpu.multi_mma.
func PopulateDropUnitDimsPatterns(set *ir.PatternSet) {
	set.Add(DropMultiMmaUnitDimsPattern())
}

// PopulateVectorizationPatterns adds vectorization of static gpu.multi_mma
// and gpu.shuffle_tensor ops.
func PopulateVectorizationPatterns(set *ir.PatternSet) {
	set.Add(VectorizeStaticMultiMmaPattern(), VectorizeStaticShuffleTensorResultPattern())
}

// PopulateLowerShuffleTensorPatterns adds the gpu.shuffle_tensor lowering.
func PopulateLowerShuffleTensorPatterns(set *ir.PatternSet) {
	set.Add(LowerShuffleTensorPattern())
}

// PopulateLowerValueBarrierPatterns adds the gpu.value_barrier lowering.
func PopulateLowerValueBarrierPatterns(set *ir.PatternSet) {
	set.Add(LowerValueBarrierPattern())
}

// PopulateFuseForallPatterns adds worker-loop fusion.
func PopulateFuseForallPatterns(set *ir.PatternSet) {
	set.Add(FuseForallPattern())
}
