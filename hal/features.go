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

package hal

import (
	"os"
	"strconv"
)

// NoFeaturesEnv, when set to a true value, hides every CPU feature so
// devices report the baseline architecture only.
const NoFeaturesEnv = "MMAGEN_NO_CPU_FEATURES"

func noFeaturesEnv() bool {
	val := os.Getenv(NoFeaturesEnv)
	if val == "" {
		return false
	}
	if b, err := strconv.ParseBool(val); err == nil {
		return b
	}
	return true
}

// CPUFeatures returns the host features relevant to matrix kernels, in a
// fixed order.
func CPUFeatures() []string {
	if noFeaturesEnv() {
		return []string{}
	}
	features := []string{}
	for _, f := range cpuFeatureTable() {
		if f.present {
			features = append(features, f.name)
		}
	}
	return features
}

type cpuFeature struct {
	name    string
	present bool
}
