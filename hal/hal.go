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

// Package hal enumerates the runtime drivers and devices that compiled
// kernels can be dispatched to. Drivers are provided by factories registered
// in a Registry; the local-sync factory executes inline on the host.
package hal

import (
	"fmt"
	"slices"
	"sync"

	"github.com/pkg/errors"
)

// DriverID identifies a driver across factories.
type DriverID uint32

// String renders the id in hex.
func (id DriverID) String() string {
	return fmt.Sprintf("0x%08X", uint32(id))
}

// DriverInfo describes a driver a factory can create.
type DriverInfo struct {
	ID       DriverID `json:"id"`
	Name     string   `json:"name"`
	FullName string   `json:"full_name"`
}

// DeviceInfo describes one device exposed by a driver.
type DeviceInfo struct {
	Name     string   `json:"name"`
	Arch     string   `json:"arch"`
	Cores    int      `json:"cores"`
	Features []string `json:"features"`
}

// Driver is a created driver.
type Driver interface {
	Info() DriverInfo
	Devices() []DeviceInfo
}

// Factory creates drivers.
type Factory interface {
	// Enumerate lists the drivers this factory provides.
	Enumerate() []DriverInfo

	// TryCreate creates the driver with the given id, or returns an error
	// wrapping ErrUnavailable when the factory does not provide it.
	TryCreate(id DriverID) (Driver, error)
}

// ErrUnavailable is returned for driver ids or names no factory provides.
var ErrUnavailable = errors.New("driver unavailable")

// Registry holds driver factories.
type Registry struct {
	mu        sync.RWMutex
	factories []Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// RegisterFactory adds f. Registering the same factory twice, or a factory
// providing an already registered driver id, fails.
func (r *Registry) RegisterFactory(f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if slices.Contains(r.factories, f) {
		return errors.New("factory already registered")
	}
	for _, info := range f.Enumerate() {
		for _, other := range r.factories {
			for _, existing := range other.Enumerate() {
				if existing.ID == info.ID {
					return errors.Errorf("driver %s (%s) is already registered", info.Name, info.ID)
				}
			}
		}
	}
	r.factories = append(r.factories, f)
	return nil
}

// Enumerate lists the drivers of every factory, in registration order.
func (r *Registry) Enumerate() []DriverInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var infos []DriverInfo
	for _, f := range r.factories {
		infos = append(infos, f.Enumerate()...)
	}
	return infos
}

// Create creates the driver registered under name.
func (r *Registry) Create(name string) (Driver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, f := range r.factories {
		for _, info := range f.Enumerate() {
			if info.Name == name {
				return f.TryCreate(info.ID)
			}
		}
	}
	return nil, errors.Wrapf(ErrUnavailable, "no driver named %q", name)
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// DefaultRegistry returns the process-wide registry, holding the local-sync
// factory.
func DefaultRegistry() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry()
		if err := RegisterLocalSync(defaultRegistry); err != nil {
			panic(err)
		}
	})
	return defaultRegistry
}
