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
	"runtime"

	"github.com/pkg/errors"
)

// LocalSyncDriverID is the id of the local-sync driver ("SYNC").
const LocalSyncDriverID DriverID = 0x53594E43

// LocalSyncDriverName is the registered name of the local-sync driver.
const LocalSyncDriverName = "local-sync"

var localSyncInfo = DriverInfo{
	ID:       LocalSyncDriverID,
	Name:     LocalSyncDriverName,
	FullName: "Local executable execution using a lightweight inline synchronous queue",
}

type localSyncFactory struct{}

func (localSyncFactory) Enumerate() []DriverInfo {
	return []DriverInfo{localSyncInfo}
}

func (localSyncFactory) TryCreate(id DriverID) (Driver, error) {
	if id != LocalSyncDriverID {
		return nil, errors.Wrapf(ErrUnavailable, "no driver with ID %s is provided by this factory", id)
	}
	return &localSyncDriver{host: HostDevice()}, nil
}

// RegisterLocalSync registers the local-sync factory in r.
func RegisterLocalSync(r *Registry) error {
	return r.RegisterFactory(localSyncFactory{})
}

// localSyncDriver runs everything inline on the calling thread, on a single
// host device.
type localSyncDriver struct {
	host DeviceInfo
}

func (d *localSyncDriver) Info() DriverInfo { return localSyncInfo }

func (d *localSyncDriver) Devices() []DeviceInfo { return []DeviceInfo{d.host} }

// HostDevice describes the CPU the process runs on.
func HostDevice() DeviceInfo {
	return DeviceInfo{
		Name:     "local",
		Arch:     runtime.GOARCH,
		Cores:    runtime.NumCPU(),
		Features: CPUFeatures(),
	}
}
