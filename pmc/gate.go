// Copyright 2024 The lamina Authors. All Rights Reserved.
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

package pmc

import (
	"fmt"

	"github.com/eigenform/lamina/machine"
	"github.com/eigenform/lamina/utils/msr"

	"k8s.io/klog/v2"
)

const vendorAMD = "AuthenticAMD"

// Initialize validates the execution environment and takes ownership
// of the six counter slots on the given cpu. It refuses to proceed if
// any slot's enable bit is already set; nothing is mutated in that
// case. On success every control and count register is zero.
//
// Must run exactly once, before any request is accepted.
func Initialize(prober machine.Prober, ops msr.RegisterOps, cpu int) error {
	vendor, err := prober.VendorID()
	if err != nil {
		return fmt.Errorf("probing processor vendor: %w", err)
	}
	if vendor != vendorAMD {
		return fmt.Errorf("%w: vendor %q", ErrUnsupportedProcessor, vendor)
	}

	enabled, err := prober.RdpmcEnabled()
	if err != nil {
		return fmt.Errorf("probing rdpmc permission: %w", err)
	}
	if !enabled {
		return ErrReadPermissionUnset
	}

	// Inspect every control register before touching anything, so a
	// refusal leaves the counters exactly as they were found.
	for i := 0; i < NumSlots; i++ {
		val, err := ops.Read(cpu, CtlAddr(i))
		if err != nil {
			return &RegisterAccessError{Op: "read", CPU: cpu, MSR: CtlAddr(i), Slot: i, Err: err}
		}
		if val&CtlEnable != 0 {
			return &CounterActiveError{Slot: i}
		}
	}

	for i := 0; i < NumSlots; i++ {
		if err := ops.Write(cpu, CtlAddr(i), 0); err != nil {
			return &RegisterAccessError{Op: "zero", CPU: cpu, MSR: CtlAddr(i), Slot: i, Err: err}
		}
		if err := ops.Write(cpu, CtrAddr(i), 0); err != nil {
			return &RegisterAccessError{Op: "zero", CPU: cpu, MSR: CtrAddr(i), Slot: i, Err: err}
		}
	}

	klog.V(1).Infof("Took ownership of %d counter slots on cpu %d", NumSlots, cpu)
	return nil
}
