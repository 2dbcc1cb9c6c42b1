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
	"github.com/eigenform/lamina/utils/msr"

	"k8s.io/klog/v2"
)

// Merged counters (the odd slot of each pair counts the merge events
// of the even one) misbehave unless the odd PERF_CTL is written before
// the even one, so the write phase runs pair by pair, odd slot first.
var ctlWriteOrder = [NumSlots]int{1, 0, 3, 2, 5, 4}

// Program reprograms all six counter slots on the given cpu:
//
//  1. write zero to every PERF_CTL, clearing the enable condition,
//  2. write zero to every PERF_CTR,
//  3. write the new PERF_CTL values in pair order (1,0), (3,2), (5,4).
//
// The phases form a strict total order. A failed write is fatal to the
// operation and leaves the hardware partially reprogrammed; there is
// no rollback and no retry.
func Program(ops msr.RegisterOps, cpu int, env Envelope) error {
	for i := 0; i < NumSlots; i++ {
		if err := ops.Write(cpu, CtlAddr(i), 0); err != nil {
			return programError("disable", cpu, CtlAddr(i), i, err)
		}
	}

	for i := 0; i < NumSlots; i++ {
		if err := ops.Write(cpu, CtrAddr(i), 0); err != nil {
			return programError("clear", cpu, CtrAddr(i), i, err)
		}
	}

	for _, slot := range ctlWriteOrder {
		if err := ops.Write(cpu, CtlAddr(slot), env[slot]); err != nil {
			return programError("write", cpu, CtlAddr(slot), slot, err)
		}
	}

	klog.V(3).Infof("Programmed counters on cpu %d: %016x %016x %016x %016x %016x %016x",
		cpu, env[0], env[1], env[2], env[3], env[4], env[5])
	return nil
}

func programError(op string, cpu int, addr uint32, slot int, err error) error {
	accessErr := &RegisterAccessError{Op: op, CPU: cpu, MSR: addr, Slot: slot, Err: err}
	klog.Errorf("Counter programming failed, hardware may be partially reprogrammed: %v", accessErr)
	return accessErr
}
