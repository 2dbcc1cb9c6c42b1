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

// Package pmc programs the six core performance counters on AMD
// family 17h processors.
package pmc

// NumSlots is the number of counter slots on the core PMU.
const NumSlots = 6

// CtlEnable is the enable bit in a PERF_CTL register; set means the
// counter is actively accumulating.
const CtlEnable = uint64(1) << 22

// PERF_CTL and PERF_CTR MSR addresses for the extended core counters
// (PPR for AMD Family 17h). Fixed layout: slot i uses the i-th entry
// of each table, and slots (0,1), (2,3), (4,5) form merge pairs.
var (
	perfCtlMSR = [NumSlots]uint32{
		0xc0010200, 0xc0010202, 0xc0010204, 0xc0010206, 0xc0010208, 0xc001020a,
	}
	perfCtrMSR = [NumSlots]uint32{
		0xc0010201, 0xc0010203, 0xc0010205, 0xc0010207, 0xc0010209, 0xc001020b,
	}
)

// CtlAddr returns the PERF_CTL MSR address for a slot.
func CtlAddr(slot int) uint32 {
	return perfCtlMSR[slot]
}

// CtrAddr returns the PERF_CTR MSR address for a slot.
func CtrAddr(slot int) uint32 {
	return perfCtrMSR[slot]
}
