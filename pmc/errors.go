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
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedProcessor means the host vendor is not the one
	// this package was validated against.
	ErrUnsupportedProcessor = errors.New("unsupported processor")

	// ErrReadPermissionUnset means CR4.PCE is clear: user space
	// cannot execute RDPMC, so taking ownership of the counters
	// would be pointless.
	ErrReadPermissionUnset = errors.New("rdpmc is not enabled for user space")
)

// CounterActiveError reports a counter slot whose enable bit was
// already set at initialization. Ownership is refused rather than
// seized from whatever agent armed it.
type CounterActiveError struct {
	Slot int
}

func (e *CounterActiveError) Error() string {
	return fmt.Sprintf("PERF_CTL[%d] is enabled; all counters must be disabled", e.Slot)
}

// RegisterAccessError reports a failed MSR access.
type RegisterAccessError struct {
	Op   string
	CPU  int
	MSR  uint32
	Slot int
	Err  error
}

func (e *RegisterAccessError) Error() string {
	return fmt.Sprintf("%s PERF slot %d (msr %#08x, cpu %d): %v", e.Op, e.Slot, e.MSR, e.CPU, e.Err)
}

func (e *RegisterAccessError) Unwrap() error {
	return e.Err
}
