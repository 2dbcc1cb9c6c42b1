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

// Package machine probes the properties of the host processor that
// gate counter ownership.
package machine

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

var (
	cpuinfoFile = "/proc/cpuinfo"
	// Reflects CR4.PCE: whether the kernel allows RDPMC from user space.
	rdpmcFile = "/sys/bus/event_source/devices/cpu/rdpmc"
)

// Prober reports the host properties inspected at initialization.
type Prober interface {
	// VendorID returns the processor vendor string, e.g. "AuthenticAMD".
	VendorID() (string, error)
	// RdpmcEnabled reports whether user-space counter reads are permitted.
	RdpmcEnabled() (bool, error)
}

type realProber struct{}

func NewProber() Prober {
	return &realProber{}
}

func (realProber) VendorID() (string, error) {
	cpuinfo, err := os.ReadFile(cpuinfoFile)
	if err != nil {
		return "", err
	}
	vendor := parseVendorID(string(cpuinfo))
	if vendor == "" {
		return "", fmt.Errorf("no vendor_id field in %q", cpuinfoFile)
	}
	return vendor, nil
}

func parseVendorID(cpuinfo string) string {
	for _, line := range strings.Split(cpuinfo, "\n") {
		if !strings.HasPrefix(line, "vendor_id") {
			continue
		}
		fields := strings.SplitN(line, ":", 2)
		if len(fields) != 2 {
			continue
		}
		return strings.TrimSpace(fields[1])
	}
	return ""
}

func (realProber) RdpmcEnabled() (bool, error) {
	raw, err := os.ReadFile(rdpmcFile)
	if err != nil {
		return false, err
	}
	val, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return false, fmt.Errorf("malformed rdpmc attribute %q: %w", string(raw), err)
	}
	return val > 0, nil
}
