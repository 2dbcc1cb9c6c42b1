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

// Package msr provides access to model-specific registers through the
// msr(4) character devices exposed by the kernel.
package msr

import (
	"encoding/binary"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// Abstracts the lowest level register accesses so that callers can be
// tested against an in-memory register file.
type RegisterOps interface {
	// Read the MSR at the given address on the given cpu.
	Read(cpu int, msr uint32) (uint64, error)
	// Write the MSR at the given address on the given cpu.
	Write(cpu int, msr uint32, val uint64) error
}

const devFormat = "/dev/cpu/%d/msr"

// Dev performs register accesses against /dev/cpu/N/msr. Reads and
// writes take effect on the named cpu regardless of where the calling
// thread runs; the kernel driver routes the access.
type Dev struct {
	lock sync.Mutex
	fds  map[int]int
}

func NewDev() *Dev {
	return &Dev{fds: map[int]int{}}
}

func (d *Dev) fd(cpu int) (int, error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	if fd, ok := d.fds[cpu]; ok {
		return fd, nil
	}
	path := fmt.Sprintf(devFormat, cpu)
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("opening %q: %w", path, err)
	}
	d.fds[cpu] = fd
	return fd, nil
}

func (d *Dev) Read(cpu int, msr uint32) (uint64, error) {
	fd, err := d.fd(cpu)
	if err != nil {
		return 0, err
	}
	buf := make([]byte, 8)
	if _, err := unix.Pread(fd, buf, int64(msr)); err != nil {
		return 0, fmt.Errorf("rdmsr %#08x on cpu %d: %w", msr, cpu, err)
	}
	return binary.LittleEndian.Uint64(buf), nil
}

func (d *Dev) Write(cpu int, msr uint32, val uint64) error {
	fd, err := d.fd(cpu)
	if err != nil {
		return err
	}
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, val)
	if _, err := unix.Pwrite(fd, buf, int64(msr)); err != nil {
		return fmt.Errorf("wrmsr %#08x on cpu %d: %w", msr, cpu, err)
	}
	return nil
}

// Close releases every device file opened so far.
func (d *Dev) Close() error {
	d.lock.Lock()
	defer d.lock.Unlock()
	var firstErr error
	for cpu, fd := range d.fds {
		if err := unix.Close(fd); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(d.fds, cpu)
	}
	return firstErr
}
