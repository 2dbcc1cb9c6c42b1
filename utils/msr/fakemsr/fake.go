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

package fakemsr

import "sync"

// Write records one register write in the order it was issued.
type Write struct {
	CPU   int
	MSR   uint32
	Value uint64
}

// FakeRegisters is an in-memory register file implementing
// msr.RegisterOps. It keeps an ordered log of writes so tests can
// assert on write sequencing, and supports injected access errors.
type FakeRegisters struct {
	lock      sync.Mutex
	regs      map[uint32]uint64
	writes    []Write
	readErrs  map[uint32]error
	writeErrs map[uint32]error
}

func NewFakeRegisters() *FakeRegisters {
	return &FakeRegisters{
		regs:      map[uint32]uint64{},
		readErrs:  map[uint32]error{},
		writeErrs: map[uint32]error{},
	}
}

// Set seeds a register value without recording a write.
func (f *FakeRegisters) Set(msr uint32, val uint64) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.regs[msr] = val
}

// Value returns the current contents of a register.
func (f *FakeRegisters) Value(msr uint32) uint64 {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.regs[msr]
}

// Writes returns the ordered write log.
func (f *FakeRegisters) Writes() []Write {
	f.lock.Lock()
	defer f.lock.Unlock()
	out := make([]Write, len(f.writes))
	copy(out, f.writes)
	return out
}

// ResetLog clears the write log but keeps register contents.
func (f *FakeRegisters) ResetLog() {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.writes = nil
}

// SetReadError makes every Read of the given register fail.
func (f *FakeRegisters) SetReadError(msr uint32, err error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.readErrs[msr] = err
}

// SetWriteError makes every Write of the given register fail.
func (f *FakeRegisters) SetWriteError(msr uint32, err error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.writeErrs[msr] = err
}

func (f *FakeRegisters) Read(cpu int, msr uint32) (uint64, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if err := f.readErrs[msr]; err != nil {
		return 0, err
	}
	return f.regs[msr], nil
}

func (f *FakeRegisters) Write(cpu int, msr uint32, val uint64) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	if err := f.writeErrs[msr]; err != nil {
		return err
	}
	f.regs[msr] = val
	f.writes = append(f.writes, Write{CPU: cpu, MSR: msr, Value: val})
	return nil
}
