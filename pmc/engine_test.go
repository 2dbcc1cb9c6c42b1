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
	"testing"

	"github.com/eigenform/lamina/utils/msr/fakemsr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCPU = 0

func TestProgramWritesControlValues(t *testing.T) {
	regs := fakemsr.NewFakeRegisters()
	env := Envelope{0x4100c0, 0x4100c1, 0, 0x4300d0, 0, 0x4100c3}

	require.NoError(t, Program(regs, testCPU, env))

	for i := 0; i < NumSlots; i++ {
		assert.Equal(t, env[i], regs.Value(CtlAddr(i)), "PERF_CTL[%d]", i)
		assert.Zero(t, regs.Value(CtrAddr(i)), "PERF_CTR[%d]", i)
	}
}

func TestProgramPhaseAndPairOrdering(t *testing.T) {
	regs := fakemsr.NewFakeRegisters()
	env := Envelope{1, 2, 3, 4, 5, 6}

	require.NoError(t, Program(regs, testCPU, env))

	writes := regs.Writes()
	require.Len(t, writes, 3*NumSlots)

	// Disable phase: zero to every PERF_CTL.
	for i := 0; i < NumSlots; i++ {
		assert.Equal(t, fakemsr.Write{CPU: testCPU, MSR: CtlAddr(i)}, writes[i])
	}
	// Clear phase: zero to every PERF_CTR.
	for i := 0; i < NumSlots; i++ {
		assert.Equal(t, fakemsr.Write{CPU: testCPU, MSR: CtrAddr(i)}, writes[NumSlots+i])
	}
	// Write phase: odd slot of each pair before the even one.
	order := []int{1, 0, 3, 2, 5, 4}
	for n, slot := range order {
		assert.Equal(t, fakemsr.Write{CPU: testCPU, MSR: CtlAddr(slot), Value: env[slot]}, writes[2*NumSlots+n])
	}
}

func TestProgramIsIdempotent(t *testing.T) {
	regs := fakemsr.NewFakeRegisters()
	env := Envelope{0x4100c0, 0, 0x5300ff, 0, 0, 0x4100c3}

	require.NoError(t, Program(regs, testCPU, env))
	once := map[int]uint64{}
	for i := 0; i < NumSlots; i++ {
		once[i] = regs.Value(CtlAddr(i))
	}

	require.NoError(t, Program(regs, testCPU, env))
	for i := 0; i < NumSlots; i++ {
		assert.Equal(t, once[i], regs.Value(CtlAddr(i)), "PERF_CTL[%d]", i)
		assert.Zero(t, regs.Value(CtrAddr(i)), "PERF_CTR[%d]", i)
	}
}

func TestProgramZeroEnvelopeClearsEverything(t *testing.T) {
	regs := fakemsr.NewFakeRegisters()
	for i := 0; i < NumSlots; i++ {
		regs.Set(CtlAddr(i), 0x4100c0|CtlEnable)
		regs.Set(CtrAddr(i), 12345)
	}

	require.NoError(t, Program(regs, testCPU, Envelope{}))

	for i := 0; i < NumSlots; i++ {
		assert.Zero(t, regs.Value(CtlAddr(i)), "PERF_CTL[%d]", i)
		assert.Zero(t, regs.Value(CtrAddr(i)), "PERF_CTR[%d]", i)
	}
}

func TestProgramSingleSlot(t *testing.T) {
	regs := fakemsr.NewFakeRegisters()
	for i := 0; i < NumSlots; i++ {
		regs.Set(CtrAddr(i), 999)
	}
	ctl := uint64(0x4300d0) | CtlEnable
	env := Envelope{3: ctl}

	require.NoError(t, Program(regs, testCPU, env))

	for i := 0; i < NumSlots; i++ {
		if i == 3 {
			assert.Equal(t, ctl, regs.Value(CtlAddr(i)))
		} else {
			assert.Zero(t, regs.Value(CtlAddr(i)), "PERF_CTL[%d]", i)
		}
		assert.Zero(t, regs.Value(CtrAddr(i)), "PERF_CTR[%d]", i)
	}
}

func TestProgramWriteFailureIsFatal(t *testing.T) {
	regs := fakemsr.NewFakeRegisters()
	injected := errors.New("faulted")
	regs.SetWriteError(CtrAddr(2), injected)

	err := Program(regs, testCPU, Envelope{1, 1, 1, 1, 1, 1})
	require.Error(t, err)

	var accessErr *RegisterAccessError
	require.ErrorAs(t, err, &accessErr)
	assert.Equal(t, 2, accessErr.Slot)
	assert.Equal(t, CtrAddr(2), accessErr.MSR)
	assert.ErrorIs(t, err, injected)

	// No retry, no rollback: the sequence stops at the failed write.
	writes := regs.Writes()
	require.Len(t, writes, NumSlots+2)
	assert.Equal(t, CtrAddr(1), writes[len(writes)-1].MSR)
}
