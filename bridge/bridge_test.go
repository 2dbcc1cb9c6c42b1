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

package bridge

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startBridge(t *testing.T) *Bridge {
	t.Helper()
	b := New(0)
	require.NoError(t, b.Start())
	t.Cleanup(b.Stop)
	return b
}

func TestRunBlocksUntilComplete(t *testing.T) {
	b := startBridge(t)

	ran := false
	require.NoError(t, b.Run(func() error {
		ran = true
		return nil
	}))
	// Run returned, so the operation must have fully executed.
	assert.True(t, ran)
}

func TestRunExecutesOnPinnedCPU(t *testing.T) {
	b := startBridge(t)

	var set unix.CPUSet
	require.NoError(t, b.Run(func() error {
		return unix.SchedGetaffinity(0, &set)
	}))
	assert.Equal(t, 1, set.Count())
	assert.True(t, set.IsSet(0))
}

func TestRunReturnsOperationError(t *testing.T) {
	b := startBridge(t)

	injected := errors.New("register fault")
	assert.ErrorIs(t, b.Run(func() error { return injected }), injected)
}

func TestRunsAreSerialized(t *testing.T) {
	b := startBridge(t)

	var inFlight, maxInFlight int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := b.Run(func() error {
				n := atomic.AddInt32(&inFlight, 1)
				defer atomic.AddInt32(&inFlight, -1)
				for {
					max := atomic.LoadInt32(&maxInFlight)
					if n <= max || atomic.CompareAndSwapInt32(&maxInFlight, max, n) {
						return nil
					}
				}
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxInFlight))
}

func TestRunAfterStop(t *testing.T) {
	b := New(0)
	require.NoError(t, b.Start())
	b.Stop()

	assert.ErrorIs(t, b.Run(func() error { return nil }), ErrStopped)
}
