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

// Package bridge executes operations on one designated cpu. The
// counter registers are per-core state, so every register sequence
// must run with the designated core as its execution context no
// matter which core the caller happens to be on.
package bridge

import (
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"

	"k8s.io/klog/v2"
)

// ErrStopped is returned by Run after Stop.
var ErrStopped = errors.New("bridge is stopped")

type call struct {
	fn   func() error
	done chan error
}

// Bridge owns a single worker goroutine whose OS thread is pinned to
// the designated cpu. All submitted operations execute there, one at
// a time, and the caller blocks until its operation has completed.
type Bridge struct {
	cpu   int
	calls chan call
	quit  chan struct{}
	done  chan struct{}
}

func New(cpu int) *Bridge {
	return &Bridge{
		cpu:   cpu,
		calls: make(chan call),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Start pins the worker and begins serving calls. It fails if the
// worker thread cannot be bound to the designated cpu.
func (b *Bridge) Start() error {
	pinned := make(chan error)
	go b.work(pinned)
	if err := <-pinned; err != nil {
		return fmt.Errorf("pinning worker to cpu %d: %w", b.cpu, err)
	}
	klog.V(1).Infof("Execution bridge pinned to cpu %d", b.cpu)
	return nil
}

func (b *Bridge) work(pinned chan<- error) {
	defer close(b.done)

	// The affinity mask applies to this OS thread only, so the
	// goroutine must stay locked to it for its whole life.
	runtime.LockOSThread()
	var set unix.CPUSet
	set.Zero()
	set.Set(b.cpu)
	err := unix.SchedSetaffinity(0, &set)
	pinned <- err
	if err != nil {
		return
	}

	for {
		select {
		case c := <-b.calls:
			c.done <- c.fn()
		case <-b.quit:
			return
		}
	}
}

// Run executes fn on the designated cpu and blocks until it has fully
// completed there, returning fn's error. Calls are serialized: at most
// one operation is ever in flight.
func (b *Bridge) Run(fn func() error) error {
	c := call{fn: fn, done: make(chan error, 1)}
	select {
	case b.calls <- c:
		return <-c.done
	case <-b.quit:
		return ErrStopped
	}
}

// Stop shuts the worker down and waits for it to exit. Operations
// already accepted run to completion; later Run calls fail with
// ErrStopped.
func (b *Bridge) Stop() {
	select {
	case <-b.quit:
	default:
		close(b.quit)
	}
	<-b.done
}
