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

// Package dispatch decodes privileged control commands and drives the
// counter programming engine through the execution bridge.
package dispatch

import (
	"errors"
	"fmt"
	"sync"

	"github.com/eigenform/lamina/bridge"
	"github.com/eigenform/lamina/metrics"
	"github.com/eigenform/lamina/pmc"
	"github.com/eigenform/lamina/utils/msr"

	"k8s.io/klog/v2"
	"k8s.io/utils/clock"
)

// CmdWriteCtl is the only recognized command code: replace the full
// set of six PERF_CTL values.
const CmdWriteCtl uint32 = 0x1000

var (
	// ErrUnknownCommand reports an unrecognized command code. Not
	// fatal; the engine is never invoked.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrInvalidRequest reports a malformed control payload. Not
	// fatal; the engine is never invoked.
	ErrInvalidRequest = errors.New("invalid request")
)

// Dispatcher validates incoming commands, stages their payload, and
// submits the programming sequence to the bridge. The staging buffer
// is a single process-wide envelope overwritten by every accepted
// command; the lock keeps at most one request in flight, so an
// in-progress programming sequence never observes a later copy.
type Dispatcher struct {
	lock    sync.Mutex
	staging pmc.Envelope

	bridge *bridge.Bridge
	ops    msr.RegisterOps
	cpu    int
	clock  clock.PassiveClock
}

func New(b *bridge.Bridge, ops msr.RegisterOps, cpu int) *Dispatcher {
	return &Dispatcher{bridge: b, ops: ops, cpu: cpu, clock: clock.RealClock{}}
}

// Handle executes one command. Unknown codes and malformed payloads
// are reported to the caller without touching the staging buffer; an
// accepted command overwrites it and blocks until the programming
// sequence has completed on the designated cpu.
func (d *Dispatcher) Handle(cmd uint32, raw []byte) error {
	if cmd != CmdWriteCtl {
		metrics.Requests.WithLabelValues(metrics.OutcomeUnknownCommand).Inc()
		return fmt.Errorf("%w: %#x", ErrUnknownCommand, cmd)
	}

	env, err := pmc.DecodeEnvelope(raw)
	if err != nil {
		metrics.Requests.WithLabelValues(metrics.OutcomeInvalidRequest).Inc()
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	d.lock.Lock()
	defer d.lock.Unlock()
	d.staging = env

	start := d.clock.Now()
	err = d.bridge.Run(func() error {
		return pmc.Program(d.ops, d.cpu, d.staging)
	})
	metrics.ProgramDuration.Observe(d.clock.Since(start).Seconds())
	if err != nil {
		metrics.Requests.WithLabelValues(metrics.OutcomeEngineFailure).Inc()
		klog.Errorf("Write-control command failed: %v", err)
		return err
	}

	metrics.Requests.WithLabelValues(metrics.OutcomeOK).Inc()
	return nil
}
