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

// Ctl is the contents of one PERF_CTL register. Field layout per the
// PPR for AMD Family 17h:
//
//	[7:0]   event select, low bits
//	[15:8]  unit mask
//	[17:16] user/os mode
//	[18]    edge detect
//	[20]    enable APIC interrupt
//	[22]    enable counter
//	[23]    invert counter mask
//	[31:24] counter mask
//	[35:32] event select, high bits
//	[41:40] host/guest
type Ctl uint64

const (
	ctlEvtSelLoMask  Ctl = 0xff
	ctlUnitMaskMask  Ctl = 0xff << 8
	ctlOSUserMask    Ctl = 0x3 << 16
	ctlEdgeMask      Ctl = 1 << 18
	ctlIntMask       Ctl = 1 << 20
	ctlEnMask        Ctl = Ctl(CtlEnable)
	ctlInvMask       Ctl = 1 << 23
	ctlCntMaskMask   Ctl = 0xff << 24
	ctlEvtSelHiMask  Ctl = 0xf << 32
	ctlHostGuestMask Ctl = 0x3 << 40
)

// OSUser selects which privilege modes are counted.
type OSUser uint64

const (
	CountNone OSUser = 0b00
	CountUser OSUser = 0b01
	CountOS   OSUser = 0b10
	CountAll  OSUser = 0b11
)

// HostGuest selects host/guest qualification under SVM.
type HostGuest uint64

const (
	HostGuestAll   HostGuest = 0b00
	HostGuestGuest HostGuest = 0b01
	HostGuestHost  HostGuest = 0b10
	HostGuestBoth  HostGuest = 0b11
)

// NewCtl builds a control value for a 12-bit event select and unit
// mask, counting user-mode events on host and guest alike. Everything
// else (edge, inv, int, count mask) is left clear.
func NewCtl(event uint16, unit uint8, enable bool) Ctl {
	return Ctl(0).
		WithEventSelect(event).
		WithUnitMask(unit).
		WithOSUser(CountUser).
		WithHostGuest(HostGuestAll).
		WithEnable(enable)
}

func (c Ctl) WithEventSelect(event uint16) Ctl {
	c &^= ctlEvtSelLoMask | ctlEvtSelHiMask
	c |= Ctl(event&0xff) | (Ctl(event&0xf00) << 24)
	return c
}

func (c Ctl) WithUnitMask(unit uint8) Ctl {
	return (c &^ ctlUnitMaskMask) | (Ctl(unit) << 8)
}

func (c Ctl) WithOSUser(mode OSUser) Ctl {
	return (c &^ ctlOSUserMask) | (Ctl(mode) << 16)
}

func (c Ctl) WithHostGuest(mode HostGuest) Ctl {
	return (c &^ ctlHostGuestMask) | (Ctl(mode) << 40)
}

func (c Ctl) WithEnable(enable bool) Ctl {
	if enable {
		return c | ctlEnMask
	}
	return c &^ ctlEnMask
}

func (c Ctl) WithEdge(edge bool) Ctl {
	if edge {
		return c | ctlEdgeMask
	}
	return c &^ ctlEdgeMask
}

func (c Ctl) WithInterrupt(enable bool) Ctl {
	if enable {
		return c | ctlIntMask
	}
	return c &^ ctlIntMask
}

func (c Ctl) WithInvert(inv bool) Ctl {
	if inv {
		return c | ctlInvMask
	}
	return c &^ ctlInvMask
}

func (c Ctl) WithCountMask(mask uint8) Ctl {
	return (c &^ ctlCntMaskMask) | (Ctl(mask) << 24)
}

// EventSelect returns the full 12-bit event select.
func (c Ctl) EventSelect() uint16 {
	return uint16(c&ctlEvtSelLoMask) | uint16((c&ctlEvtSelHiMask)>>24)
}

func (c Ctl) UnitMask() uint8 {
	return uint8((c & ctlUnitMaskMask) >> 8)
}

func (c Ctl) OSUser() OSUser {
	return OSUser((c & ctlOSUserMask) >> 16)
}

func (c Ctl) HostGuest() HostGuest {
	return HostGuest((c & ctlHostGuestMask) >> 40)
}

func (c Ctl) Enabled() bool {
	return c&ctlEnMask != 0
}

func (c Ctl) Edge() bool {
	return c&ctlEdgeMask != 0
}

func (c Ctl) Interrupt() bool {
	return c&ctlIntMask != 0
}

func (c Ctl) Inverted() bool {
	return c&ctlInvMask != 0
}

func (c Ctl) CountMask() uint8 {
	return uint8((c & ctlCntMaskMask) >> 24)
}

// Descriptor assembles control values slot by slot. Unset slots render
// as zero, so a Descriptor always produces a full Envelope.
type Descriptor struct {
	ctl [NumSlots]Ctl
	set [NumSlots]bool
}

func NewDescriptor() *Descriptor {
	return &Descriptor{}
}

// Set assigns a control value to a slot and returns the Descriptor for
// chaining.
func (d *Descriptor) Set(slot int, c Ctl) *Descriptor {
	d.ctl[slot] = c
	d.set[slot] = true
	return d
}

// Clear unsets one slot.
func (d *Descriptor) Clear(slot int) {
	d.ctl[slot] = 0
	d.set[slot] = false
}

// ClearAll unsets every slot.
func (d *Descriptor) ClearAll() {
	*d = Descriptor{}
}

// Envelope renders the full six-word request.
func (d *Descriptor) Envelope() Envelope {
	var env Envelope
	for i, c := range d.ctl {
		if d.set[i] {
			env[i] = uint64(c)
		}
	}
	return env
}
