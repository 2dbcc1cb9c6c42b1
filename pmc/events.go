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

// Counter event definitions and measurement configuration files.
package pmc

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// Event is one named PMC event. Codes are from the PPR for AMD Family
// 17h Model 71h B0 unless noted in the description.
type Event struct {
	Name string
	Code uint16
	Desc string
}

// Events is the catalog of known Zen 2 core events.
var Events = []Event{
	{Name: "ls_ret_cpuid", Code: 0x027, Desc: "retired CPUID instructions"},
	{Name: "ls_dispatch", Code: 0x029, Desc: "load/store dispatch (unit mask selects loads/stores/load-store)"},
	{Name: "ls_rd_tsc", Code: 0x02d, Desc: "time stamp counter reads (speculative)"},
	{Name: "ls_pref_instr_disp", Code: 0x04b, Desc: "software prefetch instructions dispatched (speculative)"},
	{Name: "de_src_op_disp", Code: 0x0aa, Desc: "source of op dispatched from decoder (19h PPR)"},
	{Name: "de_dis_ops_from_decoder", Code: 0x0ab, Desc: "types of ops dispatched from decoder (19h PPR)"},
	{Name: "ex_ret_instr", Code: 0x0c0, Desc: "retired instructions"},
	{Name: "ex_ret_cops", Code: 0x0c1, Desc: "retired uops"},
	{Name: "ex_ret_brn_misp", Code: 0x0c3, Desc: "retired branch instructions mispredicted"},
}

// EventByName looks up a catalog event by its name.
func EventByName(name string) (Event, bool) {
	for _, ev := range Events {
		if ev.Name == name {
			return ev, true
		}
	}
	return Event{}, false
}

// SlotConfig selects the event programmed into one counter slot.
type SlotConfig struct {
	// Catalog event name, or a raw event select like "0x0c0".
	Event string `json:"event"`

	// Unit mask qualifying the event, e.g. "0x01". Defaults to zero.
	UnitMask HexByte `json:"unit_mask,omitempty"`

	// Count OS-mode events in addition to user-mode ones.
	Kernel bool `json:"kernel,omitempty"`

	// Only count when the condition changes (edge detect).
	Edge bool `json:"edge,omitempty"`
}

// Config is the on-disk measurement setup: a mapping from slot index
// to the event it should count. Slots absent from the file stay zero.
type Config struct {
	Slots map[string]SlotConfig `json:"slots"`
}

// HexByte is an 8-bit value that unmarshals from a JSON string in any
// base accepted by strconv (so unit masks can be written as "0x04").
type HexByte uint8

func (h *HexByte) UnmarshalJSON(b []byte) error {
	var stripped string
	if err := json.Unmarshal(b, &stripped); err != nil {
		return fmt.Errorf("unmarshalling %s into string failed: %w", b, err)
	}
	val, err := strconv.ParseUint(stripped, 0, 8)
	if err != nil {
		return fmt.Errorf("parsing %q into uint8 failed: %w", stripped, err)
	}
	*h = HexByte(val)
	return nil
}

// ParseConfig reads a measurement configuration.
func ParseConfig(r io.Reader) (*Config, error) {
	config := &Config{}
	if err := json.NewDecoder(r).Decode(config); err != nil {
		return nil, fmt.Errorf("unable to parse measurement config: %w", err)
	}
	return config, nil
}

// Envelope renders the configuration as a full six-word request with
// every configured slot enabled.
func (c *Config) Envelope() (Envelope, error) {
	var env Envelope
	for key, slot := range c.Slots {
		idx, err := strconv.Atoi(key)
		if err != nil || idx < 0 || idx >= NumSlots {
			return env, fmt.Errorf("bad slot index %q: slots are 0..%d", key, NumSlots-1)
		}
		code, err := slot.eventSelect()
		if err != nil {
			return env, fmt.Errorf("slot %d: %w", idx, err)
		}
		ctl := NewCtl(code, uint8(slot.UnitMask), true).WithEdge(slot.Edge)
		if slot.Kernel {
			ctl = ctl.WithOSUser(CountAll)
		}
		env[idx] = uint64(ctl)
	}
	return env, nil
}

func (s SlotConfig) eventSelect() (uint16, error) {
	if ev, ok := EventByName(s.Event); ok {
		return ev.Code, nil
	}
	code, err := strconv.ParseUint(s.Event, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("unknown event %q", s.Event)
	}
	if code > 0xfff {
		return 0, fmt.Errorf("event select %#x out of range", code)
	}
	return uint16(code), nil
}
