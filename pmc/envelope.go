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
	"encoding/binary"
	"fmt"
)

// EnvelopeSize is the wire size of an Envelope: six little-endian
// 64-bit words, no header or checksum.
const EnvelopeSize = NumSlots * 8

// Envelope carries one PERF_CTL value per counter slot, in slot order.
// A request always specifies all six slots; there is no partial update.
type Envelope [NumSlots]uint64

// DecodeEnvelope parses the 48-byte wire form. Any other length is
// rejected.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if len(raw) != EnvelopeSize {
		return env, fmt.Errorf("control payload must be %d bytes, got %d", EnvelopeSize, len(raw))
	}
	for i := range env {
		env[i] = binary.LittleEndian.Uint64(raw[i*8:])
	}
	return env, nil
}

// Encode renders the 48-byte wire form.
func (e Envelope) Encode() []byte {
	raw := make([]byte, EnvelopeSize)
	for i, word := range e {
		binary.LittleEndian.PutUint64(raw[i*8:], word)
	}
	return raw
}
