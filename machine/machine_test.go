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

package machine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVendorID(t *testing.T) {
	cpuinfoFile = "testdata/cpuinfo"
	vendor, err := NewProber().VendorID()
	assert.Nil(t, err)
	assert.Equal(t, "AuthenticAMD", vendor)
}

func TestVendorIDIntel(t *testing.T) {
	cpuinfoFile = "testdata/cpuinfo_intel"
	vendor, err := NewProber().VendorID()
	assert.Nil(t, err)
	assert.Equal(t, "GenuineIntel", vendor)
}

func TestVendorIDMissing(t *testing.T) {
	dir := t.TempDir()
	cpuinfoFile = filepath.Join(dir, "cpuinfo")
	require.NoError(t, os.WriteFile(cpuinfoFile, []byte("processor\t: 0\n"), 0644))
	_, err := NewProber().VendorID()
	assert.Error(t, err)
}

func TestRdpmcEnabled(t *testing.T) {
	dir := t.TempDir()
	rdpmcFile = filepath.Join(dir, "rdpmc")

	for raw, expected := range map[string]bool{"0\n": false, "1\n": true, "2\n": true} {
		require.NoError(t, os.WriteFile(rdpmcFile, []byte(raw), 0644))
		enabled, err := NewProber().RdpmcEnabled()
		assert.Nil(t, err)
		assert.Equal(t, expected, enabled, "rdpmc attribute %q", raw)
	}

	require.NoError(t, os.WriteFile(rdpmcFile, []byte("junk\n"), 0644))
	_, err := NewProber().RdpmcEnabled()
	assert.Error(t, err)
}
