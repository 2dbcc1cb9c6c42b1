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

package server

import (
	"encoding/binary"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/eigenform/lamina/bridge"
	"github.com/eigenform/lamina/client"
	"github.com/eigenform/lamina/dispatch"
	"github.com/eigenform/lamina/pmc"
	"github.com/eigenform/lamina/utils/msr/fakemsr"

	"golang.org/x/sys/unix"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T) (string, *fakemsr.FakeRegisters) {
	t.Helper()

	b := bridge.New(0)
	require.NoError(t, b.Start())
	t.Cleanup(b.Stop)

	regs := fakemsr.NewFakeRegisters()
	socketPath := filepath.Join(t.TempDir(), "lamina.sock")
	srv := New(socketPath, dispatch.New(b, regs, 0))
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)

	return socketPath, regs
}

func TestWriteControlRoundTrip(t *testing.T) {
	socketPath, regs := startServer(t)

	c, err := client.New(socketPath)
	require.NoError(t, err)

	env := pmc.Envelope{0x4100c0, 0, 0, 0, 0, 0x4100c3}
	require.NoError(t, c.WriteControl(env))
	for i := 0; i < pmc.NumSlots; i++ {
		assert.Equal(t, env[i], regs.Value(pmc.CtlAddr(i)), "PERF_CTL[%d]", i)
	}

	// Close clears the counters before disconnecting.
	require.NoError(t, c.Close())
	for i := 0; i < pmc.NumSlots; i++ {
		assert.Zero(t, regs.Value(pmc.CtlAddr(i)), "PERF_CTL[%d]", i)
	}
}

func TestSocketPermissions(t *testing.T) {
	socketPath, _ := startServer(t)

	fi, err := os.Stat(socketPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), fi.Mode().Perm())
}

func sendFrame(t *testing.T, conn net.Conn, cmd uint32, payload []byte) int32 {
	t.Helper()
	frame := make([]byte, 8+len(payload))
	binary.LittleEndian.PutUint32(frame[0:4], cmd)
	binary.LittleEndian.PutUint32(frame[4:8], uint32(len(payload)))
	copy(frame[8:], payload)
	_, err := conn.Write(frame)
	require.NoError(t, err)

	reply := make([]byte, 4)
	_, err = io.ReadFull(conn, reply)
	require.NoError(t, err)
	return int32(binary.LittleEndian.Uint32(reply))
}

func TestUnknownCommandStatus(t *testing.T) {
	socketPath, regs := startServer(t)

	conn, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	defer conn.Close()

	status := sendFrame(t, conn, 0xbeef, pmc.Envelope{}.Encode())
	assert.Equal(t, -int32(unix.EINVAL), status)
	assert.Empty(t, regs.Writes())

	// The connection survives a rejected command.
	status = sendFrame(t, conn, dispatch.CmdWriteCtl, pmc.Envelope{}.Encode())
	assert.Zero(t, status)
}

func TestInvalidPayloadStatus(t *testing.T) {
	socketPath, regs := startServer(t)

	conn, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	defer conn.Close()

	status := sendFrame(t, conn, dispatch.CmdWriteCtl, make([]byte, 12))
	assert.Equal(t, -int32(unix.EINVAL), status)
	assert.Empty(t, regs.Writes())
}

func TestStopReleasesSocket(t *testing.T) {
	b := bridge.New(0)
	require.NoError(t, b.Start())
	defer b.Stop()

	socketPath := filepath.Join(t.TempDir(), "lamina.sock")
	srv := New(socketPath, dispatch.New(b, fakemsr.NewFakeRegisters(), 0))
	require.NoError(t, srv.Start())
	srv.Stop()

	_, err := os.Stat(socketPath)
	assert.True(t, os.IsNotExist(err))

	_, err = net.Dial("unix", socketPath)
	assert.Error(t, err)
}
