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

// Package client talks to the lamina daemon's control socket.
package client

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"github.com/eigenform/lamina/dispatch"
	"github.com/eigenform/lamina/pmc"

	"golang.org/x/sys/unix"
)

// DefaultSocketPath is where the daemon registers its control socket.
const DefaultSocketPath = "/run/lamina.sock"

// Client holds one connection to the daemon. A client is intended to
// be the sole user of the counters it programs; nothing enforces
// this, exactly as with the original character device.
type Client struct {
	lock sync.Mutex
	conn net.Conn
}

// New connects to the daemon's control socket.
func New(socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("connecting to %q (daemon not running?): %w", socketPath, err)
		}
		return nil, fmt.Errorf("connecting to %q: %w", socketPath, err)
	}
	return &Client{conn: conn}, nil
}

// WriteControl sends a full six-word control envelope and blocks
// until the daemon has reprogrammed the counters.
func (c *Client) WriteControl(env pmc.Envelope) error {
	return c.command(dispatch.CmdWriteCtl, env.Encode())
}

// WriteDescriptor renders a descriptor and sends it.
func (c *Client) WriteDescriptor(d *pmc.Descriptor) error {
	return c.WriteControl(d.Envelope())
}

// Clear disables all six counters.
func (c *Client) Clear() error {
	return c.WriteControl(pmc.Envelope{})
}

func (c *Client) command(cmd uint32, payload []byte) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	frame := make([]byte, 8+len(payload))
	binary.LittleEndian.PutUint32(frame[0:4], cmd)
	binary.LittleEndian.PutUint32(frame[4:8], uint32(len(payload)))
	copy(frame[8:], payload)
	if _, err := c.conn.Write(frame); err != nil {
		return fmt.Errorf("sending command %#x: %w", cmd, err)
	}

	reply := make([]byte, 4)
	if _, err := io.ReadFull(c.conn, reply); err != nil {
		return fmt.Errorf("reading reply for command %#x: %w", cmd, err)
	}
	status := int32(binary.LittleEndian.Uint32(reply))
	if status != 0 {
		return fmt.Errorf("daemon rejected command %#x: %v", cmd, unix.Errno(-status))
	}
	return nil
}

// Close stops the counters with a zero envelope, then drops the
// connection. The clear is best effort; the close error wins only if
// the clear succeeded.
func (c *Client) Close() error {
	clearErr := c.Clear()
	if err := c.conn.Close(); err != nil {
		return err
	}
	return clearErr
}
