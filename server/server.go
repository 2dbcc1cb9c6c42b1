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

// Package server exposes the command dispatcher on a unix-domain
// socket. Each frame is a 4-byte little-endian command code, a 4-byte
// little-endian payload length and the payload; the reply is a single
// little-endian int32 status, zero on success and a negated errno
// value on failure.
package server

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"github.com/eigenform/lamina/dispatch"

	"golang.org/x/sys/unix"
	"k8s.io/klog/v2"
)

// MaxPayload bounds a frame's payload length. Requests today are 48
// bytes; anything near this limit is garbage.
const MaxPayload = 4096

// Handler consumes one decoded command frame.
type Handler interface {
	Handle(cmd uint32, raw []byte) error
}

// Server accepts connections on a unix-domain socket and feeds their
// frames to the Handler synchronously.
type Server struct {
	path     string
	handler  Handler
	listener net.Listener
	conns    sync.WaitGroup
	accept   sync.WaitGroup
	closing  chan struct{}
}

func New(path string, handler Handler) *Server {
	return &Server{path: path, handler: handler, closing: make(chan struct{})}
}

// Start registers the socket and begins accepting connections. The
// socket is created mode 0600: filesystem permissions are the only
// authentication boundary, as with the chardev this replaces.
func (s *Server) Start() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing stale socket %q: %w", s.path, err)
	}
	listener, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("listening on %q: %w", s.path, err)
	}
	if err := os.Chmod(s.path, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("restricting %q: %w", s.path, err)
	}
	s.listener = listener

	s.accept.Add(1)
	go s.acceptLoop()
	klog.V(1).Infof("Accepting control commands on %q", s.path)
	return nil
}

func (s *Server) acceptLoop() {
	defer s.accept.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closing:
				return
			default:
				klog.Errorf("Accept failed: %v", err)
				return
			}
		}
		s.conns.Add(1)
		go s.serveConn(conn)
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer s.conns.Done()
	defer conn.Close()

	header := make([]byte, 8)
	for {
		if _, err := io.ReadFull(conn, header); err != nil {
			if !errors.Is(err, io.EOF) {
				klog.V(2).Infof("Dropping connection: %v", err)
			}
			return
		}
		cmd := binary.LittleEndian.Uint32(header[0:4])
		length := binary.LittleEndian.Uint32(header[4:8])
		if length > MaxPayload {
			klog.Warningf("Dropping connection: oversized payload (%d bytes)", length)
			return
		}
		payload := make([]byte, length)
		if _, err := io.ReadFull(conn, payload); err != nil {
			klog.V(2).Infof("Dropping connection: %v", err)
			return
		}

		status := statusFor(s.handler.Handle(cmd, payload))
		reply := make([]byte, 4)
		binary.LittleEndian.PutUint32(reply, uint32(status))
		if _, err := conn.Write(reply); err != nil {
			return
		}
	}
}

// statusFor maps handler errors onto the negated-errno reply
// convention. Callers get no structured detail beyond this.
func statusFor(err error) int32 {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, dispatch.ErrUnknownCommand),
		errors.Is(err, dispatch.ErrInvalidRequest):
		return -int32(unix.EINVAL)
	default:
		return -int32(unix.EIO)
	}
}

// Stop closes the listener, waits for in-flight connections, and
// removes the socket, releasing the registered entry point.
func (s *Server) Stop() {
	close(s.closing)
	if s.listener != nil {
		s.listener.Close()
	}
	s.accept.Wait()
	s.conns.Wait()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		klog.Warningf("Couldn't remove socket %q: %v", s.path, err)
	}
	klog.V(1).Infof("Stopped accepting control commands")
}
