//go:build linux && (amd64 || arm64)

/*
 *
 * Copyright 2025 Z-Mon authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

package shm

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// handshakeIOTimeout bounds each handshake read/write on the server side.
const handshakeIOTimeout = 5 * time.Second

// ControlServer listens on an owner-only unix socket and hands the writer's
// segment descriptor to connecting readers after the version gate. Any
// number of readers may connect; each maintains its own read position.
type ControlServer struct {
	path   string
	seg    *Segment
	logger *slog.Logger

	ln        *net.UnixListener
	wg        sync.WaitGroup
	closed    atomic.Bool
	closeOnce sync.Once

	mu    sync.Mutex
	conns map[*net.UnixConn]struct{}
}

// NewControlServer creates a server that will serve the given segment's
// descriptor at the socket path.
func NewControlServer(path string, seg *Segment, logger *slog.Logger) (*ControlServer, error) {
	if seg == nil || seg.File == nil {
		return nil, errors.New("control server requires a descriptor-backed segment")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ControlServer{
		path:   path,
		seg:    seg,
		logger: logger,
		conns:  make(map[*net.UnixConn]struct{}),
	}, nil
}

// Start binds the socket, restricts it to the owning user, and begins
// accepting handshakes in the background.
func (s *ControlServer) Start() error {
	if s.closed.Load() {
		return ErrClosed
	}

	// Remove any stale socket from a previous run.
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: remove stale socket: %v", ErrSocket, err)
	}

	addr, err := net.ResolveUnixAddr("unix", s.path)
	if err != nil {
		return fmt.Errorf("%w: resolve %q: %v", ErrSocket, s.path, err)
	}
	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		return fmt.Errorf("%w: listen %q: %v", ErrSocket, s.path, err)
	}

	// Least-privilege local IPC: owner-only, never network-exposed.
	if err := os.Chmod(s.path, 0o600); err != nil {
		ln.Close()
		os.Remove(s.path)
		return fmt.Errorf("%w: chmod socket: %v", ErrSocket, err)
	}

	s.ln = ln
	s.wg.Add(1)
	go s.acceptLoop()

	s.logger.Info("control server listening", "path", s.path)
	return nil
}

func (s *ControlServer) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.AcceptUnix()
		if err != nil {
			if s.closed.Load() {
				return
			}
			s.logger.Warn("accept failed", "err", err)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(conn)
		}()
	}
}

// handle runs one client handshake, then keeps the connection open only to
// observe disconnect. Steady-state telemetry never transits this socket.
func (s *ControlServer) handle(conn *net.UnixConn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()
	connID := uuid.NewString()

	conn.SetDeadline(time.Now().Add(handshakeIOTimeout))

	env, fd, err := recvControl(conn)
	if err != nil {
		s.logger.Warn("handshake receive failed", "conn", connID, "err", err)
		return
	}
	if fd >= 0 {
		// Clients have no business sending descriptors.
		os.NewFile(uintptr(fd), "unexpected").Close()
	}
	if env.Type != controlTypeHello || env.Hello == nil {
		s.logger.Warn("unexpected handshake message", "conn", connID, "type", env.Type)
		s.reject(conn, connID, rejectCodeNotReady, "expected hello")
		return
	}

	hello := env.Hello
	if hello.Version != ProtocolVersion {
		s.logger.Warn("client version rejected",
			"conn", connID, "client", hello.ClientID,
			"clientVersion", hello.Version, "serverVersion", ProtocolVersion)
		s.reject(conn, connID, rejectCodeVersionMismatch,
			fmt.Sprintf("server version %d, client version %d", ProtocolVersion, hello.Version))
		return
	}

	welcome := &controlEnvelope{
		Type: controlTypeWelcome,
		Welcome: &welcomeMessage{
			Version:     ProtocolVersion,
			FrameSize:   s.seg.H.FrameSize(),
			FrameCount:  s.seg.H.FrameCount(),
			SegmentSize: uint64(len(s.seg.Mem)),
		},
	}
	if err := sendControl(conn, welcome, int(s.seg.File.Fd())); err != nil {
		s.logger.Warn("handshake send failed", "conn", connID, "err", err)
		return
	}

	s.logger.Info("segment descriptor handed to reader",
		"conn", connID, "client", hello.ClientID,
		"frameSize", s.seg.H.FrameSize(), "frameCount", s.seg.H.FrameCount())

	// Park until the client goes away so the disconnect is logged.
	conn.SetDeadline(time.Time{})
	buf := make([]byte, 64)
	for {
		if _, err := conn.Read(buf); err != nil {
			break
		}
	}
	s.logger.Info("reader disconnected", "conn", connID, "client", hello.ClientID)
}

func (s *ControlServer) reject(conn *net.UnixConn, connID string, code uint32, reason string) {
	env := &controlEnvelope{
		Type:   controlTypeReject,
		Reject: &rejectMessage{Code: code, Reason: reason},
	}
	if err := sendControl(conn, env, -1); err != nil {
		s.logger.Warn("reject send failed", "conn", connID, "err", err)
	}
}

// Close stops accepting, removes the socket file and waits for in-flight
// handshakes. Idempotent.
func (s *ControlServer) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if s.ln != nil {
			s.ln.Close()
		}
		s.mu.Lock()
		for conn := range s.conns {
			conn.Close()
		}
		s.mu.Unlock()
		os.Remove(s.path)
	})
	s.wg.Wait()
	return nil
}

// Path returns the socket path the server is bound to.
func (s *ControlServer) Path() string {
	return s.path
}
