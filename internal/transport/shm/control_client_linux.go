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
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/google/uuid"
)

// HandshakeResult is the outcome of a successful control channel handshake.
// The caller owns File and passes it to MapSegment.
type HandshakeResult struct {
	File          *os.File
	ServerVersion uint32
	FrameSize     uint32
	FrameCount    uint32
	SegmentSize   uint64
	ClientID      string
}

// Handshake connects to the writer's control socket, performs the
// Hello/Welcome exchange and returns the received segment descriptor.
// Returns ErrVersionMismatch when the writer rejects the protocol version
// (no descriptor is ever transferred in that case), or ErrSocket for
// transport failures. Liveness after the handoff is tracked through the
// segment heartbeat, not this socket, so the connection is closed before
// returning.
func Handshake(ctx context.Context, socketPath string, logger *slog.Logger) (*HandshakeResult, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var d net.Dialer
	rawConn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %q: %v", ErrSocket, socketPath, err)
	}
	conn := rawConn.(*net.UnixConn)
	defer conn.Close()

	deadline := time.Now().Add(handshakeIOTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetDeadline(deadline)

	clientID := uuid.NewString()
	hello := &controlEnvelope{
		Type:  controlTypeHello,
		Hello: &helloMessage{Version: ProtocolVersion, ClientID: clientID},
	}
	if err := sendControl(conn, hello, -1); err != nil {
		return nil, err
	}

	env, fd, err := recvControl(conn)
	if err != nil {
		return nil, err
	}

	switch env.Type {
	case controlTypeReject:
		if fd >= 0 {
			os.NewFile(uintptr(fd), "rejected").Close()
		}
		reason := "rejected"
		code := uint32(0)
		if env.Reject != nil {
			reason = env.Reject.Reason
			code = env.Reject.Code
		}
		if code == rejectCodeVersionMismatch {
			return nil, fmt.Errorf("%w: %s", ErrVersionMismatch, reason)
		}
		return nil, fmt.Errorf("%w: handshake rejected: %s", ErrSocket, reason)

	case controlTypeWelcome:
		if env.Welcome == nil {
			if fd >= 0 {
				os.NewFile(uintptr(fd), "invalid").Close()
			}
			return nil, fmt.Errorf("%w: welcome without body", ErrSocket)
		}
		// The reader validates the server version independently of the
		// server's own gate.
		if env.Welcome.Version != ProtocolVersion {
			if fd >= 0 {
				os.NewFile(uintptr(fd), "mismatched").Close()
			}
			return nil, fmt.Errorf("%w: server version %d, client version %d",
				ErrVersionMismatch, env.Welcome.Version, ProtocolVersion)
		}
		if fd < 0 {
			return nil, fmt.Errorf("%w: welcome carried no segment descriptor", ErrSocket)
		}

		logger.Info("handshake complete",
			"client", clientID,
			"frameSize", env.Welcome.FrameSize,
			"frameCount", env.Welcome.FrameCount,
			"segmentSize", env.Welcome.SegmentSize)

		return &HandshakeResult{
			File:          os.NewFile(uintptr(fd), "zmon-segment"),
			ServerVersion: env.Welcome.Version,
			FrameSize:     env.Welcome.FrameSize,
			FrameCount:    env.Welcome.FrameCount,
			SegmentSize:   env.Welcome.SegmentSize,
			ClientID:      clientID,
		}, nil

	default:
		if fd >= 0 {
			os.NewFile(uintptr(fd), "invalid").Close()
		}
		return nil, fmt.Errorf("%w: unexpected handshake reply type %d", ErrSocket, env.Type)
	}
}
