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
	"encoding/binary"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Control channel protocol. The channel exists solely to transfer the
// segment descriptor out of band: a reader connects, sends Hello, and the
// writer answers Welcome with the descriptor as SCM_RIGHTS ancillary data or
// Reject without one. After the handoff the channel is idle.
const (
	// ProtocolVersion is the handshake protocol version. The gate is an
	// exact match: a reader presenting any other version is rejected and
	// never receives a descriptor.
	ProtocolVersion = uint32(1)

	controlTypeHello   = uint8(1)
	controlTypeWelcome = uint8(2)
	controlTypeReject  = uint8(3)

	rejectCodeVersionMismatch = uint32(1)
	rejectCodeNotReady        = uint32(2)

	// maxControlMessageSize bounds a single length-prefixed handshake
	// message on the wire.
	maxControlMessageSize = 4096
)

// helloMessage is sent by a connecting reader.
type helloMessage struct {
	Version  uint32 `msgpack:"version"`
	ClientID string `msgpack:"client_id"`
}

// welcomeMessage is the writer's accept reply; the segment descriptor rides
// alongside as ancillary data.
type welcomeMessage struct {
	Version     uint32 `msgpack:"version"`
	FrameSize   uint32 `msgpack:"frame_size"`
	FrameCount  uint32 `msgpack:"frame_count"`
	SegmentSize uint64 `msgpack:"segment_size"`
}

// rejectMessage is the writer's refusal reply; no descriptor is attached.
type rejectMessage struct {
	Code   uint32 `msgpack:"code"`
	Reason string `msgpack:"reason"`
}

// controlEnvelope wraps exactly one handshake message.
type controlEnvelope struct {
	Type    uint8           `msgpack:"type"`
	Hello   *helloMessage   `msgpack:"hello,omitempty"`
	Welcome *welcomeMessage `msgpack:"welcome,omitempty"`
	Reject  *rejectMessage  `msgpack:"reject,omitempty"`
}

// marshalControl serializes an envelope with a 4-byte little-endian length
// prefix.
func marshalControl(env *controlEnvelope) ([]byte, error) {
	body, err := msgpack.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal control message: %w", err)
	}
	if len(body)+4 > maxControlMessageSize {
		return nil, fmt.Errorf("control message too large: %d bytes", len(body))
	}
	buf := make([]byte, 4+len(body))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(body)))
	copy(buf[4:], body)
	return buf, nil
}

// unmarshalControl parses one length-prefixed envelope. The wire layer
// reassembles the complete message before calling this, so a length mismatch
// is a protocol error.
func unmarshalControl(buf []byte) (*controlEnvelope, error) {
	if len(buf) < 4 {
		return nil, fmt.Errorf("%w: short control read (%d bytes)", ErrSocket, len(buf))
	}
	n := binary.LittleEndian.Uint32(buf[0:4])
	if int(n) != len(buf)-4 {
		return nil, fmt.Errorf("%w: control length mismatch: prefix %d, body %d", ErrSocket, n, len(buf)-4)
	}
	var env controlEnvelope
	if err := msgpack.Unmarshal(buf[4:], &env); err != nil {
		return nil, fmt.Errorf("%w: unmarshal control message: %v", ErrSocket, err)
	}
	return &env, nil
}
