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
	"hash/crc32"
)

// Frame slot layout (little-endian, fixed 24-byte header):
//
//	uint8   type        // FrameType
//	[3]byte reserved    // zero
//	uint32  payloadLen  // payload length in bytes
//	uint64  seq         // sequence number == write cursor at encode time
//	uint64  timestampNs // nanoseconds since epoch
//	...     payload     // payloadLen bytes
//	uint32  crc32       // IEEE CRC-32 over header+payload, trails the payload
const (
	frameHeaderSize  = 24
	frameTrailerSize = 4

	// FrameOverhead is the number of slot bytes not available for payload.
	FrameOverhead = frameHeaderSize + frameTrailerSize
)

// FrameType tags the payload carried by a frame slot.
type FrameType uint8

const (
	FrameTypeInvalid   FrameType = 0x00
	FrameTypeVitals    FrameType = 0x01
	FrameTypeWaveform  FrameType = 0x02
	FrameTypeHeartbeat FrameType = 0x03
)

// String returns a human-readable frame type name.
func (t FrameType) String() string {
	switch t {
	case FrameTypeVitals:
		return "Vitals"
	case FrameTypeWaveform:
		return "Waveform"
	case FrameTypeHeartbeat:
		return "Heartbeat"
	default:
		return "Invalid"
	}
}

// Frame is a decoded frame slot. Payload is a copy; it does not alias the
// shared segment.
type Frame struct {
	Type        FrameType
	Seq         uint64
	TimestampNs uint64
	Payload     []byte
}

// MaxPayload returns the payload capacity of a slot of the given size.
func MaxPayload(frameSize uint32) int {
	if frameSize < FrameOverhead {
		return 0
	}
	return int(frameSize) - FrameOverhead
}

// encodeFrame serializes a frame into slot. The slot is the full fixed-size
// frame area; bytes past the checksum are left untouched. Returns
// ErrPayloadTooLarge if the payload does not fit.
func encodeFrame(slot []byte, ft FrameType, seq, timestampNs uint64, payload []byte) error {
	if len(payload) > len(slot)-FrameOverhead {
		return ErrPayloadTooLarge
	}

	slot[0] = byte(ft)
	slot[1], slot[2], slot[3] = 0, 0, 0
	binary.LittleEndian.PutUint32(slot[4:8], uint32(len(payload)))
	binary.LittleEndian.PutUint64(slot[8:16], seq)
	binary.LittleEndian.PutUint64(slot[16:24], timestampNs)
	copy(slot[frameHeaderSize:], payload)

	end := frameHeaderSize + len(payload)
	crc := crc32.ChecksumIEEE(slot[:end])
	binary.LittleEndian.PutUint32(slot[end:end+frameTrailerSize], crc)
	return nil
}

// decodeFrame parses and validates a frame slot, copying the payload out of
// the shared region. Any inconsistency (bad length, checksum failure) is
// reported as ErrCrcMismatch; a single corrupt frame is recoverable and the
// caller skips exactly one slot.
func decodeFrame(slot []byte) (Frame, error) {
	if len(slot) < FrameOverhead {
		return Frame{}, ErrCrcMismatch
	}

	payloadLen := int(binary.LittleEndian.Uint32(slot[4:8]))
	if payloadLen > len(slot)-FrameOverhead {
		return Frame{}, ErrCrcMismatch
	}

	end := frameHeaderSize + payloadLen
	want := binary.LittleEndian.Uint32(slot[end : end+frameTrailerSize])
	if crc32.ChecksumIEEE(slot[:end]) != want {
		return Frame{}, ErrCrcMismatch
	}

	f := Frame{
		Type:        FrameType(slot[0]),
		Seq:         binary.LittleEndian.Uint64(slot[8:16]),
		TimestampNs: binary.LittleEndian.Uint64(slot[16:24]),
	}
	if payloadLen > 0 {
		f.Payload = make([]byte, payloadLen)
		copy(f.Payload, slot[frameHeaderSize:end])
	}
	return f, nil
}
