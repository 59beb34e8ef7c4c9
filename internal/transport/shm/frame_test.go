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
	"bytes"
	"errors"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	slot := make([]byte, 256)
	payload := []byte(`{"hr":72}`)

	if err := encodeFrame(slot, FrameTypeVitals, 42, 1700000000000000000, payload); err != nil {
		t.Fatalf("encodeFrame failed: %v", err)
	}

	f, err := decodeFrame(slot)
	if err != nil {
		t.Fatalf("decodeFrame failed: %v", err)
	}
	if f.Type != FrameTypeVitals {
		t.Errorf("type = %v, want Vitals", f.Type)
	}
	if f.Seq != 42 {
		t.Errorf("seq = %d, want 42", f.Seq)
	}
	if f.TimestampNs != 1700000000000000000 {
		t.Errorf("timestamp = %d, want 1700000000000000000", f.TimestampNs)
	}
	if !bytes.Equal(f.Payload, payload) {
		t.Errorf("payload = %q, want %q", f.Payload, payload)
	}
}

func TestFrameEmptyPayload(t *testing.T) {
	slot := make([]byte, 64)
	if err := encodeFrame(slot, FrameTypeHeartbeat, 0, 1, nil); err != nil {
		t.Fatalf("encodeFrame failed: %v", err)
	}
	f, err := decodeFrame(slot)
	if err != nil {
		t.Fatalf("decodeFrame failed: %v", err)
	}
	if f.Type != FrameTypeHeartbeat {
		t.Errorf("type = %v, want Heartbeat", f.Type)
	}
	if len(f.Payload) != 0 {
		t.Errorf("payload length = %d, want 0", len(f.Payload))
	}
}

func TestFramePayloadTooLarge(t *testing.T) {
	slot := make([]byte, 64)
	payload := make([]byte, 64) // cannot fit next to header+trailer

	err := encodeFrame(slot, FrameTypeWaveform, 0, 0, payload)
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("err = %v, want ErrPayloadTooLarge", err)
	}
	// A payload that exactly fills the slot must succeed.
	if err := encodeFrame(slot, FrameTypeWaveform, 0, 0, payload[:64-FrameOverhead]); err != nil {
		t.Fatalf("max-size payload rejected: %v", err)
	}
}

func TestFrameCorruptionDetected(t *testing.T) {
	slot := make([]byte, 128)
	if err := encodeFrame(slot, FrameTypeVitals, 7, 99, []byte("abcdef")); err != nil {
		t.Fatalf("encodeFrame failed: %v", err)
	}

	// Flip one payload byte; the trailing checksum must catch it.
	slot[frameHeaderSize] ^= 0xFF
	if _, err := decodeFrame(slot); !errors.Is(err, ErrCrcMismatch) {
		t.Fatalf("corrupted payload: err = %v, want ErrCrcMismatch", err)
	}
}

func TestFrameZeroedSlotRejected(t *testing.T) {
	// An all-zero slot has a valid-looking zero length but the checksum of
	// zeroed header bytes is nonzero, so decoding must fail.
	slot := make([]byte, 128)
	if _, err := decodeFrame(slot); !errors.Is(err, ErrCrcMismatch) {
		t.Fatalf("zeroed slot: err = %v, want ErrCrcMismatch", err)
	}
}

func TestFrameBogusLengthRejected(t *testing.T) {
	slot := make([]byte, 64)
	if err := encodeFrame(slot, FrameTypeVitals, 0, 0, []byte("x")); err != nil {
		t.Fatalf("encodeFrame failed: %v", err)
	}
	// Claim a payload larger than the slot can hold.
	slot[4], slot[5], slot[6], slot[7] = 0xFF, 0xFF, 0x00, 0x00
	if _, err := decodeFrame(slot); !errors.Is(err, ErrCrcMismatch) {
		t.Fatalf("bogus length: err = %v, want ErrCrcMismatch", err)
	}
}

func TestFramePayloadIsCopied(t *testing.T) {
	slot := make([]byte, 64)
	if err := encodeFrame(slot, FrameTypeVitals, 0, 0, []byte("orig")); err != nil {
		t.Fatalf("encodeFrame failed: %v", err)
	}
	f, err := decodeFrame(slot)
	if err != nil {
		t.Fatalf("decodeFrame failed: %v", err)
	}
	// Overwrite the slot after decoding; the frame must be unaffected.
	for i := range slot {
		slot[i] = 0xAA
	}
	if string(f.Payload) != "orig" {
		t.Errorf("payload aliases the slot: %q", f.Payload)
	}
}

func TestMaxPayload(t *testing.T) {
	if got := MaxPayload(4096); got != 4096-FrameOverhead {
		t.Errorf("MaxPayload(4096) = %d, want %d", got, 4096-FrameOverhead)
	}
	if got := MaxPayload(FrameOverhead - 1); got != 0 {
		t.Errorf("MaxPayload(tiny) = %d, want 0", got)
	}
}
