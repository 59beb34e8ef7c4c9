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
	"testing"

	"github.com/ngdzu/zmon/internal/telemetry"
)

func TestWriterCursorAdvancesMonotonically(t *testing.T) {
	seg := newTestSegment(t, 256, 8)
	w, err := NewWriter(seg, discardLogger())
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}

	for i := 0; i < 20; i++ {
		if err := w.WriteFrame(FrameTypeVitals, []byte(fmt.Sprintf("p%d", i))); err != nil {
			t.Fatalf("WriteFrame %d failed: %v", i, err)
		}
		if got := w.Cursor(); got != uint64(i+1) {
			t.Fatalf("cursor after frame %d = %d, want %d", i, got, i+1)
		}
	}
}

func TestWriterSeqMatchesCursor(t *testing.T) {
	seg := newTestSegment(t, 256, 8)
	w, err := NewWriter(seg, discardLogger())
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}

	for i := uint64(0); i < 12; i++ {
		if err := w.WriteFrame(FrameTypeVitals, []byte("x")); err != nil {
			t.Fatalf("WriteFrame failed: %v", err)
		}
	}

	// The last 8 frames survive the wraparound; each slot carries the seq
	// it was written at.
	for seq := uint64(4); seq < 12; seq++ {
		f, err := decodeFrame(seg.Slot(seq))
		if err != nil {
			t.Fatalf("decodeFrame(seq=%d) failed: %v", seq, err)
		}
		if f.Seq != seq {
			t.Errorf("slot for seq %d holds seq %d", seq, f.Seq)
		}
	}
}

func TestWriterRefreshesHeartbeat(t *testing.T) {
	seg := newTestSegment(t, 256, 8)
	w, err := NewWriter(seg, discardLogger())
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	now := int64(1000)
	w.now = func() int64 { return now }

	if err := w.WriteFrame(FrameTypeVitals, []byte("x")); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	if got := seg.H.HeartbeatNs(); got != 1000 {
		t.Errorf("heartbeat after write = %d, want 1000", got)
	}

	now = 2500
	w.Heartbeat()
	if got := seg.H.HeartbeatNs(); got != 2500 {
		t.Errorf("heartbeat after Heartbeat() = %d, want 2500", got)
	}
	// Heartbeat alone must not advance the cursor.
	if got := w.Cursor(); got != 1 {
		t.Errorf("cursor after Heartbeat() = %d, want 1", got)
	}
}

func TestWriterRejectsOversizedPayload(t *testing.T) {
	seg := newTestSegment(t, 64, 4)
	w, err := NewWriter(seg, discardLogger())
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}

	big := make([]byte, w.MaxPayload()+1)
	if err := w.WriteFrame(FrameTypeWaveform, big); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("err = %v, want ErrPayloadTooLarge", err)
	}
	// A failed write publishes nothing.
	if got := w.Cursor(); got != 0 {
		t.Errorf("cursor after rejected write = %d, want 0", got)
	}
}

func TestWriterSubmitVitals(t *testing.T) {
	seg := newTestSegment(t, 512, 8)
	w, err := NewWriter(seg, discardLogger())
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}

	p := &telemetry.VitalsPayload{HR: 72, SpO2: 98, RR: 14, SignalQuality: 97}
	if err := w.SubmitVitalsSample(p); err != nil {
		t.Fatalf("SubmitVitalsSample failed: %v", err)
	}

	f, err := decodeFrame(seg.Slot(0))
	if err != nil {
		t.Fatalf("decodeFrame failed: %v", err)
	}
	if f.Type != FrameTypeVitals {
		t.Fatalf("frame type = %v, want Vitals", f.Type)
	}
	got, err := telemetry.DecodeVitals(f.Payload)
	if err != nil {
		t.Fatalf("DecodeVitals failed: %v", err)
	}
	if got.HR != 72 || got.SpO2 != 98 || got.RR != 14 {
		t.Errorf("decoded vitals = %+v", got)
	}
}
