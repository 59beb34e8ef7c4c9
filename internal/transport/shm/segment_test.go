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
	"testing"
)

func TestCalculateSegmentSize(t *testing.T) {
	size, err := CalculateSegmentSize(4096, 1024)
	if err != nil {
		t.Fatalf("CalculateSegmentSize failed: %v", err)
	}
	want := uint64(SegmentHeaderSize) + 4096*1024
	if size != want {
		t.Errorf("size = %d, want %d", size, want)
	}
}

func TestCalculateSegmentSizeRejectsBadGeometry(t *testing.T) {
	cases := []struct {
		name       string
		frameSize  uint32
		frameCount uint32
	}{
		{"frame size below minimum", 32, 8},
		{"frame size not multiple of 8", 100, 8},
		{"frame count below minimum", 4096, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := CalculateSegmentSize(tc.frameSize, tc.frameCount); err == nil {
				t.Errorf("CalculateSegmentSize(%d, %d) succeeded, want error", tc.frameSize, tc.frameCount)
			}
		})
	}
}

func TestInitAndViewSegment(t *testing.T) {
	seg := newTestSegment(t, 256, 8)

	if seg.H.Version() != SegmentVersion {
		t.Errorf("version = %d, want %d", seg.H.Version(), SegmentVersion)
	}
	if seg.H.FrameSize() != 256 || seg.H.FrameCount() != 8 {
		t.Errorf("geometry = %d/%d, want 256/8", seg.H.FrameSize(), seg.H.FrameCount())
	}
	if seg.H.WriteCursor() != 0 || seg.H.HeartbeatNs() != 0 {
		t.Errorf("fresh segment has nonzero cursor/heartbeat")
	}

	// A reader view over the same memory validates cleanly.
	view, err := viewSegment(seg.Mem, "view")
	if err != nil {
		t.Fatalf("viewSegment failed: %v", err)
	}
	if view.H.FrameSize() != 256 {
		t.Errorf("view frame size = %d, want 256", view.H.FrameSize())
	}
}

func TestViewSegmentRejectsBadHeader(t *testing.T) {
	seg := newTestSegment(t, 256, 8)

	corrupt := make([]byte, len(seg.Mem))
	copy(corrupt, seg.Mem)
	corrupt[0] = 'X' // break the magic
	if _, err := viewSegment(corrupt, "bad"); !errors.Is(err, ErrHeaderInvalid) {
		t.Errorf("bad magic: err = %v, want ErrHeaderInvalid", err)
	}

	copy(corrupt, seg.Mem)
	corrupt[8] = 99 // version field
	if _, err := viewSegment(corrupt, "bad"); !errors.Is(err, ErrHeaderInvalid) {
		t.Errorf("bad version: err = %v, want ErrHeaderInvalid", err)
	}

	if _, err := viewSegment(seg.Mem[:32], "short"); !errors.Is(err, ErrHeaderInvalid) {
		t.Errorf("short mapping: err = %v, want ErrHeaderInvalid", err)
	}

	// Header claims more slots than the mapping holds.
	copy(corrupt, seg.Mem)
	trunc := corrupt[:SegmentHeaderSize+256]
	if _, err := viewSegment(trunc, "trunc"); !errors.Is(err, ErrHeaderInvalid) {
		t.Errorf("truncated mapping: err = %v, want ErrHeaderInvalid", err)
	}
}

func TestSlotWrapsAroundRing(t *testing.T) {
	seg := newTestSegment(t, 64, 4)

	// Monotonic index 5 lands in physical slot 1.
	a := seg.Slot(1)
	b := seg.Slot(5)
	if &a[0] != &b[0] {
		t.Errorf("Slot(5) does not alias Slot(1) with 4 slots")
	}
	if len(a) != 64 {
		t.Errorf("slot length = %d, want 64", len(a))
	}
}

func TestHeapSegmentCloseIsSafe(t *testing.T) {
	seg := newTestSegment(t, 64, 4)
	if err := seg.Close(); err != nil {
		t.Fatalf("Close failed on heap segment: %v", err)
	}
	if err := seg.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}
