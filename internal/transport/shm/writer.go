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
	"fmt"
	"log/slog"
	"time"

	"github.com/ngdzu/zmon/internal/telemetry"
)

// Writer serializes frames into a segment it owns and publishes the write
// cursor. A single goroutine must own all write calls; with one producer,
// the release-store of the cursor is the only synchronization the data path
// needs.
type Writer struct {
	seg        *Segment
	frameSize  uint32
	frameCount uint64
	cursor     uint64 // local copy; the header holds the published value
	logger     *slog.Logger
	now        func() int64 // nanosecond clock, replaceable in tests
}

// NewWriter wraps a freshly created segment. The segment must have been
// initialized by CreateSegment (or a test equivalent).
func NewWriter(seg *Segment, logger *slog.Logger) (*Writer, error) {
	if seg == nil || seg.H == nil {
		return nil, fmt.Errorf("%w: nil segment", ErrMappingFailed)
	}
	if logger == nil {
		logger = slog.Default()
	}
	frameSize := seg.H.FrameSize()
	frameCount := seg.H.FrameCount()
	if frameSize == 0 || frameCount == 0 {
		return nil, fmt.Errorf("%w: zero ring geometry", ErrHeaderInvalid)
	}
	return &Writer{
		seg:        seg,
		frameSize:  frameSize,
		frameCount: uint64(frameCount),
		cursor:     seg.H.WriteCursor(),
		logger:     logger,
		now:        func() int64 { return time.Now().UnixNano() },
	}, nil
}

// WriteFrame encodes one frame into the slot cursor mod frameCount with
// seq = cursor, then advances the published cursor and refreshes the
// heartbeat. ErrPayloadTooLarge is surfaced to the caller, never truncated.
func (w *Writer) WriteFrame(ft FrameType, payload []byte) error {
	ts := uint64(w.now())
	slot := w.seg.Slot(w.cursor)
	if err := encodeFrame(slot, ft, w.cursor, ts, payload); err != nil {
		return err
	}

	// Frame bytes are in place; the cursor store publishes them.
	w.cursor++
	w.seg.H.PublishWriteCursor(w.cursor)
	w.seg.H.SetHeartbeatNs(ts)
	return nil
}

// SubmitVitalsSample encodes and writes one vitals frame. Part of the
// producer input interface fed by sensor acquisition at its fixed cadence.
func (w *Writer) SubmitVitalsSample(p *telemetry.VitalsPayload) error {
	b, err := p.Encode()
	if err != nil {
		return fmt.Errorf("encode vitals: %w", err)
	}
	return w.WriteFrame(FrameTypeVitals, b)
}

// SubmitWaveformSample encodes and writes one batched waveform frame. Part of
// the producer input interface fed by sensor acquisition at its fixed cadence.
func (w *Writer) SubmitWaveformSample(p *telemetry.WaveformPayload) error {
	b, err := p.Encode()
	if err != nil {
		return fmt.Errorf("encode waveform: %w", err)
	}
	return w.WriteFrame(FrameTypeWaveform, b)
}

// Heartbeat refreshes the liveness timestamp without writing a frame. Called
// on a short interval so readers can distinguish an idle writer from a dead
// one.
func (w *Writer) Heartbeat() {
	w.seg.H.SetHeartbeatNs(uint64(w.now()))
}

// Cursor returns the published count of frames ever written. Safe to call
// from any goroutine.
func (w *Writer) Cursor() uint64 {
	return w.seg.H.WriteCursor()
}

// MaxPayload returns the usable payload bytes per frame.
func (w *Writer) MaxPayload() int {
	return MaxPayload(w.frameSize)
}

// Segment returns the segment owned by this writer.
func (w *Writer) Segment() *Segment {
	return w.seg
}
