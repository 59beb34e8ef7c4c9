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
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ngdzu/zmon/internal/telemetry"
)

// Reader default tuning.
const (
	DefaultStallThreshold = 250 * time.Millisecond
	DefaultPollInterval   = 500 * time.Microsecond

	// defaultMaxFramesPerPoll bounds slots drained per cursor load so the
	// stop flag and stall check run at a bounded interval even while the
	// writer is producing flat out.
	defaultMaxFramesPerPoll = 64
)

// ReaderConfig tunes a Reader. Zero values select the defaults above; the
// disconnect grace defaults to four stall thresholds.
type ReaderConfig struct {
	StallThreshold   time.Duration
	DisconnectGrace  time.Duration
	PollInterval     time.Duration
	MaxFramesPerPoll int
	Logger           *slog.Logger

	// notifyState routes Connected/Stalled transitions. The supervisor
	// installs a hook that updates its state machine before forwarding to
	// the consumer; standalone readers report straight to the consumer.
	notifyState func(telemetry.ConnectionState)
}

// Reader drains frames from a mapped segment on a dedicated polling
// goroutine, validates and demultiplexes them, and dispatches decoded records
// to the consumer. Reader state (read index, expected sequence) is private to
// one reader; independent readers of the same segment never share it.
type Reader struct {
	seg      *Segment
	consumer telemetry.Consumer

	frameCount  uint64
	readIndex   uint64
	expectedSeq uint64

	stallThreshold  time.Duration
	disconnectGrace time.Duration
	pollInterval    time.Duration
	maxPerPoll      int

	stalled      bool
	stalledSince time.Time
	startNs      uint64

	stats       *Stats
	logger      *slog.Logger
	now         func() time.Time
	notifyState func(telemetry.ConnectionState)
}

// NewReader wraps a mapped, validated segment. The read position starts at
// the live cursor: history already in the ring is not replayed.
func NewReader(seg *Segment, consumer telemetry.Consumer, cfg ReaderConfig) (*Reader, error) {
	if seg == nil || seg.H == nil {
		return nil, fmt.Errorf("%w: nil segment", ErrHeaderInvalid)
	}
	if consumer == nil {
		return nil, errors.New("nil consumer")
	}
	if cfg.StallThreshold <= 0 {
		cfg.StallThreshold = DefaultStallThreshold
	}
	if cfg.DisconnectGrace <= 0 {
		cfg.DisconnectGrace = 4 * cfg.StallThreshold
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxFramesPerPoll <= 0 {
		cfg.MaxFramesPerPoll = defaultMaxFramesPerPoll
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	r := &Reader{
		seg:             seg,
		consumer:        consumer,
		frameCount:      uint64(seg.H.FrameCount()),
		stallThreshold:  cfg.StallThreshold,
		disconnectGrace: cfg.DisconnectGrace,
		pollInterval:    cfg.PollInterval,
		maxPerPoll:      cfg.MaxFramesPerPoll,
		stats:           newStats(),
		logger:          cfg.Logger,
		now:             time.Now,
		notifyState:     cfg.notifyState,
	}
	if r.notifyState == nil {
		r.notifyState = consumer.OnStateChanged
	}

	cursor := seg.H.WriteCursor()
	r.readIndex = cursor
	r.expectedSeq = cursor
	r.startNs = uint64(r.now().UnixNano())
	return r, nil
}

// Run polls until ctx is cancelled (returns nil) or the writer heartbeat
// stays stale beyond the disconnect grace (returns ErrWriterStalled). Run
// must be called from exactly one goroutine.
func (r *Reader) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		n := r.pollOnce()

		if err := r.checkStall(); err != nil {
			return err
		}

		// Only yield when the ring is drained; a full batch means the
		// writer is ahead and another pass should run immediately.
		if n < r.maxPerPoll {
			time.Sleep(r.pollInterval)
		}
	}
}

// pollOnce acquire-loads the cursor and drains up to maxPerPoll slots,
// returning the number of slots consumed (including skipped ones).
func (r *Reader) pollOnce() int {
	cursor := r.seg.H.WriteCursor()
	processed := 0

	for r.readIndex < cursor && processed < r.maxPerPoll {
		f, err := decodeFrame(r.seg.Slot(r.readIndex))
		if err != nil {
			// A single corrupt frame is not evidence of overrun;
			// skip exactly one slot and stay in sequence.
			r.stats.crcErrors.Add(1)
			r.logger.Debug("frame checksum mismatch, skipping slot",
				"readIndex", r.readIndex)
			r.readIndex++
			r.expectedSeq++
			processed++
			continue
		}

		if f.Seq != r.expectedSeq {
			// Overrun: the writer lapped this reader. Frames between
			// our position and the live cursor are gone; jump to the
			// cursor and account for the slots that were overwritten.
			behind := cursor - r.readIndex
			overwritten := int64(behind) - int64(r.frameCount)
			if overwritten < 1 {
				overwritten = int64(behind)
			}
			r.stats.droppedFrames.Add(uint64(overwritten))
			r.stats.overruns.Add(1)
			r.logger.Warn("ring buffer overrun, resyncing to cursor",
				"expectedSeq", r.expectedSeq,
				"gotSeq", f.Seq,
				"dropped", overwritten)
			r.readIndex = cursor
			r.expectedSeq = cursor
			processed++
			break
		}

		r.dispatch(&f)
		r.readIndex++
		r.expectedSeq++
		processed++
	}

	return processed
}

// dispatch decodes the payload and hands typed records to the consumer
// synchronously. The consumer contract requires these calls to be cheap.
func (r *Reader) dispatch(f *Frame) {
	switch f.Type {
	case FrameTypeVitals:
		p, err := telemetry.DecodeVitals(f.Payload)
		if err != nil {
			r.stats.decodeErrors.Add(1)
			r.logger.Warn("undecodable vitals payload", "seq", f.Seq, "err", err)
			return
		}
		records := p.Records(int64(f.TimestampNs))
		for _, rec := range records {
			r.consumer.OnVitals(rec)
		}
		r.stats.vitalsRecords.Add(uint64(len(records)))
	case FrameTypeWaveform:
		p, err := telemetry.DecodeWaveform(f.Payload)
		if err != nil {
			r.stats.decodeErrors.Add(1)
			r.logger.Warn("undecodable waveform payload", "seq", f.Seq, "err", err)
			return
		}
		samples := p.Samples()
		for _, s := range samples {
			r.consumer.OnWaveform(s)
		}
		r.stats.waveformSamples.Add(uint64(len(samples)))
	case FrameTypeHeartbeat:
		// Liveness is tracked through the header timestamp.
	default:
		r.logger.Warn("unknown frame type", "type", uint8(f.Type), "seq", f.Seq)
		return
	}

	r.stats.framesDispatched.Add(1)
	r.stats.observeLatency(r.now().UnixNano() - int64(f.TimestampNs))
}

// checkStall compares the heartbeat timestamp against the stall threshold,
// reporting Stalled/Connected transitions through the state hook and the
// consumer error interface. Returns ErrWriterStalled once the stall has
// outlived the disconnect grace.
func (r *Reader) checkStall() error {
	now := r.now()
	hb := r.seg.H.HeartbeatNs()
	if hb == 0 {
		// Writer has not produced yet; measure from reader start so a
		// never-starting writer still trips the threshold.
		hb = r.startNs
	}

	ageNs := now.UnixNano() - int64(hb)
	if ageNs < 0 {
		ageNs = 0
	}
	age := time.Duration(ageNs)
	if age > r.stallThreshold {
		if !r.stalled {
			r.stalled = true
			r.stalledSince = now
			r.logger.Warn("writer stalled, no heartbeat",
				"age", age, "threshold", r.stallThreshold)
			r.consumer.OnTransportError(telemetry.ErrKindWriterStalled,
				fmt.Sprintf("no writer heartbeat for %v", age))
			r.notifyState(telemetry.StateStalled)
		} else if now.Sub(r.stalledSince) > r.disconnectGrace {
			return ErrWriterStalled
		}
	} else if r.stalled {
		r.stalled = false
		r.logger.Info("writer heartbeat resumed")
		r.notifyState(telemetry.StateConnected)
	}
	return nil
}

// Stats returns a snapshot of the reader counters. Safe from any goroutine.
func (r *Reader) Stats() StatsSnapshot {
	return r.stats.Snapshot()
}
