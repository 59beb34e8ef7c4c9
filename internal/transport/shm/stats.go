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
	"sync"
	"sync/atomic"

	"github.com/DataDog/sketches-go/ddsketch"
)

// latencySketchAccuracy is the DDSketch relative accuracy for dispatch
// latency quantiles (1%).
const latencySketchAccuracy = 0.01

// Stats accumulates reader-side transport counters and a dispatch-latency
// quantile sketch. Counters are updated on the polling goroutine and may be
// snapshotted from any goroutine.
type Stats struct {
	framesDispatched atomic.Uint64
	vitalsRecords    atomic.Uint64
	waveformSamples  atomic.Uint64
	crcErrors        atomic.Uint64
	decodeErrors     atomic.Uint64
	droppedFrames    atomic.Uint64
	overruns         atomic.Uint64

	mu      sync.Mutex
	latency *ddsketch.DDSketch
}

// StatsSnapshot is a point-in-time copy of the reader counters. Latency
// quantiles are in milliseconds and zero until at least one frame has been
// dispatched.
type StatsSnapshot struct {
	FramesDispatched uint64
	VitalsRecords    uint64
	WaveformSamples  uint64
	CrcErrors        uint64
	DecodeErrors     uint64
	DroppedFrames    uint64
	Overruns         uint64
	LatencyP50Ms     float64
	LatencyP99Ms     float64
}

func newStats() *Stats {
	sketch, err := ddsketch.NewDefaultDDSketch(latencySketchAccuracy)
	if err != nil {
		// Only reachable with an invalid accuracy constant.
		sketch = nil
	}
	return &Stats{latency: sketch}
}

// observeLatency records one sensor-write-to-dispatch latency sample.
func (s *Stats) observeLatency(ns int64) {
	if ns < 0 || s.latency == nil {
		return
	}
	s.mu.Lock()
	_ = s.latency.Add(float64(ns) / 1e6)
	s.mu.Unlock()
}

// Snapshot returns a consistent copy of the counters and latency quantiles.
func (s *Stats) Snapshot() StatsSnapshot {
	snap := StatsSnapshot{
		FramesDispatched: s.framesDispatched.Load(),
		VitalsRecords:    s.vitalsRecords.Load(),
		WaveformSamples:  s.waveformSamples.Load(),
		CrcErrors:        s.crcErrors.Load(),
		DecodeErrors:     s.decodeErrors.Load(),
		DroppedFrames:    s.droppedFrames.Load(),
		Overruns:         s.overruns.Load(),
	}
	if s.latency != nil {
		s.mu.Lock()
		if p50, err := s.latency.GetValueAtQuantile(0.5); err == nil {
			snap.LatencyP50Ms = p50
		}
		if p99, err := s.latency.GetValueAtQuantile(0.99); err == nil {
			snap.LatencyP99Ms = p99
		}
		s.mu.Unlock()
	}
	return snap
}
