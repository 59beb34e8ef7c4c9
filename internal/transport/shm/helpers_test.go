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
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ngdzu/zmon/internal/telemetry"
)

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

// newTestSegment builds a segment over plain heap memory so ring protocol
// tests run without memfd or mmap.
func newTestSegment(t *testing.T, frameSize, frameCount uint32) *Segment {
	t.Helper()
	size, err := CalculateSegmentSize(frameSize, frameCount)
	if err != nil {
		t.Fatalf("CalculateSegmentSize(%d, %d) failed: %v", frameSize, frameCount, err)
	}
	mem := make([]byte, size)
	return initSegment(mem, "test", frameSize, frameCount)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// transportError records one OnTransportError callback.
type transportError struct {
	kind telemetry.ErrorKind
	msg  string
}

// captureConsumer records every callback under a mutex so tests can assert
// on dispatch order and content after the reader goroutine stops.
type captureConsumer struct {
	mu        sync.Mutex
	vitals    []telemetry.VitalRecord
	waveforms []telemetry.WaveformSample
	errors    []transportError
	states    []telemetry.ConnectionState
}

func (c *captureConsumer) OnVitals(rec telemetry.VitalRecord) {
	c.mu.Lock()
	c.vitals = append(c.vitals, rec)
	c.mu.Unlock()
}

func (c *captureConsumer) OnWaveform(s telemetry.WaveformSample) {
	c.mu.Lock()
	c.waveforms = append(c.waveforms, s)
	c.mu.Unlock()
}

func (c *captureConsumer) OnTransportError(kind telemetry.ErrorKind, msg string) {
	c.mu.Lock()
	c.errors = append(c.errors, transportError{kind: kind, msg: msg})
	c.mu.Unlock()
}

func (c *captureConsumer) OnStateChanged(st telemetry.ConnectionState) {
	c.mu.Lock()
	c.states = append(c.states, st)
	c.mu.Unlock()
}

func (c *captureConsumer) vitalsCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.vitals)
}

func (c *captureConsumer) waveformCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waveforms)
}

func (c *captureConsumer) snapshotStates() []telemetry.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]telemetry.ConnectionState, len(c.states))
	copy(out, c.states)
	return out
}

func (c *captureConsumer) snapshotErrors() []transportError {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]transportError, len(c.errors))
	copy(out, c.errors)
	return out
}
