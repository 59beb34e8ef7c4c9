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

package monitor

import (
	"sync"

	"github.com/ngdzu/zmon/internal/telemetry"
)

// VitalsCache holds the latest record per metric.
type VitalsCache struct {
	mu     sync.RWMutex
	latest map[string]telemetry.VitalRecord
}

func NewVitalsCache() *VitalsCache {
	return &VitalsCache{latest: make(map[string]telemetry.VitalRecord)}
}

// Put stores the record as the latest value for its metric.
func (c *VitalsCache) Put(rec telemetry.VitalRecord) {
	c.mu.Lock()
	c.latest[rec.Metric] = rec
	c.mu.Unlock()
}

// Latest returns the most recent record for the metric, if any.
func (c *VitalsCache) Latest(metric string) (telemetry.VitalRecord, bool) {
	c.mu.RLock()
	rec, ok := c.latest[metric]
	c.mu.RUnlock()
	return rec, ok
}

// Snapshot returns a copy of the latest record for every metric seen.
func (c *VitalsCache) Snapshot() map[string]telemetry.VitalRecord {
	c.mu.RLock()
	out := make(map[string]telemetry.VitalRecord, len(c.latest))
	for k, v := range c.latest {
		out[k] = v
	}
	c.mu.RUnlock()
	return out
}

// WaveformCache keeps a bounded ring of recent samples per channel. When a
// channel's ring is full the oldest sample is evicted.
type WaveformCache struct {
	mu       sync.RWMutex
	capacity int
	channels map[string]*waveformRing
}

type waveformRing struct {
	buf   []telemetry.WaveformSample
	head  int // next write position
	count int
}

func NewWaveformCache(perChannel int) *WaveformCache {
	if perChannel <= 0 {
		perChannel = 1
	}
	return &WaveformCache{
		capacity: perChannel,
		channels: make(map[string]*waveformRing),
	}
}

// Put appends a sample to its channel's ring.
func (c *WaveformCache) Put(s telemetry.WaveformSample) {
	c.mu.Lock()
	r, ok := c.channels[s.Channel]
	if !ok {
		r = &waveformRing{buf: make([]telemetry.WaveformSample, c.capacity)}
		c.channels[s.Channel] = r
	}
	r.buf[r.head] = s
	r.head = (r.head + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
	c.mu.Unlock()
}

// Recent returns up to n most recent samples for the channel, oldest first.
func (c *WaveformCache) Recent(channel string, n int) []telemetry.WaveformSample {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.channels[channel]
	if !ok || n <= 0 {
		return nil
	}
	if n > r.count {
		n = r.count
	}
	out := make([]telemetry.WaveformSample, n)
	start := (r.head - n + len(r.buf)) % len(r.buf)
	for i := 0; i < n; i++ {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}
	return out
}

// Channels lists the channels with at least one sample.
func (c *WaveformCache) Channels() []string {
	c.mu.RLock()
	out := make([]string, 0, len(c.channels))
	for ch := range c.channels {
		out = append(out, ch)
	}
	c.mu.RUnlock()
	return out
}
