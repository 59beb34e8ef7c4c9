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

// Package monitor implements the reader-side consumer: a non-blocking
// telemetry.Consumer that enqueues onto bounded channels and a drain loop that
// feeds in-memory vitals and waveform caches.
package monitor

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/ngdzu/zmon/internal/telemetry"
)

// Service receives telemetry from the transport's polling goroutine and moves
// it onto caches on its own goroutine. The consumer methods never block: a
// full queue drops the record and bumps a counter, keeping the transport's
// dispatch latency independent of cache contention.
type Service struct {
	vitalsCh   chan telemetry.VitalRecord
	waveformCh chan telemetry.WaveformSample

	vitals    *VitalsCache
	waveforms *WaveformCache

	vitalsDropped   atomic.Uint64
	waveformDropped atomic.Uint64

	state  atomic.Int32
	logger *slog.Logger
}

// ServiceConfig sizes the dispatch queues and waveform history.
type ServiceConfig struct {
	VitalsQueue   int
	WaveformQueue int
	WaveformCache int
	Logger        *slog.Logger
}

// NewService creates a monitoring service with bounded queues.
func NewService(cfg ServiceConfig) *Service {
	if cfg.VitalsQueue <= 0 {
		cfg.VitalsQueue = 1024
	}
	if cfg.WaveformQueue <= 0 {
		cfg.WaveformQueue = 8192
	}
	if cfg.WaveformCache <= 0 {
		cfg.WaveformCache = 2048
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Service{
		vitalsCh:   make(chan telemetry.VitalRecord, cfg.VitalsQueue),
		waveformCh: make(chan telemetry.WaveformSample, cfg.WaveformQueue),
		vitals:     NewVitalsCache(),
		waveforms:  NewWaveformCache(cfg.WaveformCache),
		logger:     cfg.Logger,
	}
	s.state.Store(int32(telemetry.StateNotConnected))
	return s
}

// OnVitals enqueues a record; drops and counts when the queue is full.
func (s *Service) OnVitals(rec telemetry.VitalRecord) {
	select {
	case s.vitalsCh <- rec:
	default:
		s.vitalsDropped.Add(1)
	}
}

// OnWaveform enqueues a sample; drops and counts when the queue is full.
func (s *Service) OnWaveform(sample telemetry.WaveformSample) {
	select {
	case s.waveformCh <- sample:
	default:
		s.waveformDropped.Add(1)
	}
}

// OnTransportError logs the error; the supervisor already owns recovery.
func (s *Service) OnTransportError(kind telemetry.ErrorKind, msg string) {
	s.logger.Warn("transport error", "kind", kind.String(), "msg", msg)
}

// OnStateChanged records the connection state for State().
func (s *Service) OnStateChanged(st telemetry.ConnectionState) {
	s.state.Store(int32(st))
}

// State returns the last connection state reported by the transport.
func (s *Service) State() telemetry.ConnectionState {
	return telemetry.ConnectionState(s.state.Load())
}

// Run drains the queues into the caches until ctx is cancelled. Must be
// called from exactly one goroutine.
func (s *Service) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case rec := <-s.vitalsCh:
			s.vitals.Put(rec)
		case sample := <-s.waveformCh:
			s.waveforms.Put(sample)
		}
	}
}

// Vitals returns the latest-value vitals cache.
func (s *Service) Vitals() *VitalsCache {
	return s.vitals
}

// Waveforms returns the bounded waveform history cache.
func (s *Service) Waveforms() *WaveformCache {
	return s.waveforms
}

// Dropped returns the counts of records dropped at the queue boundary.
func (s *Service) Dropped() (vitals, waveforms uint64) {
	return s.vitalsDropped.Load(), s.waveformDropped.Load()
}
