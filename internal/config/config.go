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

// Package config loads the YAML configuration shared by the sensor and
// monitor binaries. Every field has a working default; an absent file or an
// empty document yields a fully usable configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Transport configures the shared memory segment and control channel.
type Transport struct {
	// SocketPath is the control channel unix socket.
	SocketPath string `yaml:"socket_path"`

	// FrameSize is the fixed slot size in bytes. Must be a multiple of 8
	// and at least 64.
	FrameSize uint32 `yaml:"frame_size"`

	// FrameCount is the number of ring slots. Must be at least 4.
	FrameCount uint32 `yaml:"frame_count"`

	// StallThresholdMs is how stale the writer heartbeat may be before the
	// reader reports Stalled.
	StallThresholdMs int `yaml:"stall_threshold_ms"`

	// DisconnectGraceMs is how long a stall may persist before the
	// supervisor tears the connection down. Zero means 4x the threshold.
	DisconnectGraceMs int `yaml:"disconnect_grace_ms"`

	// PollIntervalUs is the reader sleep between poll iterations.
	PollIntervalUs int `yaml:"poll_interval_us"`

	// DialTimeoutMs bounds one handshake attempt.
	DialTimeoutMs int `yaml:"dial_timeout_ms"`

	// BackoffInitialMs and BackoffMaxMs shape the reconnect backoff.
	BackoffInitialMs int `yaml:"backoff_initial_ms"`
	BackoffMaxMs     int `yaml:"backoff_max_ms"`
}

// Simulator configures the synthetic sensor producer.
type Simulator struct {
	// VitalsIntervalMs is the vitals production period (default 60 Hz).
	VitalsIntervalMs int `yaml:"vitals_interval_ms"`

	// WaveformIntervalMs is the waveform frame period. Each frame batches
	// WaveformBatch samples at WaveformRateHz.
	WaveformIntervalMs int `yaml:"waveform_interval_ms"`
	WaveformBatch      int `yaml:"waveform_batch"`
	WaveformRateHz     int `yaml:"waveform_rate_hz"`

	// HeartbeatIntervalMs is the liveness update period, independent of
	// the data cadences.
	HeartbeatIntervalMs int `yaml:"heartbeat_interval_ms"`

	// Seed seeds the random walks; zero picks a time-based seed.
	Seed int64 `yaml:"seed"`
}

// Monitor configures the reader-side consumer queues and caches.
type Monitor struct {
	// VitalsQueue and WaveformQueue bound the dispatch queues. When a
	// queue is full the record is dropped and counted, never blocked on.
	VitalsQueue   int `yaml:"vitals_queue"`
	WaveformQueue int `yaml:"waveform_queue"`

	// WaveformCache bounds the per-channel sample history.
	WaveformCache int `yaml:"waveform_cache"`

	// StatsIntervalMs is the period of the stats log line. Zero disables.
	StatsIntervalMs int `yaml:"stats_interval_ms"`
}

// Config is the root configuration document.
type Config struct {
	Transport Transport `yaml:"transport"`
	Simulator Simulator `yaml:"simulator"`
	Monitor   Monitor   `yaml:"monitor"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Transport: Transport{
			SocketPath:       "/tmp/zmon.sock",
			FrameSize:        4096,
			FrameCount:       1024,
			StallThresholdMs: 250,
			PollIntervalUs:   500,
			DialTimeoutMs:    2000,
			BackoffInitialMs: 100,
			BackoffMaxMs:     5000,
		},
		Simulator: Simulator{
			VitalsIntervalMs:    17, // ~60 Hz
			WaveformIntervalMs:  40,
			WaveformBatch:       10,
			WaveformRateHz:      250,
			HeartbeatIntervalMs: 10,
		},
		Monitor: Monitor{
			VitalsQueue:     1024,
			WaveformQueue:   8192,
			WaveformCache:   2048,
			StatsIntervalMs: 5000,
		},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %q: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects geometry and cadence values the transport cannot run with.
func (c *Config) Validate() error {
	t := &c.Transport
	if t.SocketPath == "" {
		return fmt.Errorf("transport.socket_path must not be empty")
	}
	if t.FrameSize < 64 || t.FrameSize%8 != 0 {
		return fmt.Errorf("transport.frame_size %d: must be >= 64 and a multiple of 8", t.FrameSize)
	}
	if t.FrameCount < 4 {
		return fmt.Errorf("transport.frame_count %d: must be >= 4", t.FrameCount)
	}
	if t.StallThresholdMs <= 0 {
		return fmt.Errorf("transport.stall_threshold_ms must be positive")
	}
	if t.PollIntervalUs <= 0 {
		return fmt.Errorf("transport.poll_interval_us must be positive")
	}

	s := &c.Simulator
	if s.VitalsIntervalMs <= 0 || s.WaveformIntervalMs <= 0 || s.HeartbeatIntervalMs <= 0 {
		return fmt.Errorf("simulator intervals must be positive")
	}
	if s.WaveformBatch <= 0 || s.WaveformRateHz <= 0 {
		return fmt.Errorf("simulator.waveform_batch and waveform_rate_hz must be positive")
	}

	m := &c.Monitor
	if m.VitalsQueue <= 0 || m.WaveformQueue <= 0 || m.WaveformCache <= 0 {
		return fmt.Errorf("monitor queue and cache sizes must be positive")
	}
	return nil
}

// Duration accessors: the YAML carries integer milliseconds/microseconds so
// hand-edited files stay unit-explicit.

func (t *Transport) StallThreshold() time.Duration {
	return time.Duration(t.StallThresholdMs) * time.Millisecond
}

func (t *Transport) DisconnectGrace() time.Duration {
	return time.Duration(t.DisconnectGraceMs) * time.Millisecond
}

func (t *Transport) PollInterval() time.Duration {
	return time.Duration(t.PollIntervalUs) * time.Microsecond
}

func (t *Transport) DialTimeout() time.Duration {
	return time.Duration(t.DialTimeoutMs) * time.Millisecond
}

func (t *Transport) BackoffInitial() time.Duration {
	return time.Duration(t.BackoffInitialMs) * time.Millisecond
}

func (t *Transport) BackoffMax() time.Duration {
	return time.Duration(t.BackoffMaxMs) * time.Millisecond
}

func (s *Simulator) VitalsInterval() time.Duration {
	return time.Duration(s.VitalsIntervalMs) * time.Millisecond
}

func (s *Simulator) WaveformInterval() time.Duration {
	return time.Duration(s.WaveformIntervalMs) * time.Millisecond
}

func (s *Simulator) HeartbeatInterval() time.Duration {
	return time.Duration(s.HeartbeatIntervalMs) * time.Millisecond
}

func (m *Monitor) StatsInterval() time.Duration {
	return time.Duration(m.StatsIntervalMs) * time.Millisecond
}
