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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Transport.StallThreshold() != 250*time.Millisecond {
		t.Errorf("stall threshold = %v, want 250ms", cfg.Transport.StallThreshold())
	}
	if cfg.Transport.PollInterval() != 500*time.Microsecond {
		t.Errorf("poll interval = %v, want 500µs", cfg.Transport.PollInterval())
	}
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") failed: %v", err)
	}
	if cfg.Transport.FrameSize != 4096 || cfg.Transport.FrameCount != 1024 {
		t.Errorf("geometry = %d/%d, want 4096/1024", cfg.Transport.FrameSize, cfg.Transport.FrameCount)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zmon.yaml")
	doc := `
transport:
  socket_path: /run/custom.sock
  frame_size: 1024
  frame_count: 64
simulator:
  seed: 42
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Transport.SocketPath != "/run/custom.sock" {
		t.Errorf("socket path = %q", cfg.Transport.SocketPath)
	}
	if cfg.Transport.FrameSize != 1024 || cfg.Transport.FrameCount != 64 {
		t.Errorf("geometry = %d/%d, want 1024/64", cfg.Transport.FrameSize, cfg.Transport.FrameCount)
	}
	// Untouched sections keep their defaults.
	if cfg.Transport.StallThresholdMs != 250 {
		t.Errorf("stall threshold = %d, want default 250", cfg.Transport.StallThresholdMs)
	}
	if cfg.Monitor.VitalsQueue != 1024 {
		t.Errorf("vitals queue = %d, want default 1024", cfg.Monitor.VitalsQueue)
	}
	if cfg.Simulator.Seed != 42 {
		t.Errorf("seed = %d, want 42", cfg.Simulator.Seed)
	}
}

func TestLoadRejectsInvalidGeometry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	doc := `
transport:
  frame_size: 100
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("Load accepted frame_size not a multiple of 8")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("Load accepted a missing file")
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty socket path", func(c *Config) { c.Transport.SocketPath = "" }},
		{"tiny frame size", func(c *Config) { c.Transport.FrameSize = 32 }},
		{"tiny frame count", func(c *Config) { c.Transport.FrameCount = 2 }},
		{"zero stall threshold", func(c *Config) { c.Transport.StallThresholdMs = 0 }},
		{"zero poll interval", func(c *Config) { c.Transport.PollIntervalUs = 0 }},
		{"zero vitals interval", func(c *Config) { c.Simulator.VitalsIntervalMs = 0 }},
		{"zero waveform batch", func(c *Config) { c.Simulator.WaveformBatch = 0 }},
		{"zero vitals queue", func(c *Config) { c.Monitor.VitalsQueue = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate accepted invalid config")
			}
		})
	}
}
