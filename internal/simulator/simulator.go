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

// Package simulator produces synthetic patient telemetry: random-walk vitals
// at the monitor refresh cadence and a batched synthetic ECG waveform, plus
// the writer heartbeat. All production happens on one goroutine so the
// transport's single-writer rule holds by construction.
package simulator

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/ngdzu/zmon/internal/telemetry"
)

// Vitals random walk bounds, matching typical adult monitor ranges.
const (
	hrMin, hrMax     = 50.0, 160.0
	hrStep           = 2.0
	spo2Min, spo2Max = 90.0, 100.0
	spo2Step         = 0.5
	rrMin, rrMax     = 8.0, 30.0
	rrStep           = 0.5
)

// Source is the producer input half of the transport writer.
type Source interface {
	SubmitVitalsSample(*telemetry.VitalsPayload) error
	SubmitWaveformSample(*telemetry.WaveformPayload) error
	Heartbeat()
}

// Config sets the production cadences.
type Config struct {
	VitalsInterval    time.Duration
	WaveformInterval  time.Duration
	WaveformBatch     int
	WaveformRateHz    int
	HeartbeatInterval time.Duration
	Seed              int64
	Logger            *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.VitalsInterval <= 0 {
		c.VitalsInterval = 17 * time.Millisecond
	}
	if c.WaveformInterval <= 0 {
		c.WaveformInterval = 40 * time.Millisecond
	}
	if c.WaveformBatch <= 0 {
		c.WaveformBatch = 10
	}
	if c.WaveformRateHz <= 0 {
		c.WaveformRateHz = 250
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 10 * time.Millisecond
	}
	if c.Seed == 0 {
		c.Seed = time.Now().UnixNano()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Simulator drives a Source with synthetic telemetry.
type Simulator struct {
	src    Source
	cfg    Config
	rng    *rand.Rand
	logger *slog.Logger

	hr   float64
	spo2 float64
	rr   float64

	ecgPhase float64
	now      func() int64
}

// New creates a simulator over the given source.
func New(src Source, cfg Config) *Simulator {
	cfg.applyDefaults()
	return &Simulator{
		src:    src,
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		logger: cfg.Logger,
		hr:     75,
		spo2:   98,
		rr:     14,
		now:    func() int64 { return time.Now().UnixNano() },
	}
}

// Run produces until ctx is cancelled. Vitals, waveform batches and heartbeat
// updates all run off one select loop on the calling goroutine.
func (s *Simulator) Run(ctx context.Context) error {
	vitalsTick := time.NewTicker(s.cfg.VitalsInterval)
	defer vitalsTick.Stop()
	waveTick := time.NewTicker(s.cfg.WaveformInterval)
	defer waveTick.Stop()
	hbTick := time.NewTicker(s.cfg.HeartbeatInterval)
	defer hbTick.Stop()

	s.logger.Info("simulator running",
		"vitalsInterval", s.cfg.VitalsInterval,
		"waveformInterval", s.cfg.WaveformInterval,
		"heartbeatInterval", s.cfg.HeartbeatInterval)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("simulator stopping")
			return nil
		case <-vitalsTick.C:
			if err := s.src.SubmitVitalsSample(s.nextVitals()); err != nil {
				s.logger.Error("vitals submit failed", "err", err)
				return err
			}
		case <-waveTick.C:
			if err := s.src.SubmitWaveformSample(s.nextWaveform()); err != nil {
				s.logger.Error("waveform submit failed", "err", err)
				return err
			}
		case <-hbTick.C:
			s.src.Heartbeat()
		}
	}
}

// nextVitals advances the random walks one step.
func (s *Simulator) nextVitals() *telemetry.VitalsPayload {
	s.hr = walk(s.rng, s.hr, hrStep, hrMin, hrMax)
	s.spo2 = walk(s.rng, s.spo2, spo2Step, spo2Min, spo2Max)
	s.rr = walk(s.rng, s.rr, rrStep, rrMin, rrMax)
	return &telemetry.VitalsPayload{
		HR:            math.Round(s.hr),
		SpO2:          math.Round(s.spo2*10) / 10,
		RR:            math.Round(s.rr),
		SignalQuality: 85 + s.rng.Intn(15),
	}
}

// nextWaveform emits one batch of synthetic ECG samples.
func (s *Simulator) nextWaveform() *telemetry.WaveformPayload {
	values := make([]float64, s.cfg.WaveformBatch)
	period := 1.0 / float64(s.cfg.WaveformRateHz)
	for i := range values {
		values[i] = ecgSample(s.ecgPhase, s.hr)
		s.ecgPhase += period
	}
	return &telemetry.WaveformPayload{
		Channel:          "ECG",
		SampleRate:       s.cfg.WaveformRateHz,
		StartTimestampNs: s.now(),
		Values:           values,
	}
}

// walk moves v one random step, clamped to [lo, hi].
func walk(rng *rand.Rand, v, step, lo, hi float64) float64 {
	v += (rng.Float64()*2 - 1) * step
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ecgSample approximates an ECG trace at the given time with a sharp R peak
// riding on low-amplitude P/T waves. Beat period follows the current heart
// rate.
func ecgSample(t, hr float64) float64 {
	beat := 60.0 / hr
	phase := math.Mod(t, beat) / beat

	// R spike around 30% into the beat.
	d := phase - 0.3
	r := 1.2 * math.Exp(-d*d/0.0008)
	// P and T humps.
	p := 0.15 * math.Exp(-(phase-0.15)*(phase-0.15)/0.002)
	tw := 0.3 * math.Exp(-(phase-0.55)*(phase-0.55)/0.005)
	return p + r + tw - 0.05
}
