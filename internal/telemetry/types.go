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

// Package telemetry defines the vital-sign and waveform domain objects that
// cross the transport boundary, the MessagePack payload layouts carried inside
// ring buffer frames, and the consumer interface the transport dispatches to.
package telemetry

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Well-known vital metric identifiers.
const (
	MetricHeartRate       = "HR"
	MetricSpO2            = "SPO2"
	MetricRespirationRate = "RR"
)

// VitalRecord is a single decoded vital-sign value. Records are handed to the
// consumer by value; the transport keeps no reference after dispatch.
type VitalRecord struct {
	Metric      string
	Value       float64
	TimestampNs int64
	Quality     int // signal quality 0-100
}

// WaveformSample is a single decoded waveform point. Samples are handed to the
// consumer by value; the transport keeps no reference after dispatch.
type WaveformSample struct {
	Channel     string
	Value       float64
	TimestampNs int64
	SampleRate  float64 // Hz
}

// VitalsPayload is the frame payload for a vitals frame. Field names match
// the sensor wire contract.
type VitalsPayload struct {
	HR            float64 `msgpack:"hr"`
	SpO2          float64 `msgpack:"spo2"`
	RR            float64 `msgpack:"rr"`
	SignalQuality int     `msgpack:"signal_quality"`
}

// WaveformPayload is the frame payload for a waveform frame. Producers batch
// several consecutive samples per frame to amortize per-frame overhead.
type WaveformPayload struct {
	Channel          string    `msgpack:"channel"`
	SampleRate       int       `msgpack:"sample_rate"`
	StartTimestampNs int64     `msgpack:"start_timestamp_ns"`
	Values           []float64 `msgpack:"values"`
}

// Encode serializes the payload for transmission.
func (p *VitalsPayload) Encode() ([]byte, error) {
	return msgpack.Marshal(p)
}

// Records expands the payload into one VitalRecord per metric, all stamped
// with the enclosing frame timestamp.
func (p *VitalsPayload) Records(timestampNs int64) []VitalRecord {
	return []VitalRecord{
		{Metric: MetricHeartRate, Value: p.HR, TimestampNs: timestampNs, Quality: p.SignalQuality},
		{Metric: MetricSpO2, Value: p.SpO2, TimestampNs: timestampNs, Quality: p.SignalQuality},
		{Metric: MetricRespirationRate, Value: p.RR, TimestampNs: timestampNs, Quality: p.SignalQuality},
	}
}

// DecodeVitals deserializes a vitals frame payload.
func DecodeVitals(data []byte) (*VitalsPayload, error) {
	var p VitalsPayload
	if err := msgpack.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode vitals payload: %w", err)
	}
	return &p, nil
}

// Encode serializes the payload for transmission.
func (p *WaveformPayload) Encode() ([]byte, error) {
	return msgpack.Marshal(p)
}

// Samples expands the batched payload into individual samples, spacing
// timestamps by the sample period from the batch start.
func (p *WaveformPayload) Samples() []WaveformSample {
	if p.SampleRate <= 0 || len(p.Values) == 0 {
		return nil
	}
	periodNs := int64(1e9) / int64(p.SampleRate)
	out := make([]WaveformSample, len(p.Values))
	for i, v := range p.Values {
		out[i] = WaveformSample{
			Channel:     p.Channel,
			Value:       v,
			TimestampNs: p.StartTimestampNs + int64(i)*periodNs,
			SampleRate:  float64(p.SampleRate),
		}
	}
	return out
}

// DecodeWaveform deserializes a waveform frame payload.
func DecodeWaveform(data []byte) (*WaveformPayload, error) {
	var p WaveformPayload
	if err := msgpack.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode waveform payload: %w", err)
	}
	return &p, nil
}
