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

package telemetry

import "testing"

func TestVitalsRoundTrip(t *testing.T) {
	in := &VitalsPayload{HR: 72.5, SpO2: 98, RR: 14, SignalQuality: 96}
	b, err := in.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	out, err := DecodeVitals(b)
	if err != nil {
		t.Fatalf("DecodeVitals failed: %v", err)
	}
	if *out != *in {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
}

func TestVitalsRecordsExpansion(t *testing.T) {
	p := &VitalsPayload{HR: 80, SpO2: 97, RR: 16, SignalQuality: 90}
	recs := p.Records(12345)
	if len(recs) != 3 {
		t.Fatalf("records = %d, want 3", len(recs))
	}
	want := map[string]float64{
		MetricHeartRate:       80,
		MetricSpO2:            97,
		MetricRespirationRate: 16,
	}
	for _, r := range recs {
		if r.TimestampNs != 12345 {
			t.Errorf("%s timestamp = %d, want 12345", r.Metric, r.TimestampNs)
		}
		if r.Quality != 90 {
			t.Errorf("%s quality = %d, want 90", r.Metric, r.Quality)
		}
		v, ok := want[r.Metric]
		if !ok {
			t.Errorf("unexpected metric %q", r.Metric)
			continue
		}
		if r.Value != v {
			t.Errorf("%s = %v, want %v", r.Metric, r.Value, v)
		}
		delete(want, r.Metric)
	}
	if len(want) != 0 {
		t.Errorf("missing metrics: %v", want)
	}
}

func TestWaveformSamplesExpansion(t *testing.T) {
	p := &WaveformPayload{
		Channel:          "ECG",
		SampleRate:       250,
		StartTimestampNs: 1_000_000_000,
		Values:           []float64{0.5, -0.5, 1.0},
	}
	samples := p.Samples()
	if len(samples) != 3 {
		t.Fatalf("samples = %d, want 3", len(samples))
	}
	period := int64(1e9) / 250
	for i, s := range samples {
		if s.Channel != "ECG" || s.SampleRate != 250 {
			t.Errorf("sample %d = %+v", i, s)
		}
		if want := int64(1_000_000_000) + int64(i)*period; s.TimestampNs != want {
			t.Errorf("sample %d timestamp = %d, want %d", i, s.TimestampNs, want)
		}
	}
	if samples[1].Value != -0.5 {
		t.Errorf("sample 1 value = %v, want -0.5", samples[1].Value)
	}
}

func TestWaveformSamplesDegenerate(t *testing.T) {
	if s := (&WaveformPayload{Channel: "ECG", SampleRate: 0, Values: []float64{1}}).Samples(); s != nil {
		t.Errorf("zero sample rate produced %d samples", len(s))
	}
	if s := (&WaveformPayload{Channel: "ECG", SampleRate: 250}).Samples(); s != nil {
		t.Errorf("empty batch produced %d samples", len(s))
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := DecodeVitals([]byte{0xc1}); err == nil {
		t.Error("DecodeVitals accepted garbage")
	}
	if _, err := DecodeWaveform([]byte{0xc1}); err == nil {
		t.Error("DecodeWaveform accepted garbage")
	}
}
