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

// ConnectionState describes the transport connection lifecycle as seen by the
// consumer side.
type ConnectionState int32

const (
	StateNotConnected ConnectionState = iota
	StateHandshaking
	StateConnected
	StateStalled
	StateDisconnected
	StateClosed
)

// String returns a human-readable state name.
func (s ConnectionState) String() string {
	switch s {
	case StateNotConnected:
		return "NotConnected"
	case StateHandshaking:
		return "Handshaking"
	case StateConnected:
		return "Connected"
	case StateStalled:
		return "Stalled"
	case StateDisconnected:
		return "Disconnected"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// ErrorKind classifies transport errors surfaced to the consumer.
type ErrorKind int

const (
	ErrKindMappingFailed ErrorKind = iota
	ErrKindVersionMismatch
	ErrKindHeaderInvalid
	ErrKindCrcMismatch
	ErrKindSequenceGap
	ErrKindWriterStalled
	ErrKindSocketError
)

// String returns a human-readable error kind name.
func (k ErrorKind) String() string {
	switch k {
	case ErrKindMappingFailed:
		return "MappingFailed"
	case ErrKindVersionMismatch:
		return "VersionMismatch"
	case ErrKindHeaderInvalid:
		return "HeaderInvalid"
	case ErrKindCrcMismatch:
		return "CrcMismatch"
	case ErrKindSequenceGap:
		return "SequenceGap"
	case ErrKindWriterStalled:
		return "WriterStalled"
	case ErrKindSocketError:
		return "SocketError"
	default:
		return "Unknown"
	}
}

// Consumer receives decoded telemetry and connectivity events from the
// transport.
//
// All methods are invoked synchronously on the transport's polling goroutine.
// Implementations must not block: no I/O, no contended locks. A consumer that
// needs to do more than update in-memory state should enqueue onto a bounded
// channel and drop (with accounting) when full.
type Consumer interface {
	// OnVitals delivers one decoded vital-sign record.
	OnVitals(VitalRecord)

	// OnWaveform delivers one decoded waveform sample.
	OnWaveform(WaveformSample)

	// OnTransportError reports a state-level transport error. Recoverable
	// single-frame conditions (checksum skips, overrun drops) are counted
	// internally and not reported per occurrence.
	OnTransportError(kind ErrorKind, msg string)

	// OnStateChanged reports a connection state transition.
	OnStateChanged(ConnectionState)
}
