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

import "errors"

var (
	// ErrPayloadTooLarge indicates a payload that does not fit in a frame
	// slot after header and checksum overhead. This is a caller logic
	// error, never silently truncated.
	ErrPayloadTooLarge = errors.New("payload exceeds frame slot capacity")

	// ErrCrcMismatch indicates a frame whose stored checksum does not match
	// the recomputed one. Recoverable: the reader skips the frame.
	ErrCrcMismatch = errors.New("frame checksum mismatch")

	// ErrMappingFailed indicates a shared memory create or map failure.
	// Fatal at writer startup, retried by the reader-side supervisor.
	ErrMappingFailed = errors.New("shared memory mapping failed")

	// ErrHeaderInvalid indicates a mapped segment whose header failed
	// magic, version or layout validation.
	ErrHeaderInvalid = errors.New("segment header invalid")

	// ErrVersionMismatch indicates incompatible protocol versions during
	// the control channel handshake. The handle is never transferred.
	ErrVersionMismatch = errors.New("protocol version mismatch")

	// ErrWriterStalled indicates the writer heartbeat stayed stale beyond
	// the disconnect grace period.
	ErrWriterStalled = errors.New("writer heartbeat stalled")

	// ErrSocket indicates a control channel transport failure.
	ErrSocket = errors.New("control channel socket error")

	// ErrClosed indicates an operation on a closed transport object.
	ErrClosed = errors.New("transport closed")

	// ErrPlatformNotSupported indicates the shared memory primitive is not
	// available on this platform.
	ErrPlatformNotSupported = errors.New("shared memory not supported on this platform")
)
