/*
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
 */

// Package shm implements the shared memory telemetry transport between the
// sensor simulator process and the patient monitor process.
//
// The transport is a single-writer ring buffer of fixed-size frame slots
// living in a memfd-backed segment. The writer serializes vitals and waveform
// frames at fixed cadences and publishes a monotonically increasing write
// cursor; each reader maps the segment read-only and drains frames on a
// dedicated polling goroutine. The cursor is the only synchronization point
// on the data path: the writer's atomic store of the advanced cursor
// publishes the frame bytes written before it, and a reader's atomic load
// acquires them. No locks and no blocking syscalls are involved in steady
// state.
//
// The segment descriptor is handed to readers out of band over an owner-only
// unix domain socket using SCM_RIGHTS ancillary data, since a descriptor
// cannot be embedded inside the memory it describes. After the handshake the
// socket goes idle; all telemetry transits the shared segment.
package shm
