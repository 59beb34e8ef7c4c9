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

import (
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"
)

// Memory layout constants
const (
	// Magic bytes for segment identification
	SegmentMagic = "ZMONSHM\x00"

	// Current segment protocol version
	SegmentVersion = uint32(1)

	// Segment header size (aligned to 64 bytes); frame slots follow
	SegmentHeaderSize = 64

	// Minimum frame slot size
	MinFrameSize = uint32(64)

	// Minimum number of frame slots
	MinFrameCount = uint32(4)

	// Default frame slot size (4KB)
	DefaultFrameSize = uint32(4096)

	// Default number of frame slots
	DefaultFrameCount = uint32(1024)
)

// Platform-specific functions (implemented in platform-specific files)
var (
	// unmapMemory unmaps a memory-mapped region
	unmapMemory func([]byte) error
)

// SegmentHeader is the memory-resident segment header at offset 0.
// Fixed offsets, little-endian host layout:
//
//	0x00 magic       [8]byte  "ZMONSHM\0"
//	0x08 version     uint32
//	0x0C frameSize   uint32   slot size in bytes
//	0x10 frameCount  uint32   number of slots
//	0x14 pad         uint32
//	0x18 writeCursor uint64   atomic, monotonic count of frames ever written
//	0x20 heartbeatNs uint64   atomic, writer liveness timestamp
//	0x28 reserved    [24]byte padding to 64B
type SegmentHeader struct {
	magic       [8]byte
	version     uint32
	frameSize   uint32
	frameCount  uint32
	pad         uint32
	writeCursor uint64
	heartbeatNs uint64
	reserved    [24]byte
}

// Magic returns the magic bytes.
func (h *SegmentHeader) Magic() [8]byte {
	return h.magic
}

// SetMagic sets the magic bytes.
func (h *SegmentHeader) SetMagic(magic [8]byte) {
	h.magic = magic
}

// Version returns the segment protocol version.
func (h *SegmentHeader) Version() uint32 {
	return atomic.LoadUint32(&h.version)
}

// SetVersion sets the segment protocol version.
func (h *SegmentHeader) SetVersion(version uint32) {
	atomic.StoreUint32(&h.version, version)
}

// FrameSize returns the frame slot size in bytes.
func (h *SegmentHeader) FrameSize() uint32 {
	return atomic.LoadUint32(&h.frameSize)
}

// SetFrameSize sets the frame slot size in bytes.
func (h *SegmentHeader) SetFrameSize(size uint32) {
	atomic.StoreUint32(&h.frameSize, size)
}

// FrameCount returns the number of frame slots.
func (h *SegmentHeader) FrameCount() uint32 {
	return atomic.LoadUint32(&h.frameCount)
}

// SetFrameCount sets the number of frame slots.
func (h *SegmentHeader) SetFrameCount(count uint32) {
	atomic.StoreUint32(&h.frameCount, count)
}

// WriteCursor acquire-loads the monotonic write cursor. A reader that
// observes cursor value c is guaranteed to see the fully written bytes of
// every frame with seq < c.
func (h *SegmentHeader) WriteCursor() uint64 {
	return atomic.LoadUint64(&h.writeCursor)
}

// PublishWriteCursor release-stores the write cursor. The writer must have
// finished storing the frame bytes for every seq < cursor before calling
// this; the atomic store is what makes them visible to readers.
func (h *SegmentHeader) PublishWriteCursor(cursor uint64) {
	atomic.StoreUint64(&h.writeCursor, cursor)
}

// HeartbeatNs returns the writer liveness timestamp.
func (h *SegmentHeader) HeartbeatNs() uint64 {
	return atomic.LoadUint64(&h.heartbeatNs)
}

// SetHeartbeatNs updates the writer liveness timestamp.
func (h *SegmentHeader) SetHeartbeatNs(ns uint64) {
	atomic.StoreUint64(&h.heartbeatNs, ns)
}

// segmentMagicBytes returns the magic constant as a byte array.
func segmentMagicBytes() [8]byte {
	return [8]byte{'Z', 'M', 'O', 'N', 'S', 'H', 'M', 0}
}

// CalculateSegmentSize validates the ring geometry and returns the total
// segment size in bytes.
func CalculateSegmentSize(frameSize, frameCount uint32) (uint64, error) {
	if frameSize < MinFrameSize {
		return 0, fmt.Errorf("frame size %d is below minimum %d", frameSize, MinFrameSize)
	}
	if frameSize%8 != 0 {
		return 0, fmt.Errorf("frame size %d is not a multiple of 8", frameSize)
	}
	if frameCount < MinFrameCount {
		return 0, fmt.Errorf("frame count %d is below minimum %d", frameCount, MinFrameCount)
	}
	return uint64(SegmentHeaderSize) + uint64(frameSize)*uint64(frameCount), nil
}

// ValidateSegmentHeader validates a mapped header against the mapped size.
func ValidateSegmentHeader(h *SegmentHeader, mappedSize uint64) error {
	if h.Magic() != segmentMagicBytes() {
		return fmt.Errorf("%w: bad magic bytes", ErrHeaderInvalid)
	}
	if h.Version() != SegmentVersion {
		return fmt.Errorf("%w: unsupported version %d, expected %d", ErrHeaderInvalid, h.Version(), SegmentVersion)
	}
	total, err := CalculateSegmentSize(h.FrameSize(), h.FrameCount())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHeaderInvalid, err)
	}
	if mappedSize < total {
		return fmt.Errorf("%w: mapped size %d smaller than layout size %d", ErrHeaderInvalid, mappedSize, total)
	}
	return nil
}

// Segment is a mapped shared memory segment holding the ring buffer. The
// writer process owns creation, sizing and lifetime; readers map a received
// descriptor read-only and never resize or unlink it.
type Segment struct {
	File   *os.File // backing memfd (nil for test segments over heap memory)
	Mem    []byte   // mapped region
	H      *hdrView // typed view of the segment header
	Name   string   // diagnostic name
	mapped bool     // true when Mem came from mmap and needs unmapping
}

// hdrView provides typed access to the segment header via pointer arithmetic.
type hdrView struct {
	basePtr unsafe.Pointer
}

// header returns a pointer to the SegmentHeader.
func (h *hdrView) header() *SegmentHeader {
	return (*SegmentHeader)(h.basePtr)
}

// Version returns the segment protocol version.
func (h *hdrView) Version() uint32 { return h.header().Version() }

// FrameSize returns the frame slot size in bytes.
func (h *hdrView) FrameSize() uint32 { return h.header().FrameSize() }

// FrameCount returns the number of frame slots.
func (h *hdrView) FrameCount() uint32 { return h.header().FrameCount() }

// WriteCursor acquire-loads the monotonic write cursor.
func (h *hdrView) WriteCursor() uint64 { return h.header().WriteCursor() }

// PublishWriteCursor release-stores the write cursor.
func (h *hdrView) PublishWriteCursor(c uint64) { h.header().PublishWriteCursor(c) }

// HeartbeatNs returns the writer liveness timestamp.
func (h *hdrView) HeartbeatNs() uint64 { return h.header().HeartbeatNs() }

// SetHeartbeatNs updates the writer liveness timestamp.
func (h *hdrView) SetHeartbeatNs(ns uint64) { h.header().SetHeartbeatNs(ns) }

// Slot returns the fixed-size frame slot for the given monotonic index.
// The physical slot is index mod frameCount.
func (s *Segment) Slot(index uint64) []byte {
	frameSize := uint64(s.H.FrameSize())
	off := uint64(SegmentHeaderSize) + (index%uint64(s.H.FrameCount()))*frameSize
	return s.Mem[off : off+frameSize]
}

// Close unmaps the memory and closes the backing descriptor.
func (s *Segment) Close() error {
	var firstErr error

	if s.Mem != nil {
		if s.mapped && unmapMemory != nil {
			if err := unmapMemory(s.Mem); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		s.Mem = nil
	}

	if s.File != nil {
		if err := s.File.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.File = nil
	}

	return firstErr
}

// initSegment builds views over freshly allocated segment memory and writes
// the header. Used by the writer after creating the backing memory.
func initSegment(mem []byte, name string, frameSize, frameCount uint32) *Segment {
	s := &Segment{
		Mem:  mem,
		Name: name,
		H:    &hdrView{basePtr: unsafe.Pointer(&mem[0])},
	}
	hdr := s.H.header()
	hdr.SetMagic(segmentMagicBytes())
	hdr.SetVersion(SegmentVersion)
	hdr.SetFrameSize(frameSize)
	hdr.SetFrameCount(frameCount)
	hdr.SetHeartbeatNs(0)
	hdr.PublishWriteCursor(0)
	return s
}

// viewSegment builds views over already initialized segment memory and
// validates the header. Used by readers after mapping a received descriptor.
func viewSegment(mem []byte, name string) (*Segment, error) {
	if uint64(len(mem)) < SegmentHeaderSize {
		return nil, fmt.Errorf("%w: mapped region too small (%d bytes)", ErrHeaderInvalid, len(mem))
	}
	s := &Segment{
		Mem:  mem,
		Name: name,
		H:    &hdrView{basePtr: unsafe.Pointer(&mem[0])},
	}
	if err := ValidateSegmentHeader(s.H.header(), uint64(len(mem))); err != nil {
		return nil, err
	}
	return s, nil
}
