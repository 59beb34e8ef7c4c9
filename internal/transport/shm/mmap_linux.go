//go:build linux && (amd64 || arm64)

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

	"github.com/pbnjay/memory"
	"golang.org/x/sys/unix"
)

func init() {
	// Set platform-specific function implementations
	unmapMemory = munmapImpl
}

// CreateSegment creates and maps an anonymous memfd-backed segment sized for
// the given ring geometry. The segment is sealed against resizing so a reader
// holding the descriptor can never shrink or grow it. Failure here is fatal
// at writer startup.
func CreateSegment(name string, frameSize, frameCount uint32) (*Segment, error) {
	total, err := CalculateSegmentSize(frameSize, frameCount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMappingFailed, err)
	}

	if free := memory.FreeMemory(); free > 0 && total > free {
		return nil, fmt.Errorf("%w: segment size %d exceeds free memory %d", ErrMappingFailed, total, free)
	}

	fd, err := unix.MemfdCreate("zmon_"+name, unix.MFD_CLOEXEC|unix.MFD_ALLOW_SEALING)
	if err != nil {
		return nil, fmt.Errorf("%w: memfd_create: %v", ErrMappingFailed, err)
	}
	file := os.NewFile(uintptr(fd), "/memfd:zmon_"+name)

	if err := file.Truncate(int64(total)); err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: truncate to %d: %v", ErrMappingFailed, total, err)
	}

	// Readers only ever map the descriptor; sealing makes resize and
	// unlink attempts fail at the kernel boundary.
	if _, err := unix.FcntlInt(file.Fd(), unix.F_ADD_SEALS, unix.F_SEAL_SHRINK|unix.F_SEAL_GROW); err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: seal segment: %v", ErrMappingFailed, err)
	}

	mem, err := unix.Mmap(int(file.Fd()), 0, int(total), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: mmap: %v", ErrMappingFailed, err)
	}

	seg := initSegment(mem, name, frameSize, frameCount)
	seg.File = file
	seg.mapped = true
	return seg, nil
}

// MapSegment maps a received segment descriptor read-only and validates the
// header. On any error the descriptor is closed. The returned segment owns
// the descriptor and releases it on Close.
func MapSegment(file *os.File, size uint64) (*Segment, error) {
	if size < SegmentHeaderSize {
		file.Close()
		return nil, fmt.Errorf("%w: advertised size %d too small", ErrHeaderInvalid, size)
	}

	mem, err := unix.Mmap(int(file.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: mmap: %v", ErrMappingFailed, err)
	}

	seg, err := viewSegment(mem, file.Name())
	if err != nil {
		munmapImpl(mem)
		file.Close()
		return nil, err
	}
	seg.File = file
	seg.mapped = true
	return seg, nil
}

// munmapImpl unmaps a memory-mapped region
func munmapImpl(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("munmap failed: %w", err)
	}
	return nil
}
