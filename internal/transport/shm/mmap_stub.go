//go:build !linux || !(amd64 || arm64)

package shm

import "os"

func init() {
	// Heap-backed test segments need no unmapping.
	unmapMemory = func([]byte) error { return nil }
}

// CreateSegment is not supported on this platform.
func CreateSegment(name string, frameSize, frameCount uint32) (*Segment, error) {
	return nil, ErrPlatformNotSupported
}

// MapSegment is not supported on this platform.
func MapSegment(file *os.File, size uint64) (*Segment, error) {
	if file != nil {
		file.Close()
	}
	return nil, ErrPlatformNotSupported
}
