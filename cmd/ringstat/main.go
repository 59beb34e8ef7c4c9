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

// ringstat is a one-shot diagnostic: it handshakes with a running sensor,
// maps the segment and prints the header fields plus observed frame and
// heartbeat rates over a sampling window.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ngdzu/zmon/internal/transport/shm"
)

func main() {
	socketPath := flag.String("socket", "/tmp/zmon.sock", "control socket path")
	window := flag.Duration("window", 2*time.Second, "rate sampling window")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	if err := run(logger, *socketPath, *window); err != nil {
		fmt.Fprintln(os.Stderr, "ringstat:", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, socketPath string, window time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hs, err := shm.Handshake(ctx, socketPath, logger)
	if err != nil {
		return err
	}

	seg, err := shm.MapSegment(hs.File, hs.SegmentSize)
	if err != nil {
		return err
	}
	defer seg.Close()

	fmt.Printf("segment:      %s\n", seg.Name)
	fmt.Printf("version:      %d\n", seg.H.Version())
	fmt.Printf("frame size:   %d bytes\n", seg.H.FrameSize())
	fmt.Printf("frame count:  %d slots\n", seg.H.FrameCount())
	fmt.Printf("segment size: %d bytes\n", hs.SegmentSize)
	fmt.Printf("max payload:  %d bytes\n", shm.MaxPayload(seg.H.FrameSize()))

	startCursor := seg.H.WriteCursor()
	startHb := seg.H.HeartbeatNs()
	fmt.Printf("write cursor: %d\n", startCursor)
	if startHb == 0 {
		fmt.Printf("heartbeat:    never\n")
	} else {
		age := time.Since(time.Unix(0, int64(startHb)))
		fmt.Printf("heartbeat:    %v ago\n", age.Round(time.Millisecond))
	}

	fmt.Printf("\nsampling for %v...\n", window)
	time.Sleep(window)

	endCursor := seg.H.WriteCursor()
	endHb := seg.H.HeartbeatNs()

	frames := endCursor - startCursor
	rate := float64(frames) / window.Seconds()
	fmt.Printf("frames written: %d (%.1f/s)\n", frames, rate)
	if endHb > startHb {
		fmt.Printf("heartbeat:      advancing (writer alive)\n")
	} else {
		fmt.Printf("heartbeat:      NOT advancing (writer stalled?)\n")
	}
	return nil
}
