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

// sensor-sim owns the shared memory segment and produces synthetic patient
// telemetry into it, serving the segment descriptor to monitor processes over
// the control socket.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/ngdzu/zmon/internal/config"
	"github.com/ngdzu/zmon/internal/simulator"
	"github.com/ngdzu/zmon/internal/transport/shm"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config (defaults apply when empty)")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(logger, *configPath); err != nil {
		logger.Error("sensor-sim failed", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Segment creation failure is fatal at startup; there is nothing to
	// serve without it.
	seg, err := shm.CreateSegment("telemetry", cfg.Transport.FrameSize, cfg.Transport.FrameCount)
	if err != nil {
		return err
	}
	defer seg.Close()
	logger.Info("segment created",
		"frameSize", cfg.Transport.FrameSize,
		"frameCount", cfg.Transport.FrameCount,
		"bytes", len(seg.Mem))

	writer, err := shm.NewWriter(seg, logger)
	if err != nil {
		return err
	}

	srv, err := shm.NewControlServer(cfg.Transport.SocketPath, seg, logger)
	if err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return err
	}
	defer srv.Close()

	sim := simulator.New(writer, simulator.Config{
		VitalsInterval:    cfg.Simulator.VitalsInterval(),
		WaveformInterval:  cfg.Simulator.WaveformInterval(),
		WaveformBatch:     cfg.Simulator.WaveformBatch,
		WaveformRateHz:    cfg.Simulator.WaveformRateHz,
		HeartbeatInterval: cfg.Simulator.HeartbeatInterval(),
		Seed:              cfg.Simulator.Seed,
		Logger:            logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sim.Run(gctx)
	})

	err = g.Wait()
	logger.Info("sensor-sim shut down")
	return err
}
