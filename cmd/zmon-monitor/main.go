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

// zmon-monitor attaches to the sensor's shared memory segment and maintains
// in-memory vitals and waveform caches, logging a periodic summary of the
// latest vitals and transport counters.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ngdzu/zmon/internal/config"
	"github.com/ngdzu/zmon/internal/monitor"
	"github.com/ngdzu/zmon/internal/telemetry"
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
		logger.Error("zmon-monitor failed", "err", err)
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

	svc := monitor.NewService(monitor.ServiceConfig{
		VitalsQueue:   cfg.Monitor.VitalsQueue,
		WaveformQueue: cfg.Monitor.WaveformQueue,
		WaveformCache: cfg.Monitor.WaveformCache,
		Logger:        logger,
	})

	sup, err := shm.NewSupervisor(shm.SupervisorConfig{
		SocketPath:      cfg.Transport.SocketPath,
		StallThreshold:  cfg.Transport.StallThreshold(),
		DisconnectGrace: cfg.Transport.DisconnectGrace(),
		PollInterval:    cfg.Transport.PollInterval(),
		DialTimeout:     cfg.Transport.DialTimeout(),
		BackoffInitial:  cfg.Transport.BackoffInitial(),
		BackoffMax:      cfg.Transport.BackoffMax(),
		Logger:          logger,
	}, svc)
	if err != nil {
		return err
	}
	sup.Start()
	defer sup.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		svc.Run(gctx)
		return nil
	})
	if interval := cfg.Monitor.StatsInterval(); interval > 0 {
		g.Go(func() error {
			logStats(gctx, logger, svc, sup, interval)
			return nil
		})
	}

	err = g.Wait()
	logger.Info("zmon-monitor shut down")
	return err
}

// logStats emits a periodic summary of the latest vitals and transport
// counters.
func logStats(ctx context.Context, logger *slog.Logger, svc *monitor.Service, sup *shm.Supervisor, interval time.Duration) {
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}

		st := sup.Stats()
		vDropped, wDropped := svc.Dropped()
		attrs := []any{
			"state", sup.State().String(),
			"frames", st.FramesDispatched,
			"dropped", st.DroppedFrames,
			"crcErrors", st.CrcErrors,
			"latencyP99Ms", st.LatencyP99Ms,
			"queueDropsVitals", vDropped,
			"queueDropsWaveform", wDropped,
		}
		if hr, ok := svc.Vitals().Latest(telemetry.MetricHeartRate); ok {
			attrs = append(attrs, "hr", hr.Value)
		}
		if spo2, ok := svc.Vitals().Latest(telemetry.MetricSpO2); ok {
			attrs = append(attrs, "spo2", spo2.Value)
		}
		if rr, ok := svc.Vitals().Latest(telemetry.MetricRespirationRate); ok {
			attrs = append(attrs, "rr", rr.Value)
		}
		logger.Info("monitor status", attrs...)
	}
}
