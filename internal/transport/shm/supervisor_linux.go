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
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ngdzu/zmon/internal/telemetry"
)

// Supervisor default tuning.
const (
	DefaultDialTimeout    = 2 * time.Second
	DefaultBackoffInitial = 100 * time.Millisecond
	DefaultBackoffMax     = 5 * time.Second
)

// SupervisorConfig tunes the reader-side connection supervisor. Zero values
// select the defaults.
type SupervisorConfig struct {
	SocketPath string

	StallThreshold  time.Duration
	DisconnectGrace time.Duration
	PollInterval    time.Duration
	DialTimeout     time.Duration
	BackoffInitial  time.Duration
	BackoffMax      time.Duration

	Logger *slog.Logger
}

func (c *SupervisorConfig) applyDefaults() {
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.BackoffInitial <= 0 {
		c.BackoffInitial = DefaultBackoffInitial
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = DefaultBackoffMax
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Supervisor drives the reader-side connection state machine: handshake,
// segment mapping, polling goroutine lifecycle, stall-triggered teardown and
// exponential-backoff reconnect. All state transitions are reported to the
// consumer through OnStateChanged.
type Supervisor struct {
	cfg      SupervisorConfig
	consumer telemetry.Consumer
	logger   *slog.Logger

	state atomic.Int32

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	startOnce sync.Once
	closeOnce sync.Once

	mu     sync.Mutex
	reader *Reader
}

// NewSupervisor creates a stopped supervisor. Call Start to begin connecting.
func NewSupervisor(cfg SupervisorConfig, consumer telemetry.Consumer) (*Supervisor, error) {
	if cfg.SocketPath == "" {
		return nil, errors.New("supervisor requires a socket path")
	}
	if consumer == nil {
		return nil, errors.New("supervisor requires a consumer")
	}
	cfg.applyDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	s := &Supervisor{
		cfg:      cfg,
		consumer: consumer,
		logger:   cfg.Logger,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	s.state.Store(int32(telemetry.StateNotConnected))
	return s, nil
}

// Start launches the supervision loop in the background. Calling Start more
// than once is a no-op.
func (s *Supervisor) Start() {
	s.startOnce.Do(func() {
		go s.run()
	})
}

// State returns the current connection state. Safe from any goroutine.
func (s *Supervisor) State() telemetry.ConnectionState {
	return telemetry.ConnectionState(s.state.Load())
}

// Stats returns counters for the current connection, or a zero snapshot when
// not connected.
func (s *Supervisor) Stats() StatsSnapshot {
	s.mu.Lock()
	r := s.reader
	s.mu.Unlock()
	if r == nil {
		return StatsSnapshot{}
	}
	return r.Stats()
}

// Close signals shutdown, joins the supervision loop if one was launched and
// returns once all resources are released. Idempotent and safe to call from
// any goroutine, whether or not Start was ever called; the state is Closed
// after Close returns.
func (s *Supervisor) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		// Consuming startOnce here makes a later Start a no-op. When the
		// loop was never launched there is no run() to close done, so
		// release waiters directly.
		s.startOnce.Do(func() { close(s.done) })
	})
	<-s.done
	s.setState(telemetry.StateClosed)
	return nil
}

func (s *Supervisor) setState(st telemetry.ConnectionState) {
	if telemetry.ConnectionState(s.state.Swap(int32(st))) == st {
		return
	}
	s.logger.Info("connection state changed", "state", st.String())
	s.consumer.OnStateChanged(st)
}

// run is the supervision loop: one iteration per connection attempt. Closed
// is reported by Close alone; a terminal failure leaves the state at
// Disconnected.
func (s *Supervisor) run() {
	defer close(s.done)

	backoff := s.cfg.BackoffInitial

	for {
		if s.ctx.Err() != nil {
			return
		}

		s.setState(telemetry.StateHandshaking)

		dialCtx, cancelDial := context.WithTimeout(s.ctx, s.cfg.DialTimeout)
		hs, err := Handshake(dialCtx, s.cfg.SocketPath, s.logger)
		cancelDial()
		if err != nil {
			if errors.Is(err, ErrVersionMismatch) {
				// Fatal for this supervisor: an operator or version
				// fix and an explicit restart are required.
				s.logger.Error("handshake version rejected, giving up", "err", err)
				s.consumer.OnTransportError(telemetry.ErrKindVersionMismatch, err.Error())
				s.setState(telemetry.StateDisconnected)
				return
			}
			s.logger.Warn("handshake failed", "err", err, "retryIn", backoff)
			s.consumer.OnTransportError(telemetry.ErrKindSocketError, err.Error())
			s.setState(telemetry.StateDisconnected)
			if !s.sleep(backoff) {
				return
			}
			backoff = nextBackoff(backoff, s.cfg.BackoffMax)
			continue
		}

		seg, err := MapSegment(hs.File, hs.SegmentSize)
		if err != nil {
			kind := telemetry.ErrKindMappingFailed
			if errors.Is(err, ErrHeaderInvalid) {
				kind = telemetry.ErrKindHeaderInvalid
			}
			s.logger.Warn("segment mapping failed", "err", err, "retryIn", backoff)
			s.consumer.OnTransportError(kind, err.Error())
			s.setState(telemetry.StateDisconnected)
			if !s.sleep(backoff) {
				return
			}
			backoff = nextBackoff(backoff, s.cfg.BackoffMax)
			continue
		}

		reader, err := NewReader(seg, s.consumer, ReaderConfig{
			StallThreshold:  s.cfg.StallThreshold,
			DisconnectGrace: s.cfg.DisconnectGrace,
			PollInterval:    s.cfg.PollInterval,
			Logger:          s.logger,
			notifyState:     s.setState,
		})
		if err != nil {
			seg.Close()
			s.logger.Error("reader construction failed", "err", err)
			s.setState(telemetry.StateDisconnected)
			if !s.sleep(backoff) {
				return
			}
			backoff = nextBackoff(backoff, s.cfg.BackoffMax)
			continue
		}

		s.mu.Lock()
		s.reader = reader
		s.mu.Unlock()

		s.setState(telemetry.StateConnected)
		backoff = s.cfg.BackoffInitial // reset on a successful connection

		runErr := reader.Run(s.ctx)

		s.mu.Lock()
		s.reader = nil
		s.mu.Unlock()
		seg.Close()

		if s.ctx.Err() != nil {
			return
		}

		// The reader only returns with an error while the context is
		// live; today that error is a stall beyond the grace period.
		if errors.Is(runErr, ErrWriterStalled) {
			s.consumer.OnTransportError(telemetry.ErrKindWriterStalled,
				"writer heartbeat lost beyond grace period")
		}
		s.setState(telemetry.StateDisconnected)
		if !s.sleep(backoff) {
			return
		}
		backoff = nextBackoff(backoff, s.cfg.BackoffMax)
	}
}

// sleep waits for d or until shutdown; reports false on shutdown.
func (s *Supervisor) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-s.ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// nextBackoff doubles the delay up to the cap.
func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}
