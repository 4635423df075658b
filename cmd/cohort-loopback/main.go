/*
	Copyright 2023 Loophole Labs

	Licensed under the Apache License, Version 2.0 (the "License");
	you may not use this file except in compliance with the License.
	You may obtain a copy of the License at

		   http://www.apache.org/licenses/LICENSE-2.0

	Unless required by applicable law or agreed to in writing, software
	distributed under the License is distributed on an "AS IS" BASIS,
	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
	See the License for the specific language governing permissions and
	limitations under the License.
*/

// Command cohort-loopback drives queue pairs against the software engine:
// every session submits descriptors, awaits results through a cooperative
// poll loop, checks their order and shuts the pair down in two phases.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/sirupsen/logrus"

	"github.com/loopholelabs/cohort"
	"github.com/loopholelabs/cohort/pkg/descriptor"
	"github.com/loopholelabs/cohort/pkg/loop"
	"github.com/loopholelabs/cohort/pkg/loopback"
	"github.com/loopholelabs/cohort/pkg/shm"
)

const (
	shutdownTimeout = time.Second
)

type config struct {
	sessions int
	capacity int
	slot     int
	requests int
	timeout  time.Duration
}

func main() {
	var cfg config
	var debug bool
	flag.IntVar(&cfg.sessions, "sessions", 4, "number of concurrent queue pairs")
	flag.IntVar(&cfg.capacity, "capacity", 64, "slots per ring, a power of two")
	flag.IntVar(&cfg.slot, "slot", descriptor.MaxDescriptorSize, "slot size in bytes")
	flag.IntVar(&cfg.requests, "requests", 100000, "descriptors per session")
	flag.DurationVar(&cfg.timeout, "timeout", 30*time.Second, "overall deadline")
	flag.BoolVar(&debug, "debug", false, "enable debug logging")
	flag.Parse()

	logger := logrus.New()
	if debug {
		logger.SetLevel(logrus.DebugLevel)
	}
	cohort.SetLogger(logger.WithField("logger", "cohort"))
	log := logger.WithField("logger", "cohort-loopback")

	if err := run(cfg, logger); err != nil {
		log.Errorf("run failed: %v", err)
		os.Exit(1)
	}
}

func run(cfg config, logger *logrus.Logger) error {
	if cfg.sessions <= 0 || cfg.requests <= 0 {
		return fmt.Errorf("sessions and requests must be positive")
	}
	if cfg.slot < descriptor.MaxDescriptorSize {
		return fmt.Errorf("slot must be at least %d bytes", descriptor.MaxDescriptorSize)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()

	size := 2 * int64(cohort.RequiredLength(cfg.slot, cfg.capacity)+cohort.HeaderAlign)
	mappings := shm.NewPool(size)
	defer func() {
		_ = mappings.Close()
	}()

	workers, err := ants.NewPool(cfg.sessions)
	if err != nil {
		return fmt.Errorf("error while creating worker pool: %w", err)
	}
	defer workers.Release()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	start := time.Now()
	for i := 0; i < cfg.sessions; i++ {
		id := i
		wg.Add(1)
		err = workers.Submit(func() {
			defer wg.Done()
			if err := runSession(ctx, id, cfg, mappings, logger); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("session %d: %w", id, err))
				mu.Unlock()
			}
		})
		if err != nil {
			wg.Done()
			return fmt.Errorf("error while submitting session %d: %w", id, err)
		}
	}
	wg.Wait()

	elapsed := time.Since(start)
	total := cfg.sessions * cfg.requests
	logger.WithFields(logrus.Fields{
		"sessions": cfg.sessions,
		"results":  total,
		"elapsed":  elapsed,
		"rate":     fmt.Sprintf("%.0f/s", float64(total)/elapsed.Seconds()),
	}).Info("loopback run finished")

	return errors.Join(errs...)
}

func runSession(ctx context.Context, id int, cfg config, mappings *shm.Pool, logger *logrus.Logger) error {
	m, err := mappings.Get()
	if err != nil {
		return fmt.Errorf("error while mapping region: %w", err)
	}

	qp, err := cohort.NewFromRegion(m.Bytes(), cfg.slot, cfg.capacity, cohort.WithID(uint8(id)))
	if err != nil {
		mappings.Put(m)
		return err
	}
	sender, receiver, err := cohort.SplitRegion(m.Bytes(), cfg.slot, cfg.capacity)
	if err != nil {
		mappings.Put(m)
		return err
	}
	ep, err := cohort.AttachEngine(sender, receiver)
	if err != nil {
		mappings.Put(m)
		return err
	}

	engineCtx, stopEngine := context.WithCancel(ctx)
	defer stopEngine()
	engine := loopback.New(ep, respond, logger)
	engine.Start(engineCtx)

	poller := cohort.NewPoller(qp)
	l := loop.New(loop.DefaultInterval, logger)
	l.Add(poller)

	s := &session{qp: qp, poller: poller, requests: cfg.requests, slot: make([]byte, cfg.slot)}
	l.Go(s.step)

	runErr := l.Run(ctx)
	if runErr == nil {
		runErr = s.err
	}

	// The engine may still be writing until it acknowledges quiesce, so the
	// mapping only goes back to the pool after a clean Shutdown.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := qp.Shutdown(shutdownCtx); err != nil {
		stopEngine()
		_ = engine.Wait()
		return errors.Join(runErr, err)
	}
	if err := engine.Wait(); err != nil {
		return errors.Join(runErr, err)
	}
	mappings.Put(m)
	return runErr
}

// respond is the engine's work: acknowledge every descriptor with its length.
func respond(desc []byte, result []byte) {
	var d descriptor.Descriptor
	if err := d.Decode(desc); err != nil {
		r := descriptor.Result{Res: -1}
		_, _ = r.Encode(result)
		return
	}
	r := descriptor.Result{UserData: d.UserData, Res: int32(d.Length)}
	_, _ = r.Encode(result)
}

type session struct {
	qp       *cohort.QueuePair
	poller   *cohort.Poller
	pending  *cohort.Pending
	requests int
	sent     int
	received int
	slot     []byte
	err      error
}

// step submits until backpressure, then waits on the poller for results.
func (s *session) step() bool {
	for s.sent < s.requests {
		d := descriptor.Descriptor{
			OpCode:   descriptor.OpCodeChecksum,
			UserData: uint64(s.sent),
			Length:   uint32(s.sent % 1500),
		}
		if _, err := d.Encode(s.slot); err != nil {
			s.err = err
			return true
		}
		err := s.qp.Submit(s.slot)
		if cohort.IsWouldBlock(err) {
			break
		}
		if err != nil {
			s.err = err
			return true
		}
		s.sent++
	}

	if s.pending == nil {
		s.pending = s.poller.Await()
	}
	if !s.pending.Ready() {
		return false
	}
	for _, slot := range s.pending.Results() {
		var r descriptor.Result
		if err := r.Decode(slot); err != nil {
			s.err = err
			return true
		}
		if r.UserData != uint64(s.received) {
			s.err = fmt.Errorf("result %d out of order: got user data %d", s.received, r.UserData)
			return true
		}
		s.received++
	}
	s.pending = nil
	return s.received == s.requests
}
