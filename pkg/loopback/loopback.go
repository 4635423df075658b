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

// Package loopback emulates the accelerator in software. It drives the
// engine side of a queue pair from its own goroutine, the way the hardware
// would drive it from the other side of the shared region.
package loopback

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/loopholelabs/cohort"
)

const (
	idleSpins = 64
	idleSleep = time.Microsecond * 10
)

// Transform turns one descriptor slot into one result slot. result is zeroed
// and has the same length as desc.
type Transform func(desc []byte, result []byte)

// Echo returns every descriptor unchanged.
func Echo(desc []byte, result []byte) {
	copy(result, desc)
}

type Engine struct {
	ep  *cohort.Engine
	fn  Transform
	log logrus.FieldLogger

	processed atomic.Uint64
	dropped   atomic.Uint64

	done chan struct{}
	err  error
}

func New(ep *cohort.Engine, fn Transform, logger logrus.FieldLogger) *Engine {
	if fn == nil {
		fn = Echo
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Engine{
		ep:   ep,
		fn:   fn,
		log:  logger.WithField("logger", "cohort/loopback"),
		done: make(chan struct{}),
	}
}

// Start runs the engine until software requests quiesce or ctx ends. A ctx
// ending models an engine that dies without acknowledging.
func (e *Engine) Start(ctx context.Context) {
	go e.run(ctx)
}

// Wait blocks until the engine goroutine exits. It returns ctx's error if
// the engine was abandoned rather than quiesced.
func (e *Engine) Wait() error {
	<-e.done
	return e.err
}

func (e *Engine) Processed() uint64 {
	return e.processed.Load()
}

// Dropped counts results discarded because the receiver queue was still
// full when quiesce was requested.
func (e *Engine) Dropped() uint64 {
	return e.dropped.Load()
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.done)

	desc := make([]byte, e.ep.SlotSize())
	result := make([]byte, e.ep.SlotSize())
	held := false
	idle := 0

	for {
		if err := ctx.Err(); err != nil {
			e.err = err
			e.log.Debugf("engine abandoned: %v", err)
			return
		}

		if e.ep.QuiesceRequested() {
			if held && !e.ep.TryProduce(result) {
				e.dropped.Add(1)
			} else if held {
				e.processed.Add(1)
			}
			e.ep.AckQuiesce()
			e.log.Debugf("engine quiesced after %d results", e.processed.Load())
			return
		}

		if held {
			if !e.ep.TryProduce(result) {
				e.backoff(&idle)
				continue
			}
			held = false
			idle = 0
			e.processed.Add(1)
		}

		if !e.ep.TryConsume(desc) {
			e.backoff(&idle)
			continue
		}
		idle = 0
		clear(result)
		e.fn(desc, result)
		held = true
	}
}

func (e *Engine) backoff(idle *int) {
	*idle++
	if *idle < idleSpins {
		runtime.Gosched()
		return
	}
	time.Sleep(idleSleep)
}
