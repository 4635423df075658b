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

package cohort

import (
	"time"
)

var (
	// DefaultPollInterval is how often Shutdown checks for the engine's
	// quiesce acknowledgement.
	DefaultPollInterval = time.Microsecond * 100

	// DefaultBatchSize is how many results a Poller drains per cycle.
	DefaultBatchSize = 32

	// DefaultBackoff is the engine polling backoff handed over at
	// registration.
	DefaultBackoff uint64 = 240
)

type options struct {
	id           uint8
	barrier      Barrier
	coherence    Coherence
	registrar    Registrar
	backoff      uint64
	pollInterval time.Duration
}

func defaultOptions() options {
	return options{
		barrier:      SeqCst{},
		backoff:      DefaultBackoff,
		pollInterval: DefaultPollInterval,
	}
}

// Option configures a QueuePair or an Engine.
type Option func(*options)

// WithID sets the cohort id reported to the registrar.
func WithID(id uint8) Option {
	return func(o *options) {
		o.id = id
	}
}

// WithBarrier replaces the cursor publish/observe primitive.
func WithBarrier(b Barrier) Option {
	return func(o *options) {
		if b != nil {
			o.barrier = b
		}
	}
}

// WithCoherence installs cache maintenance hooks for non-coherent engines.
func WithCoherence(c Coherence) Option {
	return func(o *options) {
		o.coherence = c
	}
}

// WithRegistrar hands the regions to a driver at construction and signals it
// on Quiesce.
func WithRegistrar(r Registrar) Option {
	return func(o *options) {
		o.registrar = r
	}
}

// WithBackoff sets the engine polling backoff passed to the registrar.
func WithBackoff(backoff uint64) Option {
	return func(o *options) {
		o.backoff = backoff
	}
}

// WithPollInterval sets how often Shutdown polls for quiescence.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}
