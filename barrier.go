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
	"sync/atomic"
)

// Barrier publishes and observes cursor words shared with the engine. The
// engine does not take part in the Go memory model, so every publish must be
// at least a full fence and every observe must prevent later slot reads from
// being hoisted above it.
type Barrier interface {
	Publish(addr *uint64, value uint64)
	Observe(addr *uint64) uint64
}

var _ Barrier = SeqCst{}

// SeqCst uses sync/atomic, which is sequentially consistent: XCHG on amd64,
// STLR/LDAR on arm64. It is the strongest ordering Go exposes.
type SeqCst struct{}

func (SeqCst) Publish(addr *uint64, value uint64) {
	atomic.StoreUint64(addr, value)
}

func (SeqCst) Observe(addr *uint64) uint64 {
	return atomic.LoadUint64(addr)
}

// Coherence holds cache maintenance hooks for engines that are not coherent
// with the CPU caches. Flush runs on a slot after it is written and before the
// producer cursor is published; Invalidate runs on a slot after the producer
// cursor is observed and before the slot is read. Nil hooks are no-ops.
type Coherence struct {
	Flush      func(slot []byte)
	Invalidate func(slot []byte)
}

func (c *Coherence) flush(slot []byte) {
	if c.Flush != nil {
		c.Flush(slot)
	}
}

func (c *Coherence) invalidate(slot []byte) {
	if c.Invalidate != nil {
		c.Invalidate(slot)
	}
}
