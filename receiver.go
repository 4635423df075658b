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
	"fmt"
)

// Slot is a copy of one slot's bytes, owned by the caller.
type Slot []byte

// ReceiverQueue is the engine-produced, software-consumed half of a queue
// pair. It must be driven by a single goroutine.
type ReceiverQueue struct {
	r *ring

	// consumer mirrors *r.kConsumer; only this side writes it.
	consumer uint64
	// cachedProducer is the last observed engine cursor. Slots below it
	// were already made visible by that observation.
	cachedProducer uint64
}

func newReceiverQueue(r *ring) *ReceiverQueue {
	return &ReceiverQueue{
		r:              r,
		consumer:       r.barrier.Observe(r.kConsumer),
		cachedProducer: r.barrier.Observe(r.kProducer),
	}
}

func (q *ReceiverQueue) Capacity() int {
	return q.r.capacity.Len()
}

func (q *ReceiverQueue) SlotSize() int {
	return int(q.r.slotSize)
}

// Len returns the number of results waiting to be popped.
func (q *ReceiverQueue) Len() int {
	q.cachedProducer = q.r.barrier.Observe(q.r.kProducer)
	return int(q.r.capacity.Used(q.cachedProducer, q.consumer))
}

func (q *ReceiverQueue) State() RingState {
	return q.r.state()
}

// TryPop copies the oldest result out of shared memory. It returns false,
// leaving both cursors untouched, when the queue is empty.
func (q *ReceiverQueue) TryPop() (Slot, bool) {
	if q.available() == 0 {
		return nil, false
	}
	out := make(Slot, q.r.slotSize)
	q.read(q.consumer, out)
	q.release(q.consumer + 1)
	return out, true
}

// TryPopInto is TryPop without the allocation. dst must hold SlotSize bytes.
func (q *ReceiverQueue) TryPopInto(dst []byte) bool {
	if uint64(len(dst)) < q.r.slotSize {
		panic(fmt.Sprintf("cohort: destination of %d bytes is smaller than %d byte slot", len(dst), q.r.slotSize))
	}
	if q.available() == 0 {
		return false
	}
	q.read(q.consumer, dst)
	q.release(q.consumer + 1)
	return true
}

// TryPopN appends exactly n results to dst, or nothing if fewer than n are
// available. The consumer cursor is published once.
func (q *ReceiverQueue) TryPopN(dst []Slot, n int) ([]Slot, bool) {
	if n <= 0 || n > q.r.capacity.Len() {
		return dst, false
	}
	if q.available() < uint64(n) {
		q.cachedProducer = q.r.barrier.Observe(q.r.kProducer)
		if q.r.capacity.Used(q.cachedProducer, q.consumer) < uint64(n) {
			return dst, false
		}
	}
	for i := 0; i < n; i++ {
		out := make(Slot, q.r.slotSize)
		q.read(q.consumer+uint64(i), out)
		dst = append(dst, out)
	}
	q.release(q.consumer + uint64(n))
	return dst, true
}

func (q *ReceiverQueue) available() uint64 {
	if q.cachedProducer == q.consumer {
		q.cachedProducer = q.r.barrier.Observe(q.r.kProducer)
	}
	return q.r.capacity.Used(q.cachedProducer, q.consumer)
}

func (q *ReceiverQueue) read(cursor uint64, dst []byte) {
	slot := q.r.slot(cursor)
	q.r.coherence.invalidate(slot)
	copy(dst, slot)
}

func (q *ReceiverQueue) release(next uint64) {
	q.r.barrier.Publish(q.r.kConsumer, next)
	q.consumer = next
}
