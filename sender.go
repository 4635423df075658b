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

// SenderQueue is the software-produced, engine-consumed half of a queue pair.
// It must be driven by a single goroutine.
type SenderQueue struct {
	r *ring

	// producer mirrors *r.kProducer; only this side writes it.
	producer uint64
	// cachedConsumer is the last observed engine cursor. It only moves
	// forward, so a stale value can report full early but never late.
	cachedConsumer uint64
}

func newSenderQueue(r *ring) *SenderQueue {
	return &SenderQueue{
		r:              r,
		producer:       r.barrier.Observe(r.kProducer),
		cachedConsumer: r.barrier.Observe(r.kConsumer),
	}
}

func (q *SenderQueue) Capacity() int {
	return q.r.capacity.Len()
}

func (q *SenderQueue) SlotSize() int {
	return int(q.r.slotSize)
}

// Free returns the number of slots the engine has handed back.
func (q *SenderQueue) Free() int {
	q.cachedConsumer = q.r.barrier.Observe(q.r.kConsumer)
	return int(q.r.capacity.Free(q.producer, q.cachedConsumer))
}

func (q *SenderQueue) State() RingState {
	return q.r.state()
}

// TryPush copies desc into the next slot and publishes it to the engine. It
// returns false, leaving both cursors untouched, when the queue is full.
// desc must not be longer than SlotSize.
func (q *SenderQueue) TryPush(desc []byte) bool {
	q.checkSize(desc)
	if !q.reserve(1) {
		return false
	}
	q.write(q.producer, desc)
	q.publish(q.producer + 1)
	return true
}

// TryPushN pushes all of descs or none of them. The producer cursor is
// published once, after every slot is written.
func (q *SenderQueue) TryPushN(descs [][]byte) bool {
	if len(descs) == 0 {
		return true
	}
	for _, desc := range descs {
		q.checkSize(desc)
	}
	if !q.reserve(uint64(len(descs))) {
		return false
	}
	for i, desc := range descs {
		q.write(q.producer+uint64(i), desc)
	}
	q.publish(q.producer + uint64(len(descs)))
	return true
}

func (q *SenderQueue) checkSize(desc []byte) {
	if uint64(len(desc)) > q.r.slotSize {
		panic(fmt.Sprintf("cohort: descriptor of %d bytes exceeds %d byte slot", len(desc), q.r.slotSize))
	}
}

func (q *SenderQueue) reserve(n uint64) bool {
	limit := uint64(q.r.capacity.Len())
	if n > limit {
		return false
	}
	if q.r.capacity.Used(q.producer, q.cachedConsumer)+n <= limit {
		return true
	}
	q.cachedConsumer = q.r.barrier.Observe(q.r.kConsumer)
	return q.r.capacity.Used(q.producer, q.cachedConsumer)+n <= limit
}

func (q *SenderQueue) write(cursor uint64, desc []byte) {
	slot := q.r.slot(cursor)
	n := copy(slot, desc)
	clear(slot[n:])
	q.r.coherence.flush(slot)
}

func (q *SenderQueue) publish(next uint64) {
	q.r.barrier.Publish(q.r.kProducer, next)
	q.producer = next
}
