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
	"context"
	"fmt"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/sirupsen/logrus"
)

// QueuePair owns one SenderQueue and one ReceiverQueue and is the only
// interface the network stack uses. Submit and DrainInto never block; the
// only waiting happens in Shutdown.
type QueuePair struct {
	id       uint8
	sender   *SenderQueue
	receiver *ReceiverQueue

	registrar    Registrar
	pollInterval time.Duration

	state        atomic.Uint32
	unregistered atomic.Bool
	stats        counters
	log          logrus.FieldLogger
}

// New validates both regions, resets their shared headers and, when a
// registrar is configured, hands them to the engine.
func New(sender RegionDescriptor, receiver RegionDescriptor, opts ...Option) (*QueuePair, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	s, err := newRing(sender, o.barrier, o.coherence)
	if err != nil {
		return nil, fmt.Errorf("error while validating sender region: %w", err)
	}
	r, err := newRing(receiver, o.barrier, o.coherence)
	if err != nil {
		return nil, fmt.Errorf("error while validating receiver region: %w", err)
	}
	if sender.SlotSize != receiver.SlotSize || sender.Capacity != receiver.Capacity {
		return nil, fmt.Errorf("%w: sender %dx%dB, receiver %dx%dB", ErrRegionMismatch,
			sender.Capacity, sender.SlotSize, receiver.Capacity, receiver.SlotSize)
	}
	if overlaps(sender, receiver) {
		return nil, fmt.Errorf("%w: sender %#x+%d, receiver %#x+%d", ErrRegionOverlap,
			sender.base(), len(sender.Mem), receiver.base(), len(receiver.Mem))
	}

	s.reset()
	r.reset()

	q := &QueuePair{
		id:           o.id,
		sender:       newSenderQueue(s),
		receiver:     newReceiverQueue(r),
		registrar:    o.registrar,
		pollInterval: o.pollInterval,
		log:          log.WithField("cohort", o.id),
	}

	if q.registrar != nil {
		err = q.registrar.Register(Registration{
			ID:         o.id,
			Sender:     unsafe.Pointer(unsafe.SliceData(sender.Mem)),
			Receiver:   unsafe.Pointer(unsafe.SliceData(receiver.Mem)),
			CustomData: unsafe.Pointer(s.kCustom),
			Backoff:    o.backoff,
		})
		if err != nil {
			return nil, fmt.Errorf("error while registering queue pair: %w", err)
		}
	}

	q.log.Debugf("queue pair ready: capacity=%d slot=%dB registered=%t", sender.Capacity, sender.SlotSize, q.registrar != nil)
	return q, nil
}

// NewFromRegion splits one mapping into a sender and a receiver ring.
func NewFromRegion(mem []byte, slotSize int, capacity int, opts ...Option) (*QueuePair, error) {
	sender, receiver, err := SplitRegion(mem, slotSize, capacity)
	if err != nil {
		return nil, fmt.Errorf("error while splitting region: %w", err)
	}
	return New(sender, receiver, opts...)
}

func (q *QueuePair) ID() uint8 {
	return q.id
}

func (q *QueuePair) Sender() *SenderQueue {
	return q.sender
}

func (q *QueuePair) Receiver() *ReceiverQueue {
	return q.receiver
}

func (q *QueuePair) Stats() Stats {
	return q.stats.snapshot()
}

func (q *QueuePair) State() State {
	return State(q.state.Load())
}

// SetCustomData publishes the word shared with the engine at registration.
func (q *QueuePair) SetCustomData(v uint64) {
	q.sender.r.barrier.Publish(q.sender.r.kCustom, v)
}

func (q *QueuePair) CustomData() uint64 {
	return q.sender.r.barrier.Observe(q.sender.r.kCustom)
}

func (q *QueuePair) active() error {
	switch q.State() {
	case StateActive:
		return nil
	case StateReleased:
		return ErrReleased
	default:
		return ErrClosed
	}
}

// Submit hands one descriptor to the engine. ErrBackpressure means the
// sender queue is full and the caller should retry on a later cycle.
func (q *QueuePair) Submit(desc []byte) error {
	if err := q.active(); err != nil {
		return err
	}
	if len(desc) > q.sender.SlotSize() {
		return fmt.Errorf("%w: %d bytes, slot is %d", ErrDescriptorSize, len(desc), q.sender.SlotSize())
	}
	if !q.sender.TryPush(desc) {
		q.stats.backpressure.Add(1)
		return ErrBackpressure
	}
	q.stats.submitted.Add(1)
	return nil
}

// SubmitBatch hands over every descriptor or none of them.
func (q *QueuePair) SubmitBatch(descs [][]byte) error {
	if err := q.active(); err != nil {
		return err
	}
	for i, desc := range descs {
		if len(desc) > q.sender.SlotSize() {
			return fmt.Errorf("%w: descriptor %d is %d bytes, slot is %d", ErrDescriptorSize, i, len(desc), q.sender.SlotSize())
		}
	}
	if !q.sender.TryPushN(descs) {
		q.stats.backpressure.Add(1)
		return ErrBackpressure
	}
	q.stats.submitted.Add(uint64(len(descs)))
	return nil
}

// DrainInto appends up to maxItems results to buf and returns the extended
// slice with the number appended. Zero is a normal result.
func (q *QueuePair) DrainInto(buf []Slot, maxItems int) ([]Slot, int) {
	if maxItems <= 0 || q.State() == StateReleased {
		return buf, 0
	}
	n := 0
	for ; n < maxItems; n++ {
		slot, ok := q.receiver.TryPop()
		if !ok {
			break
		}
		buf = append(buf, slot)
	}
	if n > 0 {
		q.stats.drained.Add(uint64(n))
	}
	return buf, n
}

// Quiesce asks the engine to stop. Results it already produced can still be
// drained. Calling Quiesce again only retries a failed Unregister.
func (q *QueuePair) Quiesce() error {
	if q.state.CompareAndSwap(uint32(StateActive), uint32(StateQuiescing)) {
		q.sender.r.barrier.Publish(q.sender.r.kControl, ControlQuiesce)
		q.log.Debug("quiesce requested")
	}

	if q.registrar == nil || q.unregistered.Load() || q.State() == StateReleased {
		return nil
	}
	if err := q.registrar.Unregister(); err != nil {
		return fmt.Errorf("error while signalling quiesce: %w", err)
	}
	q.unregistered.Store(true)
	return nil
}

// Quiesced reports, without blocking, whether the engine has acknowledged
// a quiesce request and will not write to either region again.
func (q *QueuePair) Quiesced() bool {
	switch q.State() {
	case StateActive:
		return false
	case StateQuiesced, StateReleased:
		return true
	}
	if q.sender.r.barrier.Observe(q.sender.r.kStatus) != StatusStopped {
		return false
	}
	if q.state.CompareAndSwap(uint32(StateQuiescing), uint32(StateQuiesced)) {
		q.log.Debug("engine acknowledged quiesce")
	}
	return true
}

// Release detaches the queue pair from its regions. It fails until the
// engine has acknowledged quiesce; after it succeeds the owner may unmap.
func (q *QueuePair) Release() error {
	if q.State() == StateReleased {
		return nil
	}
	if q.State() == StateActive || !q.Quiesced() {
		return fmt.Errorf("%w: state is %s", ErrNotQuiesced, q.State())
	}
	q.state.Store(uint32(StateReleased))
	stats := q.Stats()
	q.log.WithFields(logrus.Fields{
		"submitted":    stats.Submitted,
		"drained":      stats.Drained,
		"backpressure": stats.Backpressure,
	}).Debug("queue pair released")
	return nil
}

// Shutdown runs the full teardown: Quiesce, wait for the engine's
// acknowledgement, Release. If ctx ends first the pair stays quiescing and
// the regions must not be unmapped.
func (q *QueuePair) Shutdown(ctx context.Context) error {
	if err := q.Quiesce(); err != nil {
		return err
	}

	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for !q.Quiesced() {
		select {
		case <-ctx.Done():
			q.log.Warnf("engine did not acknowledge quiesce: %v", ctx.Err())
			return fmt.Errorf("error while waiting for engine to quiesce: %w", ctx.Err())
		case <-ticker.C:
		}
	}

	return q.Release()
}
