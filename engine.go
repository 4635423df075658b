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

// Engine is the hardware side of a queue pair: it consumes the sender ring
// and produces into the receiver ring. A real accelerator implements the same
// protocol in silicon; Engine exists so the protocol can be driven from
// software in simulations and tests. It must be driven by a single goroutine.
type Engine struct {
	sender   *ring
	receiver *ring

	consumer uint64
	producer uint64
}

// AttachEngine binds to regions that a QueuePair has already initialised. It
// never resets shared state.
func AttachEngine(sender RegionDescriptor, receiver RegionDescriptor, opts ...Option) (*Engine, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	s, err := newRing(sender, o.barrier, o.coherence)
	if err != nil {
		return nil, fmt.Errorf("error while attaching to sender region: %w", err)
	}
	r, err := newRing(receiver, o.barrier, o.coherence)
	if err != nil {
		return nil, fmt.Errorf("error while attaching to receiver region: %w", err)
	}

	return &Engine{
		sender:   s,
		receiver: r,
		consumer: s.barrier.Observe(s.kConsumer),
		producer: r.barrier.Observe(r.kProducer),
	}, nil
}

func (e *Engine) SlotSize() int {
	return int(e.sender.slotSize)
}

// TryConsume copies the oldest descriptor into dst and hands its slot back
// to software. dst must hold a full slot.
func (e *Engine) TryConsume(dst []byte) bool {
	if uint64(len(dst)) < e.sender.slotSize {
		panic(fmt.Sprintf("cohort: destination of %d bytes is smaller than %d byte slot", len(dst), e.sender.slotSize))
	}
	producer := e.sender.barrier.Observe(e.sender.kProducer)
	if e.sender.capacity.Empty(producer, e.consumer) {
		return false
	}
	slot := e.sender.slot(e.consumer)
	e.sender.coherence.invalidate(slot)
	copy(dst, slot)
	e.consumer++
	e.sender.barrier.Publish(e.sender.kConsumer, e.consumer)
	return true
}

// TryProduce writes result into the next receiver slot and publishes it.
// result must not be longer than SlotSize.
func (e *Engine) TryProduce(result []byte) bool {
	if uint64(len(result)) > e.receiver.slotSize {
		panic(fmt.Sprintf("cohort: result of %d bytes exceeds %d byte slot", len(result), e.receiver.slotSize))
	}
	consumer := e.receiver.barrier.Observe(e.receiver.kConsumer)
	if e.receiver.capacity.Full(e.producer, consumer) {
		return false
	}
	slot := e.receiver.slot(e.producer)
	n := copy(slot, result)
	clear(slot[n:])
	e.receiver.coherence.flush(slot)
	e.producer++
	e.receiver.barrier.Publish(e.receiver.kProducer, e.producer)
	return true
}

func (e *Engine) QuiesceRequested() bool {
	return e.sender.barrier.Observe(e.sender.kControl) == ControlQuiesce
}

// AckQuiesce promises software that neither region will be touched again.
func (e *Engine) AckQuiesce() {
	e.sender.barrier.Publish(e.sender.kStatus, StatusStopped)
}

func (e *Engine) CustomData() uint64 {
	return e.sender.barrier.Observe(e.sender.kCustom)
}

func (e *Engine) SenderState() RingState {
	return e.sender.state()
}

func (e *Engine) ReceiverState() RingState {
	return e.receiver.state()
}
