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
	"math"
	"sync/atomic"
	"unsafe"
)

// RegionDescriptor describes one already-mapped shared ring. Mem covers the
// base address and length of the mapping; the queue pair borrows it and
// never unmaps it.
type RegionDescriptor struct {
	Mem      []byte
	SlotSize int
	Capacity int
}

// RegionFromPointer wraps a raw mapping handed over by a driver.
func RegionFromPointer(base unsafe.Pointer, length int, slotSize int, capacity int) (RegionDescriptor, error) {
	if base == nil || length <= 0 {
		return RegionDescriptor{}, fmt.Errorf("%w: base %p, length %d", ErrUnmappedRegion, base, length)
	}
	return RegionDescriptor{
		Mem:      unsafe.Slice((*byte)(base), length),
		SlotSize: slotSize,
		Capacity: capacity,
	}, nil
}

// SplitRegion carves a sender and a receiver region out of a single mapping.
// The receiver starts on the first HeaderAlign boundary after the sender.
func SplitRegion(mem []byte, slotSize int, capacity int) (sender RegionDescriptor, receiver RegionDescriptor, err error) {
	if len(mem) == 0 {
		return sender, receiver, fmt.Errorf("%w: zero-length mapping", ErrUnmappedRegion)
	}
	if _, err = checkGeometry(slotSize, capacity); err != nil {
		return sender, receiver, err
	}

	need := RequiredLength(slotSize, capacity)
	if need > (math.MaxUint64-HeaderAlign)/2 {
		return sender, receiver, fmt.Errorf("%w: two rings of %d bytes are not addressable", ErrRegionTooSmall, need)
	}
	start := (need + HeaderAlign - 1) &^ (HeaderAlign - 1)
	if uint64(len(mem)) < start+need {
		return sender, receiver, fmt.Errorf("%w: need %d bytes for two rings, have %d", ErrRegionTooSmall, start+need, len(mem))
	}

	sender = RegionDescriptor{Mem: mem[:need:need], SlotSize: slotSize, Capacity: capacity}
	receiver = RegionDescriptor{Mem: mem[start : start+need : start+need], SlotSize: slotSize, Capacity: capacity}
	return sender, receiver, nil
}

func (d RegionDescriptor) base() uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(d.Mem)))
}

func (d RegionDescriptor) validate() (Capacity, error) {
	if len(d.Mem) == 0 || unsafe.SliceData(d.Mem) == nil {
		return Capacity{}, fmt.Errorf("%w: nil or zero-length memory", ErrUnmappedRegion)
	}
	capacity, err := checkGeometry(d.SlotSize, d.Capacity)
	if err != nil {
		return Capacity{}, err
	}
	if d.base()%8 != 0 {
		return Capacity{}, fmt.Errorf("%w: base %#x", ErrMisaligned, d.base())
	}
	if need := RequiredLength(d.SlotSize, d.Capacity); uint64(len(d.Mem)) < need {
		return Capacity{}, fmt.Errorf("%w: need %d bytes, have %d", ErrRegionTooSmall, need, len(d.Mem))
	}
	return capacity, nil
}

// checkGeometry rejects slot sizes and capacities that do not fit the 32-bit
// meta words, or whose slot array length is not representable.
func checkGeometry(slotSize int, capacity int) (Capacity, error) {
	if slotSize <= 0 || uint64(slotSize) > math.MaxUint32 {
		return Capacity{}, fmt.Errorf("%w: got %d", ErrSlotSize, slotSize)
	}
	c, err := NewCapacity(capacity)
	if err != nil {
		return Capacity{}, err
	}
	if uint64(capacity) > math.MaxUint32 {
		return Capacity{}, fmt.Errorf("%w: %d does not fit the capacity word", ErrCapacity, capacity)
	}
	if uint64(slotSize) > (math.MaxUint64-HeaderSize)/uint64(capacity) {
		return Capacity{}, fmt.Errorf("%w: %d slots of %d bytes are not addressable", ErrRegionTooSmall, capacity, slotSize)
	}
	return c, nil
}

func overlaps(a RegionDescriptor, b RegionDescriptor) bool {
	aStart, bStart := a.base(), b.base()
	return aStart < bStart+uintptr(len(b.Mem)) && bStart < aStart+uintptr(len(a.Mem))
}

// ring is a view over one region. Only the words owned by the local side are
// ever written through it.
type ring struct {
	mem       []byte
	kProducer *uint64
	kConsumer *uint64
	kControl  *uint64
	kStatus   *uint64
	kCustom   *uint64
	kSlotSize *uint32
	kCapacity *uint32
	slots     []byte
	slotSize  uint64
	capacity  Capacity
	barrier   Barrier
	coherence Coherence
}

func newRing(d RegionDescriptor, barrier Barrier, coherence Coherence) (*ring, error) {
	capacity, err := d.validate()
	if err != nil {
		return nil, err
	}
	base := unsafe.Pointer(unsafe.SliceData(d.Mem))
	slotBytes := uint64(d.SlotSize) * uint64(capacity.Len())
	return &ring{
		mem:       d.Mem,
		kProducer: (*uint64)(unsafe.Add(base, ProducerOffset)),
		kConsumer: (*uint64)(unsafe.Add(base, ConsumerOffset)),
		kControl:  (*uint64)(unsafe.Add(base, ControlOffset)),
		kStatus:   (*uint64)(unsafe.Add(base, StatusOffset)),
		kCustom:   (*uint64)(unsafe.Add(base, CustomDataOffset)),
		kSlotSize: (*uint32)(unsafe.Add(base, SlotSizeOffset)),
		kCapacity: (*uint32)(unsafe.Add(base, CapacityOffset)),
		slots:     d.Mem[SlotsOffset : SlotsOffset+slotBytes : SlotsOffset+slotBytes],
		slotSize:  uint64(d.SlotSize),
		capacity:  capacity,
		barrier:   barrier,
		coherence: coherence,
	}, nil
}

// reset zeroes the cursors and control words and publishes the meta block.
// It must only run before the engine is told about the region.
func (r *ring) reset() {
	r.barrier.Publish(r.kProducer, 0)
	r.barrier.Publish(r.kConsumer, 0)
	r.barrier.Publish(r.kControl, ControlRun)
	r.barrier.Publish(r.kStatus, StatusRunning)
	r.barrier.Publish(r.kCustom, 0)
	atomic.StoreUint32(r.kSlotSize, uint32(r.slotSize))
	atomic.StoreUint32(r.kCapacity, uint32(r.capacity.Len()))
}

func (r *ring) slot(cursor uint64) []byte {
	off := r.capacity.Offset(cursor) * r.slotSize
	return r.slots[off : off+r.slotSize : off+r.slotSize]
}

func (r *ring) state() RingState {
	producer := r.barrier.Observe(r.kProducer)
	consumer := r.barrier.Observe(r.kConsumer)
	return RingState{
		Capacity: uint64(r.capacity.Len()),
		SlotSize: r.slotSize,
		Producer: producer,
		Consumer: consumer,
		Used:     r.capacity.Used(producer, consumer),
	}
}

// RingState is a snapshot of one ring's cursors, for diagnostics and tests.
type RingState struct {
	Capacity uint64
	SlotSize uint64
	Producer uint64
	Consumer uint64
	Used     uint64
}

// Valid reports whether the snapshot satisfies 0 <= Producer-Consumer <= Capacity.
func (s RingState) Valid() bool {
	return s.Producer-s.Consumer <= s.Capacity
}

func (s RingState) String() string {
	return fmt.Sprintf("producer=%d consumer=%d used=%d/%d slot=%dB", s.Producer, s.Consumer, s.Used, s.Capacity, s.SlotSize)
}
