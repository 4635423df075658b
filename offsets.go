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
	"math"
	"math/bits"
)

// Every region starts with a fixed header. Cursors written by different
// agents sit on separate 128-byte lines so the engine never shares a line
// between its own cursor and software's.
const (
	HeaderAlign uint64 = 128

	ProducerOffset   uint64 = 0
	ConsumerOffset   uint64 = 128
	ControlOffset    uint64 = 256
	StatusOffset     uint64 = 264
	CustomDataOffset uint64 = 272
	SlotSizeOffset   uint64 = 280
	CapacityOffset   uint64 = 284
	SlotsOffset      uint64 = 384

	HeaderSize = SlotsOffset
)

// Control word values, written by software into the sender region.
const (
	ControlRun     uint64 = 0
	ControlQuiesce uint64 = 1
)

// Status word values, written by the engine into the sender region. The
// engine publishes StatusStopped once it will not touch either region again.
const (
	StatusRunning uint64 = 0
	StatusStopped uint64 = 0x5354_4f50_5045_4421 // "STOPPED!"
)

// RequiredLength returns the minimum region length for capacity slots of
// slotSize bytes. It saturates at math.MaxUint64 when the length is not
// representable, which no region can satisfy.
func RequiredLength(slotSize int, capacity int) uint64 {
	if slotSize < 0 || capacity < 0 {
		return math.MaxUint64
	}
	hi, slots := bits.Mul64(uint64(slotSize), uint64(capacity))
	if hi != 0 {
		return math.MaxUint64
	}
	need, carry := bits.Add64(HeaderSize, slots, 0)
	if carry != 0 {
		return math.MaxUint64
	}
	return need
}
