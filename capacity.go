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

// Capacity is a validated power-of-two slot count. The only way to obtain a
// usable Capacity is NewCapacity, so masked offsets can never alias two live
// logical slots.
type Capacity struct {
	n    uint64
	mask uint64
}

// NewCapacity returns a Capacity of n slots, or ErrCapacity if n is zero,
// negative or not a power of two.
func NewCapacity(n int) (Capacity, error) {
	if n <= 0 || n&(n-1) != 0 {
		return Capacity{}, fmt.Errorf("%w: got %d", ErrCapacity, n)
	}
	return Capacity{
		n:    uint64(n),
		mask: uint64(n - 1),
	}, nil
}

// Len returns the number of slots. It is zero only for the zero Capacity.
func (c Capacity) Len() int {
	return int(c.n)
}

func (c Capacity) Mask() uint64 {
	return c.mask
}

// Offset maps a free-running cursor to its physical slot index.
func (c Capacity) Offset(cursor uint64) uint64 {
	return cursor & c.mask
}

// Used returns the number of occupied slots. Unsigned subtraction keeps the
// result correct when the cursors wrap the uint64 range.
func (c Capacity) Used(producer, consumer uint64) uint64 {
	return producer - consumer
}

func (c Capacity) Free(producer, consumer uint64) uint64 {
	return c.n - (producer - consumer)
}

func (c Capacity) Empty(producer, consumer uint64) bool {
	return producer == consumer
}

func (c Capacity) Full(producer, consumer uint64) bool {
	return producer-consumer == c.n
}

// Valid reports whether the cursor pair satisfies 0 <= producer-consumer <= n.
func (c Capacity) Valid(producer, consumer uint64) bool {
	return producer-consumer <= c.n
}
