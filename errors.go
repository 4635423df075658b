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
	"errors"
	"fmt"
)

var (
	// ErrWouldBlock is the root of every steady-state "try again later"
	// condition. It is never a failure.
	ErrWouldBlock = errors.New("operation would block")

	// ErrBackpressure is returned by Submit when the sender queue is full.
	ErrBackpressure = fmt.Errorf("sender queue full: %w", ErrWouldBlock)

	ErrCapacity       = errors.New("capacity must be a non-zero power of two")
	ErrSlotSize       = errors.New("slot size must be positive and fit in 32 bits")
	ErrUnmappedRegion = errors.New("region is not mapped")
	ErrRegionTooSmall = errors.New("region is too small")
	ErrMisaligned     = errors.New("region base is not 8-byte aligned")
	ErrRegionMismatch = errors.New("sender and receiver regions are sized inconsistently")
	ErrRegionOverlap  = errors.New("sender and receiver regions overlap")
	ErrDescriptorSize = errors.New("descriptor does not fit in a slot")

	ErrClosed      = errors.New("queue pair is quiescing or released")
	ErrNotQuiesced = errors.New("engine has not acknowledged quiesce")
	ErrReleased    = fmt.Errorf("queue pair has been released: %w", ErrClosed)

	ErrNotAvailable = errors.New("registrar is not available on this platform")
)

// IsWouldBlock reports whether err only means the caller should retry later.
func IsWouldBlock(err error) bool {
	return errors.Is(err, ErrWouldBlock)
}
