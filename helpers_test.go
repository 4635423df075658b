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
	"encoding/binary"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

// alignedBytes returns n zeroed bytes starting on an 8-byte boundary.
func alignedBytes(n uint64) []byte {
	words := make([]uint64, (n+7)/8)
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(words))), n)
}

func testRegion(slotSize int, capacity int) RegionDescriptor {
	return RegionDescriptor{
		Mem:      alignedBytes(RequiredLength(slotSize, capacity)),
		SlotSize: slotSize,
		Capacity: capacity,
	}
}

func newTestPair(t testing.TB, slotSize int, capacity int, opts ...Option) (*QueuePair, *Engine) {
	t.Helper()
	sender, receiver := testRegion(slotSize, capacity), testRegion(slotSize, capacity)
	qp, err := New(sender, receiver, opts...)
	require.NoError(t, err)
	engine, err := AttachEngine(sender, receiver, opts...)
	require.NoError(t, err)
	return qp, engine
}

func seq(slotSize int, v uint64) []byte {
	b := make([]byte, slotSize)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

func seqOf(b []byte) uint64 {
	return binary.LittleEndian.Uint64(b)
}

// bounce moves every descriptor the engine can see back through the
// receiver ring unchanged.
func bounce(t testing.TB, e *Engine) int {
	t.Helper()
	buf := make([]byte, e.SlotSize())
	n := 0
	for e.TryConsume(buf) {
		require.True(t, e.TryProduce(buf), "receiver ring unexpectedly full")
		n++
	}
	return n
}
