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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCapacity(t *testing.T) {
	for _, n := range []int{0, -1, -4, 3, 5, 6, 12, 1000, 1023} {
		_, err := NewCapacity(n)
		assert.ErrorIs(t, err, ErrCapacity, "capacity %d", n)
	}
	for _, n := range []int{1, 2, 4, 8, 512, 1024, 1 << 20} {
		c, err := NewCapacity(n)
		require.NoError(t, err, "capacity %d", n)
		assert.Equal(t, n, c.Len())
		assert.Equal(t, uint64(n-1), c.Mask())
	}
}

func TestCapacityZeroValue(t *testing.T) {
	var c Capacity
	assert.Equal(t, 0, c.Len())
}

func TestCapacityArithmetic(t *testing.T) {
	c, err := NewCapacity(8)
	require.NoError(t, err)

	assert.Equal(t, uint64(0), c.Offset(0))
	assert.Equal(t, uint64(7), c.Offset(7))
	assert.Equal(t, uint64(0), c.Offset(8))
	assert.Equal(t, uint64(3), c.Offset(8*1000+3))

	assert.True(t, c.Empty(5, 5))
	assert.False(t, c.Full(5, 5))
	assert.Equal(t, uint64(8), c.Free(5, 5))

	assert.True(t, c.Full(13, 5))
	assert.Equal(t, uint64(8), c.Used(13, 5))
	assert.Equal(t, uint64(0), c.Free(13, 5))
	assert.True(t, c.Valid(13, 5))
	assert.False(t, c.Valid(14, 5))
	assert.False(t, c.Valid(4, 5))
}

func TestCapacityCursorOverflow(t *testing.T) {
	c, err := NewCapacity(4)
	require.NoError(t, err)

	consumer := uint64(math.MaxUint64 - 1)
	producer := consumer + 3 // wraps past zero

	assert.Equal(t, uint64(3), c.Used(producer, consumer))
	assert.Equal(t, uint64(1), c.Free(producer, consumer))
	assert.True(t, c.Valid(producer, consumer))
	assert.Equal(t, uint64(2), c.Offset(consumer))
	assert.Equal(t, uint64(1), c.Offset(producer))
}
