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
	"errors"
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRegistrar struct {
	mock.Mock
}

func (m *mockRegistrar) Register(r Registration) error {
	return m.Called(r).Error(0)
}

func (m *mockRegistrar) Unregister() error {
	return m.Called().Error(0)
}

func TestSubmitErrors(t *testing.T) {
	qp, _ := newTestPair(t, 8, 2)

	err := qp.Submit(make([]byte, 9))
	assert.ErrorIs(t, err, ErrDescriptorSize)
	assert.False(t, IsWouldBlock(err))

	require.NoError(t, qp.Submit(seq(8, 0)))
	require.NoError(t, qp.Submit(seq(8, 1)))

	err = qp.Submit(seq(8, 2))
	assert.ErrorIs(t, err, ErrBackpressure)
	assert.True(t, IsWouldBlock(err))

	err = qp.SubmitBatch([][]byte{seq(8, 2)})
	assert.True(t, IsWouldBlock(err))

	err = qp.SubmitBatch([][]byte{seq(8, 2), make([]byte, 9)})
	assert.ErrorIs(t, err, ErrDescriptorSize)

	assert.Equal(t, Stats{Submitted: 2, Backpressure: 2}, qp.Stats())
}

func TestSubmitBatch(t *testing.T) {
	qp, engine := newTestPair(t, 8, 4)

	require.NoError(t, qp.SubmitBatch([][]byte{seq(8, 0), seq(8, 1), seq(8, 2)}))
	assert.ErrorIs(t, qp.SubmitBatch([][]byte{seq(8, 3), seq(8, 4)}), ErrBackpressure)
	assert.Equal(t, 3, bounce(t, engine))

	out, n := qp.DrainInto(nil, 8)
	require.Equal(t, 3, n)
	for i, slot := range out {
		assert.Equal(t, uint64(i), seqOf(slot))
	}
}

func TestDrainIntoZero(t *testing.T) {
	qp, engine := newTestPair(t, 8, 4)
	require.NoError(t, qp.Submit(seq(8, 1)))
	bounce(t, engine)

	buf := []Slot{Slot("keep")}
	before := qp.Receiver().State()
	for _, limit := range []int{0, -1} {
		out, n := qp.DrainInto(buf, limit)
		assert.Zero(t, n)
		assert.Equal(t, buf, out)
		assert.Equal(t, before, qp.Receiver().State())
	}

	out, n := qp.DrainInto(buf, 1)
	require.Equal(t, 1, n)
	require.Len(t, out, 2)
	assert.Equal(t, Slot("keep"), out[0])
	assert.Equal(t, uint64(1), seqOf(out[1]))
}

func TestTeardown(t *testing.T) {
	qp, engine := newTestPair(t, 8, 4)
	require.NoError(t, qp.Submit(seq(8, 1)))
	bounce(t, engine)

	assert.ErrorIs(t, qp.Release(), ErrNotQuiesced)
	assert.False(t, engine.QuiesceRequested())

	require.NoError(t, qp.Quiesce())
	require.NoError(t, qp.Quiesce())
	assert.Equal(t, StateQuiescing, qp.State())
	assert.True(t, engine.QuiesceRequested())
	assert.ErrorIs(t, qp.Submit(seq(8, 2)), ErrClosed)
	assert.ErrorIs(t, qp.SubmitBatch([][]byte{seq(8, 2)}), ErrClosed)

	assert.False(t, qp.Quiesced())
	err := qp.Release()
	assert.ErrorIs(t, err, ErrNotQuiesced)
	assert.Contains(t, err.Error(), "quiescing")

	// Results produced before the acknowledgement can still be drained.
	out, n := qp.DrainInto(nil, 4)
	require.Equal(t, 1, n)
	assert.Equal(t, uint64(1), seqOf(out[0]))

	engine.AckQuiesce()
	assert.True(t, qp.Quiesced())
	assert.Equal(t, StateQuiesced, qp.State())

	require.NoError(t, qp.Release())
	require.NoError(t, qp.Release())
	assert.Equal(t, StateReleased, qp.State())

	err = qp.Submit(seq(8, 3))
	assert.ErrorIs(t, err, ErrReleased)
	assert.ErrorIs(t, err, ErrClosed)
	_, n = qp.DrainInto(nil, 4)
	assert.Zero(t, n)
}

func TestShutdown(t *testing.T) {
	qp, engine := newTestPair(t, 8, 4, WithPollInterval(time.Millisecond))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for !engine.QuiesceRequested() {
			time.Sleep(time.Millisecond)
		}
		engine.AckQuiesce()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, qp.Shutdown(ctx))
	<-done
	assert.Equal(t, StateReleased, qp.State())
}

func TestShutdownTimeout(t *testing.T) {
	qp, _ := newTestPair(t, 8, 4, WithPollInterval(time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := qp.Shutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateQuiescing, qp.State())
	assert.ErrorIs(t, qp.Release(), ErrNotQuiesced)
}

func TestRegistrar(t *testing.T) {
	sender, receiver := testRegion(8, 4), testRegion(8, 4)
	reg := new(mockRegistrar)
	reg.On("Register", mock.MatchedBy(func(r Registration) bool {
		return r.ID == 7 &&
			r.Backoff == 500 &&
			r.Sender == unsafe.Pointer(&sender.Mem[0]) &&
			r.Receiver == unsafe.Pointer(&receiver.Mem[0]) &&
			r.CustomData == unsafe.Pointer(&sender.Mem[CustomDataOffset])
	})).Return(nil).Once()
	reg.On("Unregister").Return(nil).Once()

	qp, err := New(sender, receiver, WithID(7), WithRegistrar(reg), WithBackoff(500))
	require.NoError(t, err)
	assert.Equal(t, uint8(7), qp.ID())

	require.NoError(t, qp.Quiesce())
	require.NoError(t, qp.Quiesce())
	reg.AssertExpectations(t)
}

func TestRegistrarErrors(t *testing.T) {
	failure := errors.New("no such device")

	reg := new(mockRegistrar)
	reg.On("Register", mock.Anything).Return(failure).Once()
	_, err := New(testRegion(8, 4), testRegion(8, 4), WithRegistrar(reg))
	assert.ErrorIs(t, err, failure)
	reg.AssertExpectations(t)

	reg = new(mockRegistrar)
	reg.On("Register", mock.Anything).Return(nil).Once()
	reg.On("Unregister").Return(failure).Once()
	qp, err := New(testRegion(8, 4), testRegion(8, 4), WithRegistrar(reg))
	require.NoError(t, err)
	assert.ErrorIs(t, qp.Quiesce(), failure)
	assert.Equal(t, StateQuiescing, qp.State())
	reg.AssertExpectations(t)

	// A failed Unregister is retried until it succeeds, then never again.
	reg.On("Unregister").Return(nil).Once()
	require.NoError(t, qp.Quiesce())
	require.NoError(t, qp.Quiesce())
	assert.Equal(t, StateQuiescing, qp.State())
	reg.AssertExpectations(t)
	reg.AssertNumberOfCalls(t, "Unregister", 2)
}

func TestShutdownRetriesUnregister(t *testing.T) {
	sender, receiver := testRegion(8, 4), testRegion(8, 4)
	reg := new(mockRegistrar)
	reg.On("Register", mock.Anything).Return(nil).Once()
	reg.On("Unregister").Return(errors.New("busy")).Once()
	reg.On("Unregister").Return(nil).Once()

	qp, err := New(sender, receiver, WithRegistrar(reg), WithPollInterval(time.Millisecond))
	require.NoError(t, err)
	engine, err := AttachEngine(sender, receiver)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.Error(t, qp.Shutdown(ctx))
	assert.True(t, engine.QuiesceRequested())

	engine.AckQuiesce()
	require.NoError(t, qp.Shutdown(ctx))
	assert.Equal(t, StateReleased, qp.State())
	reg.AssertExpectations(t)
}

func TestQuiescedRequiresRequest(t *testing.T) {
	qp, engine := newTestPair(t, 8, 4)

	engine.AckQuiesce()
	assert.False(t, qp.Quiesced())
	assert.Equal(t, StateActive, qp.State())
	assert.ErrorIs(t, qp.Release(), ErrNotQuiesced)
	require.NoError(t, qp.Submit(seq(8, 1)))

	require.NoError(t, qp.Quiesce())
	assert.True(t, qp.Quiesced())
	require.NoError(t, qp.Release())
}

func TestCustomData(t *testing.T) {
	qp, engine := newTestPair(t, 8, 4)
	assert.Zero(t, engine.CustomData())

	qp.SetCustomData(0xdead_beef)
	assert.Equal(t, uint64(0xdead_beef), qp.CustomData())
	assert.Equal(t, uint64(0xdead_beef), engine.CustomData())
}

func TestNewFromRegion(t *testing.T) {
	mem := alignedBytes(2*RequiredLength(8, 4) + HeaderAlign)
	qp, err := NewFromRegion(mem, 8, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, qp.Sender().Capacity())
	assert.Equal(t, 8, qp.Receiver().SlotSize())

	_, err = NewFromRegion(mem[:RequiredLength(8, 4)], 8, 4)
	assert.ErrorIs(t, err, ErrRegionTooSmall)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "active", StateActive.String())
	assert.Equal(t, "quiescing", StateQuiescing.String())
	assert.Equal(t, "quiesced", StateQuiesced.String())
	assert.Equal(t, "released", StateReleased.String())
	assert.Equal(t, "unknown", State(42).String())
}
