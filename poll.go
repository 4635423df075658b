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

// Poller plugs a QueuePair into a cooperative poll loop. Poll is meant to be
// called once per loop cycle; it drains what the engine has produced into a
// session inbox and wakes the operation waiting on it. Poller and Pending
// belong to the loop goroutine; only Pending.Done may be watched elsewhere.
type Poller struct {
	qp      *QueuePair
	batch   int
	waker   func()
	inbox   []Slot
	pending *Pending
}

type PollerOption func(*Poller)

// WithBatchSize bounds how many results a single Poll drains.
func WithBatchSize(n int) PollerOption {
	return func(p *Poller) {
		if n > 0 {
			p.batch = n
		}
	}
}

// WithWaker is called whenever a pending operation becomes ready.
func WithWaker(fn func()) PollerOption {
	return func(p *Poller) {
		p.waker = fn
	}
}

func NewPoller(qp *QueuePair, opts ...PollerOption) *Poller {
	p := &Poller{
		qp:    qp,
		batch: DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Poll drains the receiver queue once. When results were found and an
// operation is pending, it is marked ready. It returns the number drained.
func (p *Poller) Poll() int {
	var n int
	p.inbox, n = p.qp.DrainInto(p.inbox, p.batch)
	if n > 0 {
		p.wake()
	}
	return n
}

// Await returns the operation waiting on this session's results. There is at
// most one; calling Await again before its results are taken returns it.
func (p *Poller) Await() *Pending {
	if p.pending == nil {
		p.pending = &Pending{
			poller: p,
			done:   make(chan struct{}),
		}
	}
	if len(p.inbox) > 0 {
		p.wake()
	}
	return p.pending
}

// Buffered returns the number of drained results not yet taken.
func (p *Poller) Buffered() int {
	return len(p.inbox)
}

func (p *Poller) wake() {
	pd := p.pending
	if pd == nil || pd.ready {
		return
	}
	pd.ready = true
	close(pd.done)
	if p.waker != nil {
		p.waker()
	}
}

// Pending is an operation suspended until its session has results.
type Pending struct {
	poller *Poller
	done   chan struct{}
	ready  bool
	taken  bool
}

func (pd *Pending) Ready() bool {
	return pd.ready
}

// Done is closed when the operation becomes ready.
func (pd *Pending) Done() <-chan struct{} {
	return pd.done
}

// Results takes every result buffered for the session. It returns nil until
// the operation is ready and after the results have been taken once.
func (pd *Pending) Results() []Slot {
	if !pd.ready || pd.taken {
		return nil
	}
	pd.taken = true
	out := pd.poller.inbox
	pd.poller.inbox = nil
	if pd.poller.pending == pd {
		pd.poller.pending = nil
	}
	return out
}
