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

package shm

import (
	"errors"
	"sync"
)

var (
	ErrNotAvailable = errors.New("shared mappings are not available on this platform")
)

// Pool recycles mappings of one size so sessions reuse regions instead of
// remapping them. Callers must only Put a mapping once its queue pair has
// been released. Idle mappings are unmapped by Close.
type Pool struct {
	mu   sync.Mutex
	idle []*Mapping
	size int64
}

func NewPool(size int64) *Pool {
	return &Pool{
		size: size,
	}
}

func (p *Pool) Size() int64 {
	return p.size
}

func (p *Pool) Get() (*Mapping, error) {
	p.mu.Lock()
	if n := len(p.idle); n > 0 {
		m := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return m, nil
	}
	p.mu.Unlock()
	return New(p.size)
}

func (p *Pool) Put(m *Mapping) {
	if m == nil || m.Len() == 0 {
		return
	}
	m.Zero()
	p.mu.Lock()
	p.idle = append(p.idle, m)
	p.mu.Unlock()
}

// Idle returns the number of mappings waiting to be reused.
func (p *Pool) Idle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

func (p *Pool) Close() error {
	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	var errs []error
	for _, m := range idle {
		if err := m.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
