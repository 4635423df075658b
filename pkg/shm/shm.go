//go:build linux

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
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

var (
	pageSize = int64(syscall.Getpagesize())
)

// Mapping is a MAP_SHARED region backed by an anonymous memfd, suitable for
// handing to an engine or to another process.
type Mapping struct {
	mem []byte
}

// New maps size bytes, rounded up to a whole number of pages.
func New(size int64) (*Mapping, error) {
	if size <= 0 {
		return nil, fmt.Errorf("size must be positive, got %d", size)
	}
	size = (size + pageSize - 1) / pageSize * pageSize

	fd, err := unix.MemfdCreate("cohort", unix.MFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("error while creating memfd: %w", err)
	}

	err = unix.Ftruncate(fd, size)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("error while truncating memfd: %w", err)
	}

	mem, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("error while mmaping memfd: %w", err)
	}

	err = unix.Close(fd)
	if err != nil {
		_ = unix.Munmap(mem)
		return nil, fmt.Errorf("error while closing memfd: %w", err)
	}

	return &Mapping{mem: mem}, nil
}

func (m *Mapping) Bytes() []byte {
	return m.mem
}

func (m *Mapping) Len() int {
	return len(m.mem)
}

// Zero clears the whole mapping.
func (m *Mapping) Zero() {
	clear(m.mem)
}

func (m *Mapping) Close() error {
	if m.mem == nil {
		return nil
	}
	err := unix.Munmap(m.mem)
	m.mem = nil
	if err != nil {
		return fmt.Errorf("error while unmapping: %w", err)
	}
	return nil
}
