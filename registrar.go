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
	"unsafe"
)

// Registration is what a driver needs to start the engine on a queue pair.
type Registration struct {
	ID         uint8
	Sender     unsafe.Pointer
	Receiver   unsafe.Pointer
	CustomData unsafe.Pointer
	Backoff    uint64
}

// Registrar is the driver side of the queue pair lifecycle. Register runs
// once during construction; Unregister is the quiesce signal and runs once
// from Quiesce. Neither may release the shared mapping.
type Registrar interface {
	Register(Registration) error
	Unregister() error
}

const (
	// DefaultRegisterTrap and DefaultUnregisterTrap are the syscall numbers
	// the engine's kernel module installs.
	DefaultRegisterTrap   = 258
	DefaultUnregisterTrap = 257
)

// SyscallRegistrar registers queue pairs through raw syscalls.
type SyscallRegistrar struct {
	RegisterTrap   uintptr
	UnregisterTrap uintptr
}

func NewSyscallRegistrar() *SyscallRegistrar {
	return &SyscallRegistrar{
		RegisterTrap:   DefaultRegisterTrap,
		UnregisterTrap: DefaultUnregisterTrap,
	}
}
