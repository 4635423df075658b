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

package cohort

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func (s *SyscallRegistrar) Register(reg Registration) error {
	_, _, errno := unix.Syscall6(
		s.RegisterTrap,
		uintptr(reg.Sender),
		uintptr(reg.Receiver),
		uintptr(reg.CustomData),
		uintptr(reg.Backoff),
		0,
		0,
	)
	if errno != 0 {
		return fmt.Errorf("error while registering cohort %d: %w", reg.ID, errno)
	}
	return nil
}

func (s *SyscallRegistrar) Unregister() error {
	_, _, errno := unix.Syscall(s.UnregisterTrap, 0, 0, 0)
	if errno != 0 {
		return fmt.Errorf("error while unregistering cohort: %w", errno)
	}
	return nil
}
