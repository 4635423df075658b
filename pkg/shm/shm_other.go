//go:build !linux

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

type Mapping struct{}

func New(int64) (*Mapping, error) {
	return nil, ErrNotAvailable
}

func (m *Mapping) Bytes() []byte {
	return nil
}

func (m *Mapping) Len() int {
	return 0
}

func (m *Mapping) Zero() {}

func (m *Mapping) Close() error {
	return ErrNotAvailable
}
