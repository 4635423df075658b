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
	"sync/atomic"
)

// Stats counts queue pair traffic since construction.
type Stats struct {
	Submitted    uint64
	Backpressure uint64
	Drained      uint64
}

type counters struct {
	submitted    atomic.Uint64
	backpressure atomic.Uint64
	drained      atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Submitted:    c.submitted.Load(),
		Backpressure: c.backpressure.Load(),
		Drained:      c.drained.Load(),
	}
}
