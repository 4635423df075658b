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

// State is the lifecycle stage of a QueuePair. It only moves forward.
type State uint32

const (
	StateActive State = iota
	StateQuiescing
	StateQuiesced
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateQuiescing:
		return "quiescing"
	case StateQuiesced:
		return "quiesced"
	case StateReleased:
		return "released"
	default:
		return "unknown"
	}
}
