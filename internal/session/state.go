// Copyright 2026 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package session

// State is the session execution state. Transitions are driven by client
// requests (attach, resume-class, disconnect) and engine events (stop-class,
// exit).
type State int

const (
	// StateUnattached: no engine connection yet.
	StateUnattached State = iota

	// StateAttaching: attach accepted, engine connecting.
	StateAttaching

	// StateRunning: debuggee executing.
	StateRunning

	// StateStopped: debuggee suspended by a stop-class event.
	StateStopped

	// StateTerminated: debuggee exited.
	StateTerminated

	// StateDisconnected: session torn down by a disconnect request or a
	// fatal dispatcher error.
	StateDisconnected
)

// String implements fmt.Stringer for logs.
func (s State) String() string {
	switch s {
	case StateUnattached:
		return "unattached"
	case StateAttaching:
		return "attaching"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateTerminated:
		return "terminated"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// resumable reports whether a resume-class request may touch the engine:
// not running and not exited. Anything else is a silent no-op success, so a
// double-clicked continue never errors.
func (s State) resumable() bool { return s == StateStopped }

// pausable reports whether a pause request may touch the engine.
func (s State) pausable() bool { return s == StateRunning }
