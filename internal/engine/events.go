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

package engine

// EventType identifies an engine lifecycle event.
type EventType string

const (
	// EventStopped reports execution suspended for a generic reason (pause,
	// step completion).
	EventStopped EventType = "stopped"

	// EventBreakpointHit reports execution suspended by a breakpoint.
	EventBreakpointHit EventType = "breakpoint_hit"

	// EventExceptionThrown reports execution suspended by a thrown or
	// unhandled exception.
	EventExceptionThrown EventType = "exception_thrown"

	// EventThreadStarted reports a new debuggee thread.
	EventThreadStarted EventType = "thread_started"

	// EventThreadExited reports a debuggee thread ending.
	EventThreadExited EventType = "thread_exited"

	// EventAssemblyLoaded reports a new assembly in the debuggee.
	EventAssemblyLoaded EventType = "assembly_loaded"

	// EventBreakpointBound reports a breakpoint binding to code.
	EventBreakpointBound EventType = "breakpoint_bound"

	// EventBreakpointUnbound reports a breakpoint losing its binding.
	EventBreakpointUnbound EventType = "breakpoint_unbound"

	// EventOutput carries debuggee or tracepoint output.
	EventOutput EventType = "output"

	// EventExited reports the debuggee process ending.
	EventExited EventType = "exited"
)

// IsStopClass reports whether the event freezes execution and therefore
// invalidates every outstanding handle.
func (t EventType) IsStopClass() bool {
	switch t {
	case EventStopped, EventBreakpointHit, EventExceptionThrown:
		return true
	}
	return false
}

// OutputCategory classifies an EventOutput payload.
type OutputCategory string

const (
	OutputStdout  OutputCategory = "stdout"
	OutputStderr  OutputCategory = "stderr"
	OutputConsole OutputCategory = "console"
)

// Event is one engine lifecycle notification. Only the fields relevant to
// Type are populated.
type Event struct {
	Type EventType

	// ThreadID is the thread the event concerns, when applicable.
	ThreadID int64

	// Thread accompanies thread lifecycle events.
	Thread *Thread

	// Breakpoint accompanies hit/bound/unbound events.
	Breakpoint *Breakpoint

	// Exception accompanies EventExceptionThrown.
	Exception *ExceptionDetail

	// Assembly accompanies EventAssemblyLoaded.
	Assembly *Assembly

	// Output and Category accompany EventOutput.
	Output   string
	Category OutputCategory

	// ExitCode accompanies EventExited.
	ExitCode int
}
