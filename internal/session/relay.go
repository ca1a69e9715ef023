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

import (
	"log/slog"

	"github.com/google/go-dap"

	"github.com/tombee/monodap/internal/engine"
)

// runRelay consumes engine events until the engine closes its channel,
// republishing them as protocol events. Stop-class events invalidate the
// handle registry before anything reaches the client.
func (s *Session) runRelay() {
	defer close(s.relayDone)

	for ev := range s.engine.Events() {
		s.handleEngineEvent(ev)
	}
}

func (s *Session) handleEngineEvent(ev engine.Event) {
	s.relayLog.Debug("engine event", slog.String("event", string(ev.Type)))

	if ev.Type.IsStopClass() {
		// Handles issued before this stop are dead from here on; reset
		// before the client learns it may ask for fresh ones.
		s.registry.Reset()

		s.mu.Lock()
		s.state = StateStopped
		s.stoppedThread = ev.ThreadID
		s.topFrame = nil
		if ev.Type == engine.EventExceptionThrown {
			s.exception = ev.Exception
		} else {
			s.exception = nil
		}
		s.mu.Unlock()
	}

	switch ev.Type {
	case engine.EventStopped:
		s.sendStopped("pause", ev.ThreadID, "")

	case engine.EventBreakpointHit:
		s.sendStopped("breakpoint", ev.ThreadID, "")

	case engine.EventExceptionThrown:
		text := ""
		if ev.Exception != nil {
			text = ev.Exception.TypeName
		}
		s.sendStopped("exception", ev.ThreadID, text)

	case engine.EventThreadStarted:
		s.sendThread("started", ev.ThreadID)

	case engine.EventThreadExited:
		s.sendThread("exited", ev.ThreadID)

	case engine.EventAssemblyLoaded:
		if ev.Assembly == nil {
			return
		}
		cfg := s.config()
		symbolStatus := "Symbols not found."
		if ev.Assembly.HasSymbols {
			symbolStatus = "Symbols loaded."
		}
		s.sendEvent("module", &dap.ModuleEvent{
			Event: event("module"),
			Body: dap.ModuleEventBody{
				Reason: "new",
				Module: dap.Module{
					Id:           ev.Assembly.Name,
					Name:         ev.Assembly.Name,
					Path:         ev.Assembly.Path,
					IsUserCode:   cfg.isUserAssembly(ev.Assembly.Name, ev.Assembly.HasSymbols),
					SymbolStatus: symbolStatus,
				},
			},
		})

	case engine.EventBreakpointBound, engine.EventBreakpointUnbound:
		if ev.Breakpoint == nil {
			return
		}
		s.sendEvent("breakpoint", &dap.BreakpointEvent{
			Event: event("breakpoint"),
			Body: dap.BreakpointEventBody{
				Reason: "changed",
				Breakpoint: dap.Breakpoint{
					Id:       ev.Breakpoint.ID,
					Verified: ev.Breakpoint.Verified,
					Line:     ev.Breakpoint.Location.Line,
					Column:   ev.Breakpoint.Location.Column,
				},
			},
		})

	case engine.EventOutput:
		s.sendEvent("output", &dap.OutputEvent{
			Event: event("output"),
			Body: dap.OutputEventBody{
				Category: string(ev.Category),
				Output:   ev.Output + "\n",
			},
		})

	case engine.EventExited:
		s.setState(StateTerminated)
		s.sendEvent("exited", &dap.ExitedEvent{
			Event: event("exited"),
			Body:  dap.ExitedEventBody{ExitCode: ev.ExitCode},
		})
		s.sendEvent("terminated", &dap.TerminatedEvent{
			Event: event("terminated"),
		})
	}
}

// sendStopped publishes a stop-class event. This engine cannot freeze
// threads independently, so every stop reports all threads stopped.
func (s *Session) sendStopped(reason string, threadID int64, text string) {
	s.sendEvent("stopped", &dap.StoppedEvent{
		Event: event("stopped"),
		Body: dap.StoppedEventBody{
			Reason:            reason,
			ThreadId:          int(threadID),
			Text:              text,
			AllThreadsStopped: true,
		},
	})
}

func (s *Session) sendThread(reason string, threadID int64) {
	s.sendEvent("thread", &dap.ThreadEvent{
		Event: event("thread"),
		Body: dap.ThreadEventBody{
			Reason:   reason,
			ThreadId: int(threadID),
		},
	})
}
