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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/google/go-dap"

	"github.com/tombee/monodap/internal/breakpoints"
	"github.com/tombee/monodap/internal/engine"
	"github.com/tombee/monodap/internal/eval"
	"github.com/tombee/monodap/internal/handles"
	"github.com/tombee/monodap/internal/resolver"
)

func (s *Session) onInitialize(req *dap.InitializeRequest) {
	s.send(&dap.InitializeResponse{
		Response: s.ok(&req.Request),
		Body: dap.Capabilities{
			SupportsConfigurationDoneRequest:  true,
			SupportsFunctionBreakpoints:       true,
			SupportsConditionalBreakpoints:    true,
			SupportsHitConditionalBreakpoints: true,
			SupportsLogPoints:                 true,
			SupportsEvaluateForHovers:         true,
			SupportsSetVariable:               true,
			SupportsCompletionsRequest:        true,
			CompletionTriggerCharacters:       []string{"."},
			SupportsExceptionInfoRequest:      true,
			SupportsExceptionFilterOptions:    true,
			SupportsGotoTargetsRequest:        true,
			ExceptionBreakpointFilters: []dap.ExceptionBreakpointsFilter{{
				Filter:            breakpoints.FilterAll,
				Label:             "All Exceptions",
				SupportsCondition: true,
				ConditionDescription: "Comma-separated exception type names to stop on, " +
					"or !Type1, Type2 to stop on everything except the listed types.",
			}},
		},
	})

	// The client may start configuring breakpoints as soon as it sees this.
	s.sendEvent("initialized", &dap.InitializedEvent{Event: event("initialized")})
}

func (s *Session) onAttach(ctx context.Context, req *dap.AttachRequest) {
	if st := s.currentState(); st != StateUnattached {
		s.fail(&req.Request, validationError("cannot attach while %s", st))
		return
	}

	args, err := parseAttachArguments(req.Arguments)
	if err != nil {
		s.fail(&req.Request, validationError("%v", err))
		return
	}

	s.mu.Lock()
	s.cfg.apply(args)
	s.eval = s.newOrchestrator()
	cfg := s.cfg
	s.mu.Unlock()

	s.setState(StateAttaching)
	params := engine.StartParams{
		Address:     args.Address,
		Port:        args.Port,
		ProcessName: args.ProcessName,
	}
	if err := s.engine.Attach(ctx, params); err != nil {
		s.setState(StateUnattached)
		s.fail(&req.Request, asRequestError(err))
		return
	}
	s.setState(StateRunning)
	s.logger.Info("attached",
		slog.String("address", args.Address), slog.Int("port", args.Port))

	// The resolver is a nicety: without it name resolution degrades, the
	// session does not.
	if cfg.ResolverSocket != "" {
		bridge := resolver.New(cfg.ResolverSocket, s.logger)
		if err := bridge.Connect(cfg.ResolverTimeout, s.engine); err != nil {
			s.sendEvent("output", &dap.OutputEvent{
				Event: event("output"),
				Body: dap.OutputEventBody{
					Category: "important",
					Output:   "Type resolver unavailable, using built-in resolution.\n",
				},
			})
		} else {
			s.bridge = bridge
		}
	}

	s.send(&dap.AttachResponse{Response: s.ok(&req.Request)})
}

func (s *Session) onDisconnect(req *dap.DisconnectRequest) {
	s.send(&dap.DisconnectResponse{Response: s.ok(&req.Request)})
	s.teardown()
}

// --- execution control ---

func (s *Session) onContinue(ctx context.Context, req *dap.ContinueRequest) {
	resp := &dap.ContinueResponse{
		Response: s.ok(&req.Request),
		Body:     dap.ContinueResponseBody{AllThreadsContinued: true},
	}
	if !s.currentState().resumable() {
		// Resume while not stopped is a silent no-op; the engine is
		// never touched.
		s.send(resp)
		return
	}
	// Running is recorded before the engine call: the engine may stop
	// again before the call even returns, and that stop must win.
	s.setState(StateRunning)
	if err := s.engine.Resume(ctx); err != nil {
		s.setState(StateStopped)
		s.fail(&req.Request, asRequestError(err))
		return
	}
	s.send(resp)
}

func (s *Session) onNext(ctx context.Context, req *dap.NextRequest) {
	s.step(ctx, &req.Request, req.Arguments.ThreadId, s.engine.StepOver,
		func() dap.Message { return &dap.NextResponse{Response: s.ok(&req.Request)} })
}

func (s *Session) onStepIn(ctx context.Context, req *dap.StepInRequest) {
	s.step(ctx, &req.Request, req.Arguments.ThreadId, s.engine.StepIn,
		func() dap.Message { return &dap.StepInResponse{Response: s.ok(&req.Request)} })
}

func (s *Session) onStepOut(ctx context.Context, req *dap.StepOutRequest) {
	s.step(ctx, &req.Request, req.Arguments.ThreadId, s.engine.StepOut,
		func() dap.Message { return &dap.StepOutResponse{Response: s.ok(&req.Request)} })
}

// step shares the guard and state transition of the three step requests.
func (s *Session) step(ctx context.Context, r *dap.Request, threadID int, op func(context.Context, int64) error, resp func() dap.Message) {
	if !s.currentState().resumable() {
		s.send(resp())
		return
	}
	s.setState(StateRunning)
	if err := op(ctx, s.stepThread(threadID)); err != nil {
		s.setState(StateStopped)
		s.fail(r, asRequestError(err))
		return
	}
	s.send(resp())
}

// stepThread falls back to the thread that reported the stop when the
// client omitted one.
func (s *Session) stepThread(argThread int) int64 {
	if argThread != 0 {
		return int64(argThread)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stoppedThread
}

func (s *Session) onPause(ctx context.Context, req *dap.PauseRequest) {
	resp := &dap.PauseResponse{Response: s.ok(&req.Request)}
	if !s.currentState().pausable() {
		s.send(resp)
		return
	}
	if err := s.engine.Pause(ctx); err != nil {
		s.fail(&req.Request, asRequestError(err))
		return
	}
	s.send(resp)
}

// --- breakpoints ---

func (s *Session) onSetBreakpoints(ctx context.Context, req *dap.SetBreakpointsRequest) {
	path := req.Arguments.Source.Path
	if path == "" {
		s.fail(&req.Request, validationError("setBreakpoints requires a source path"))
		return
	}

	specs := make([]breakpoints.SourceSpec, 0, len(req.Arguments.Breakpoints))
	for _, b := range req.Arguments.Breakpoints {
		specs = append(specs, breakpoints.SourceSpec{
			Line:         b.Line,
			Column:       b.Column,
			Condition:    b.Condition,
			HitCondition: b.HitCondition,
			LogMessage:   b.LogMessage,
		})
	}

	results, err := s.breakpoints.SetSource(ctx, path, specs)
	if err != nil {
		s.fail(&req.Request, asRequestError(err))
		return
	}

	bps := make([]dap.Breakpoint, 0, len(results))
	for _, r := range results {
		bps = append(bps, dap.Breakpoint{
			Id:       r.ID,
			Verified: r.Verified,
			Line:     r.Line,
			Column:   r.Column,
			Source:   &dap.Source{Name: filepath.Base(path), Path: path},
		})
	}
	s.send(&dap.SetBreakpointsResponse{
		Response: s.ok(&req.Request),
		Body:     dap.SetBreakpointsResponseBody{Breakpoints: bps},
	})
}

func (s *Session) onSetFunctionBreakpoints(ctx context.Context, req *dap.SetFunctionBreakpointsRequest) {
	specs := make([]breakpoints.FunctionSpec, 0, len(req.Arguments.Breakpoints))
	for _, b := range req.Arguments.Breakpoints {
		specs = append(specs, breakpoints.FunctionSpec{
			Name:         b.Name,
			Condition:    b.Condition,
			HitCondition: b.HitCondition,
		})
	}

	results, err := s.breakpoints.SetFunctions(ctx, specs)
	if err != nil {
		s.fail(&req.Request, asRequestError(err))
		return
	}

	bps := make([]dap.Breakpoint, 0, len(results))
	for _, r := range results {
		bps = append(bps, dap.Breakpoint{Id: r.ID, Verified: r.Verified})
	}
	s.send(&dap.SetFunctionBreakpointsResponse{
		Response: s.ok(&req.Request),
		Body:     dap.SetFunctionBreakpointsResponseBody{Breakpoints: bps},
	})
}

func (s *Session) onSetExceptionBreakpoints(ctx context.Context, req *dap.SetExceptionBreakpointsRequest) {
	opts := make([]breakpoints.FilterOption, 0,
		len(req.Arguments.FilterOptions)+len(req.Arguments.Filters))
	for _, fo := range req.Arguments.FilterOptions {
		opts = append(opts, breakpoints.FilterOption{
			FilterID:  fo.FilterId,
			Condition: fo.Condition,
		})
	}
	// Plain filter ids carry no condition: stop on everything.
	for _, id := range req.Arguments.Filters {
		opts = append(opts, breakpoints.FilterOption{FilterID: id})
	}

	if err := s.breakpoints.SetExceptionFilters(ctx, opts); err != nil {
		s.fail(&req.Request, asRequestError(err))
		return
	}
	s.send(&dap.SetExceptionBreakpointsResponse{Response: s.ok(&req.Request)})
}

// --- inspection ---

func (s *Session) onThreads(ctx context.Context, req *dap.ThreadsRequest) {
	threads, err := s.engine.Threads(ctx)
	if err != nil {
		s.fail(&req.Request, asRequestError(err))
		return
	}

	out := make([]dap.Thread, 0, len(threads))
	for _, t := range threads {
		if t.IsRuntime {
			continue
		}
		name := t.Name
		if name == "" {
			name = fmt.Sprintf("Thread #%d", t.ID)
		}
		out = append(out, dap.Thread{Id: int(t.ID), Name: name})
	}
	s.send(&dap.ThreadsResponse{
		Response: s.ok(&req.Request),
		Body:     dap.ThreadsResponseBody{Threads: out},
	})
}

func (s *Session) onStackTrace(ctx context.Context, req *dap.StackTraceRequest) {
	bt, err := s.engine.Backtrace(ctx, int64(req.Arguments.ThreadId))
	if err != nil {
		s.fail(&req.Request, asRequestError(err))
		return
	}

	cfg := s.config()
	total := bt.FrameCount()
	start := req.Arguments.StartFrame
	levels := req.Arguments.Levels
	if levels <= 0 {
		levels = total
	}

	out := make([]dap.StackFrame, 0, levels)
	for i := start; i < total && len(out) < levels; i++ {
		fr, ok := bt.Frame(i)
		if !ok {
			// The engine could not materialize this frame; keep the
			// trace shape but make the frame inert.
			out = append(out, dap.StackFrame{Id: 0, Name: "<unknown>"})
			continue
		}
		if fr.IsTransition && cfg.SkipTransitionFrames {
			continue
		}

		h := s.registry.Allocate(&handles.FrameEntry{Frame: fr})
		if start == 0 && len(out) == 0 {
			s.mu.Lock()
			s.topFrame = fr
			s.mu.Unlock()
		}

		sf := dap.StackFrame{
			Id:     h,
			Name:   fr.Name,
			Line:   fr.Location.Line,
			Column: fr.Location.Column,
		}
		if fr.Location.File != "" {
			sf.Source = &dap.Source{
				Name: filepath.Base(fr.Location.File),
				Path: fr.Location.File,
			}
		}
		out = append(out, sf)
	}

	s.send(&dap.StackTraceResponse{
		Response: s.ok(&req.Request),
		Body: dap.StackTraceResponseBody{
			StackFrames: out,
			TotalFrames: total,
		},
	})
}

func (s *Session) onScopes(req *dap.ScopesRequest) {
	entry, ok := s.registry.FrameAt(req.Arguments.FrameId)
	if !ok {
		s.fail(&req.Request, notFoundError("frame"))
		return
	}

	h := s.registry.Allocate(&handles.ChildrenEntry{
		Kind:  handles.KindFrameLocals,
		Frame: entry.Frame,
	})
	s.send(&dap.ScopesResponse{
		Response: s.ok(&req.Request),
		Body: dap.ScopesResponseBody{
			Scopes: []dap.Scope{{
				Name:               "Locals",
				PresentationHint:   "locals",
				VariablesReference: h,
			}},
		},
	})
}

func (s *Session) onVariables(req *dap.VariablesRequest) {
	vars, err := s.orchestrator().Expand(req.Arguments.VariablesReference)
	if err != nil {
		s.fail(&req.Request, asRequestError(err))
		return
	}

	out := make([]dap.Variable, 0, len(vars))
	for _, v := range vars {
		out = append(out, dap.Variable{
			Name:               v.Name,
			Value:              v.Display,
			Type:               v.TypeName,
			VariablesReference: v.ChildrenHandle,
		})
	}
	s.send(&dap.VariablesResponse{
		Response: s.ok(&req.Request),
		Body:     dap.VariablesResponseBody{Variables: out},
	})
}

func (s *Session) onSetVariable(req *dap.SetVariableRequest) {
	s.mu.Lock()
	frame := s.topFrame
	s.mu.Unlock()

	res, err := s.orchestrator().SetVariable(frame,
		req.Arguments.VariablesReference, req.Arguments.Name, req.Arguments.Value)
	if err != nil {
		s.fail(&req.Request, asRequestError(err))
		return
	}
	s.send(&dap.SetVariableResponse{
		Response: s.ok(&req.Request),
		Body: dap.SetVariableResponseBody{
			Value:              res.Display,
			Type:               res.TypeName,
			VariablesReference: res.ChildrenHandle,
		},
	})
}

func (s *Session) onEvaluate(req *dap.EvaluateRequest) {
	frame, reqErr := s.evalFrame(req.Arguments.FrameId)
	if reqErr != nil {
		s.fail(&req.Request, reqErr)
		return
	}

	res, err := s.orchestrator().Evaluate(frame, req.Arguments.Expression,
		eval.Context(req.Arguments.Context))
	if err != nil {
		var evalErr *eval.Error
		if errors.As(err, &evalErr) && evalErr.Reason == eval.ReasonTimeout {
			s.mtr.EvalTimeouts.Inc()
		}
		s.fail(&req.Request, asRequestError(err))
		return
	}
	s.send(&dap.EvaluateResponse{
		Response: s.ok(&req.Request),
		Body: dap.EvaluateResponseBody{
			Result:             res.Display,
			Type:               res.TypeName,
			VariablesReference: res.ChildrenHandle,
		},
	})
}

func (s *Session) onCompletions(req *dap.CompletionsRequest) {
	frame, reqErr := s.evalFrame(req.Arguments.FrameId)
	if reqErr != nil {
		s.fail(&req.Request, reqErr)
		return
	}

	vars, err := s.orchestrator().FrameLocals(frame)
	if err != nil {
		s.fail(&req.Request, asRequestError(err))
		return
	}

	prefix := completionPrefix(req.Arguments.Text, req.Arguments.Column)
	targets := []dap.CompletionItem{}
	// Member completion needs type metadata the engine does not expose;
	// only bare identifiers complete against frame locals.
	if !strings.Contains(prefix, ".") {
		for _, v := range vars {
			if strings.HasPrefix(v.Name, prefix) {
				targets = append(targets, dap.CompletionItem{
					Label: v.Name,
					Type:  "variable",
				})
			}
		}
	}
	s.send(&dap.CompletionsResponse{
		Response: s.ok(&req.Request),
		Body:     dap.CompletionsResponseBody{Targets: targets},
	})
}

func (s *Session) onSource(req *dap.SourceRequest) {
	// Sources are always files on disk for this engine; there is nothing
	// to serve by reference.
	s.fail(&req.Request, &RequestError{
		ID:       errIDNoSource,
		Message:  "no source available",
		ShowUser: true,
	})
}

func (s *Session) onExceptionInfo(req *dap.ExceptionInfoRequest) {
	s.mu.Lock()
	exc := s.exception
	s.mu.Unlock()

	if exc == nil {
		s.fail(&req.Request, &RequestError{
			ID:       errIDNoException,
			Message:  "no exception available",
			ShowUser: true,
		})
		return
	}

	breakMode := "always"
	if exc.Unhandled {
		breakMode = "unhandled"
	}
	s.send(&dap.ExceptionInfoResponse{
		Response: s.ok(&req.Request),
		Body: dap.ExceptionInfoResponseBody{
			ExceptionId: exc.TypeName,
			Description: exc.Message,
			BreakMode:   dap.ExceptionBreakMode(breakMode),
		},
	})
}

// --- jump to cursor ---

func (s *Session) onGotoTargets(req *dap.GotoTargetsRequest) {
	path := req.Arguments.Source.Path
	if path == "" {
		s.fail(&req.Request, validationError("gotoTargets requires a source path"))
		return
	}

	h := s.registry.Allocate(&handles.GotoEntry{
		File:   path,
		Line:   req.Arguments.Line,
		Column: req.Arguments.Column,
	})
	s.send(&dap.GotoTargetsResponse{
		Response: s.ok(&req.Request),
		Body: dap.GotoTargetsResponseBody{
			Targets: []dap.GotoTarget{{
				Id:     h,
				Label:  "Jump to cursor",
				Line:   req.Arguments.Line,
				Column: req.Arguments.Column,
			}},
		},
	})
}

func (s *Session) onGoto(ctx context.Context, req *dap.GotoRequest) {
	entry, ok := s.registry.GotoAt(req.Arguments.TargetId)
	if !ok {
		s.fail(&req.Request, &RequestError{
			ID:       errIDNotFound,
			Message:  "GotoTarget not found",
			ShowUser: true,
		})
		return
	}

	err := s.engine.SetNextStatement(ctx, int64(req.Arguments.ThreadId),
		entry.File, entry.Line, entry.Column)
	if err != nil {
		s.fail(&req.Request, asRequestError(err))
		return
	}
	s.send(&dap.GotoResponse{Response: s.ok(&req.Request)})
}

// --- helpers ---

// evalFrame resolves a frame id for evaluation-style requests. Id zero
// means "no frame given"; the most recent top frame serves those.
func (s *Session) evalFrame(frameID int) (*engine.StackFrame, *RequestError) {
	if frameID == 0 {
		s.mu.Lock()
		frame := s.topFrame
		s.mu.Unlock()
		if frame == nil {
			return nil, notFoundError("frame")
		}
		return frame, nil
	}
	entry, ok := s.registry.FrameAt(frameID)
	if !ok {
		return nil, notFoundError("frame")
	}
	return entry.Frame, nil
}

// completionPrefix extracts the identifier being completed from the text
// left of the caret. Column is 1-based per the protocol and counts runes,
// not bytes.
func completionPrefix(text string, column int) string {
	if column > 0 {
		if runes := []rune(text); column-1 <= len(runes) {
			text = string(runes[:column-1])
		}
	}
	start := 0
	for i, r := range text {
		switch {
		case r == '.', r == '_':
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		default:
			start = i + utf8.RuneLen(r)
		}
	}
	return text[start:]
}
