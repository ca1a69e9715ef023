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

// Package session is the top of the adapter: it reads typed DAP requests
// off one client connection, enforces the execution-state guards, calls
// into the engine through the breakpoint translator, the evaluation
// orchestrator and the handle registry, and relays engine events back to
// the client.
//
// Requests are processed one at a time on a single dispatch goroutine; a
// second goroutine consumes engine events. Those two are the only mutators
// of session state, and both take the session mutex. The handle registry is
// reset by the event goroutine before any stop-class event reaches the
// client, so a client that pipelines a request against a stale handle gets
// a clean "not found".
package session

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/google/go-dap"

	"github.com/tombee/monodap/internal/breakpoints"
	"github.com/tombee/monodap/internal/engine"
	"github.com/tombee/monodap/internal/eval"
	"github.com/tombee/monodap/internal/handles"
	"github.com/tombee/monodap/internal/log"
	"github.com/tombee/monodap/internal/resolver"
)

// Session serves one DAP client connection against one engine.
type Session struct {
	conn     io.ReadWriteCloser
	rd       *bufio.Reader
	logger   *slog.Logger
	relayLog *slog.Logger
	mtr      *Metrics

	engine      engine.Engine
	registry    *handles.Registry
	breakpoints *breakpoints.Translator
	bridge      *resolver.Bridge

	// sendMu serializes client-bound writes (dispatch and relay goroutines
	// both send) and guards the outgoing sequence counter.
	sendMu  sync.Mutex
	sendSeq int

	// mu guards the fields below.
	mu            sync.Mutex
	cfg           Config
	eval          *eval.Orchestrator
	state         State
	stoppedThread int64
	topFrame      *engine.StackFrame
	exception     *engine.ExceptionDetail

	teardownOnce sync.Once
	relayDone    chan struct{}
}

// New creates a session for one client connection. A nil metrics installs
// unregistered counters.
func New(conn io.ReadWriteCloser, eng engine.Engine, cfg Config, logger *slog.Logger, mtr *Metrics) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if mtr == nil {
		mtr = NewMetrics(nil)
	}
	if cfg.SourceLanguage == "" {
		cfg.SourceLanguage = DefaultConfig().SourceLanguage
	}
	if cfg.EvalTimeout <= 0 {
		cfg.EvalTimeout = DefaultConfig().EvalTimeout
	}
	if cfg.ResolverTimeout <= 0 {
		cfg.ResolverTimeout = DefaultConfig().ResolverTimeout
	}

	registry := handles.NewRegistry()
	s := &Session{
		conn:        conn,
		rd:          bufio.NewReader(conn),
		logger:      log.WithComponent(logger, "session"),
		relayLog:    log.WithComponent(logger, "relay"),
		mtr:         mtr,
		engine:      eng,
		registry:    registry,
		breakpoints: breakpoints.New(eng, cfg.SourceLanguage, log.WithComponent(logger, "breakpoints")),
		cfg:         cfg,
		state:       StateUnattached,
		relayDone:   make(chan struct{}),
	}
	s.eval = s.newOrchestrator()
	return s
}

// Run processes requests until the client disconnects or a fatal dispatch
// error tears the session down. The event relay runs for the same span.
func (s *Session) Run(ctx context.Context) error {
	go s.runRelay()

	for {
		msg, err := dap.ReadProtocolMessage(s.rd)
		if err != nil {
			if errors.Is(err, io.EOF) || s.currentState() == StateDisconnected {
				s.teardown()
				return nil
			}
			var decodeErr *dap.DecodeProtocolMessageFieldError
			if errors.As(err, &decodeErr) {
				// A malformed message is recoverable; a broken stream is
				// a fatal dispatcher error and tears the session down.
				s.logger.Warn("dropping malformed request", slog.Any("error", err))
				continue
			}
			s.logger.Error("protocol stream failed, tearing down", slog.Any("error", err))
			s.teardown()
			return err
		}

		s.dispatch(ctx, msg)

		if s.currentState() == StateDisconnected {
			s.teardown()
			return nil
		}
	}
}

// dispatch routes one request. Exactly one response is sent per request.
func (s *Session) dispatch(ctx context.Context, msg dap.Message) {
	req, ok := msg.(dap.RequestMessage)
	if !ok {
		s.logger.Warn("ignoring non-request message")
		return
	}

	r := req.GetRequest()
	s.mtr.Requests.WithLabelValues(r.Command).Inc()
	s.logger.Debug("request",
		slog.String("command", r.Command),
		slog.Int("seq", r.Seq),
		slog.String("state", s.currentState().String()))

	switch req := msg.(type) {
	case *dap.InitializeRequest:
		s.onInitialize(req)
	case *dap.AttachRequest:
		s.onAttach(ctx, req)
	case *dap.ConfigurationDoneRequest:
		s.send(&dap.ConfigurationDoneResponse{Response: s.ok(&req.Request)})
	case *dap.DisconnectRequest:
		s.onDisconnect(req)
	case *dap.ContinueRequest:
		s.onContinue(ctx, req)
	case *dap.NextRequest:
		s.onNext(ctx, req)
	case *dap.StepInRequest:
		s.onStepIn(ctx, req)
	case *dap.StepOutRequest:
		s.onStepOut(ctx, req)
	case *dap.PauseRequest:
		s.onPause(ctx, req)
	case *dap.SetBreakpointsRequest:
		s.onSetBreakpoints(ctx, req)
	case *dap.SetFunctionBreakpointsRequest:
		s.onSetFunctionBreakpoints(ctx, req)
	case *dap.SetExceptionBreakpointsRequest:
		s.onSetExceptionBreakpoints(ctx, req)
	case *dap.ThreadsRequest:
		s.onThreads(ctx, req)
	case *dap.StackTraceRequest:
		s.onStackTrace(ctx, req)
	case *dap.ScopesRequest:
		s.onScopes(req)
	case *dap.VariablesRequest:
		s.onVariables(req)
	case *dap.SetVariableRequest:
		s.onSetVariable(req)
	case *dap.EvaluateRequest:
		s.onEvaluate(req)
	case *dap.CompletionsRequest:
		s.onCompletions(req)
	case *dap.SourceRequest:
		s.onSource(req)
	case *dap.ExceptionInfoRequest:
		s.onExceptionInfo(req)
	case *dap.GotoTargetsRequest:
		s.onGotoTargets(req)
	case *dap.GotoRequest:
		s.onGoto(ctx, req)
	default:
		s.fail(r, &RequestError{
			ID:      errIDUnsupported,
			Message: "unsupported request: " + r.Command,
		})
	}
}

// --- state accessors ---

func (s *Session) currentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	prev := s.state
	s.state = st
	s.mu.Unlock()
	if prev != st {
		s.logger.Debug("state transition",
			slog.String("from", prev.String()), slog.String("to", st.String()))
	}
}

func (s *Session) config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *Session) orchestrator() *eval.Orchestrator {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eval
}

func (s *Session) newOrchestrator() *eval.Orchestrator {
	cfg := eval.DefaultConfig()
	cfg.Timeout = s.cfg.EvalTimeout
	return eval.New(s.engine, s.registry, cfg, s.logger)
}

// --- sending ---

func (s *Session) nextSeq() int {
	s.sendSeq++
	return s.sendSeq
}

// send writes one message to the client, assigning its sequence number.
func (s *Session) send(msg dap.Message) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	assignSeq(msg, s.nextSeq())

	if err := dap.WriteProtocolMessage(s.conn, msg); err != nil {
		s.logger.Warn("failed to write message", slog.Any("error", err))
	}
}

// ok builds a success response envelope for a request.
func (s *Session) ok(r *dap.Request) dap.Response {
	return dap.Response{
		ProtocolMessage: dap.ProtocolMessage{Type: "response"},
		RequestSeq:      r.Seq,
		Success:         true,
		Command:         r.Command,
	}
}

// fail sends a protocol-shaped error response.
func (s *Session) fail(r *dap.Request, reqErr *RequestError) {
	s.logger.Debug("request failed",
		slog.String("command", r.Command),
		slog.Int("id", reqErr.ID),
		slog.String("message", reqErr.Message))

	resp := &dap.ErrorResponse{
		Response: dap.Response{
			ProtocolMessage: dap.ProtocolMessage{Type: "response"},
			RequestSeq:      r.Seq,
			Success:         false,
			Command:         r.Command,
			Message:         reqErr.Message,
		},
		Body: dap.ErrorResponseBody{
			Error: &dap.ErrorMessage{
				Id:       reqErr.ID,
				Format:   reqErr.Message,
				ShowUser: reqErr.ShowUser,
			},
		},
	}
	s.send(resp)
}

// event builds an event envelope.
func event(name string) dap.Event {
	return dap.Event{
		ProtocolMessage: dap.ProtocolMessage{Type: "event"},
		Event:           name,
	}
}

// sendEvent publishes one event to the client and counts it.
func (s *Session) sendEvent(name string, msg dap.Message) {
	s.mtr.Events.WithLabelValues(name).Inc()
	s.send(msg)
}

// --- teardown ---

// teardown detaches and disposes the engine and launch-scoped resources.
// Safe to invoke from disconnect handling, the fatal-error path, and
// process shutdown; every step is idempotent.
func (s *Session) teardown() {
	s.teardownOnce.Do(func() {
		s.logger.Info("session teardown")
		if s.bridge != nil {
			s.bridge.Close()
		}
		s.engine.Detach()
		s.engine.Dispose()
		s.registry.Reset()
		s.setState(StateDisconnected)
	})
}

// assignSeq stamps the outgoing sequence number on any protocol message.
func assignSeq(msg dap.Message, seq int) {
	switch m := msg.(type) {
	case interface{ GetResponse() *dap.Response }:
		m.GetResponse().Seq = seq
	case interface{ GetEvent() *dap.Event }:
		m.GetEvent().Seq = seq
	}
}
