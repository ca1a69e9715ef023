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

// Package enginetest provides an in-process implementation of engine.Engine
// for tests. Expressions are evaluated with expr-lang against scripted frame
// locals, so evaluation, assignment and conditional-breakpoint behavior can
// be exercised without a live debuggee. Every interface method records a
// call count so tests can assert "the engine was never touched".
package enginetest

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/expr-lang/expr"

	"github.com/tombee/monodap/internal/engine"
)

// Engine is a scriptable in-process engine.
type Engine struct {
	// EvalDelay delays every evaluation's completion, for timeout tests.
	EvalDelay time.Duration

	mu            sync.Mutex
	events        chan engine.Event
	attached      bool
	disposed      bool
	running       bool
	nextID        int
	breakpoints   map[int]*engine.Breakpoint
	hits          map[int]int
	catchpoints   []*engine.Catchpoint
	threads       []engine.Thread
	frames        map[int64][]*engine.StackFrame
	holes         map[int64]map[int]bool
	locals        map[string]any
	types         map[string]string
	stubs         map[string]*engine.Value
	native        map[*engine.Value]any
	setters       map[*engine.Value]func(any)
	calls         map[string]int
	resolver      engine.TypeResolver
	resolverCalls []string
	lastJump      jump
}

// New creates an empty fake engine.
func New() *Engine {
	return &Engine{
		events:      make(chan engine.Event, 64),
		nextID:      1,
		breakpoints: make(map[int]*engine.Breakpoint),
		hits:        make(map[int]int),
		frames:      make(map[int64][]*engine.StackFrame),
		holes:       make(map[int64]map[int]bool),
		locals:      make(map[string]any),
		types:       make(map[string]string),
		stubs:       make(map[string]*engine.Value),
		native:      make(map[*engine.Value]any),
		setters:     make(map[*engine.Value]func(any)),
		calls:       make(map[string]int),
	}
}

// --- scripting surface ---

// SetThreads scripts the thread list.
func (e *Engine) SetThreads(threads ...engine.Thread) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.threads = threads
}

// SetFrames scripts the backtrace of a thread.
func (e *Engine) SetFrames(threadID int64, frames ...*engine.StackFrame) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.frames[threadID] = frames
}

// SetFrameHole marks a frame index the engine cannot materialize.
func (e *Engine) SetFrameHole(threadID int64, index int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.holes[threadID] == nil {
		e.holes[threadID] = make(map[int]bool)
	}
	e.holes[threadID][index] = true
}

// SetLocal scripts one frame local visible to expressions.
func (e *Engine) SetLocal(name string, value any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.locals[name] = value
}

// Local reads back a scripted local, for assignment assertions.
func (e *Engine) Local(name string) any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.locals[name]
}

// DefineType scripts a short-name to fully-qualified type mapping.
func (e *Engine) DefineType(short, full string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.types[short] = full
}

// StubResult cans the evaluation result for an exact expression, bypassing
// expr. Used to script engine flag combinations.
func (e *Engine) StubResult(expression string, v *engine.Value) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stubs[expression] = v
}

// CallCount returns how many times an interface method was invoked.
func (e *Engine) CallCount(method string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[method]
}

// ResolverCalls returns the identifiers passed to the installed resolver.
func (e *Engine) ResolverCalls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.resolverCalls...)
}

// Breakpoints returns the live breakpoints sorted by id.
func (e *Engine) Breakpoints() []*engine.Breakpoint {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*engine.Breakpoint, 0, len(e.breakpoints))
	for _, bp := range e.breakpoints {
		out = append(out, bp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Catchpoints returns the live catchpoints in insertion order.
func (e *Engine) Catchpoints() []*engine.Catchpoint {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*engine.Catchpoint(nil), e.catchpoints...)
}

// Running reports the scripted execution state.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Disposed reports whether Dispose has been called.
func (e *Engine) Disposed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.disposed
}

// --- event simulation ---

// EmitStopped simulates a generic pause-class stop.
func (e *Engine) EmitStopped(threadID int64) {
	e.setRunning(false)
	e.emit(engine.Event{Type: engine.EventStopped, ThreadID: threadID})
}

// EmitException simulates a thrown or unhandled exception stop.
func (e *Engine) EmitException(threadID int64, typeName, message string, unhandled bool) {
	e.setRunning(false)
	e.emit(engine.Event{
		Type:     engine.EventExceptionThrown,
		ThreadID: threadID,
		Exception: &engine.ExceptionDetail{
			TypeName:  typeName,
			Message:   message,
			Unhandled: unhandled,
		},
	})
}

// EmitThreadStarted simulates a thread starting.
func (e *Engine) EmitThreadStarted(th engine.Thread) {
	e.emit(engine.Event{Type: engine.EventThreadStarted, ThreadID: th.ID, Thread: &th})
}

// EmitThreadExited simulates a thread exiting.
func (e *Engine) EmitThreadExited(th engine.Thread) {
	e.emit(engine.Event{Type: engine.EventThreadExited, ThreadID: th.ID, Thread: &th})
}

// EmitAssemblyLoaded simulates an assembly load.
func (e *Engine) EmitAssemblyLoaded(asm engine.Assembly) {
	e.emit(engine.Event{Type: engine.EventAssemblyLoaded, Assembly: &asm})
}

// EmitOutput simulates debuggee output.
func (e *Engine) EmitOutput(category engine.OutputCategory, text string) {
	e.emit(engine.Event{Type: engine.EventOutput, Category: category, Output: text})
}

// EmitExited simulates the debuggee process ending.
func (e *Engine) EmitExited(code int) {
	e.setRunning(false)
	e.emit(engine.Event{Type: engine.EventExited, ExitCode: code})
}

// EmitBreakpointBound simulates a breakpoint binding to code.
func (e *Engine) EmitBreakpointBound(id int) {
	e.mu.Lock()
	bp := e.breakpoints[id]
	if bp != nil {
		bp.Verified = true
	}
	e.mu.Unlock()
	if bp != nil {
		e.emit(engine.Event{Type: engine.EventBreakpointBound, Breakpoint: bp})
	}
}

// TriggerBreakpoint simulates execution reaching a breakpoint. The fake
// honors the breakpoint's condition (evaluated against the scripted locals),
// hit count, and trace-only flag: a logpoint emits output and never stops,
// a false condition does nothing.
func (e *Engine) TriggerBreakpoint(id int, threadID int64) {
	e.mu.Lock()
	bp := e.breakpoints[id]
	if bp == nil {
		e.mu.Unlock()
		return
	}
	env := e.envLocked()
	e.mu.Unlock()

	if bp.Condition != "" {
		out, err := runExpr(bp.Condition, env)
		if err != nil {
			return
		}
		pass, ok := out.(bool)
		if !ok || !pass {
			return
		}
	}

	e.mu.Lock()
	e.hits[id]++
	hit := e.hits[id]
	e.mu.Unlock()
	if bp.HitCount > 0 && hit != bp.HitCount {
		return
	}

	if bp.TraceOnly {
		e.emit(engine.Event{Type: engine.EventOutput, Category: engine.OutputConsole, Output: bp.TraceText})
		return
	}

	e.setRunning(false)
	e.emit(engine.Event{Type: engine.EventBreakpointHit, ThreadID: threadID, Breakpoint: bp})
}

// --- engine.Engine ---

// Attach records the start parameters and marks the debuggee running.
func (e *Engine) Attach(_ context.Context, params engine.StartParams) error {
	e.record("Attach")
	if params.Address == "" {
		return fmt.Errorf("enginetest: no address")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attached = true
	e.running = true
	return nil
}

// Detach disconnects, leaving the debuggee running. Idempotent.
func (e *Engine) Detach() {
	e.record("Detach")
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attached = false
}

// Dispose releases resources and closes the event channel. Idempotent.
func (e *Engine) Dispose() {
	e.record("Dispose")
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return
	}
	e.disposed = true
	close(e.events)
}

// Resume marks execution running.
func (e *Engine) Resume(context.Context) error {
	e.record("Resume")
	e.setRunning(true)
	return nil
}

// Pause suspends execution and raises a stop event.
func (e *Engine) Pause(context.Context) error {
	e.record("Pause")
	e.setRunning(false)
	e.emit(engine.Event{Type: engine.EventStopped})
	return nil
}

// StepOver completes immediately and raises a stop event.
func (e *Engine) StepOver(_ context.Context, threadID int64) error {
	e.record("StepOver")
	e.emit(engine.Event{Type: engine.EventStopped, ThreadID: threadID})
	return nil
}

// StepIn completes immediately and raises a stop event.
func (e *Engine) StepIn(_ context.Context, threadID int64) error {
	e.record("StepIn")
	e.emit(engine.Event{Type: engine.EventStopped, ThreadID: threadID})
	return nil
}

// StepOut completes immediately and raises a stop event.
func (e *Engine) StepOut(_ context.Context, threadID int64) error {
	e.record("StepOut")
	e.emit(engine.Event{Type: engine.EventStopped, ThreadID: threadID})
	return nil
}

// AddBreakpoint stores a copy of the breakpoint and assigns an id. The
// breakpoint is immediately verified.
func (e *Engine) AddBreakpoint(_ context.Context, bp *engine.Breakpoint) (int, error) {
	e.record("AddBreakpoint")
	e.mu.Lock()
	defer e.mu.Unlock()
	stored := *bp
	stored.ID = e.nextID
	stored.Verified = true
	e.nextID++
	e.breakpoints[stored.ID] = &stored
	bp.ID = stored.ID
	bp.Verified = true
	return stored.ID, nil
}

// RemoveBreakpoint deletes a breakpoint by id.
func (e *Engine) RemoveBreakpoint(_ context.Context, id int) error {
	e.record("RemoveBreakpoint")
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.breakpoints[id]; !ok {
		return fmt.Errorf("enginetest: no breakpoint %d", id)
	}
	delete(e.breakpoints, id)
	return nil
}

// AddCatchpoint stores a copy of the catchpoint.
func (e *Engine) AddCatchpoint(_ context.Context, cp *engine.Catchpoint) error {
	e.record("AddCatchpoint")
	e.mu.Lock()
	defer e.mu.Unlock()
	stored := *cp
	stored.Ignored = append([]string(nil), cp.Ignored...)
	e.catchpoints = append(e.catchpoints, &stored)
	return nil
}

// ClearCatchpoints drops every catchpoint.
func (e *Engine) ClearCatchpoints(context.Context) error {
	e.record("ClearCatchpoints")
	e.mu.Lock()
	defer e.mu.Unlock()
	e.catchpoints = nil
	return nil
}

// Threads returns the scripted thread list.
func (e *Engine) Threads(context.Context) ([]engine.Thread, error) {
	e.record("Threads")
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]engine.Thread(nil), e.threads...), nil
}

// Backtrace returns the scripted backtrace of a thread.
func (e *Engine) Backtrace(_ context.Context, threadID int64) (engine.Backtrace, error) {
	e.record("Backtrace")
	e.mu.Lock()
	defer e.mu.Unlock()
	frames, ok := e.frames[threadID]
	if !ok {
		return nil, fmt.Errorf("enginetest: no backtrace for thread %d", threadID)
	}
	return &backtrace{frames: frames, holes: e.holes[threadID]}, nil
}

// Evaluate runs the expression with expr against the scripted locals, or
// returns the canned result when one is stubbed.
func (e *Engine) Evaluate(frame *engine.StackFrame, expression string, opts engine.Options) (*engine.Pending, error) {
	e.record("Evaluate")

	e.mu.Lock()
	stub := e.stubs[expression]
	env := e.envLocked()
	resolver := e.resolver
	e.mu.Unlock()

	pending := engine.NewPending()
	delay := e.EvalDelay

	complete := func(v *engine.Value) {
		if delay > 0 {
			go func() {
				time.Sleep(delay)
				pending.Complete(v)
			}()
			return
		}
		pending.Complete(v)
	}

	if stub != nil {
		complete(stub)
		return pending, nil
	}

	out, err := runExpr(expression, env)
	if err != nil {
		if opts.UseTypeResolver && resolver != nil {
			loc := engine.SourceLocation{}
			if frame != nil {
				loc = frame.Location
			}
			e.mu.Lock()
			e.resolverCalls = append(e.resolverCalls, expression)
			e.mu.Unlock()
			if full, ok := resolver(expression, loc); ok {
				complete(&engine.Value{
					TypeName: full,
					Display:  full,
					Flags:    engine.FlagObject | engine.FlagNamespace,
				})
				return pending, nil
			}
		}
		complete(&engine.Value{Flags: engine.FlagUnknown, Display: err.Error()})
		return pending, nil
	}

	complete(e.makeValue("", out, nil))
	return pending, nil
}

// Children expands a composite value into its immediate children.
func (e *Engine) Children(v *engine.Value, _ engine.Options) ([]*engine.Value, error) {
	e.record("Children")
	e.mu.Lock()
	parent, ok := e.native[v]
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("enginetest: unknown value %q", v.Name)
	}
	return e.childrenOf(parent), nil
}

// FrameVariables returns the scripted locals as values.
func (e *Engine) FrameVariables(_ *engine.StackFrame, _ engine.Options) ([]*engine.Value, error) {
	e.record("FrameVariables")
	e.mu.Lock()
	names := make([]string, 0, len(e.locals))
	for name := range e.locals {
		names = append(names, name)
	}
	e.mu.Unlock()
	sort.Strings(names)

	out := make([]*engine.Value, 0, len(names))
	for _, name := range names {
		name := name
		e.mu.Lock()
		val := e.locals[name]
		e.mu.Unlock()
		out = append(out, e.makeValue(name, val, func(nv any) {
			e.mu.Lock()
			e.locals[name] = nv
			e.mu.Unlock()
		}))
	}
	return out, nil
}

// Assign evaluates the literal and writes it through the value's setter.
func (e *Engine) Assign(v *engine.Value, literal string, _ engine.Options) (*engine.Value, error) {
	e.record("Assign")
	e.mu.Lock()
	setter := e.setters[v]
	env := e.envLocked()
	e.mu.Unlock()
	if setter == nil {
		return nil, fmt.Errorf("enginetest: value %q is not assignable", v.Name)
	}

	out, err := runExpr(literal, env)
	if err != nil {
		return &engine.Value{Name: v.Name, Flags: engine.FlagError, Display: err.Error()}, nil
	}
	setter(out)
	return e.makeValue(v.Name, out, setter), nil
}

// ResolveTypeName expands a scripted short type name.
func (e *Engine) ResolveTypeName(_ *engine.StackFrame, shortName string) (string, bool) {
	e.record("ResolveTypeName")
	e.mu.Lock()
	defer e.mu.Unlock()
	full, ok := e.types[shortName]
	return full, ok
}

// SetNextStatement records the requested jump location.
func (e *Engine) SetNextStatement(_ context.Context, threadID int64, file string, line, column int) error {
	e.record("SetNextStatement")
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastJump = jump{ThreadID: threadID, File: file, Line: line, Column: column}
	return nil
}

// LastJump returns the location of the last SetNextStatement call.
func (e *Engine) LastJump() (threadID int64, file string, line, column int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastJump.ThreadID, e.lastJump.File, e.lastJump.Line, e.lastJump.Column
}

// SetTypeResolver installs the external resolution hook.
func (e *Engine) SetTypeResolver(fn engine.TypeResolver) {
	e.record("SetTypeResolver")
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resolver = fn
}

// Events returns the engine event channel.
func (e *Engine) Events() <-chan engine.Event { return e.events }

// --- internals ---

type jump struct {
	ThreadID int64
	File     string
	Line     int
	Column   int
}

type backtrace struct {
	frames []*engine.StackFrame
	holes  map[int]bool
}

func (b *backtrace) FrameCount() int { return len(b.frames) }

func (b *backtrace) Frame(index int) (*engine.StackFrame, bool) {
	if index < 0 || index >= len(b.frames) || b.holes[index] {
		return nil, false
	}
	return b.frames[index], true
}

func (e *Engine) record(method string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls[method]++
}

func (e *Engine) setRunning(running bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running = running
}

func (e *Engine) emit(ev engine.Event) {
	e.mu.Lock()
	disposed := e.disposed
	e.mu.Unlock()
	if disposed {
		return
	}
	e.events <- ev
}

// envLocked snapshots the locals for expr. Caller holds e.mu.
func (e *Engine) envLocked() map[string]any {
	env := make(map[string]any, len(e.locals))
	for k, v := range e.locals {
		env[k] = v
	}
	return env
}

func runExpr(expression string, env map[string]any) (any, error) {
	program, err := expr.Compile(expression, expr.Env(env), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, err
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return nil, err
	}
	if out == nil {
		// expr resolves undefined variables to nil; treat a bare unknown
		// identifier as an unbound name like a real engine would.
		if _, defined := env[strings.TrimSpace(expression)]; !defined && isIdentifier(expression) {
			return nil, fmt.Errorf("unknown identifier %q", expression)
		}
	}
	return out, nil
}

func isIdentifier(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

// makeValue wraps a native Go value. setter, when non-nil, makes the value
// assignable.
func (e *Engine) makeValue(name string, native any, setter func(any)) *engine.Value {
	v := &engine.Value{
		Name:     name,
		TypeName: typeNameOf(native),
		Display:  renderNative(native),
		IsNull:   native == nil,
	}
	if isComposite(native) {
		v.Flags |= engine.FlagObject
		v.HasChildren = true
	}

	e.mu.Lock()
	e.native[v] = native
	if setter != nil {
		e.setters[v] = setter
	}
	e.mu.Unlock()
	return v
}

func (e *Engine) childrenOf(parent any) []*engine.Value {
	rv := reflect.ValueOf(parent)
	switch rv.Kind() {
	case reflect.Map:
		keys := make([]string, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			keys = append(keys, fmt.Sprint(k.Interface()))
		}
		sort.Strings(keys)
		out := make([]*engine.Value, 0, len(keys))
		for _, key := range keys {
			key := key
			child := rv.MapIndex(reflect.ValueOf(key)).Interface()
			out = append(out, e.makeValue(key, child, func(nv any) {
				rv.SetMapIndex(reflect.ValueOf(key), reflect.ValueOf(nv))
			}))
		}
		return out
	case reflect.Slice, reflect.Array:
		out := make([]*engine.Value, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out = append(out, e.makeValue(fmt.Sprintf("[%d]", i), rv.Index(i).Interface(), nil))
		}
		return out
	default:
		return nil
	}
}

func isComposite(v any) bool {
	if v == nil {
		return false
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		return true
	}
	return false
}

func typeNameOf(v any) string {
	if v == nil {
		return "object"
	}
	return reflect.TypeOf(v).String()
}

// renderNative mimics the engine's display form: composites render inside
// braces, strings are quoted, null references render as "null".
func renderNative(v any) string {
	if v == nil {
		return "null"
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		keys := make([]string, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			keys = append(keys, fmt.Sprint(k.Interface()))
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, key := range keys {
			parts = append(parts, fmt.Sprintf("%s=%s", key,
				renderScalar(rv.MapIndex(reflect.ValueOf(key)).Interface())))
		}
		return "{" + strings.Join(parts, " ") + "}"
	case reflect.Slice, reflect.Array:
		parts := make([]string, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			parts = append(parts, renderScalar(rv.Index(i).Interface()))
		}
		return "{" + strings.Join(parts, " ") + "}"
	default:
		return renderScalar(v)
	}
}

func renderScalar(v any) string {
	if s, ok := v.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	if v == nil {
		return "null"
	}
	if isComposite(v) {
		return "{...}"
	}
	return fmt.Sprint(v)
}
