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

// Package engine defines the boundary to the soft-debugger engine that owns
// the live connection to the debuggee process.
//
// The engine is asynchronous: it raises lifecycle events from its own
// background goroutines on the channel returned by Events, while the methods
// below are called synchronously from the adapter's dispatch goroutine.
// Evaluation bridges the two worlds with Pending, a single bounded wait.
//
// Everything that may legitimately be absent (a frame the engine cannot
// materialize, an evaluation that produced no value) is reported through an
// explicit ok bool or error, never through a nil that callers must guess at.
package engine

import (
	"context"
	"time"
)

// StartParams describes how to reach the debuggee's debug agent.
type StartParams struct {
	// Address is the host the debug agent listens on.
	Address string

	// Port is the debug agent port.
	Port int

	// ProcessName is an optional human-readable name for logs and events.
	ProcessName string
}

// TypeResolver maps a source identifier at a location to a fully-qualified
// type name. Returning ok=false means unresolved; the engine then falls back
// to its built-in resolution.
type TypeResolver func(identifier string, loc SourceLocation) (typeName string, ok bool)

// Options controls a single evaluation or child-expansion call.
type Options struct {
	// Timeout bounds how long the caller will wait for a result.
	Timeout time.Duration

	// AllowMethodInvocation permits the engine to invoke debuggee methods
	// (property getters, ToString) while materializing a value.
	AllowMethodInvocation bool

	// UseTypeResolver enables the installed external type resolver for this
	// call. Hover evaluations must leave it off.
	UseTypeResolver bool
}

// Clone returns a copy of the options that can be mutated per call.
func (o Options) Clone() Options { return o }

// Engine is the surface the adapter consumes from the soft debugger.
//
// Detach, Dispose and Exit may each be invoked more than once; second and
// later calls are no-ops.
type Engine interface {
	// Attach connects to the debuggee's debug agent and begins execution.
	Attach(ctx context.Context, params StartParams) error

	// Detach disconnects from the debuggee, leaving it running.
	Detach()

	// Dispose releases the engine's resources. Idempotent.
	Dispose()

	// Resume continues execution of all threads.
	Resume(ctx context.Context) error

	// Pause suspends execution of all threads.
	Pause(ctx context.Context) error

	// StepOver executes the next statement in the given thread without
	// entering calls.
	StepOver(ctx context.Context, threadID int64) error

	// StepIn executes the next statement, entering calls.
	StepIn(ctx context.Context, threadID int64) error

	// StepOut runs until the current method returns.
	StepOut(ctx context.Context, threadID int64) error

	// AddBreakpoint registers a breakpoint and returns its engine id.
	AddBreakpoint(ctx context.Context, bp *Breakpoint) (int, error)

	// RemoveBreakpoint removes a breakpoint by its engine id.
	RemoveBreakpoint(ctx context.Context, id int) error

	// AddCatchpoint registers an exception catchpoint.
	AddCatchpoint(ctx context.Context, cp *Catchpoint) error

	// ClearCatchpoints removes every exception catchpoint.
	ClearCatchpoints(ctx context.Context) error

	// Threads enumerates the debuggee's threads.
	Threads(ctx context.Context) ([]Thread, error)

	// Backtrace captures the call stack of a suspended thread.
	Backtrace(ctx context.Context, threadID int64) (Backtrace, error)

	// Evaluate starts evaluating an expression against a frame. The call
	// returns immediately; the result arrives through the Pending.
	Evaluate(frame *StackFrame, expression string, opts Options) (*Pending, error)

	// Children enumerates the immediate child values of a composite value.
	Children(v *Value, opts Options) ([]*Value, error)

	// FrameVariables enumerates the locals and arguments visible in a frame.
	FrameVariables(frame *StackFrame, opts Options) ([]*Value, error)

	// Assign writes a literal to an lvalue and returns the re-read value.
	Assign(v *Value, literal string, opts Options) (*Value, error)

	// ResolveTypeName expands a short type name to its fully-qualified form
	// using the types visible from the given frame.
	ResolveTypeName(frame *StackFrame, shortName string) (string, bool)

	// SetNextStatement moves the instruction pointer of a suspended thread
	// to the given source location.
	SetNextStatement(ctx context.Context, threadID int64, file string, line, column int) error

	// SetTypeResolver installs the external identifier-resolution hook.
	// Passing nil removes it.
	SetTypeResolver(fn TypeResolver)

	// Events returns the channel on which the engine publishes lifecycle
	// events. The channel is closed on Dispose.
	Events() <-chan Event
}
