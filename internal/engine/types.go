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

// SourceLocation identifies a position in a source file.
type SourceLocation struct {
	File   string
	Line   int
	Column int
}

// Thread describes one debuggee thread.
type Thread struct {
	// ID is the engine's thread identifier.
	ID int64

	// Name is the thread name, empty for unnamed threads.
	Name string

	// IsRuntime marks engine- or runtime-internal worker threads (finalizer,
	// JIT helpers) that never execute user code.
	IsRuntime bool
}

// StackFrame is a snapshot of one frame in a suspended thread's call stack.
type StackFrame struct {
	// ThreadID is the owning thread.
	ThreadID int64

	// Index is the frame's position in the backtrace, 0 = innermost.
	Index int

	// Name is the fully-qualified method name.
	Name string

	// Location is the source position, zero-valued when no symbols map it.
	Location SourceLocation

	// Language is the source language of the method, e.g. "C#".
	Language string

	// Assembly is the name of the assembly the method lives in.
	Assembly string

	// HasSymbols reports whether debug symbols are loaded for the method.
	HasSymbols bool

	// IsTransition marks runtime-internal transition frames (native to
	// managed trampolines) that carry no user code.
	IsTransition bool
}

// Backtrace is the captured call stack of one suspended thread.
type Backtrace interface {
	// FrameCount returns the number of frames in the stack.
	FrameCount() int

	// Frame returns the frame at the given index. ok is false when the
	// engine cannot materialize that frame.
	Frame(index int) (*StackFrame, bool)
}

// ValueFlags classifies an evaluation result.
type ValueFlags uint8

const (
	// FlagError marks a value the engine failed to produce; Display carries
	// the engine's error text.
	FlagError ValueFlags = 1 << iota

	// FlagNotSupported marks an expression the engine cannot evaluate.
	FlagNotSupported

	// FlagUnknown marks an identifier the engine could not bind.
	FlagUnknown

	// FlagObject marks a composite object value.
	FlagObject

	// FlagNamespace marks a bare namespace reference.
	FlagNamespace
)

// Has reports whether every flag in mask is set.
func (f ValueFlags) Has(mask ValueFlags) bool { return f&mask == mask }

// Value is one node in the debuggee's value graph: an evaluation result, a
// local variable, or a child of either.
type Value struct {
	// Name is the variable or member name, empty for evaluation results.
	Name string

	// TypeName is the declared type, fully qualified.
	TypeName string

	// Display is the engine's rendered representation.
	Display string

	// Flags classifies the value.
	Flags ValueFlags

	// HasChildren reports whether the value has enumerable children.
	HasChildren bool

	// IsNull reports whether the value is a null reference. Null references
	// never expose children even when their type would.
	IsNull bool
}

// Breakpoint is the engine-side form of a source or function breakpoint.
type Breakpoint struct {
	// ID is assigned by the engine on AddBreakpoint.
	ID int

	// Location places a source breakpoint; zero-valued for function
	// breakpoints.
	Location SourceLocation

	// Function names a function breakpoint; empty for source breakpoints.
	Function string

	// Language qualifies Function, e.g. "C#".
	Language string

	// Condition is an expression that must evaluate true for the breakpoint
	// to trigger. Passed to the engine verbatim.
	Condition string

	// HitCount, when non-zero, triggers only on exactly the Nth hit.
	HitCount int

	// TraceOnly marks a non-stopping breakpoint that emits TraceText
	// instead of pausing execution.
	TraceOnly bool

	// TraceText is the output emitted when a TraceOnly breakpoint is hit.
	TraceText string

	// Verified reports whether the engine has bound the breakpoint to code.
	// Owned by the engine, read-only here.
	Verified bool
}

// Catchpoint triggers when an exception of a matching type is thrown.
type Catchpoint struct {
	// TypeName is the exception type to catch.
	TypeName string

	// IncludeSubclasses extends the match to derived exception types. The
	// catch-all catchpoint is the base exception type with subclasses on.
	IncludeSubclasses bool

	// Ignored lists exception type names exempted from a catch-all.
	Ignored []string
}

// ExceptionDetail describes the exception a stop-class event reported.
type ExceptionDetail struct {
	// TypeName is the thrown exception's type.
	TypeName string

	// Message is the exception message, possibly empty.
	Message string

	// Unhandled reports whether the exception had no handler.
	Unhandled bool
}

// Assembly describes a loaded debuggee assembly.
type Assembly struct {
	// Name is the assembly's simple name.
	Name string

	// Path is the on-disk location, empty for dynamic assemblies.
	Path string

	// HasSymbols reports whether debug symbols were found for it.
	HasSymbols bool
}
