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

// Package eval drives bounded-time expression evaluation against a selected
// stack frame and renders the results for the protocol.
//
// Evaluation blocks the dispatch goroutine for at most the configured
// timeout. That stalls other client requests while it runs, which is fine:
// the protocol is strictly one request at a time. There is no cancellation
// beyond the timeout; an abandoned engine-side evaluation finishes on its
// own and the next stop-class event invalidates anything it produced.
package eval

import (
	"log/slog"
	"strings"
	"time"

	"github.com/tombee/monodap/internal/engine"
	"github.com/tombee/monodap/internal/handles"
)

// Context classifies where an evaluation request came from.
type Context string

const (
	// ContextNone is a plain evaluate request (watch, repl).
	ContextNone Context = ""

	// ContextHover is an editor hover. Hover evaluations never trigger the
	// external type resolver.
	ContextHover Context = "hover"
)

// Reason distinguishes the user-visible evaluation failure classes.
type Reason int

const (
	// ReasonTimeout: the result did not arrive within the timeout.
	ReasonTimeout Reason = iota

	// ReasonEngine: the engine flagged the result as an error or as not
	// supported; the message carries the engine's display text.
	ReasonEngine

	// ReasonInvalid: the engine could not bind the expression.
	ReasonInvalid

	// ReasonNotAvailable: the expression named a type or namespace rather
	// than a value.
	ReasonNotAvailable
)

// Error is a user-visible evaluation failure.
type Error struct {
	Reason  Reason
	Message string
}

func (e *Error) Error() string { return e.Message }

// NotFoundError reports a stale or unknown reference named by the request.
type NotFoundError struct {
	// What names the missing resource class, e.g. "variablesReference" or
	// "variable".
	What string
	Name string
}

func (e *NotFoundError) Error() string {
	if e.Name != "" {
		return e.What + " " + e.Name + " not found"
	}
	return e.What + " not found"
}

// Result is a successful evaluation or assignment.
type Result struct {
	// Display is the single-line rendering of the value.
	Display string

	// TypeName is the value's declared type.
	TypeName string

	// ChildrenHandle references the value's lazy children provider, 0 when
	// the value has none.
	ChildrenHandle int
}

// Variable is one rendered child node.
type Variable struct {
	Name           string
	TypeName       string
	Display        string
	ChildrenHandle int
}

// Config holds the orchestrator's session-scoped defaults.
type Config struct {
	// Timeout bounds every evaluation and child-expansion wait.
	// Default: 1 second.
	Timeout time.Duration

	// Defaults are the engine options cloned for each call.
	Defaults engine.Options
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout: time.Second,
		Defaults: engine.Options{
			AllowMethodInvocation: true,
			UseTypeResolver:       true,
		},
	}
}

// Orchestrator evaluates expressions, expands children and assigns values
// against the engine, registering children providers in the handle registry.
type Orchestrator struct {
	engine   engine.Engine
	registry *handles.Registry
	logger   *slog.Logger
	cfg      Config
}

// New creates an orchestrator.
func New(eng engine.Engine, registry *handles.Registry, cfg Config, logger *slog.Logger) *Orchestrator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{engine: eng, registry: registry, logger: logger, cfg: cfg}
}

// Evaluate runs one expression against a frame and waits for the result.
func (o *Orchestrator) Evaluate(frame *engine.StackFrame, expression string, evalCtx Context) (*Result, error) {
	expression = Normalize(expression)

	opts := o.cfg.Defaults.Clone()
	opts.Timeout = o.cfg.Timeout
	if evalCtx == ContextHover {
		opts.UseTypeResolver = false
	}

	start := time.Now()
	pending, err := o.engine.Evaluate(frame, expression, opts)
	if err != nil {
		return nil, err
	}

	v, ok := pending.Wait(o.cfg.Timeout)
	if !ok {
		o.logger.Debug("evaluation timed out",
			slog.String("expression", expression),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()))
		return nil, &Error{Reason: ReasonTimeout, Message: "evaluation timed out"}
	}

	if err := classify(v); err != nil {
		return nil, err
	}
	return o.result(v), nil
}

// Expand resolves a children handle and enumerates its child nodes.
func (o *Orchestrator) Expand(handle int) ([]Variable, error) {
	entry, ok := o.registry.ChildrenAt(handle)
	if !ok {
		return nil, &NotFoundError{What: "variablesReference"}
	}

	values, err := o.children(entry)
	if err != nil {
		return nil, err
	}

	vars := make([]Variable, 0, len(values))
	for _, v := range values {
		vars = append(vars, Variable{
			Name:           v.Name,
			TypeName:       v.TypeName,
			Display:        Render(v.Display),
			ChildrenHandle: o.childrenHandle(v),
		})
	}
	return vars, nil
}

// FrameLocals enumerates the locals and arguments of a frame as rendered
// variables, without going through a handle.
func (o *Orchestrator) FrameLocals(frame *engine.StackFrame) ([]Variable, error) {
	values, err := o.engine.FrameVariables(frame, o.callOptions())
	if err != nil {
		return nil, err
	}
	vars := make([]Variable, 0, len(values))
	for _, v := range values {
		vars = append(vars, Variable{
			Name:           v.Name,
			TypeName:       v.TypeName,
			Display:        Render(v.Display),
			ChildrenHandle: o.childrenHandle(v),
		})
	}
	return vars, nil
}

// SetVariable assigns a literal to the named child of a children handle and
// returns the re-rendered value. frame, when non-nil, provides type lookup
// for the "new <ShortTypeName>" rewrite; quick-watch style edits rely on it.
func (o *Orchestrator) SetVariable(frame *engine.StackFrame, handle int, name, literal string) (*Result, error) {
	entry, ok := o.registry.ChildrenAt(handle)
	if !ok {
		return nil, &NotFoundError{What: "variablesReference"}
	}

	values, err := o.children(entry)
	if err != nil {
		return nil, err
	}

	var target *engine.Value
	for _, v := range values {
		if v.Name == name {
			target = v
			break
		}
	}
	if target == nil {
		return nil, &NotFoundError{What: "variable", Name: name}
	}

	literal = o.rewriteConstructor(frame, Normalize(literal))

	v, err := o.engine.Assign(target, literal, o.callOptions())
	if err != nil {
		return nil, err
	}
	if err := classify(v); err != nil {
		return nil, err
	}
	return o.result(v), nil
}

// children enumerates an entry's child values from the live engine.
func (o *Orchestrator) children(entry *handles.ChildrenEntry) ([]*engine.Value, error) {
	switch entry.Kind {
	case handles.KindFrameLocals:
		return o.engine.FrameVariables(entry.Frame, o.callOptions())
	default:
		return o.engine.Children(entry.Value, o.callOptions())
	}
}

// rewriteConstructor rewrites a "new <ShortTypeName>" prefix to the
// fully-qualified type name. Anything else passes through untouched.
func (o *Orchestrator) rewriteConstructor(frame *engine.StackFrame, literal string) string {
	rest, ok := strings.CutPrefix(literal, "new ")
	if !ok || frame == nil {
		return literal
	}

	rest = strings.TrimLeft(rest, " ")
	end := strings.IndexAny(rest, "({ ")
	typeName := rest
	if end >= 0 {
		typeName = rest[:end]
	}
	if typeName == "" || strings.Contains(typeName, ".") {
		return literal
	}

	full, ok := o.engine.ResolveTypeName(frame, typeName)
	if !ok {
		return literal
	}
	return "new " + full + rest[len(typeName):]
}

func (o *Orchestrator) callOptions() engine.Options {
	opts := o.cfg.Defaults.Clone()
	opts.Timeout = o.cfg.Timeout
	return opts
}

// childrenHandle registers a lazy children provider for a value, 0 when the
// value has no children or is a null reference.
func (o *Orchestrator) childrenHandle(v *engine.Value) int {
	if !v.HasChildren || v.IsNull {
		return 0
	}
	return o.registry.Allocate(&handles.ChildrenEntry{
		Kind:  handles.KindValueChildren,
		Value: v,
	})
}

func (o *Orchestrator) result(v *engine.Value) *Result {
	return &Result{
		Display:        Render(v.Display),
		TypeName:       v.TypeName,
		ChildrenHandle: o.childrenHandle(v),
	}
}

// classify maps engine result flags to the evaluation error taxonomy, in
// priority order. nil means success.
func classify(v *engine.Value) error {
	switch {
	case v.Flags.Has(engine.FlagError) || v.Flags.Has(engine.FlagNotSupported):
		return &Error{Reason: ReasonEngine, Message: v.Display}
	case v.Flags.Has(engine.FlagUnknown):
		return &Error{Reason: ReasonInvalid, Message: "invalid expression"}
	case v.Flags.Has(engine.FlagObject | engine.FlagNamespace):
		return &Error{Reason: ReasonNotAvailable, Message: "not available"}
	}
	return nil
}

// Normalize prepares an expression for the engine: trims whitespace, strips
// trailing semicolons, and collapses the null-conditional operator.
func Normalize(expression string) string {
	expression = strings.TrimSpace(expression)
	expression = strings.TrimRight(expression, ";")
	expression = strings.TrimSpace(expression)
	return strings.ReplaceAll(expression, "?.", ".")
}

// Render flips a composite display value into a single line: one enclosing
// brace pair is stripped and embedded newlines become spaces.
func Render(display string) string {
	if len(display) >= 2 && display[0] == '{' && display[len(display)-1] == '}' {
		display = display[1 : len(display)-1]
	}
	display = strings.ReplaceAll(display, "\r\n", " ")
	display = strings.ReplaceAll(display, "\n", " ")
	return strings.ReplaceAll(display, "\r", " ")
}
