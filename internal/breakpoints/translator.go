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

// Package breakpoints translates client breakpoint specifications into the
// engine's breakpoint and catchpoint objects.
//
// The translator mirrors what it has installed so each setBreakpoints call
// can replace the previous set: source breakpoints are replaced per file,
// function breakpoints and exception catchpoints are replaced wholesale.
// Mirrors are never merged across calls.
package breakpoints

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/tombee/monodap/internal/engine"
)

// FilterAll is the id of the single supported exception filter.
const FilterAll = "all"

// LogPointPrefix prefixes the trace text of every log-message breakpoint.
const LogPointPrefix = "[LogPoint]: "

// catchAllType is the exception base type a catch-all catchpoint binds to.
const catchAllType = "System.Exception"

// SourceSpec is one client source breakpoint.
type SourceSpec struct {
	Line         int
	Column       int
	Condition    string
	HitCondition string
	LogMessage   string
}

// FunctionSpec is one client function breakpoint. Name may be qualified as
// "<language>!<name>".
type FunctionSpec struct {
	Name         string
	Condition    string
	HitCondition string
}

// FilterOption is one client exception-filter option.
type FilterOption struct {
	FilterID  string
	Condition string
}

// Result reports one installed breakpoint back to the client.
type Result struct {
	ID       int
	Verified bool
	Line     int
	Column   int
}

// Translator converts client breakpoint specs into engine breakpoints and
// keeps the per-file and function mirrors needed for replace-all semantics.
type Translator struct {
	engine   engine.Engine
	logger   *slog.Logger
	language string

	mu        sync.Mutex
	files     map[string][]int // normalized path -> engine breakpoint ids
	functions []int
}

// New creates a translator. language is the default language tag applied to
// unqualified function breakpoints, e.g. "C#".
func New(eng engine.Engine, language string, logger *slog.Logger) *Translator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Translator{
		engine:   eng,
		logger:   logger,
		language: language,
		files:    make(map[string][]int),
	}
}

// SetSource replaces every mirrored breakpoint for path with the given specs.
func (t *Translator) SetSource(ctx context.Context, path string, specs []SourceSpec) ([]Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, id := range t.files[path] {
		if err := t.engine.RemoveBreakpoint(ctx, id); err != nil {
			t.logger.Warn("failed to remove breakpoint", slog.Int("id", id), slog.Any("error", err))
		}
	}
	delete(t.files, path)

	results := make([]Result, 0, len(specs))
	ids := make([]int, 0, len(specs))
	for _, spec := range specs {
		column := spec.Column
		if column == 0 {
			column = 1
		}
		bp := &engine.Breakpoint{
			Location:  engine.SourceLocation{File: path, Line: spec.Line, Column: column},
			Condition: spec.Condition,
			HitCount:  parseHitCondition(spec.HitCondition),
		}
		applyLogMessage(bp, spec.LogMessage)

		id, err := t.engine.AddBreakpoint(ctx, bp)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
		results = append(results, Result{ID: id, Verified: bp.Verified, Line: spec.Line, Column: column})
	}
	if len(ids) > 0 {
		t.files[path] = ids
	}

	t.logger.Debug("source breakpoints replaced",
		slog.String("file", path), slog.Int("count", len(ids)))
	return results, nil
}

// SetFunctions replaces every mirrored function breakpoint with the given
// specs.
func (t *Translator) SetFunctions(ctx context.Context, specs []FunctionSpec) ([]Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, id := range t.functions {
		if err := t.engine.RemoveBreakpoint(ctx, id); err != nil {
			t.logger.Warn("failed to remove function breakpoint", slog.Int("id", id), slog.Any("error", err))
		}
	}
	t.functions = nil

	results := make([]Result, 0, len(specs))
	for _, spec := range specs {
		language, name := splitQualifiedName(spec.Name, t.language)
		bp := &engine.Breakpoint{
			Function:  name,
			Language:  language,
			Condition: spec.Condition,
			HitCount:  parseHitCondition(spec.HitCondition),
		}

		id, err := t.engine.AddBreakpoint(ctx, bp)
		if err != nil {
			return nil, err
		}
		t.functions = append(t.functions, id)
		results = append(results, Result{ID: id, Verified: bp.Verified})
	}
	return results, nil
}

// SetExceptionFilters replaces every catchpoint according to the filter
// options. Options for unknown filter ids are ignored.
func (t *Translator) SetExceptionFilters(ctx context.Context, opts []FilterOption) error {
	if err := t.engine.ClearCatchpoints(ctx); err != nil {
		return err
	}

	for _, opt := range opts {
		if opt.FilterID != FilterAll {
			continue
		}
		for _, cp := range ParseFilterCondition(opt.Condition) {
			if err := t.engine.AddCatchpoint(ctx, cp); err != nil {
				return err
			}
		}
	}
	return nil
}

// ParseFilterCondition expands one "all exceptions" filter condition into
// catchpoints:
//
//	""            -> one catch-all
//	"!Foo, Bar"   -> one catch-all ignoring Foo and Bar
//	"Foo, Bar"    -> one catchpoint per listed type, no catch-all
func ParseFilterCondition(condition string) []*engine.Catchpoint {
	condition = strings.TrimSpace(condition)

	if condition == "" {
		return []*engine.Catchpoint{{TypeName: catchAllType, IncludeSubclasses: true}}
	}

	if rest, ok := strings.CutPrefix(condition, "!"); ok {
		return []*engine.Catchpoint{{
			TypeName:          catchAllType,
			IncludeSubclasses: true,
			Ignored:           splitTypeList(rest),
		}}
	}

	var cps []*engine.Catchpoint
	for _, name := range splitTypeList(condition) {
		cps = append(cps, &engine.Catchpoint{TypeName: name})
	}
	return cps
}

// parseHitCondition maps a hit-condition string to an engine hit count:
// empty means every hit, an integer means stop on exactly that hit, and any
// other non-empty string defaults to 1.
func parseHitCondition(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return n
}

// applyLogMessage converts a breakpoint into a non-stopping tracepoint when
// a log message is present.
func applyLogMessage(bp *engine.Breakpoint, message string) {
	if message == "" {
		return
	}
	bp.TraceOnly = true
	bp.TraceText = LogPointPrefix + message
}

// splitQualifiedName splits "<language>!<name>" on the first '!', defaulting
// the language when the name is unqualified.
func splitQualifiedName(name, defaultLanguage string) (language, bare string) {
	if lang, rest, ok := strings.Cut(name, "!"); ok {
		return lang, rest
	}
	return defaultLanguage, name
}

// splitTypeList splits a comma-separated type list, trimming whitespace and
// dropping empty elements.
func splitTypeList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
