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

package breakpoints

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/monodap/internal/engine"
	"github.com/tombee/monodap/internal/engine/enginetest"
)

func newTranslator(t *testing.T) (*Translator, *enginetest.Engine) {
	t.Helper()
	eng := enginetest.New()
	return New(eng, "C#", nil), eng
}

func TestSetSourceReplacesPerFile(t *testing.T) {
	tr, eng := newTranslator(t)
	ctx := context.Background()

	_, err := tr.SetSource(ctx, "/src/Game.cs", []SourceSpec{{Line: 10}, {Line: 20}})
	require.NoError(t, err)
	_, err = tr.SetSource(ctx, "/src/Other.cs", []SourceSpec{{Line: 5}})
	require.NoError(t, err)

	// Replacing Game.cs must drop its previous breakpoints, leave Other.cs
	// alone, and never produce a union of calls.
	_, err = tr.SetSource(ctx, "/src/Game.cs", []SourceSpec{{Line: 30}})
	require.NoError(t, err)

	var lines []int
	for _, bp := range eng.Breakpoints() {
		lines = append(lines, bp.Location.Line)
	}
	assert.ElementsMatch(t, []int{5, 30}, lines)
}

func TestSetSourceEmptySetClearsFile(t *testing.T) {
	tr, eng := newTranslator(t)
	ctx := context.Background()

	_, err := tr.SetSource(ctx, "/src/Game.cs", []SourceSpec{{Line: 10}})
	require.NoError(t, err)
	results, err := tr.SetSource(ctx, "/src/Game.cs", nil)
	require.NoError(t, err)

	assert.Empty(t, results)
	assert.Empty(t, eng.Breakpoints())
}

func TestSetSourceDefaults(t *testing.T) {
	tr, eng := newTranslator(t)

	results, err := tr.SetSource(context.Background(), "/src/Game.cs", []SourceSpec{
		{Line: 12, Condition: "health < 10", HitCondition: "3"},
		{Line: 20, Column: 8, HitCondition: "notanumber"},
		{Line: 25},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	bps := eng.Breakpoints()
	require.Len(t, bps, 3)

	// Condition passes through verbatim, integer hit condition is honored,
	// missing column defaults to 1.
	assert.Equal(t, "health < 10", bps[0].Condition)
	assert.Equal(t, 3, bps[0].HitCount)
	assert.Equal(t, 1, bps[0].Location.Column)

	// Unparsable hit condition defaults to 1.
	assert.Equal(t, 1, bps[1].HitCount)
	assert.Equal(t, 8, bps[1].Location.Column)

	// No hit condition means every hit.
	assert.Equal(t, 0, bps[2].HitCount)
}

func TestSetSourceLogMessage(t *testing.T) {
	tr, eng := newTranslator(t)

	_, err := tr.SetSource(context.Background(), "/src/Game.cs", []SourceSpec{
		{Line: 10, LogMessage: "entered update"},
	})
	require.NoError(t, err)

	bp := eng.Breakpoints()[0]
	assert.True(t, bp.TraceOnly)
	assert.Equal(t, "[LogPoint]: entered update", bp.TraceText)
}

func TestSetFunctionsReplacesAll(t *testing.T) {
	tr, eng := newTranslator(t)
	ctx := context.Background()

	_, err := tr.SetFunctions(ctx, []FunctionSpec{{Name: "Game.Update"}, {Name: "Game.Start"}})
	require.NoError(t, err)
	_, err = tr.SetFunctions(ctx, []FunctionSpec{{Name: "Fs!List.map"}})
	require.NoError(t, err)

	bps := eng.Breakpoints()
	require.Len(t, bps, 1)
	assert.Equal(t, "List.map", bps[0].Function)
	assert.Equal(t, "Fs", bps[0].Language)
}

func TestSetFunctionsDefaultLanguage(t *testing.T) {
	tr, eng := newTranslator(t)

	_, err := tr.SetFunctions(context.Background(), []FunctionSpec{
		{Name: "Game.Update", Condition: "frame > 100", HitCondition: "2"},
	})
	require.NoError(t, err)

	bp := eng.Breakpoints()[0]
	assert.Equal(t, "Game.Update", bp.Function)
	assert.Equal(t, "C#", bp.Language)
	assert.Equal(t, "frame > 100", bp.Condition)
	assert.Equal(t, 2, bp.HitCount)
}

func TestParseFilterCondition(t *testing.T) {
	tests := []struct {
		name      string
		condition string
		want      []*engine.Catchpoint
	}{
		{
			name:      "empty condition catches all",
			condition: "",
			want: []*engine.Catchpoint{
				{TypeName: "System.Exception", IncludeSubclasses: true},
			},
		},
		{
			name:      "ignore list",
			condition: "!Foo, Bar",
			want: []*engine.Catchpoint{
				{TypeName: "System.Exception", IncludeSubclasses: true, Ignored: []string{"Foo", "Bar"}},
			},
		},
		{
			name:      "explicit inclusion list",
			condition: "Foo, Bar",
			want: []*engine.Catchpoint{
				{TypeName: "Foo"},
				{TypeName: "Bar"},
			},
		},
		{
			name:      "whitespace trimmed",
			condition: "  ! Foo ,, Bar ",
			want: []*engine.Catchpoint{
				{TypeName: "System.Exception", IncludeSubclasses: true, Ignored: []string{"Foo", "Bar"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseFilterCondition(tt.condition))
		})
	}
}

func TestSetExceptionFiltersClearsFirst(t *testing.T) {
	tr, eng := newTranslator(t)
	ctx := context.Background()

	require.NoError(t, tr.SetExceptionFilters(ctx, []FilterOption{{FilterID: FilterAll, Condition: ""}}))
	require.NoError(t, tr.SetExceptionFilters(ctx, []FilterOption{{FilterID: FilterAll, Condition: "Foo, Bar"}}))

	cps := eng.Catchpoints()
	require.Len(t, cps, 2)
	assert.Equal(t, "Foo", cps[0].TypeName)
	assert.Equal(t, "Bar", cps[1].TypeName)
}

func TestSetExceptionFiltersIgnoresUnknownID(t *testing.T) {
	tr, eng := newTranslator(t)

	require.NoError(t, tr.SetExceptionFilters(context.Background(), []FilterOption{
		{FilterID: "uncaught", Condition: ""},
	}))
	assert.Empty(t, eng.Catchpoints())
}

func TestLogpointNeverStops(t *testing.T) {
	tr, eng := newTranslator(t)

	results, err := tr.SetSource(context.Background(), "/src/Game.cs", []SourceSpec{
		{Line: 10, LogMessage: "hit"},
	})
	require.NoError(t, err)

	eng.TriggerBreakpoint(results[0].ID, 1)

	ev := <-eng.Events()
	assert.Equal(t, engine.EventOutput, ev.Type)
	assert.Equal(t, "[LogPoint]: hit", ev.Output)
	select {
	case extra := <-eng.Events():
		t.Fatalf("unexpected second event %v", extra.Type)
	default:
	}
}

func TestFalseConditionNeverStops(t *testing.T) {
	tr, eng := newTranslator(t)
	eng.SetLocal("health", 50)

	results, err := tr.SetSource(context.Background(), "/src/Game.cs", []SourceSpec{
		{Line: 10, Condition: "health < 10"},
	})
	require.NoError(t, err)

	eng.TriggerBreakpoint(results[0].ID, 1)
	select {
	case ev := <-eng.Events():
		t.Fatalf("unexpected event %v", ev.Type)
	default:
	}

	eng.SetLocal("health", 5)
	eng.TriggerBreakpoint(results[0].ID, 1)
	ev := <-eng.Events()
	assert.Equal(t, engine.EventBreakpointHit, ev.Type)
}
