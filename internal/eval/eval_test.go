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

package eval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/monodap/internal/engine"
	"github.com/tombee/monodap/internal/engine/enginetest"
	"github.com/tombee/monodap/internal/handles"
)

func newOrchestrator(t *testing.T, cfg Config) (*Orchestrator, *enginetest.Engine, *handles.Registry) {
	t.Helper()
	eng := enginetest.New()
	registry := handles.NewRegistry()
	return New(eng, registry, cfg, nil), eng, registry
}

func frame() *engine.StackFrame {
	return &engine.StackFrame{
		ThreadID: 1,
		Name:     "Game.Update",
		Location: engine.SourceLocation{File: "/src/Game.cs", Line: 42, Column: 1},
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"player.health", "player.health"},
		{"player.health;", "player.health"},
		{"player.health;; ", "player.health"},
		{"player?.health", "player.health"},
		{"a?.b?.c;", "a.b.c"},
		{"  x  ", "x"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), "input %q", tt.in)
	}
}

func TestRender(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"42", "42"},
		{"{x=1 y=2}", "x=1 y=2"},
		{"line1\nline2", "line1 line2"},
		{"{a\r\nb}", "a b"},
		{"{}", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Render(tt.in), "input %q", tt.in)
	}
}

func TestEvaluateScalar(t *testing.T) {
	o, eng, _ := newOrchestrator(t, DefaultConfig())
	eng.SetLocal("health", 75)

	res, err := o.Evaluate(frame(), "health + 25;", ContextNone)
	require.NoError(t, err)
	assert.Equal(t, "100", res.Display)
	assert.Zero(t, res.ChildrenHandle)
}

func TestEvaluateCompositeRegistersChildren(t *testing.T) {
	o, eng, registry := newOrchestrator(t, DefaultConfig())
	eng.SetLocal("player", map[string]any{"health": 75, "name": "zoe"})

	res, err := o.Evaluate(frame(), "player", ContextNone)
	require.NoError(t, err)
	require.NotZero(t, res.ChildrenHandle)
	assert.Equal(t, `health=75 name="zoe"`, res.Display)

	_, ok := registry.ChildrenAt(res.ChildrenHandle)
	assert.True(t, ok)

	vars, err := o.Expand(res.ChildrenHandle)
	require.NoError(t, err)
	require.Len(t, vars, 2)
	assert.Equal(t, "health", vars[0].Name)
	assert.Equal(t, "75", vars[0].Display)
	assert.Equal(t, "name", vars[1].Name)
	assert.Equal(t, `"zoe"`, vars[1].Display)
}

func TestEvaluateTimeout(t *testing.T) {
	o, eng, _ := newOrchestrator(t, Config{Timeout: 20 * time.Millisecond})
	eng.EvalDelay = 200 * time.Millisecond
	eng.SetLocal("x", 1)

	_, err := o.Evaluate(frame(), "x", ContextNone)
	var evalErr *Error
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, ReasonTimeout, evalErr.Reason)
}

func TestEvaluateClassification(t *testing.T) {
	tests := []struct {
		name       string
		value      *engine.Value
		wantReason Reason
		wantMsg    string
	}{
		{
			name:       "engine error carries display text",
			value:      &engine.Value{Flags: engine.FlagError, Display: "Object reference not set"},
			wantReason: ReasonEngine,
			wantMsg:    "Object reference not set",
		},
		{
			name:       "not supported carries display text",
			value:      &engine.Value{Flags: engine.FlagNotSupported, Display: "method invocation disabled"},
			wantReason: ReasonEngine,
			wantMsg:    "method invocation disabled",
		},
		{
			name:       "unknown is invalid expression",
			value:      &engine.Value{Flags: engine.FlagUnknown, Display: "whatever"},
			wantReason: ReasonInvalid,
			wantMsg:    "invalid expression",
		},
		{
			name:       "object plus namespace is not available",
			value:      &engine.Value{Flags: engine.FlagObject | engine.FlagNamespace, Display: "System"},
			wantReason: ReasonNotAvailable,
			wantMsg:    "not available",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, eng, _ := newOrchestrator(t, DefaultConfig())
			eng.StubResult("probe", tt.value)

			_, err := o.Evaluate(frame(), "probe", ContextNone)
			var evalErr *Error
			require.ErrorAs(t, err, &evalErr)
			assert.Equal(t, tt.wantReason, evalErr.Reason)
			assert.Equal(t, tt.wantMsg, evalErr.Message)
		})
	}
}

func TestEvaluateObjectOnlySucceeds(t *testing.T) {
	o, eng, _ := newOrchestrator(t, DefaultConfig())
	eng.StubResult("probe", &engine.Value{
		Flags:    engine.FlagObject,
		Display:  "{Game.Player}",
		TypeName: "Game.Player",
	})

	res, err := o.Evaluate(frame(), "probe", ContextNone)
	require.NoError(t, err)
	assert.Equal(t, "Game.Player", res.Display)
}

func TestHoverNeverUsesResolver(t *testing.T) {
	o, eng, _ := newOrchestrator(t, DefaultConfig())
	eng.SetTypeResolver(func(identifier string, _ engine.SourceLocation) (string, bool) {
		return "Game." + identifier, true
	})

	_, _ = o.Evaluate(frame(), "Player", ContextHover)
	assert.Empty(t, eng.ResolverCalls())

	_, _ = o.Evaluate(frame(), "Player", ContextNone)
	assert.Equal(t, []string{"Player"}, eng.ResolverCalls())
}

func TestExpandUnknownHandle(t *testing.T) {
	o, _, _ := newOrchestrator(t, DefaultConfig())

	_, err := o.Expand(12345)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "variablesReference", nf.What)
}

func TestExpandFrameLocals(t *testing.T) {
	o, eng, registry := newOrchestrator(t, DefaultConfig())
	eng.SetLocal("health", 75)
	eng.SetLocal("pos", map[string]any{"x": 1, "y": 2})

	h := registry.Allocate(&handles.ChildrenEntry{Kind: handles.KindFrameLocals, Frame: frame()})
	vars, err := o.Expand(h)
	require.NoError(t, err)
	require.Len(t, vars, 2)
	assert.Equal(t, "health", vars[0].Name)
	assert.Zero(t, vars[0].ChildrenHandle)
	assert.Equal(t, "pos", vars[1].Name)
	assert.NotZero(t, vars[1].ChildrenHandle)
}

func TestSetVariable(t *testing.T) {
	o, eng, registry := newOrchestrator(t, DefaultConfig())
	eng.SetLocal("health", 75)

	h := registry.Allocate(&handles.ChildrenEntry{Kind: handles.KindFrameLocals, Frame: frame()})
	res, err := o.SetVariable(frame(), h, "health", "12;")
	require.NoError(t, err)
	assert.Equal(t, "12", res.Display)
	assert.Equal(t, 12, eng.Local("health"))
}

func TestSetVariableNotFound(t *testing.T) {
	o, eng, registry := newOrchestrator(t, DefaultConfig())
	eng.SetLocal("health", 75)

	h := registry.Allocate(&handles.ChildrenEntry{Kind: handles.KindFrameLocals, Frame: frame()})
	_, err := o.SetVariable(frame(), h, "armor", "12")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "variable", nf.What)
	assert.Equal(t, "armor", nf.Name)
}

func TestRewriteConstructor(t *testing.T) {
	o, eng, _ := newOrchestrator(t, DefaultConfig())
	eng.DefineType("Player", "Game.Entities.Player")

	tests := []struct {
		in   string
		want string
	}{
		{"new Player(3)", "new Game.Entities.Player(3)"},
		{"new Player", "new Game.Entities.Player"},
		{"new Game.Player(3)", "new Game.Player(3)"},
		{"new Unknown(1)", "new Unknown(1)"},
		{"health + 1", "health + 1"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, o.rewriteConstructor(frame(), tt.in), "input %q", tt.in)
	}

	// Without a frame there is nothing to resolve against.
	assert.Equal(t, "new Player(3)", o.rewriteConstructor(nil, "new Player(3)"))
}
