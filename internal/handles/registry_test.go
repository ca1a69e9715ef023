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

package handles

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/monodap/internal/engine"
)

func TestAllocateMonotonic(t *testing.T) {
	r := NewRegistry()

	h1 := r.Allocate(&GotoEntry{Line: 1})
	h2 := r.Allocate(&GotoEntry{Line: 2})
	h3 := r.Allocate(&FrameEntry{Frame: &engine.StackFrame{Name: "Main"}})

	assert.Equal(t, Base, h1)
	assert.Equal(t, Base+1, h2)
	assert.Equal(t, Base+2, h3)
}

func TestTypedAccessors(t *testing.T) {
	r := NewRegistry()

	frame := &engine.StackFrame{Name: "Game.Update", ThreadID: 7}
	value := &engine.Value{Name: "player", TypeName: "Game.Player"}

	fh := r.Allocate(&FrameEntry{Frame: frame})
	ch := r.Allocate(&ChildrenEntry{Kind: KindValueChildren, Value: value})
	gh := r.Allocate(&GotoEntry{Line: 42, Column: 5})

	fe, ok := r.FrameAt(fh)
	require.True(t, ok)
	assert.Same(t, frame, fe.Frame)

	ce, ok := r.ChildrenAt(ch)
	require.True(t, ok)
	assert.Equal(t, KindValueChildren, ce.Kind)
	assert.Same(t, value, ce.Value)

	ge, ok := r.GotoAt(gh)
	require.True(t, ok)
	assert.Equal(t, 42, ge.Line)
	assert.Equal(t, 5, ge.Column)

	// A handle of one kind never resolves as another.
	_, ok = r.FrameAt(gh)
	assert.False(t, ok)
	_, ok = r.GotoAt(fh)
	assert.False(t, ok)
}

func TestResetInvalidatesEveryHandle(t *testing.T) {
	r := NewRegistry()

	handles := []int{
		r.Allocate(&GotoEntry{Line: 1}),
		r.Allocate(&FrameEntry{Frame: &engine.StackFrame{}}),
		r.Allocate(&ChildrenEntry{Kind: KindFrameLocals, Frame: &engine.StackFrame{}}),
	}

	for _, h := range handles {
		_, ok := r.Lookup(h)
		require.True(t, ok)
	}

	gen := r.Generation()
	r.Reset()

	assert.Equal(t, gen+1, r.Generation())
	assert.Equal(t, 0, r.Len())
	for _, h := range handles {
		_, ok := r.Lookup(h)
		assert.False(t, ok, "handle %d survived reset", h)
	}
}

func TestNumberingRestartsAfterReset(t *testing.T) {
	r := NewRegistry()

	old := r.Allocate(&GotoEntry{Line: 10, Column: 2})
	r.Reset()
	fresh := r.Allocate(&GotoEntry{Line: 99, Column: 1})

	// Same numeric handle, different generation, different referent.
	assert.Equal(t, old, fresh)
	ge, ok := r.GotoAt(fresh)
	require.True(t, ok)
	assert.Equal(t, 99, ge.Line)
}

func TestUnknownHandle(t *testing.T) {
	r := NewRegistry()

	_, ok := r.Lookup(Base)
	assert.False(t, ok)
	_, ok = r.Lookup(0)
	assert.False(t, ok)
}

func TestConcurrentAllocateAndReset(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				h := r.Allocate(&GotoEntry{Line: j})
				r.Lookup(h)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 200; j++ {
			r.Reset()
		}
	}()
	wg.Wait()

	assert.GreaterOrEqual(t, r.Generation(), uint64(200))
}
