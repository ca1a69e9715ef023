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

// Package handles issues short-lived integer references for the transient
// objects a DAP response points back at: stack frames, lazy variable-children
// providers, and goto targets.
//
// Handles live one generation. Every stop-class engine event resets the
// registry, which bumps the generation and drops every entry; a handle issued
// before the reset never resolves after it. Handles are never individually
// freed.
//
// The registry is mutated from two goroutines — the event relay resets it,
// the dispatch goroutine allocates and resolves — so all state is guarded by
// a mutex. Callers must not hold engine or network calls under a lookup.
package handles

import (
	"sync"

	"github.com/tombee/monodap/internal/engine"
)

// Base is the first handle value issued in every generation. DAP reserves 0
// to mean "no children"; starting well above it keeps handles visually
// distinct from thread ids in logs.
const Base = 1000

// Entry is one registered referent. Exactly one of the variant types below
// is stored per handle.
type Entry interface{ entry() }

// FrameEntry references a captured stack frame.
type FrameEntry struct {
	Frame *engine.StackFrame
}

// ChildrenEntry references a lazy provider of child value nodes: the frame
// whose locals are the children, or the owner's live engine value, selected
// by Kind. Expansion happens at resolve time against the live engine, not
// through a captured closure.
type ChildrenEntry struct {
	Kind  ChildrenKind
	Frame *engine.StackFrame // set for KindFrameLocals
	Value *engine.Value      // set for KindValueChildren
}

// GotoEntry references a goto-target source location.
type GotoEntry struct {
	File   string
	Line   int
	Column int
}

func (*FrameEntry) entry()    {}
func (*ChildrenEntry) entry() {}
func (*GotoEntry) entry()     {}

// ChildrenKind selects how a ChildrenEntry expands.
type ChildrenKind int

const (
	// KindFrameLocals expands to the locals and arguments of Frame.
	KindFrameLocals ChildrenKind = iota

	// KindValueChildren expands to the immediate children of Value.
	KindValueChildren
)

// Registry issues and resolves handles for the current generation.
type Registry struct {
	mu         sync.Mutex
	next       int
	generation uint64
	entries    map[int]Entry
}

// NewRegistry creates an empty registry at generation zero.
func NewRegistry() *Registry {
	return &Registry{
		next:    Base,
		entries: make(map[int]Entry),
	}
}

// Allocate registers an entry and returns its handle. Handles increase
// monotonically within a generation and are never reused before Reset.
func (r *Registry) Allocate(e Entry) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	h := r.next
	r.next++
	r.entries[h] = e
	return h
}

// Lookup resolves a handle. ok is false for unknown handles and for any
// handle issued before the last Reset; callers treat both as "expired".
func (r *Registry) Lookup(h int) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[h]
	return e, ok
}

// FrameAt resolves a handle to a frame entry, false when the handle is
// expired or references something else.
func (r *Registry) FrameAt(h int) (*FrameEntry, bool) {
	e, ok := r.Lookup(h)
	if !ok {
		return nil, false
	}
	fe, ok := e.(*FrameEntry)
	return fe, ok
}

// ChildrenAt resolves a handle to a children-provider entry.
func (r *Registry) ChildrenAt(h int) (*ChildrenEntry, bool) {
	e, ok := r.Lookup(h)
	if !ok {
		return nil, false
	}
	ce, ok := e.(*ChildrenEntry)
	return ce, ok
}

// GotoAt resolves a handle to a goto-target entry.
func (r *Registry) GotoAt(h int) (*GotoEntry, bool) {
	e, ok := r.Lookup(h)
	if !ok {
		return nil, false
	}
	ge, ok := e.(*GotoEntry)
	return ge, ok
}

// Reset drops every entry, restarts numbering from Base and advances the
// generation. Called on every stop-class event and at session teardown.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.next = Base
	r.generation++
	r.entries = make(map[int]Entry)
}

// Generation returns the current generation counter.
func (r *Registry) Generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generation
}

// Len returns the number of live entries, for tests and diagnostics.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
