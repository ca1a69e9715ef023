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

import (
	"sync"
	"time"
)

// Pending bridges the engine's asynchronous evaluation into the adapter's
// synchronous request handling: the dispatch goroutine blocks on Wait for a
// bounded time while the engine completes the evaluation from its own
// goroutine. A Pending completes at most once; later completions are dropped.
// If the caller gives up, the engine-side operation may still finish later —
// the next stop-class event invalidates whatever handles it produced.
type Pending struct {
	once  sync.Once
	done  chan struct{}
	value *Value
}

// NewPending creates an incomplete Pending.
func NewPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

// Complete delivers the evaluation result and wakes any waiter.
func (p *Pending) Complete(v *Value) {
	p.once.Do(func() {
		p.value = v
		close(p.done)
	})
}

// Wait blocks until the result arrives or the timeout elapses. ok is false
// on timeout; the result may still arrive later.
func (p *Pending) Wait(timeout time.Duration) (*Value, bool) {
	select {
	case <-p.done:
		return p.value, true
	case <-time.After(timeout):
		return nil, false
	}
}
