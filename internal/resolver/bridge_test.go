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

package resolver

import (
	"bufio"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/monodap/internal/engine"
	"github.com/tombee/monodap/internal/engine/enginetest"
)

// serveResolver runs a one-connection resolver that answers resolveType
// with the given handler and returns the socket path.
func serveResolver(t *testing.T, handle func(ResolveRequest) *string) string {
	t.Helper()
	socket := filepath.Join(t.TempDir(), "resolver.sock")

	ln, err := net.Listen("unix", socket)
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		rd := bufio.NewReader(conn)
		for {
			line, err := rd.ReadBytes('\n')
			if err != nil {
				return
			}
			var msg Message
			if err := json.Unmarshal(line, &msg); err != nil {
				return
			}
			if msg.Method != MethodResolveType {
				resp := NewErrorResponse(msg.CorrelationID, "method_not_found", msg.Method)
				payload, _ := json.Marshal(resp)
				conn.Write(append(payload, '\n'))
				continue
			}
			var req ResolveRequest
			if err := msg.UnmarshalParams(&req); err != nil {
				return
			}
			resp, _ := NewResponse(msg.CorrelationID, ResolveResponse{TypeName: handle(req)})
			payload, _ := json.Marshal(resp)
			conn.Write(append(payload, '\n'))
		}
	}()
	return socket
}

func TestResolve(t *testing.T) {
	var seen ResolveRequest
	socket := serveResolver(t, func(req ResolveRequest) *string {
		seen = req
		name := "Game.Entities." + req.Identifier
		return &name
	})

	eng := enginetest.New()
	b := New(socket, nil)
	require.NoError(t, b.Connect(time.Second, eng))
	defer b.Close()

	name, ok := b.Resolve("Player", engine.SourceLocation{File: "/src/Game.cs", Line: 42, Column: 5})
	require.True(t, ok)
	assert.Equal(t, "Game.Entities.Player", name)
	assert.Equal(t, "Player", seen.Identifier)
	assert.Equal(t, "/src/Game.cs", seen.File)
	assert.Equal(t, 42, seen.Line)
	assert.Equal(t, 5, seen.Column)
}

func TestResolveNullMeansUnresolved(t *testing.T) {
	socket := serveResolver(t, func(ResolveRequest) *string { return nil })

	eng := enginetest.New()
	b := New(socket, nil)
	require.NoError(t, b.Connect(time.Second, eng))
	defer b.Close()

	_, ok := b.Resolve("Player", engine.SourceLocation{})
	assert.False(t, ok)
}

func TestConnectInstallsHook(t *testing.T) {
	socket := serveResolver(t, func(ResolveRequest) *string { return nil })

	eng := enginetest.New()
	b := New(socket, nil)
	require.NoError(t, b.Connect(time.Second, eng))
	defer b.Close()

	assert.Equal(t, 1, eng.CallCount("SetTypeResolver"))
}

func TestConnectFailureIsNonFatal(t *testing.T) {
	eng := enginetest.New()
	b := New(filepath.Join(t.TempDir(), "nope.sock"), nil)

	err := b.Connect(200*time.Millisecond, eng)
	require.Error(t, err)

	// The engine's built-in resolution stays in place.
	assert.Zero(t, eng.CallCount("SetTypeResolver"))

	// Lookups against a never-connected bridge quietly fail.
	_, ok := b.Resolve("Player", engine.SourceLocation{})
	assert.False(t, ok)
}

func TestDisabledBridge(t *testing.T) {
	b := New("", nil)
	assert.False(t, b.Enabled())
	assert.ErrorIs(t, b.Connect(time.Second, enginetest.New()), ErrDisabled)
}

func TestResolveRejectsMalformedMessage(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "resolver.sock")
	ln, err := net.Listen("unix", socket)
	require.NoError(t, err)
	defer ln.Close()

	// Answers with the right correlation ID but a message type the
	// channel does not define.
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		rd := bufio.NewReader(conn)
		for {
			line, err := rd.ReadBytes('\n')
			if err != nil {
				return
			}
			var msg Message
			if err := json.Unmarshal(line, &msg); err != nil {
				return
			}
			name := "Game.Entities.Player"
			resp, _ := NewResponse(msg.CorrelationID, ResolveResponse{TypeName: &name})
			resp.Type = MessageType("notification")
			payload, _ := json.Marshal(resp)
			conn.Write(append(payload, '\n'))
		}
	}()

	eng := enginetest.New()
	b := New(socket, nil)
	require.NoError(t, b.Connect(time.Second, eng))
	defer b.Close()

	_, ok := b.Resolve("Player", engine.SourceLocation{})
	assert.False(t, ok)
}

func TestResolveFaultFailsOneLookupOnly(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "resolver.sock")
	ln, err := net.Listen("unix", socket)
	require.NoError(t, err)
	defer ln.Close()

	// Accept, then close immediately: the first lookup faults.
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conn.Close()
	}()

	eng := enginetest.New()
	b := New(socket, nil)
	require.NoError(t, b.Connect(time.Second, eng))
	defer b.Close()

	_, ok := b.Resolve("Player", engine.SourceLocation{})
	assert.False(t, ok)
}
