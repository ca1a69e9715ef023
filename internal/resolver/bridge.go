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

// Package resolver reaches an optional out-of-process identifier resolver
// over a point-to-point unix socket and installs it as the engine's
// identifier-resolution hook.
//
// The bridge is strictly best-effort: a failed connection leaves the
// engine's built-in resolution in place, and a fault on one lookup fails
// only that lookup. Resolver I/O never runs under any adapter lock; the
// engine calls the hook from its evaluation path.
package resolver

import (
	"bufio"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/tombee/monodap/internal/engine"
)

// ErrDisabled is returned by Connect when no channel identifier was given.
var ErrDisabled = errors.New("resolver: no socket path configured")

// Bridge is the client side of the resolver channel.
type Bridge struct {
	socketPath string
	logger     *slog.Logger
	timeout    time.Duration

	// mu serializes RPC calls on the single connection.
	mu   sync.Mutex
	conn net.Conn
	rd   *bufio.Reader
}

// New creates a bridge for the given channel identifier. An empty socket
// path disables the feature.
func New(socketPath string, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		socketPath: socketPath,
		logger:     logger,
		timeout:    5 * time.Second,
	}
}

// Enabled reports whether a channel identifier was configured.
func (b *Bridge) Enabled() bool { return b.socketPath != "" }

// Connect dials the resolver and installs the resolve hook into the engine.
// Failure is logged and returned but must be treated as non-fatal: the
// engine's built-in resolution stays in place.
func (b *Bridge) Connect(timeout time.Duration, eng engine.Engine) error {
	if !b.Enabled() {
		return ErrDisabled
	}

	conn, err := net.DialTimeout("unix", b.socketPath, timeout)
	if err != nil {
		b.logger.Warn("resolver unavailable, using built-in resolution",
			slog.String("socket", b.socketPath), slog.Any("error", err))
		return err
	}

	b.mu.Lock()
	b.conn = conn
	b.rd = bufio.NewReader(conn)
	b.mu.Unlock()

	eng.SetTypeResolver(b.Resolve)
	b.logger.Info("external resolver connected", slog.String("socket", b.socketPath))
	return nil
}

// Close tears down the channel. Idempotent.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		_ = b.conn.Close()
		b.conn = nil
		b.rd = nil
	}
}

// Resolve issues one resolveType RPC. ok is false when the remote side
// answers null or the call faults; either way the engine falls back for
// this one lookup only.
func (b *Bridge) Resolve(identifier string, loc engine.SourceLocation) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn == nil {
		return "", false
	}

	req, err := NewRequest(MethodResolveType, ResolveRequest{
		Identifier: identifier,
		File:       loc.File,
		Line:       loc.Line,
		Column:     loc.Column,
	})
	if err != nil {
		return "", false
	}

	deadline := time.Now().Add(b.timeout)
	_ = b.conn.SetDeadline(deadline)

	payload, err := json.Marshal(req)
	if err != nil {
		return "", false
	}
	if _, err := b.conn.Write(append(payload, '\n')); err != nil {
		b.logger.Debug("resolver write failed", slog.Any("error", err))
		return "", false
	}

	line, err := b.rd.ReadBytes('\n')
	if err != nil {
		b.logger.Debug("resolver read failed", slog.Any("error", err))
		return "", false
	}

	var resp Message
	if err := json.Unmarshal(line, &resp); err != nil {
		b.logger.Debug("resolver sent malformed response", slog.Any("error", err))
		return "", false
	}
	if err := resp.Validate(); err != nil {
		b.logger.Debug("resolver sent invalid message", slog.Any("error", err))
		return "", false
	}
	if resp.CorrelationID != req.CorrelationID || resp.Type != MessageTypeResponse {
		if resp.Error != nil {
			b.logger.Debug("resolver returned error",
				slog.String("code", resp.Error.Code),
				slog.String("message", resp.Error.Message))
		}
		return "", false
	}

	var result ResolveResponse
	if err := resp.UnmarshalResult(&result); err != nil || result.TypeName == nil {
		return "", false
	}
	return *result.TypeName, true
}
