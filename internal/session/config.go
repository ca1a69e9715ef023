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

package session

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config holds the session's adapter-level settings. Process-level values
// come from flags; per-debuggee values are overridden by the attach request.
type Config struct {
	// SourceLanguage is the default language tag for unqualified function
	// breakpoints. Default: "C#".
	SourceLanguage string

	// EvalTimeout bounds every evaluation and child-expansion wait.
	// Default: 1 second.
	EvalTimeout time.Duration

	// SkipTransitionFrames drops runtime-internal transition frames from
	// stack traces. Default: true.
	SkipTransitionFrames bool

	// UserAssemblies is the explicit allow-list of user-code assembly
	// names. When empty, an assembly counts as user code if debug symbols
	// were found for it.
	UserAssemblies []string

	// ResolverSocket is the channel identifier of the optional external
	// type resolver. Empty disables the bridge.
	ResolverSocket string

	// ResolverTimeout bounds the resolver connection attempt.
	// Default: 5 seconds.
	ResolverTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		SourceLanguage:       "C#",
		EvalTimeout:          time.Second,
		SkipTransitionFrames: true,
		ResolverTimeout:      5 * time.Second,
	}
}

// AttachArguments are the adapter-specific arguments of the DAP attach
// request.
type AttachArguments struct {
	// Address is the host the debuggee's debug agent listens on.
	Address string `json:"address"`

	// Port is the debug agent port.
	Port int `json:"port"`

	// ProcessName optionally names the debuggee for logs and events.
	ProcessName string `json:"processName,omitempty"`

	// UserAssemblies overrides the user-code allow-list for this session.
	UserAssemblies []string `json:"userAssemblies,omitempty"`

	// ResolverSocket overrides the external resolver channel identifier.
	ResolverSocket string `json:"resolverSocket,omitempty"`

	// EvaluationTimeoutMs overrides the evaluation timeout.
	EvaluationTimeoutMs int `json:"evaluationTimeoutMs,omitempty"`

	// SkipTransitionFrames, when set, overrides transition-frame skipping.
	SkipTransitionFrames *bool `json:"skipTransitionFrames,omitempty"`
}

// parseAttachArguments decodes and validates attach arguments.
func parseAttachArguments(raw json.RawMessage) (*AttachArguments, error) {
	var args AttachArguments
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("malformed attach arguments: %w", err)
		}
	}
	if args.Address == "" {
		return nil, fmt.Errorf("attach requires an address")
	}
	if args.Port <= 0 {
		return nil, fmt.Errorf("attach requires a positive port")
	}
	return &args, nil
}

// apply folds attach-request overrides into the session config.
func (c *Config) apply(args *AttachArguments) {
	if len(args.UserAssemblies) > 0 {
		c.UserAssemblies = args.UserAssemblies
	}
	if args.ResolverSocket != "" {
		c.ResolverSocket = args.ResolverSocket
	}
	if args.EvaluationTimeoutMs > 0 {
		c.EvalTimeout = time.Duration(args.EvaluationTimeoutMs) * time.Millisecond
	}
	if args.SkipTransitionFrames != nil {
		c.SkipTransitionFrames = *args.SkipTransitionFrames
	}
}

// isUserAssembly implements the user-code policy: an explicit allow-list
// when one was configured, symbol availability otherwise.
func (c *Config) isUserAssembly(name string, hasSymbols bool) bool {
	if len(c.UserAssemblies) == 0 {
		return hasSymbols
	}
	for _, allowed := range c.UserAssemblies {
		if allowed == name {
			return true
		}
	}
	return false
}
