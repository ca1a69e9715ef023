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
	"errors"
	"fmt"

	"github.com/tombee/monodap/internal/eval"
)

// Error ids surfaced in DAP error responses. Validation, not-found and
// evaluation failures keep distinct ids so clients can tell them apart.
const (
	errIDValidation  = 1001
	errIDNotFound    = 1002
	errIDEngineFault = 1003
	errIDEvaluation  = 1004
	errIDUnsupported = 1005
	errIDNoSource    = 1006
	errIDNoException = 1007
)

// RequestError is a protocol-shaped, user-visible request failure. Engine
// faults that are not already a RequestError get wrapped into a generic one.
type RequestError struct {
	// ID is the stable error id for the client.
	ID int

	// Message is the user-visible text.
	Message string

	// ShowUser asks the client to surface the message.
	ShowUser bool
}

func (e *RequestError) Error() string { return e.Message }

// validationError rejects a request with a missing or malformed field. The
// engine is never touched on this path.
func validationError(format string, args ...interface{}) *RequestError {
	return &RequestError{ID: errIDValidation, Message: fmt.Sprintf(format, args...), ShowUser: true}
}

// notFoundError names a stale or unknown resource referenced by a request.
func notFoundError(resource string) *RequestError {
	return &RequestError{ID: errIDNotFound, Message: resource + " not found", ShowUser: true}
}

// asRequestError maps any handler failure to a protocol-shaped error:
// RequestErrors pass through unchanged, evaluation errors keep their
// distinct messages, anything else is wrapped as a generic engine fault.
func asRequestError(err error) *RequestError {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr
	}

	var evalErr *eval.Error
	if errors.As(err, &evalErr) {
		return &RequestError{ID: errIDEvaluation, Message: evalErr.Message, ShowUser: true}
	}

	var nf *eval.NotFoundError
	if errors.As(err, &nf) {
		return &RequestError{ID: errIDNotFound, Message: nf.Error(), ShowUser: true}
	}

	return &RequestError{
		ID:       errIDEngineFault,
		Message:  fmt.Sprintf("debugger error: %v", err),
		ShowUser: true,
	}
}
