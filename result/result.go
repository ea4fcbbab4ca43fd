// Copyright 2025 Blink Labs Software
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

// Package result defines the structured operation result envelope and the
// error taxonomy shared by all session components. Every mutation returns
// either a Result or an error classified as validation, conflict,
// not-found, or internal.
package result

import (
	"errors"
	"fmt"
	"net/http"
)

// Result is the structured outcome of a mutation. Code follows HTTP
// conventions: 200 success, 4xx client-caused, 5xx internal.
type Result struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func OK(message string, data any) Result {
	return Result{
		Code:    http.StatusOK,
		Message: message,
		Data:    data,
	}
}

// ValidationError indicates a missing or malformed required field. It is
// detected before any write and never leaves partial state behind.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidationError(field, message string) ValidationError {
	return ValidationError{Field: field, Message: message}
}

// ConflictError indicates the request contradicts existing state, such as
// a duplicate submission, a duplicate room, a full room, or an invalid
// phase transition.
type ConflictError struct {
	Message string
}

func (e ConflictError) Error() string {
	return e.Message
}

func NewConflictError(format string, args ...any) ConflictError {
	return ConflictError{Message: fmt.Sprintf(format, args...)}
}

// NotFoundError indicates an unknown session, room, or file.
type NotFoundError struct {
	Entity string
	Key    string
}

func (e NotFoundError) Error() string {
	if e.Key == "" {
		return e.Entity + " not found"
	}
	return fmt.Sprintf("%s %q not found", e.Entity, e.Key)
}

func NewNotFoundError(entity, key string) NotFoundError {
	return NotFoundError{Entity: entity, Key: key}
}

// InternalError wraps a storage failure or unexpected error. Its message
// is a textual summary safe to display; the underlying error is kept for
// logging via Unwrap but never rendered to clients.
type InternalError struct {
	Summary string
	Err     error
}

func (e InternalError) Error() string {
	return e.Summary
}

func (e InternalError) Unwrap() error {
	return e.Err
}

func NewInternalError(summary string, err error) InternalError {
	return InternalError{Summary: summary, Err: err}
}

// CodeFor maps an error to the envelope code for its taxonomy class.
func CodeFor(err error) int {
	var (
		validationErr ValidationError
		conflictErr   ConflictError
		notFoundErr   NotFoundError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.As(err, &conflictErr):
		return http.StatusConflict
	case errors.As(err, &notFoundErr):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// FromError builds the client-facing envelope for an error. Internal
// errors are reduced to their summary so storage detail never leaks.
func FromError(err error) Result {
	code := CodeFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		var internalErr InternalError
		if errors.As(err, &internalErr) {
			msg = internalErr.Summary
		} else {
			msg = "internal error"
		}
	}
	return Result{
		Code:    code,
		Message: msg,
	}
}
