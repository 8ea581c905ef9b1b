// Copyright 2025 Tom Barlow
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

package constrain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pkgerrors "github.com/tombee/rulegen/pkg/errors"
)

// Error is returned when no attempt produced a valid document. It is the only
// error Engine.Generate returns.
type Error struct {
	// Attempts is the number of generator invocations made.
	Attempts int

	// TotalTokens is the usage consumed across all attempts.
	TotalTokens int

	// ForbiddenNames holds every rejected identifier, sorted.
	ForbiddenNames []string

	// SchemaErrors holds the structural problems of the last attempt, if it had any.
	SchemaErrors []string

	// Cause is the last generator error, or the context error on cancellation.
	Cause error
}

var (
	_ pkgerrors.ErrorClassifier  = (*Error)(nil)
	_ pkgerrors.UserVisibleError = (*Error)(nil)
)

// Error implements the error interface. The message names every forbidden
// identifier collected across attempts, whatever ended the loop.
func (e *Error) Error() string {
	var msg string
	switch {
	case e.Cause != nil && isContextErr(e.Cause):
		msg = fmt.Sprintf("constrained generation stopped after %d attempt(s): %v", e.Attempts, e.Cause)
	case e.Cause != nil:
		msg = fmt.Sprintf("all %d constrained generation attempts failed: last error: %v", e.Attempts, e.Cause)
	case len(e.SchemaErrors) > 0:
		msg = fmt.Sprintf("schema violations persisted after %d attempts: %s", e.Attempts, strings.Join(e.SchemaErrors, "; "))
	default:
		return fmt.Sprintf("catalog violations persisted after %d attempts: forbidden names: %s", e.Attempts, strings.Join(e.ForbiddenNames, ", "))
	}
	if len(e.ForbiddenNames) > 0 {
		msg += "; forbidden names: " + strings.Join(e.ForbiddenNames, ", ")
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// ErrorType implements pkgerrors.ErrorClassifier.
func (e *Error) ErrorType() string {
	return "constrained_generation"
}

// IsRetryable implements pkgerrors.ErrorClassifier. The attempt budget is
// already spent, so retrying the same request is not useful.
func (e *Error) IsRetryable() bool {
	return false
}

// IsUserVisible implements pkgerrors.UserVisibleError.
func (e *Error) IsUserVisible() bool {
	return true
}

// UserMessage implements pkgerrors.UserVisibleError.
func (e *Error) UserMessage() string {
	if len(e.ForbiddenNames) > 0 {
		return fmt.Sprintf("The request could not be satisfied with the registered catalog. Unknown identifiers: %s",
			strings.Join(e.ForbiddenNames, ", "))
	}
	return "The request could not be turned into valid workflow rules."
}

// Suggestion implements pkgerrors.UserVisibleError.
func (e *Error) Suggestion() string {
	if len(e.ForbiddenNames) > 0 {
		return "Register the missing connectors or actions, or rephrase the intent using existing ones."
	}
	if e.Cause != nil {
		return "Check the LLM provider configuration and try again."
	}
	return "Rephrase the intent and try again."
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// isInputErr reports whether err rejects the request itself. Such errors
// repeat on every attempt.
func isInputErr(err error) bool {
	var verr *pkgerrors.ValidationError
	return errors.As(err, &verr)
}
