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

package shared

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tombee/rulegen/pkg/constrain"
	pkgerrors "github.com/tombee/rulegen/pkg/errors"
)

const (
	ExitSuccess = 0
	// ExitFailed covers every failure without a more specific code.
	ExitFailed = 1
	// ExitInvalidRules means a document failed validation or generation
	// exhausted its attempts without producing catalog-clean rules.
	ExitInvalidRules = 2
	// ExitProviderError means the model provider could not be reached or
	// rejected the request.
	ExitProviderError = 3
	// ExitConfigError means configuration is missing or invalid.
	ExitConfigError = 4
)

// ExitError carries a process exit code through cobra's error return.
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	switch {
	case e.Message == "" && e.Cause != nil:
		return e.Cause.Error()
	case e.Cause != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewInvalidRulesError returns an error that exits with ExitInvalidRules.
func NewInvalidRulesError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitInvalidRules, Message: msg, Cause: cause}
}

// NewProviderError returns an error that exits with ExitProviderError.
func NewProviderError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitProviderError, Message: msg, Cause: cause}
}

// NewConfigError returns an error that exits with ExitConfigError.
func NewConfigError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitConfigError, Message: msg, Cause: cause}
}

// ExitCode maps err to a process exit code. Errors that are not ExitErrors
// are classified by type.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	var (
		cge *constrain.Error
		ve  *pkgerrors.ValidationError
		pe  *pkgerrors.ProviderError
		ce  *pkgerrors.ConfigError
	)
	switch {
	case errors.As(err, &cge), errors.As(err, &ve):
		return ExitInvalidRules
	case errors.As(err, &pe):
		return ExitProviderError
	case errors.As(err, &ce):
		return ExitConfigError
	default:
		return ExitFailed
	}
}

// HandleExitError prints err with any suggestion and exits.
func HandleExitError(err error) {
	if err == nil {
		return
	}
	os.Exit(reportError(os.Stderr, err))
}

func reportError(w io.Writer, err error) int {
	if msg := err.Error(); msg != "" {
		fmt.Fprintln(w, RenderError(msg))
	}
	if s := suggestion(err); s != "" {
		fmt.Fprintf(w, "\nSuggestion: %s\n", s)
	}
	return ExitCode(err)
}

// suggestion returns the first suggestion offered by an error in err's
// chain.
func suggestion(err error) string {
	var (
		pe *pkgerrors.ProviderError
		ve *pkgerrors.ValidationError
		nf *pkgerrors.NotFoundError
	)
	switch {
	case errors.As(err, &pe) && pe.Suggestion != "":
		return pe.Suggestion
	case errors.As(err, &ve) && ve.Suggestion != "":
		return ve.Suggestion
	case errors.As(err, &nf) && nf.Hint != "":
		return nf.Hint
	}
	for err != nil {
		if uv, ok := err.(pkgerrors.UserVisibleError); ok && uv.IsUserVisible() {
			return uv.Suggestion()
		}
		err = errors.Unwrap(err)
	}
	return ""
}
