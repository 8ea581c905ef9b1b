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

package errors

// UserVisibleError is implemented by errors whose message is safe to return
// to API clients and print in the CLI. The server uses UserMessage and
// Suggestion for the response body instead of Error.
type UserVisibleError interface {
	error

	// IsUserVisible reports whether the message may be shown. Errors that
	// wrap internal details return false.
	IsUserVisible() bool

	// UserMessage is the message shown to the user.
	UserMessage() string

	// Suggestion is a next step for the user, or "".
	Suggestion() string
}

// ErrorClassifier is implemented by errors that carry a category and a
// retry decision. The llm retry wrapper and the server's error responses
// classify through it.
type ErrorClassifier interface {
	error

	// ErrorType is the category: "validation", "not_found", "timeout",
	// "provider", "config" or "constrained_generation".
	ErrorType() string

	// IsRetryable reports whether repeating the same call may succeed.
	IsRetryable() bool
}
