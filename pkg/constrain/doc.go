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

/*
Package constrain keeps LLM-generated workflow rules inside a capability catalog.

A generator is an opaque capability: it accepts a context map and an intent
and returns a parsed rules document. Nothing stops it from inventing a
connector or action that does not exist, so the Engine checks every result
after the fact and retries with tighter instructions.

# Flow

For each request the Engine:

  - Builds an Allowlist from the catalog (connector ids, action types,
    trigger sources)
  - Renders a preamble listing the allowed identifiers and any names that
    were rejected on earlier attempts
  - Calls the generator with the catalog plus the preamble
  - Validates the result structurally, then against the allowlist
  - Returns the first valid result, or an *Error after MaxAttempts

Rejected identifiers accumulate in a forbidden set that only grows within a
request. Tokens are summed across every attempt, including failed ones.

# Usage

	engine := constrain.New(catalog, constrain.WithLogger(logger))
	result, err := engine.Generate(ctx, "notify on failure", gen)
	if err != nil {
	    var cerr *constrain.Error
	    if errors.As(err, &cerr) {
	        // cerr.ForbiddenNames, cerr.TotalTokens
	    }
	    return err
	}

ValidateSchema and ValidateAllowlist are usable on their own, for example to
check caller-supplied rules before refinement.
*/
package constrain
