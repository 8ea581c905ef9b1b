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
	"encoding/json"
	"io"
	"os"
)

// JSONResponse is the envelope every --json output shares.
type JSONResponse struct {
	Version string `json:"@version"`
	Command string `json:"command"`
	Success bool   `json:"success"`
}

// JSONError is one error in a failed --json response.
type JSONError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Field      string `json:"field,omitempty"`
	Value      string `json:"value,omitempty"`
	File       string `json:"file,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// Error codes used in JSONError.
const (
	ErrorCodeSchemaViolation  = "schema_violation"
	ErrorCodeCatalogViolation = "catalog_violation"
	ErrorCodeFileNotFound     = "file_not_found"
	ErrorCodeInvalidJSON      = "invalid_json"
)

// NewJSONResponse returns a response envelope for command.
func NewJSONResponse(command string, success bool) JSONResponse {
	return JSONResponse{Version: "1.0", Command: command, Success: success}
}

// EmitJSON writes v to stdout as indented JSON.
func EmitJSON(v any) error {
	return WriteJSON(os.Stdout, v)
}

// WriteJSON writes v to w as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
