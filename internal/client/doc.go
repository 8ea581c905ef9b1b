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

// Package client is a Go client for the rulegen HTTP API.
//
// Commands that need a model (generate, status, refresh) talk to a running
// rulegend through this package rather than configuring providers in the
// CLI process.
//
//	c, err := client.New("http://localhost:8000")
//	resp, err := c.Generate(ctx, client.GenerateRequest{UserIntent: "..."})
//
// Non-2xx answers are returned as *APIError, which carries the server's
// error body.
package client
