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

// Package upstream talks to the platform that owns the capability catalog
// and the default LLM configuration.
//
// Two resources are read:
//
//	GET {base}/tasks/manifest/llm-context/aggregated   capability catalog
//	GET {base}/llm-config/default                      provider settings
//
// Both are plain JSON. Callers normally wrap the fetches in an
// internal/cache.TTL so that the platform is contacted at most once per TTL.
package upstream
