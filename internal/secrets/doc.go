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
Package secrets resolves provider API keys.

Keys are looked up through a chain, first match wins:

 1. the explicit value from configuration or the upstream platform
 2. environment variables (ANTHROPIC_API_KEY, OPENAI_API_KEY, RULEGEN_<PROVIDER>_API_KEY)
 3. the system keychain (service "rulegen", account = provider name)

A locked or missing keychain is skipped, never fatal. A provider with no
key resolves to the empty string; the caller decides whether that matters.

Every resolved key is registered with the Resolver's Masker so that error
messages returned to clients never echo it.
*/
package secrets
