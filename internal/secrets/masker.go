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

package secrets

import (
	"sort"
	"strings"
	"sync"
)

const maskReplacement = "***"

// Masker replaces known secret values in text. It is safe for concurrent use.
type Masker struct {
	mu      sync.RWMutex
	secrets map[string]struct{}
}

// NewMasker creates an empty masker.
func NewMasker() *Masker {
	return &Masker{secrets: make(map[string]struct{})}
}

// Add registers a value to be masked. Values shorter than 8 bytes are
// ignored; they match too much ordinary text.
func (m *Masker) Add(value string) {
	if len(value) < 8 {
		return
	}
	m.mu.Lock()
	m.secrets[value] = struct{}{}
	m.mu.Unlock()
}

// Mask replaces every registered value in s with "***".
func (m *Masker) Mask(s string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.secrets) == 0 {
		return s
	}

	// Longest first so a key that contains another is fully masked.
	values := make([]string, 0, len(m.secrets))
	for v := range m.secrets {
		values = append(values, v)
	}
	sort.Slice(values, func(i, j int) bool { return len(values[i]) > len(values[j]) })

	for _, v := range values {
		s = strings.ReplaceAll(s, v, maskReplacement)
	}
	return s
}
