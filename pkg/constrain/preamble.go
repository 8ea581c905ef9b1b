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
	"sort"
	"strings"
)

// severity is indexed by attempt-1 and escalates with each retry.
var severity = []string{"IMPORTANT", "CRITICAL", "ABSOLUTE RULE"}

// Severity returns the emphasis label for an attempt, clamped to the known range.
func Severity(attempt int) string {
	switch {
	case attempt < 1:
		return severity[0]
	case attempt > len(severity):
		return severity[len(severity)-1]
	}
	return severity[attempt-1]
}

// RenderPreamble builds the instruction block that is prepended to the
// generator's system prompt. The forbidden block is omitted when forbidden is empty.
func RenderPreamble(a *Allowlist, forbidden []string, attempt int) string {
	var b strings.Builder

	b.WriteString("=== CATALOG CONSTRAINT: ")
	b.WriteString(Severity(attempt))
	b.WriteString(" ===\n\n")
	b.WriteString("You MUST ONLY reference identifiers from the following ALLOWLIST.\n")
	b.WriteString("Generating any connector, action or trigger that is NOT on this list\n")
	b.WriteString("is a HARD ERROR that will break compilation. No exceptions.\n\n")

	writeList(&b, "ALLOWED CONNECTOR IDs:", a.ConnectorIDs())
	writeList(&b, "ALLOWED ACTION TYPES:", a.ActionTypes())
	writeList(&b, "ALLOWED TRIGGER SOURCES:", a.TriggerSources())

	if len(forbidden) > 0 {
		names := append([]string(nil), forbidden...)
		sort.Strings(names)

		b.WriteString("=== FORBIDDEN IDENTIFIERS (hallucinated, DO NOT USE) ===\n")
		b.WriteString("The following identifiers do NOT exist in the catalog.\n")
		b.WriteString("Using any of them will cause immediate compilation failure.\n")
		for _, n := range names {
			b.WriteString("  - ")
			b.WriteString(n)
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}

	b.WriteString("REQUIRED OUTPUT FORMAT: valid JSON object with a \"rules\" array.\n")
	b.WriteString("No markdown. No prose. Raw JSON only.\n")

	return b.String()
}

func writeList(b *strings.Builder, title string, items []string) {
	b.WriteString(title)
	b.WriteByte('\n')
	if len(items) == 0 {
		b.WriteString("  (none registered)\n\n")
		return
	}
	for _, item := range items {
		b.WriteString("  - ")
		b.WriteString(item)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
}
