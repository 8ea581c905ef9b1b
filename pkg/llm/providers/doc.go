// Package providers contains the vendor LLM provider implementations and
// registers their factories with the global llm registry.
//
// Import this package for its side effect:
//
//	import _ "github.com/tombee/rulegen/pkg/llm/providers"
//
// Registration does not instantiate providers. Call llm.Default().Activate
// with credentials from configuration to create one.
package providers
