package providers

import (
	"fmt"

	"github.com/tombee/rulegen/pkg/errors"
	"github.com/tombee/rulegen/pkg/llm"
)

// unsupportedProviders are names the upstream platform may configure that
// have no implementation yet.
var unsupportedProviders = []string{"llama_cpp", "github", "google"}

func init() {
	llm.RegisterFactory(llm.FactoryInfo{
		Name:        "anthropic",
		Description: "Anthropic Claude via the Messages API",
	}, NewAnthropicWithCredentials)

	llm.RegisterFactory(llm.FactoryInfo{
		Name:        "openai",
		Description: "OpenAI GPT via Chat Completions (JSON mode, optional logit_bias)",
	}, NewOpenAIWithCredentials)

	llm.RegisterFactory(llm.FactoryInfo{
		Name:        "ollama",
		Description: "Local models served by Ollama",
		Local:       true,
	}, NewOllamaWithCredentials, "ollama_local")

	for _, name := range unsupportedProviders {
		llm.RegisterFactory(llm.FactoryInfo{
			Name:        name,
			Description: "Not yet supported",
		}, notSupported(name))
	}
}

func notSupported(name string) llm.ProviderFactory {
	return func(llm.Credentials) (llm.Provider, error) {
		return nil, &errors.ConfigError{
			Key:    "llm.provider",
			Reason: fmt.Sprintf("provider %q is not yet supported", name),
		}
	}
}
