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

package upstream

import (
	"strings"
)

const (
	defaultTemperature   = 0.3
	defaultMaxTokens     = 4096
	defaultLocalURL      = "http://localhost:11434"
	defaultContextWindow = 4096
)

// LLMSettings is the provider configuration published by the platform,
// normalized to the names the provider registry understands.
type LLMSettings struct {
	Provider      string  `json:"provider"`
	Model         string  `json:"model"`
	Temperature   float64 `json:"temperature"`
	MaxTokens     int     `json:"max_tokens"`
	APIKey        string  `json:"-"`
	APIURL        string  `json:"api_url,omitempty"`
	GPUEnabled    bool    `json:"gpu_enabled,omitempty"`
	ContextWindow int     `json:"context_window,omitempty"`
}

// Local reports whether the settings describe a self-hosted provider.
func (s *LLMSettings) Local() bool {
	return isLocal(s.Provider)
}

func isLocal(provider string) bool {
	return provider == "ollama_local" || provider == "ollama" || provider == "llama_cpp"
}

type rawLLMConfig struct {
	Provider    string   `json:"provider"`
	Model       string   `json:"model"`
	Temperature *float64 `json:"temperature"`
	MaxTokens   *int     `json:"maxTokens"`
	APIConfig   *struct {
		APIKey string `json:"apiKey"`
		APIURL string `json:"apiUrl"`
	} `json:"apiConfig"`
	LocalConfig *struct {
		APIURL        string `json:"apiUrl"`
		GPUEnabled    bool   `json:"gpuEnabled"`
		ContextWindow *int   `json:"contextWindow"`
	} `json:"localConfig"`
}

func (r rawLLMConfig) normalize() *LLMSettings {
	s := &LLMSettings{
		Provider:    strings.ToLower(strings.TrimSpace(r.Provider)),
		Model:       r.Model,
		Temperature: defaultTemperature,
		MaxTokens:   defaultMaxTokens,
	}
	if r.Temperature != nil {
		s.Temperature = *r.Temperature
	}
	if r.MaxTokens != nil && *r.MaxTokens > 0 {
		s.MaxTokens = *r.MaxTokens
	}

	if isLocal(s.Provider) {
		s.APIURL = defaultLocalURL
		s.ContextWindow = defaultContextWindow
		if lc := r.LocalConfig; lc != nil {
			if lc.APIURL != "" {
				s.APIURL = lc.APIURL
			}
			s.GPUEnabled = lc.GPUEnabled
			if lc.ContextWindow != nil && *lc.ContextWindow > 0 {
				s.ContextWindow = *lc.ContextWindow
			}
		}
		return s
	}

	if ac := r.APIConfig; ac != nil {
		s.APIKey = ac.APIKey
		s.APIURL = ac.APIURL
	}
	return s
}
