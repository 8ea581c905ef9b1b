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

package tracing

import (
	"fmt"

	"github.com/tombee/rulegen/internal/tracing/export"
)

// Config holds observability configuration.
type Config struct {
	// Enabled controls whether spans are recorded and exported.
	Enabled bool `yaml:"enabled"`

	// ServiceName identifies this service in traces.
	ServiceName string `yaml:"service_name"`

	// ServiceVersion is the application version.
	ServiceVersion string `yaml:"-"`

	// SampleRate is the fraction of root traces recorded (0.0 - 1.0).
	SampleRate float64 `yaml:"sample_rate"`

	// Exporter configures where spans are sent.
	Exporter export.Config `yaml:"exporter"`
}

// DefaultConfig returns configuration with tracing disabled.
func DefaultConfig() Config {
	return Config{
		Enabled:        false,
		ServiceName:    "rulegen",
		ServiceVersion: "dev",
		SampleRate:     1.0,
		Exporter:       export.Config{Type: export.TypeConsole},
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("sample_rate must be between 0 and 1, got %v", c.SampleRate)
	}
	if !c.Enabled {
		return nil
	}
	return c.Exporter.Validate()
}
