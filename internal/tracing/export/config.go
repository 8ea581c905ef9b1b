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

// Package export builds OpenTelemetry span exporters.
package export

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel/sdk/trace"
)

// Exporter types.
const (
	TypeOTLP     = "otlp"
	TypeOTLPHTTP = "otlp-http"
	TypeConsole  = "console"
)

// Config selects and configures a span exporter.
type Config struct {
	// Type is "otlp" (gRPC), "otlp-http" or "console".
	Type string `yaml:"type"`

	// Endpoint is the collector address, e.g. "localhost:4317".
	Endpoint string `yaml:"endpoint"`

	// URLPath overrides the OTLP/HTTP traces path (default "/v1/traces").
	URLPath string `yaml:"url_path"`

	// Insecure disables TLS. Development only.
	Insecure bool `yaml:"insecure"`

	// Headers are sent with every export, typically for authentication.
	Headers map[string]string `yaml:"headers"`

	// Timeout bounds a single export.
	Timeout time.Duration `yaml:"timeout"`

	// Writer receives console output. Nil means stderr.
	Writer io.Writer `yaml:"-"`
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch c.Type {
	case TypeOTLP, TypeOTLPHTTP:
		if c.Endpoint == "" {
			return fmt.Errorf("exporter %q requires an endpoint", c.Type)
		}
	case TypeConsole:
	default:
		return fmt.Errorf("unknown exporter type %q", c.Type)
	}
	return nil
}

// New creates the exporter named by cfg.Type.
func New(ctx context.Context, cfg Config) (trace.SpanExporter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Type {
	case TypeOTLP:
		return newGRPC(ctx, cfg)
	case TypeOTLPHTTP:
		return newHTTP(ctx, cfg)
	default:
		return newConsole(cfg)
	}
}
