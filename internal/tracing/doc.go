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
Package tracing provides request IDs, OpenTelemetry tracing and the
OpenTelemetry meter used for LLM call instrumentation.

# Request IDs

Every inbound HTTP request carries a request ID, taken from X-Request-ID or
X-Correlation-ID when the caller supplies one and generated otherwise:

	handler = tracing.RequestIDMiddleware(handler)

	id := tracing.FromContext(ctx)

Outbound clients built by pkg/httpclient forward the ID automatically.

# Spans and Metrics

	p, err := tracing.Setup(ctx, cfg, registry)
	if err != nil {
	    return err
	}
	defer p.Shutdown(ctx)

	provider = tracing.WrapProvider(provider, p)

Setup installs the global tracer provider and W3C propagator. LLM calls made
through a wrapped provider produce "llm.complete" spans and feed the
rulegen_llm_* instruments, which are exported through the Prometheus
registry passed to Setup.
*/
package tracing
