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

// Package diagnostics implements the commands that inspect a running
// rulegen server: status, refresh and history.
package diagnostics

import (
	"context"
	"time"

	"github.com/tombee/rulegen/internal/client"
	"github.com/tombee/rulegen/internal/commands/shared"
	"github.com/tombee/rulegen/internal/tracing"
)

const requestTimeout = 15 * time.Second

// connect returns a server client and a bounded context carrying a fresh
// request ID.
func connect(parent context.Context) (*client.Client, context.Context, context.CancelFunc, error) {
	c, err := client.New(shared.ServerURL())
	if err != nil {
		return nil, nil, nil, shared.NewConfigError("invalid --server", err)
	}
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, requestTimeout)
	return c, tracing.ToContext(ctx, tracing.NewRequestID()), cancel, nil
}

func unreachable(err error) error {
	return shared.NewProviderError("rulegen server at "+shared.ServerURL()+" did not answer", err)
}
