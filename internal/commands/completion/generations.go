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

package completion

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/rulegen/internal/cache"
	"github.com/tombee/rulegen/internal/client"
	"github.com/tombee/rulegen/internal/commands/shared"
	"github.com/tombee/rulegen/internal/log"
)

const (
	generationCacheTTL = 2 * time.Second
	serverTimeout      = 500 * time.Millisecond
	completionLimit    = 50
)

var generations = newGenerationCache()

func newGenerationCache() *cache.TTL[[]client.Generation] {
	// Completion output goes to the shell, so cache logs are discarded.
	return cache.New("completion-generations", generationCacheTTL, fetchGenerations,
		cache.WithLogger(slog.New(slog.DiscardHandler)))
}

// CompleteGenerationIDs completes the IDs of recent generations recorded by
// the server, described by status and intent.
func CompleteGenerationIDs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		ctx, cancel := context.WithTimeout(context.Background(), serverTimeout)
		defer cancel()

		gens, err := generations.Get(ctx)
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}

		completions := make([]string, 0, len(gens))
		for _, g := range gens {
			completions = append(completions, g.ID+"\t"+g.Status+": "+log.Truncate(g.Intent, 40))
		}
		return completions, cobra.ShellCompDirectiveNoFileComp
	})
}

func fetchGenerations(ctx context.Context) ([]client.Generation, error) {
	c, err := client.New(shared.ServerURL())
	if err != nil {
		return nil, err
	}
	return c.Generations(ctx, completionLimit)
}
