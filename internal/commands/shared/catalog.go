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

package shared

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tombee/rulegen/internal/config"
	"github.com/tombee/rulegen/internal/upstream"
)

// LoadCatalog reads a capability catalog from a JSON or YAML file.
// Files ending in .json are decoded strictly as JSON; anything else is
// parsed as YAML, which also accepts JSON.
func LoadCatalog(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewConfigError(fmt.Sprintf("cannot read catalog %s", path), err)
	}
	var catalog map[string]any
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &catalog)
	} else {
		err = yaml.Unmarshal(data, &catalog)
	}
	if err != nil {
		return nil, NewInvalidRulesError(fmt.Sprintf("catalog %s is not a valid document", path), err)
	}
	if catalog == nil {
		catalog = map[string]any{}
	}
	return catalog, nil
}

// NewUpstream creates a platform client from the upstream section of cfg.
func NewUpstream(cfg *config.Config, logger *slog.Logger) (*upstream.Client, error) {
	return upstream.New(upstream.Config{
		BaseURL:       cfg.Upstream.BaseURL,
		UserID:        cfg.Upstream.UserID,
		CatalogQuery:  cfg.Upstream.CatalogQuery,
		Timeout:       cfg.Upstream.Timeout,
		RetryAttempts: cfg.Upstream.RetryAttempts,
	}, logger)
}

// ResolveCatalog loads the catalog from path when set, otherwise fetches it
// from the configured platform.
func ResolveCatalog(ctx context.Context, path string) (map[string]any, error) {
	if path != "" {
		return LoadCatalog(path)
	}
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	up, err := NewUpstream(cfg, Logger(cfg))
	if err != nil {
		return nil, NewConfigError("no catalog source: pass --catalog or set upstream.base_url", err)
	}
	catalog, err := up.FetchCatalog(ctx)
	if err != nil {
		return nil, NewProviderError("failed to fetch catalog from "+up.BaseURL(), err)
	}
	return catalog, nil
}
