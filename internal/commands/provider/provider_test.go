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

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/rulegen/internal/commands/shared"
	"github.com/tombee/rulegen/internal/secrets"
	"github.com/tombee/rulegen/pkg/llm"
)

type fakeProvider struct {
	name  string
	creds llm.Credentials
	err   error
}

func (f *fakeProvider) Name() string                   { return f.name }
func (f *fakeProvider) Capabilities() llm.Capabilities { return llm.Capabilities{JSONMode: true} }
func (f *fakeProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResponse{Content: "OK", Model: "fake-1", Usage: llm.NewUsage(5, 1)}, nil
}

type healthyProvider struct {
	fakeProvider
	checked bool
}

func (h *healthyProvider) HealthCheck(ctx context.Context) error {
	h.checked = true
	return nil
}

func setup(t *testing.T, providerName string) (*llm.Registry, *deps) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "llm:\n  source: local\n  provider: " + providerName + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	shared.SetConfigPathForTest(path)
	t.Cleanup(func() { shared.SetConfigPathForTest("") })

	reg := llm.NewRegistry()
	d := &deps{
		registry: reg,
		newResolver: func(l *slog.Logger) *secrets.Resolver {
			return secrets.NewResolver(l, secrets.NewEnvBackend())
		},
	}
	return reg, d
}

func execute(t *testing.T, d deps, args ...string) (string, error) {
	t.Helper()
	cmd := newCommand(d)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestList(t *testing.T) {
	reg, d := setup(t, "hosted")
	reg.RegisterFactory(llm.FactoryInfo{Name: "hosted", Description: "hosted model"}, func(llm.Credentials) (llm.Provider, error) {
		return &fakeProvider{name: "hosted"}, nil
	})
	reg.RegisterFactory(llm.FactoryInfo{Name: "nokey", Description: "no key"}, func(llm.Credentials) (llm.Provider, error) {
		return &fakeProvider{name: "nokey"}, nil
	})
	reg.RegisterFactory(llm.FactoryInfo{Name: "selfhosted", Local: true}, func(llm.Credentials) (llm.Provider, error) {
		return &fakeProvider{name: "selfhosted"}, nil
	})
	t.Setenv("HOSTED_API_KEY", "sk-test-123456789")
	t.Setenv("NOKEY_API_KEY", "")
	t.Setenv("RULEGEN_NOKEY_API_KEY", "")

	shared.SetJSONForTest(true)
	t.Cleanup(func() { shared.SetJSONForTest(false) })

	out, err := execute(t, *d, "list")
	require.NoError(t, err)

	var resp listOutput
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Providers, 3)

	byName := map[string]Status{}
	for _, s := range resp.Providers {
		byName[s.Name] = s
	}
	assert.True(t, byName["hosted"].KeySet)
	assert.True(t, byName["hosted"].Default)
	assert.False(t, byName["nokey"].KeySet)
	assert.True(t, byName["selfhosted"].Local)
}

func TestListTable(t *testing.T) {
	reg, d := setup(t, "hosted")
	reg.RegisterFactory(llm.FactoryInfo{Name: "hosted", Description: "hosted model"}, func(llm.Credentials) (llm.Provider, error) {
		return &fakeProvider{name: "hosted"}, nil
	})

	out, err := execute(t, *d)
	require.NoError(t, err)
	assert.Contains(t, out, "hosted *")
	assert.Contains(t, out, "hosted model")
}

func TestTestUsesHealthCheck(t *testing.T) {
	reg, d := setup(t, "selfhosted")
	hp := &healthyProvider{fakeProvider: fakeProvider{name: "selfhosted"}}
	var gotCreds llm.Credentials
	reg.RegisterFactory(llm.FactoryInfo{Name: "selfhosted", Local: true}, func(c llm.Credentials) (llm.Provider, error) {
		gotCreds = c
		return hp, nil
	})

	out, err := execute(t, *d, "test")
	require.NoError(t, err)
	assert.True(t, hp.checked)
	assert.IsType(t, llm.LocalCredentials{}, gotCreds)
	assert.Contains(t, out, "selfhosted answered")
}

func TestTestCompletesWithAPIKey(t *testing.T) {
	reg, d := setup(t, "hosted")
	var gotCreds llm.Credentials
	reg.RegisterFactory(llm.FactoryInfo{Name: "hosted"}, func(c llm.Credentials) (llm.Provider, error) {
		gotCreds = c
		return &fakeProvider{name: "hosted"}, nil
	}, "hosted_alias")
	t.Setenv("HOSTED_API_KEY", "sk-test-123456789")

	shared.SetJSONForTest(true)
	t.Cleanup(func() { shared.SetJSONForTest(false) })

	out, err := execute(t, *d, "test", "hosted_alias", "--model", "fake-2")
	require.NoError(t, err)

	creds, ok := gotCreds.(llm.APIKeyCredentials)
	require.True(t, ok)
	assert.Equal(t, "sk-test-123456789", creds.APIKey)
	assert.Equal(t, "fake-2", creds.Model)

	var res testResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Success)
	assert.Equal(t, "hosted", res.Provider)
	assert.Equal(t, "fake-1", res.Model)
	assert.Equal(t, 6, res.Tokens)
}

func TestTestFailures(t *testing.T) {
	reg, d := setup(t, "broken")
	reg.RegisterFactory(llm.FactoryInfo{Name: "broken", Local: true}, func(llm.Credentials) (llm.Provider, error) {
		return &fakeProvider{name: "broken", err: errors.New("connection refused")}, nil
	})

	_, err := execute(t, *d, "test")
	require.Error(t, err)
	assert.Equal(t, shared.ExitProviderError, shared.ExitCode(err))
	assert.Contains(t, err.Error(), "connection refused")

	_, err = execute(t, *d, "test", "missing")
	require.Error(t, err)
	assert.Equal(t, shared.ExitConfigError, shared.ExitCode(err))
}
