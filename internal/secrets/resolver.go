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

package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
)

// Resolver queries backends in priority order.
type Resolver struct {
	backends []Backend
	masker   *Masker
	logger   *slog.Logger
}

// NewResolver creates a resolver over backends. Backends are sorted by
// priority, highest first; unavailable backends are skipped at lookup time.
func NewResolver(logger *slog.Logger, backends ...Backend) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	sorted := append([]Backend(nil), backends...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority() > sorted[j].Priority()
	})
	return &Resolver{
		backends: sorted,
		masker:   NewMasker(),
		logger:   logger.With(slog.String("component", "secrets")),
	}
}

// Default returns the environment then keychain chain.
func Default(logger *slog.Logger) *Resolver {
	return NewResolver(logger, NewEnvBackend(), NewKeychainBackend())
}

// Masker returns the masker holding every key this resolver handed out.
func (r *Resolver) Masker() *Masker {
	return r.masker
}

// Get returns the key for provider from the first backend that has one.
func (r *Resolver) Get(ctx context.Context, provider string) (string, error) {
	var lastErr error
	for _, b := range r.backends {
		if !b.Available() {
			continue
		}
		value, err := b.Get(ctx, provider)
		if err == nil {
			r.masker.Add(value)
			return value, nil
		}
		if errors.Is(err, ErrBackendUnavailable) {
			r.logger.Debug("secret backend unavailable", slog.String("backend", b.Name()), slog.Any("error", err))
			continue
		}
		if !errors.Is(err, ErrSecretNotFound) {
			lastErr = err
		}
	}
	if lastErr != nil {
		return "", fmt.Errorf("failed to resolve key for %q: %w", provider, lastErr)
	}
	return "", fmt.Errorf("%w: %q", ErrSecretNotFound, provider)
}

// APIKey resolves the key for provider, preferring explicit. A missing key
// is logged and yields "".
func (r *Resolver) APIKey(ctx context.Context, provider, explicit string) string {
	if explicit != "" {
		r.masker.Add(explicit)
		return explicit
	}
	key, err := r.Get(ctx, provider)
	if err != nil {
		r.logger.Warn("no API key found",
			slog.String("provider", provider),
			slog.Any("env", EnvVars(provider)),
			slog.Any("error", err),
		)
		return ""
	}
	return key
}

// Set stores a key in the first available writable backend.
func (r *Resolver) Set(ctx context.Context, provider, value string) (string, error) {
	for _, b := range r.backends {
		w, ok := b.(WritableBackend)
		if !ok || !b.Available() {
			continue
		}
		if err := w.Set(ctx, provider, value); err != nil {
			return "", fmt.Errorf("failed to store key in %s: %w", b.Name(), err)
		}
		return b.Name(), nil
	}
	return "", fmt.Errorf("%w: no writable backend available", ErrBackendUnavailable)
}

// Delete removes a key from every available writable backend that holds it.
func (r *Resolver) Delete(ctx context.Context, provider string) error {
	deleted := false
	for _, b := range r.backends {
		w, ok := b.(WritableBackend)
		if !ok || !b.Available() {
			continue
		}
		err := w.Delete(ctx, provider)
		switch {
		case err == nil:
			deleted = true
		case errors.Is(err, ErrSecretNotFound):
		default:
			return fmt.Errorf("failed to delete key from %s: %w", b.Name(), err)
		}
	}
	if !deleted {
		return fmt.Errorf("%w: %q", ErrSecretNotFound, provider)
	}
	return nil
}
