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
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
)

const (
	// KeychainBackendPriority is the priority for the keychain backend.
	KeychainBackendPriority = 50

	// KeychainService is the service name used for keychain entries.
	KeychainService = "rulegen"
)

// KeychainBackend stores keys in the system keychain:
//   - macOS: Keychain Access
//   - Linux: Secret Service API (GNOME Keyring, KWallet)
//   - Windows: Credential Manager
type KeychainBackend struct {
	once      sync.Once
	available bool
}

// NewKeychainBackend creates a keychain backend. Availability is probed
// lazily on first use.
func NewKeychainBackend() *KeychainBackend {
	return &KeychainBackend{}
}

// Name returns the backend identifier.
func (k *KeychainBackend) Name() string {
	return "keychain"
}

// Available reports whether the keyring service answered the probe.
func (k *KeychainBackend) Available() bool {
	k.once.Do(func() {
		_, err := keyring.Get(KeychainService, "__rulegen_availability_probe__")
		k.available = err == nil || errors.Is(err, keyring.ErrNotFound)
	})
	return k.available
}

// Priority returns the backend priority.
func (k *KeychainBackend) Priority() int {
	return KeychainBackendPriority
}

// Get retrieves the key stored for provider.
func (k *KeychainBackend) Get(_ context.Context, provider string) (string, error) {
	if !k.Available() {
		return "", fmt.Errorf("%w: keychain service unavailable", ErrBackendUnavailable)
	}
	value, err := keyring.Get(KeychainService, provider)
	if err != nil {
		return "", keychainError(provider, err)
	}
	return value, nil
}

// Set stores the key for provider.
func (k *KeychainBackend) Set(_ context.Context, provider, value string) error {
	if !k.Available() {
		return fmt.Errorf("%w: keychain service unavailable", ErrBackendUnavailable)
	}
	if err := keyring.Set(KeychainService, provider, value); err != nil {
		return keychainError(provider, err)
	}
	return nil
}

// Delete removes the key for provider.
func (k *KeychainBackend) Delete(_ context.Context, provider string) error {
	if !k.Available() {
		return fmt.Errorf("%w: keychain service unavailable", ErrBackendUnavailable)
	}
	if err := keyring.Delete(KeychainService, provider); err != nil {
		return keychainError(provider, err)
	}
	return nil
}

func keychainError(provider string, err error) error {
	if errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrSecretNotFound, provider)
	}
	if isKeychainUnavailableError(err) {
		return fmt.Errorf("%w: %s", ErrBackendUnavailable, err.Error())
	}
	return fmt.Errorf("keychain error: %w", err)
}

// isKeychainUnavailableError matches the platform messages for a locked or
// inaccessible keychain.
func isKeychainUnavailableError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, indicator := range []string{
		"locked",
		"cannot access",
		"permission denied",
		"failed to unlock",
		"user interaction required",
		"secret service",
		"dbus",
		"user canceled",
	} {
		if strings.Contains(msg, indicator) {
			return true
		}
	}
	return false
}
