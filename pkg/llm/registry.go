package llm

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	pkgerrors "github.com/tombee/rulegen/pkg/errors"
)

var (
	// ErrNoDefaultProvider indicates no default provider has been set.
	ErrNoDefaultProvider = errors.New("no default provider configured")

	// ErrInvalidProvider indicates the provider implementation is invalid.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrFactoryNotFound indicates no factory is registered for the provider.
	ErrFactoryNotFound = errors.New("provider factory not found")
)

// ProviderFactory creates a Provider from credentials.
type ProviderFactory func(creds Credentials) (Provider, error)

// FactoryInfo describes a registered factory for listings.
type FactoryInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Local       bool   `json:"local"`
}

// Registry manages LLM providers. Factories are registered at import time;
// providers are activated from configuration at startup and may be replaced
// when configuration is refreshed. It is safe for concurrent use.
type Registry struct {
	mu              sync.RWMutex
	factories       map[string]ProviderFactory
	info            map[string]FactoryInfo
	aliases         map[string]string
	providers       map[string]Provider
	defaultProvider string
}

// NewRegistry creates a new provider registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]ProviderFactory),
		info:      make(map[string]FactoryInfo),
		aliases:   make(map[string]string),
		providers: make(map[string]Provider),
	}
}

// RegisterFactory registers a provider factory under name. Registering the
// same name twice overwrites the previous factory.
func (r *Registry) RegisterFactory(info FactoryInfo, factory ProviderFactory, aliases ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[info.Name] = factory
	r.info[info.Name] = info
	for _, a := range aliases {
		r.aliases[a] = info.Name
	}
}

// Canonical resolves an alias to its factory name.
func (r *Registry) Canonical(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.canonical(name)
}

func (r *Registry) canonical(name string) string {
	if c, ok := r.aliases[name]; ok {
		return c
	}
	return name
}

// Create builds a provider from its factory without activating it.
func (r *Registry) Create(name string, creds Credentials) (Provider, error) {
	r.mu.RLock()
	name = r.canonical(name)
	factory, exists := r.factories[name]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrFactoryNotFound, name)
	}
	p, err := factory(creds)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider %s: %w", name, err)
	}
	return p, nil
}

// Activate instantiates a provider from its registered factory. Activating
// an already active provider is a no-op.
func (r *Registry) Activate(name string, creds Credentials) error {
	name = r.Canonical(name)
	if r.IsActive(name) {
		return nil
	}
	p, err := r.Create(name, creds)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[name]; !exists {
		r.providers[name] = p
	}
	return nil
}

// Replace installs p under its name, discarding any previously active
// provider with that name.
func (r *Registry) Replace(p Provider) error {
	if p == nil || p.Name() == "" {
		return ErrInvalidProvider
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
	return nil
}

// IsActive returns true if the provider has been activated.
func (r *Registry) IsActive(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.providers[r.canonical(name)]
	return exists
}

// HasFactory returns true if a factory is registered for name or its alias.
func (r *Registry) HasFactory(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.factories[r.canonical(name)]
	return exists
}

// ListFactories returns registered factories sorted by name.
func (r *Registry) ListFactories() []FactoryInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]FactoryInfo, 0, len(r.info))
	for _, info := range r.info {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ListActive returns the names of all activated providers, sorted alphabetically.
func (r *Registry) ListActive() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get retrieves an active provider by name.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, exists := r.providers[r.canonical(name)]
	if !exists {
		return nil, &pkgerrors.NotFoundError{Resource: "provider", ID: name}
	}
	return p, nil
}

// GetDefault returns the default provider.
func (r *Registry) GetDefault() (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.defaultProvider == "" {
		return nil, ErrNoDefaultProvider
	}
	p, exists := r.providers[r.defaultProvider]
	if !exists {
		return nil, &pkgerrors.NotFoundError{Resource: "provider", ID: r.defaultProvider}
	}
	return p, nil
}

// SetDefault sets the default provider by name. The provider must be active.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name = r.canonical(name)
	if _, exists := r.providers[name]; !exists {
		return &pkgerrors.NotFoundError{Resource: "provider", ID: name}
	}
	r.defaultProvider = name
	return nil
}

// globalRegistry is the default global registry instance.
var globalRegistry = NewRegistry()

// Default returns the process-wide registry that vendor packages register into.
func Default() *Registry {
	return globalRegistry
}

// RegisterFactory registers a provider factory in the global registry.
// This is typically called from init() functions in provider packages.
func RegisterFactory(info FactoryInfo, factory ProviderFactory, aliases ...string) {
	globalRegistry.RegisterFactory(info, factory, aliases...)
}

// Create builds a provider from the global registry.
func Create(name string, creds Credentials) (Provider, error) {
	return globalRegistry.Create(name, creds)
}

// ListFactories returns all registered factories from the global registry.
func ListFactories() []FactoryInfo {
	return globalRegistry.ListFactories()
}
