package storage

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"esign-sync/internal/common/errors"
)

// Registry maps ledger backend names to the factories that open them.
// Backends register under a canonical name plus any aliases.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]StorageFactory
	aliases   map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]StorageFactory),
		aliases:   make(map[string]string),
	}
}

// Register adds a backend. Registering a name twice replaces the factory.
func (r *Registry) Register(storageType string, factory StorageFactory, aliases ...string) {
	name := normalize(storageType)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
	for _, alias := range aliases {
		r.aliases[normalize(alias)] = name
	}
}

// Resolve returns the canonical backend name for storageType.
func (r *Registry) Resolve(storageType string) (string, bool) {
	name := normalize(storageType)

	r.mu.RLock()
	defer r.mu.RUnlock()
	if canonical, ok := r.aliases[name]; ok {
		name = canonical
	}
	_, ok := r.factories[name]
	return name, ok
}

// Create opens the backend named by storageType with config.
func (r *Registry) Create(storageType string, config StorageConfig) (Storage, error) {
	name, ok := r.Resolve(storageType)
	if !ok {
		return nil, errors.ConfigError(fmt.Sprintf("unsupported database type %q (available: %s)",
			storageType, strings.Join(r.GetAvailableTypes(), ", ")))
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	factory := r.factories[name]
	r.mu.RUnlock()
	return factory.Create(config)
}

// GetAvailableTypes returns the canonical backend names, sorted.
func (r *Registry) GetAvailableTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for storageType := range r.factories {
		types = append(types, storageType)
	}
	sort.Strings(types)
	return types
}

func (r *Registry) IsRegistered(storageType string) bool {
	_, ok := r.Resolve(storageType)
	return ok
}

func normalize(storageType string) string {
	return strings.ToLower(strings.TrimSpace(storageType))
}

// DefaultRegistry holds the backends linked into the binary.
var DefaultRegistry = NewRegistry()

func Register(storageType string, factory StorageFactory, aliases ...string) {
	DefaultRegistry.Register(storageType, factory, aliases...)
}

func Create(storageType string, config StorageConfig) (Storage, error) {
	return DefaultRegistry.Create(storageType, config)
}

func GetAvailableTypes() []string {
	return DefaultRegistry.GetAvailableTypes()
}
