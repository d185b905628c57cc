package limiter

import (
	"fmt"
	"roomgate/internal/models"
	"roomgate/internal/storage"
	"sort"
	"strings"
	"sync"
)

// Registry hands out exactly one Store per domain name. Stores share the
// backend but never each other's key space.
type Registry struct {
	storage storage.Storage
	opts    []Option

	mu      sync.Mutex
	stores  map[string]*Store
	allowed map[string]bool
}

// NewRegistry creates a registry whose stores run on backend. It serves any
// valid domain until AllowDomains narrows it.
func NewRegistry(backend storage.Storage, opts ...Option) *Registry {
	return &Registry{
		storage: backend,
		opts:    opts,
		stores:  make(map[string]*Store),
	}
}

// ValidateDomain checks a domain name can be used as a key-space prefix.
func ValidateDomain(name string) error {
	if name == "" {
		return NewInvalidArgumentError("domain name is required")
	}
	if strings.ContainsAny(name, "/:") {
		return NewInvalidArgumentError(fmt.Sprintf("domain name %q must not contain '/' or ':'", name))
	}
	return nil
}

// AllowDomains limits Store to names plus the default domain. Stores
// created earlier for other names stay reachable through Domains only.
func (r *Registry) AllowDomains(names ...string) error {
	allowed := map[string]bool{models.DefaultDomain: true}
	for _, name := range names {
		if err := ValidateDomain(name); err != nil {
			return err
		}
		allowed[name] = true
	}

	r.mu.Lock()
	r.allowed = allowed
	r.mu.Unlock()
	return nil
}

// Store returns the store for name, creating it on first use. Names outside
// the allow-list fail with ErrUnknownDomain and leave the registry untouched.
func (r *Registry) Store(name string) (*Store, error) {
	if err := ValidateDomain(name); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.allowed != nil && !r.allowed[name] {
		return nil, NewUnknownDomainError(name)
	}
	if s, ok := r.stores[name]; ok {
		return s, nil
	}
	s := NewStore(name, r.storage, r.opts...)
	r.stores[name] = s
	return s, nil
}

// Global returns the store of the default domain.
func (r *Registry) Global() *Store {
	s, _ := r.Store(models.DefaultDomain)
	return s
}

// Domains lists the names of the stores created so far.
func (r *Registry) Domains() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.stores))
	for name := range r.stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
