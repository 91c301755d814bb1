// ABOUTME: Provider registry resolving selectors to concrete adapters
// ABOUTME: Named devices and carrier accounts plus first-class caller-supplied credentials

package provider

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// ErrUnknownProvider is returned when a selector names a provider the
// registry does not know.
var ErrUnknownProvider = errors.New("unknown provider")

// ErrNoDefaultProvider is returned for an empty selector when no default
// has been configured.
var ErrNoDefaultProvider = errors.New("no default provider configured")

// Registry holds the configured adapters and resolves selectors. Callers may
// always bring their own device credentials; a shared default is optional,
// not assumed.
type Registry struct {
	mu          sync.RWMutex
	providers   map[string]Provider
	defaultName string
	logger      *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		providers: make(map[string]Provider),
		logger:    logger.With("component", "registry"),
	}
}

// Register adds a named provider. The first registered provider becomes the
// default unless SetDefault chooses another.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.providers[p.Name()] = p
	if r.defaultName == "" {
		r.defaultName = p.Name()
	}
	r.logger.Info("provider registered", "name", p.Name())
}

// SetDefault picks the provider used for empty selectors.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.providers[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	r.defaultName = name
	return nil
}

// Names lists the registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve maps a selector to a concrete adapter. Inline credentials take
// precedence over a named provider; an empty selector resolves to the
// default.
func (r *Registry) Resolve(sel Selector) (Provider, error) {
	if sel.Credentials != nil {
		if err := sel.Credentials.Validate(); err != nil {
			return nil, err
		}
		name := sel.Credentials.DeviceName
		if name == "" {
			name = "caller-device"
		}
		return NewDeviceGateway(name, *sel.Credentials, r.logger), nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if sel.Provider != "" {
		p, ok := r.providers[sel.Provider]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, sel.Provider)
		}
		return p, nil
	}

	if r.defaultName == "" {
		return nil, ErrNoDefaultProvider
	}
	return r.providers[r.defaultName], nil
}
