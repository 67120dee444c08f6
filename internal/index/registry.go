package index

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/BennyH26/titan/pkg/errors"
)

// Factory creates a provider from a free-form option namespace.
type Factory func(ctx context.Context, options map[string]string) (Provider, error)

var (
	backends   = make(map[string]Factory)
	backendsMu sync.RWMutex
)

// RegisterBackend registers a provider factory under the given name,
// typically from a backend package's init. Panics on duplicates.
func RegisterBackend(name string, factory Factory) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	if _, exists := backends[name]; exists {
		panic(fmt.Sprintf("index backend %q already registered", name))
	}
	backends[name] = factory
}

// Backends returns the names of all registered backends, sorted.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewProvider creates a provider by registered name.
func NewProvider(ctx context.Context, name string, options map[string]string) (Provider, error) {
	backendsMu.RLock()
	factory, ok := backends[name]
	backendsMu.RUnlock()
	if !ok {
		return nil, errors.Newf(errors.ErrConfiguration, name, "open",
			"unknown index backend (available: %v)", Backends())
	}

	slog.Info("creating index backend", "backend", name)
	provider, err := factory(ctx, options)
	if err != nil {
		return nil, fmt.Errorf("creating %s backend: %w", name, err)
	}
	return provider, nil
}
