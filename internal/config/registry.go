package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/MrWong99/fluency/pkg/provider/stt"
)

// ErrProviderNotRegistered is returned by [Registry.CreateSTT] when no factory
// has been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// STTFactory builds a transcriber from its configuration entry.
type STTFactory func(ProviderEntry) (stt.Transcriber, error)

// Registry maps provider names to their constructor functions.
// It is safe for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	stt map[string]STTFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stt: make(map[string]STTFactory),
	}
}

// RegisterSTT registers a transcriber factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSTT(name string, factory STTFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// CreateSTT instantiates a transcriber using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Transcriber, error) {
	r.mu.RLock()
	factory, ok := r.stt[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt/%q (registered: %s)", ErrProviderNotRegistered, entry.Name, strings.Join(r.STTNames(), ", "))
	}
	t, err := factory(entry)
	if err != nil {
		return nil, fmt.Errorf("config: create stt/%q: %w", entry.Name, err)
	}
	return t, nil
}

// STTNames returns the registered transcriber names in sorted order.
func (r *Registry) STTNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.stt))
	for name := range r.stt {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
