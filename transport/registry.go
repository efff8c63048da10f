package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/ThreeDotsLabs/watermill"

	rterrors "github.com/drblury/asyncflow/internal/runtime/errors"
)

// Registry holds the protocol handlers in lookup order together with the named
// builders that create them. Handler lookup is first match.
type Registry struct {
	mu           sync.RWMutex
	handlers     []ProtocolHandler
	builders     []namedBuilder
	capabilities map[string]Capabilities
}

type namedBuilder struct {
	name    string
	builder Builder
}

// DefaultRegistry is the global registry adapter packages register with.
var DefaultRegistry = NewRegistry()

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{capabilities: make(map[string]Capabilities)}
}

// Add appends a handler. Handlers added earlier take precedence.
func (r *Registry) Add(handler ProtocolHandler) {
	if handler == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, handler)
}

// Register stores a named builder and its capabilities. Registering a name
// twice replaces the builder but keeps its original position.
func (r *Registry) Register(name string, builder Builder, caps Capabilities) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capabilities[name] = caps
	for i := range r.builders {
		if r.builders[i].name == name {
			r.builders[i].builder = builder
			return
		}
	}
	r.builders = append(r.builders, namedBuilder{name: name, builder: builder})
}

// Handler returns the first handler supporting protocol at version.
func (r *Registry) Handler(protocol, version string) (ProtocolHandler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, h := range r.handlers {
		if h.Supports(protocol, version) {
			return h, nil
		}
	}
	return nil, &rterrors.UnsupportedProtocolError{Protocol: protocol, Version: version}
}

// Protocols returns the sorted, de-duplicated protocols served by the added
// handlers that report their capabilities.
func (r *Registry) Protocols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, h := range r.handlers {
		provider, ok := h.(CapabilitiesProvider)
		if !ok {
			continue
		}
		for _, p := range provider.Capabilities().Protocols {
			seen[p] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Names returns the registered builder names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.builders))
	for _, b := range r.builders {
		names = append(names, b.name)
	}
	return names
}

// Has returns true if a builder is registered with the given name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.builders {
		if b.name == name {
			return true
		}
	}
	return false
}

// GetCapabilities returns the capabilities registered for name, or a zero
// value carrying only the name.
func (r *Registry) GetCapabilities(name string) Capabilities {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if caps, ok := r.capabilities[name]; ok {
		return caps
	}
	return Capabilities{Name: name}
}

// Build returns a new registry holding r's handlers followed by one handler per
// registered builder, in registration order.
func (r *Registry) Build(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (*Registry, error) {
	if cfg == nil {
		return nil, rterrors.ErrConfigRequired
	}
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	r.mu.RLock()
	handlers := append([]ProtocolHandler(nil), r.handlers...)
	builders := append([]namedBuilder(nil), r.builders...)
	caps := make(map[string]Capabilities, len(r.capabilities))
	for k, v := range r.capabilities {
		caps[k] = v
	}
	r.mu.RUnlock()

	built := &Registry{handlers: handlers, builders: builders, capabilities: caps}
	for _, b := range builders {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		h, err := b.builder(ctx, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("build %s handler: %w", b.name, err)
		}
		built.handlers = append(built.handlers, h)
	}
	return built, nil
}

// Close closes every handler that implements io.Closer.
func (r *Registry) Close() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var errs []error
	for _, h := range r.handlers {
		if c, ok := h.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

// Register adds a builder to the default registry.
func Register(name string, builder Builder, caps Capabilities) {
	DefaultRegistry.Register(name, builder, caps)
}

// Build builds every handler registered with the default registry.
func Build(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (*Registry, error) {
	return DefaultRegistry.Build(ctx, cfg, logger)
}
