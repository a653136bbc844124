// Package tool defines the closed registry of assistant CLI tools relay can
// route to. Each tool is a data entry: its probe identity, routing aliases,
// topic affinities, and static capability metadata. Adding a tool is a data
// addition, not a new code path.
package tool

import (
	"fmt"
	"sort"
	"sync"

	"github.com/relaycli/relay/internal/model"
)

// Definition is one registered assistant tool.
type Definition struct {
	// Identity holds the probe invocations. Identity.Name doubles as the
	// binary name looked up on PATH.
	Identity model.ToolIdentity
	// Aliases are alternate names a request may use to refer to this tool.
	Aliases []string
	// Affinities maps request topic words to a fixed affinity in [0,1].
	Affinities map[string]float64
	// Metadata holds capabilities not derivable from help text. Nil when
	// nothing beyond the probed record is known about the tool.
	Metadata *model.ToolMetadata
}

// Name returns the tool's unique identifier.
func (d Definition) Name() string { return d.Identity.Name }

// Registry holds tool definitions in registration order. It is an explicit
// instance passed into components, never a process-wide singleton, so tests
// can build isolated registries.
type Registry struct {
	mu          sync.RWMutex
	order       []string
	defs        map[string]Definition
	defaultName string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// Register adds a tool definition. It returns an error on duplicate names
// or an empty identity.
func (r *Registry) Register(d Definition) error {
	name := d.Identity.Name
	if name == "" {
		return fmt.Errorf("tool: definition has empty name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[name]; exists {
		return fmt.Errorf("tool: duplicate registration for %q", name)
	}
	r.defs[name] = d
	r.order = append(r.order, name)
	if r.defaultName == "" {
		r.defaultName = name
	}
	return nil
}

// Get returns the definition for name.
func (r *Registry) Get(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.defs[name]
	return d, ok
}

// Names returns tool names in registration order. Registration order is the
// scan order for routing, so it is deterministic.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// SortedNames returns tool names alphabetically, for display.
func (r *Registry) SortedNames() []string {
	names := r.Names()
	sort.Strings(names)
	return names
}

// Default returns the configured default tool name.
func (r *Registry) Default() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultName
}

// SetDefault changes the default tool. The tool must be registered.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.defs[name]; !ok {
		return fmt.Errorf("tool: cannot default to unregistered tool %q", name)
	}
	r.defaultName = name
	return nil
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
