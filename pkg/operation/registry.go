package operation

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/datalab/pkg/errors"
	"github.com/ajitpratap0/datalab/pkg/logger"
)

// Registry is a named catalog of operations.
type Registry struct {
	ops    map[string]*Descriptor
	mu     sync.RWMutex
	logger *zap.Logger
}

// Global registry instance
var globalRegistry = NewRegistry()

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		ops:    make(map[string]*Descriptor),
		logger: logger.Get().With(zap.String("component", "operation_registry")),
	}
}

// Register adds an operation. Names are unique.
func (r *Registry) Register(d *Descriptor) error {
	if d == nil {
		return errors.New(errors.ErrorTypeValidation, "cannot register nil operation")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.ops[d.Name()]; exists {
		return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("operation %s already registered", d.Name()))
	}

	r.ops[d.Name()] = d
	r.logger.Debug("operation registered",
		zap.String("name", d.Name()),
		zap.Stringer("category", d.Category()))
	return nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(ds ...*Descriptor) {
	for _, d := range ds {
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
}

// Get looks an operation up by name.
func (r *Registry) Get(name string) (*Descriptor, error) {
	r.mu.RLock()
	d, exists := r.ops[name]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.New(errors.ErrorTypeNotFound, fmt.Sprintf("operation %s not found", name))
	}
	return d, nil
}

// Has reports whether an operation is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.ops[name]
	return exists
}

// List returns catalog entries sorted by name.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.ops))
	for _, d := range r.ops {
		infos = append(infos, d.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// ListByTask returns the catalog entries tagged with task.
func (r *Registry) ListByTask(task string) []Info {
	var out []Info
	for _, info := range r.List() {
		if info.Task == task {
			out = append(out, info)
		}
	}
	return out
}

// Clear removes all operations (mainly for testing)
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = make(map[string]*Descriptor)
}

// Global registry functions

// Register adds an operation to the global registry.
func Register(d *Descriptor) error {
	return globalRegistry.Register(d)
}

// Get looks an operation up in the global registry.
func Get(name string) (*Descriptor, error) {
	return globalRegistry.Get(name)
}

// List returns the global catalog.
func List() []Info {
	return globalRegistry.List()
}

// GetRegistry returns the global registry instance.
func GetRegistry() *Registry {
	return globalRegistry
}
