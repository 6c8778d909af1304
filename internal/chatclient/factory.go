package chatclient

import (
	"fmt"
	"sort"
	"sync"
)

// Factory creates session clients.
type Factory interface {
	// Create returns a new, uninitialized client for the named driver.
	Create(driver string, opts Options) (Client, error)
}

// Constructor builds a client for one driver.
type Constructor func(opts Options) (Client, error)

// Registry is a factory that maintains registered client drivers.
type Registry struct {
	mu      sync.RWMutex
	drivers map[string]Constructor
}

// NewRegistry creates an empty driver registry.
// Drivers register themselves through Register; see loopback.Register.
func NewRegistry() *Registry {
	return &Registry{
		drivers: make(map[string]Constructor),
	}
}

// Register adds a driver. The constructor is called once per client.
func (r *Registry) Register(name string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[name] = ctor
}

// Create builds a client with the named driver.
func (r *Registry) Create(driver string, opts Options) (Client, error) {
	r.mu.RLock()
	ctor, ok := r.drivers[driver]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unsupported client driver: %s", driver)
	}
	if opts.OnEvent == nil {
		opts.OnEvent = func(Event) {}
	}

	return ctor(opts)
}

// Drivers returns the registered driver names in sorted order.
func (r *Registry) Drivers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.drivers))
	for name := range r.drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsSupported returns true if the given driver is registered.
func (r *Registry) IsSupported(driver string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.drivers[driver]
	return ok
}
