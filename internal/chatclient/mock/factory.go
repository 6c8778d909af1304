package mock

import (
	"sync"

	"github.com/AltairaLabs/chatpool/internal/chatclient"
)

// Factory is a chatclient.Factory that hands out mock clients and keeps them
// for inspection.
type Factory struct {
	mu        sync.Mutex
	clients   []*Client
	createErr error
	configure func(*Client)
}

var _ chatclient.Factory = (*Factory)(nil)

// NewFactory creates a mock factory.
func NewFactory() *Factory {
	return &Factory{}
}

// Create returns a new mock client regardless of driver.
func (f *Factory) Create(driver string, opts chatclient.Options) (chatclient.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.createErr != nil {
		return nil, f.createErr
	}
	c := NewClient(opts)
	if f.configure != nil {
		f.configure(c)
	}
	f.clients = append(f.clients, c)
	return c, nil
}

// Register installs the factory as a driver in a registry.
func (f *Factory) Register(r *chatclient.Registry, name string) {
	r.Register(name, func(opts chatclient.Options) (chatclient.Client, error) {
		return f.Create(name, opts)
	})
}

// OnCreate runs fn on every client before it is returned.
func (f *Factory) OnCreate(fn func(*Client)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configure = fn
}

// SetCreateError makes Create fail.
func (f *Factory) SetCreateError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createErr = err
}

// Clients returns every client created so far.
func (f *Factory) Clients() []*Client {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Client, len(f.clients))
	copy(out, f.clients)
	return out
}

// Count returns the number of clients created.
func (f *Factory) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

// Last returns the most recently created client, or nil.
func (f *Factory) Last() *Client {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.clients) == 0 {
		return nil
	}
	return f.clients[len(f.clients)-1]
}
