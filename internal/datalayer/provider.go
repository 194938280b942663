package datalayer

import (
	"context"
	"sync"
)

// Factory builds a DataLayer on first use.
type Factory func(ctx context.Context) (*DataLayer, error)

// Provider holds one lazily constructed DataLayer for the composition root.
type Provider struct {
	mu      sync.Mutex
	factory Factory
	dl      *DataLayer
}

func NewProvider(factory Factory) *Provider {
	return &Provider{factory: factory}
}

// Get returns the current instance, building it when needed. A failed build
// is not cached.
func (p *Provider) Get(ctx context.Context) (*DataLayer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.dl != nil {
		return p.dl, nil
	}
	dl, err := p.factory(ctx)
	if err != nil {
		return nil, err
	}
	p.dl = dl
	return dl, nil
}

// Reset destroys the current instance. The next Get builds a fresh one.
func (p *Provider) Reset() {
	p.mu.Lock()
	dl := p.dl
	p.dl = nil
	p.mu.Unlock()

	if dl != nil {
		dl.Destroy()
	}
}
