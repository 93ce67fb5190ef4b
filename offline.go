package granc

import "github.com/JasterV/granc/internal/pool"

// Offline is a schema-only client: no connection, no Dynamic method.
// It exists purely to inspect a FileDescriptorSet's symbols — to list
// services or look up a message/enum/service descriptor — without ever
// touching the network. The absence of Dynamic is deliberate: there is
// nothing to call it against.
type Offline struct {
	pool *pool.Pool
}

// NewOffline decodes raw as a FileDescriptorSet and returns a schema-only
// client over it.
func NewOffline(raw []byte) (*Offline, error) {
	p := pool.New()
	if err := p.AddFileDescriptorSet(raw); err != nil {
		return nil, err
	}
	return &Offline{pool: p}, nil
}

// ListServices returns the services named by the descriptor set.
func (c *Offline) ListServices() []string {
	return c.pool.ListServices()
}

// GetDescriptorBySymbol resolves symbol against the descriptor set,
// checking messages and enums first, then services.
func (c *Offline) GetDescriptorBySymbol(symbol string) (Descriptor, bool) {
	if raw, ok := c.pool.GetDescriptorBySymbol(symbol); ok {
		return descriptorFromPoolLookup(raw)
	}
	if svc, ok := c.pool.GetService(symbol); ok {
		return descriptorFromService(svc), true
	}
	return Descriptor{}, false
}
