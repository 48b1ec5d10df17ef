package memory

import (
	"context"
	"strings"
	"sync"

	"propchat/internal/domain/properties"
)

// PropertyDirectory is an in-memory property lookup fed from fixtures.
type PropertyDirectory struct {
	mu    sync.RWMutex
	items map[string]properties.Property
}

func NewPropertyDirectory() *PropertyDirectory {
	return &PropertyDirectory{items: make(map[string]properties.Property)}
}

func (d *PropertyDirectory) Put(p properties.Property) error {
	id := strings.TrimSpace(p.ID)
	if id == "" {
		return properties.ErrIDRequired
	}
	p.ID = id
	p.ContactID = strings.TrimSpace(p.ContactID)
	d.mu.Lock()
	d.items[id] = p
	d.mu.Unlock()
	return nil
}

func (d *PropertyDirectory) Lookup(ctx context.Context, id string) (properties.Property, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.items[strings.TrimSpace(id)]
	if !ok {
		return properties.Property{}, properties.ErrNotFound
	}
	if !p.HasContact() {
		return properties.Property{}, properties.ErrNoContact
	}
	return p, nil
}

var _ properties.Directory = (*PropertyDirectory)(nil)
