package properties

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrNotFound   = errors.New("properties: not found")
	ErrNoContact  = errors.New("properties: no contact assigned")
	ErrIDRequired = errors.New("properties: id is required")
)

// Property is the slice of a listing the messaging core needs.
type Property struct {
	ID        string
	Title     string
	ContactID string
}

func (p Property) HasContact() bool {
	return strings.TrimSpace(p.ContactID) != ""
}

// Directory resolves a property to its designated contact.
type Directory interface {
	Lookup(ctx context.Context, id string) (Property, error)
}
