package mongo

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"propchat/internal/domain/properties"
)

// PropertyDirectory reads the contact of a listing from the catalogue
// collection the listings service owns. contact_id overrides host_id.
type PropertyDirectory struct {
	col *mongo.Collection
}

func NewPropertyDirectory(db *mongo.Database) *PropertyDirectory {
	return &PropertyDirectory{col: db.Collection(listingsCollection)}
}

func (d *PropertyDirectory) Lookup(ctx context.Context, id string) (properties.Property, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return properties.Property{}, properties.ErrIDRequired
	}
	var doc listingDocument
	opts := options.FindOne().SetProjection(bson.M{"title": 1, "host_id": 1, "contact_id": 1})
	if err := d.col.FindOne(ctx, bson.M{"_id": id}, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return properties.Property{}, properties.ErrNotFound
		}
		return properties.Property{}, err
	}
	p := doc.toProperty()
	if !p.HasContact() {
		return properties.Property{}, properties.ErrNoContact
	}
	return p, nil
}

type listingDocument struct {
	ID        string `bson:"_id"`
	Title     string `bson:"title"`
	HostID    string `bson:"host_id"`
	ContactID string `bson:"contact_id,omitempty"`
}

func (d listingDocument) toProperty() properties.Property {
	contact := strings.TrimSpace(d.ContactID)
	if contact == "" {
		contact = strings.TrimSpace(d.HostID)
	}
	return properties.Property{ID: d.ID, Title: d.Title, ContactID: contact}
}

var _ properties.Directory = (*PropertyDirectory)(nil)
