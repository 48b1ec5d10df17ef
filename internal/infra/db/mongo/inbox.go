package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
)

// Inbox remembers which delivery events a consumer has already pushed, so a
// redelivered broker record does not reach the sessions twice. Entries expire
// after inboxRetention.
type Inbox struct {
	col      *mongo.Collection
	consumer string
	now      func() time.Time
}

func NewInbox(db *mongo.Database, consumer string) *Inbox {
	return &Inbox{col: db.Collection(inboxCollection), consumer: consumer, now: time.Now}
}

// Seen records the event and reports whether it was recorded before.
func (i *Inbox) Seen(ctx context.Context, eventID string) (bool, error) {
	_, err := i.col.InsertOne(ctx, inboxDocument{EventID: eventID, Consumer: i.consumer, ReceivedAt: i.now().UTC()})
	if err == nil {
		return false, nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return true, nil
	}
	return false, err
}

type inboxDocument struct {
	EventID    string    `bson:"event_id"`
	Consumer   string    `bson:"consumer"`
	ReceivedAt time.Time `bson:"received_at"`
}

