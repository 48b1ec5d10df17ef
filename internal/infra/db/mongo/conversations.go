package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"propchat/internal/domain/chat"
)

type ConversationRepository struct {
	col *mongo.Collection
}

func NewConversationRepository(db *mongo.Database) *ConversationRepository {
	return &ConversationRepository{col: db.Collection(conversationsCollection)}
}

func (r *ConversationRepository) Create(ctx context.Context, conv *chat.Conversation) error {
	if _, err := r.col.InsertOne(ctx, newConversationDocument(conv)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return chat.ErrConflict
		}
		return err
	}
	return nil
}

func (r *ConversationRepository) ByID(ctx context.Context, id chat.ConversationID) (*chat.Conversation, error) {
	return r.findOne(ctx, bson.M{"_id": string(id)})
}

func (r *ConversationRepository) ByDedupKey(ctx context.Context, key string) (*chat.Conversation, error) {
	return r.findOne(ctx, bson.M{"dedup_key": key})
}

func (r *ConversationRepository) findOne(ctx context.Context, filter bson.M) (*chat.Conversation, error) {
	var doc conversationDocument
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, chat.ErrNotFound
		}
		return nil, err
	}
	return doc.toDomain(), nil
}

func (r *ConversationRepository) TouchLastMessage(ctx context.Context, id chat.ConversationID, at time.Time) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": string(id), "last_message_at": bson.M{"$lt": micros(at)}},
		bson.M{"$set": bson.M{"last_message_at": micros(at)}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount > 0 {
		return nil
	}
	n, err := r.col.CountDocuments(ctx, bson.M{"_id": string(id)})
	if err != nil {
		return err
	}
	if n == 0 {
		return chat.ErrNotFound
	}
	return nil
}

func (r *ConversationRepository) List(ctx context.Context, filter chat.ConversationFilter) ([]chat.Conversation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "last_message_at", Value: -1}, {Key: "_id", Value: -1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	cur, err := r.col.Find(ctx, conversationQuery(filter), opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var docs []conversationDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	items := make([]chat.Conversation, 0, len(docs))
	for _, doc := range docs {
		items = append(items, *doc.toDomain())
	}
	return items, nil
}

// conversationQuery selects conversations strictly older than filter.Before
// in (last_message_at, _id) descending order.
func conversationQuery(filter chat.ConversationFilter) bson.M {
	query := bson.M{}
	if filter.ParticipantID != "" {
		query["participant_ids"] = filter.ParticipantID
	}
	if filter.PropertyID != "" {
		query["property_id"] = filter.PropertyID
	}
	if !filter.Before.IsZero() {
		at := micros(filter.Before.At)
		query["$or"] = bson.A{
			bson.M{"last_message_at": bson.M{"$lt": at}},
			bson.M{"last_message_at": at, "_id": bson.M{"$lt": filter.Before.ID}},
		}
	}
	return query
}

type conversationDocument struct {
	ID             string   `bson:"_id"`
	PropertyID     string   `bson:"property_id"`
	ParticipantIDs []string `bson:"participant_ids"`
	InitiatorID    string   `bson:"initiator_id"`
	CounterpartID  string   `bson:"counterpart_id"`
	DedupKey       string   `bson:"dedup_key"`
	CreatedAt      int64    `bson:"created_at"`
	LastMessageAt  int64    `bson:"last_message_at"`
}

func newConversationDocument(c *chat.Conversation) conversationDocument {
	return conversationDocument{
		ID:             string(c.ID),
		PropertyID:     c.PropertyID,
		ParticipantIDs: append([]string(nil), c.ParticipantIDs...),
		InitiatorID:    c.InitiatorID,
		CounterpartID:  c.CounterpartID,
		DedupKey:       c.DedupKey(),
		CreatedAt:      micros(c.CreatedAt),
		LastMessageAt:  micros(c.LastActivity()),
	}
}

func (d conversationDocument) toDomain() *chat.Conversation {
	return &chat.Conversation{
		ID:             chat.ConversationID(d.ID),
		PropertyID:     d.PropertyID,
		ParticipantIDs: append([]string(nil), d.ParticipantIDs...),
		InitiatorID:    d.InitiatorID,
		CounterpartID:  d.CounterpartID,
		CreatedAt:      fromMicros(d.CreatedAt),
		LastMessageAt:  fromMicros(d.LastMessageAt),
	}
}

var _ chat.ConversationRepository = (*ConversationRepository)(nil)
