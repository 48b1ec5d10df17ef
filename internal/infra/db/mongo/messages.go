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

// MessageRepository stores one document per message with receipts embedded.
// Timestamps are integer microseconds so (created_at, _id) sorts exactly.
type MessageRepository struct {
	col *mongo.Collection
}

func NewMessageRepository(db *mongo.Database) *MessageRepository {
	return &MessageRepository{col: db.Collection(messagesCollection)}
}

func (r *MessageRepository) Append(ctx context.Context, msg *chat.Message) error {
	_, err := r.col.InsertOne(ctx, newMessageDocument(msg))
	return err
}

func (r *MessageRepository) Page(ctx context.Context, conversationID chat.ConversationID, after chat.Cursor, limit int) ([]chat.Message, error) {
	query := bson.M{"conversation_id": string(conversationID)}
	if !after.IsZero() {
		query["$or"] = keyAfter(after)
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return r.find(ctx, query, opts)
}

func (r *MessageRepository) Latest(ctx context.Context, conversationID chat.ConversationID) (*chat.Message, error) {
	return r.findOne(ctx, bson.M{"conversation_id": string(conversationID)}, newestFirst())
}

func (r *MessageRepository) ByID(ctx context.Context, conversationID chat.ConversationID, id chat.MessageID) (*chat.Message, error) {
	return r.findOne(ctx, bson.M{"_id": string(id), "conversation_id": string(conversationID)}, options.FindOne())
}

func (r *MessageRepository) MarkRead(ctx context.Context, conversationID chat.ConversationID, userID string, upto chat.Cursor, at time.Time) (int, error) {
	update := bson.M{"$push": bson.M{"read_by": receiptDocument{UserID: userID, ReadAt: micros(at)}}}
	res, err := r.col.UpdateMany(ctx, unreadUpTo(conversationID, userID, upto), update)
	if err != nil {
		return 0, err
	}
	return int(res.ModifiedCount), nil
}

func (r *MessageRepository) UnreadCount(ctx context.Context, conversationID chat.ConversationID, userID string) (int, error) {
	query := bson.M{"conversation_id": string(conversationID), "sender_id": bson.M{"$ne": userID}}
	lastRead, err := r.findOne(ctx, bson.M{"conversation_id": string(conversationID), "read_by.user_id": userID}, newestFirst())
	switch {
	case err == nil:
		query["$or"] = keyAfter(lastRead.Key())
	case !errors.Is(err, chat.ErrNotFound):
		return 0, err
	}
	n, err := r.col.CountDocuments(ctx, query)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (r *MessageRepository) find(ctx context.Context, query bson.M, opts *options.FindOptions) ([]chat.Message, error) {
	cur, err := r.col.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var docs []messageDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]chat.Message, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.toDomain())
	}
	return out, nil
}

func (r *MessageRepository) findOne(ctx context.Context, query bson.M, opts *options.FindOneOptions) (*chat.Message, error) {
	var doc messageDocument
	if err := r.col.FindOne(ctx, query, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, chat.ErrNotFound
		}
		return nil, err
	}
	msg := doc.toDomain()
	return &msg, nil
}

func newestFirst() *options.FindOneOptions {
	return options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
}

func keyAfter(c chat.Cursor) bson.A {
	at := micros(c.At)
	return bson.A{
		bson.M{"created_at": bson.M{"$gt": at}},
		bson.M{"created_at": at, "_id": bson.M{"$gt": c.ID}},
	}
}

// unreadUpTo matches messages up to the cursor that carry no receipt from
// userID. The $ne guard makes a repeated or concurrent mark push nothing.
func unreadUpTo(conversationID chat.ConversationID, userID string, upto chat.Cursor) bson.M {
	return bson.M{
		"conversation_id": string(conversationID),
		"read_by.user_id": bson.M{"$ne": userID},
		"$or":             keyAtOrBefore(upto),
	}
}

func keyAtOrBefore(c chat.Cursor) bson.A {
	at := micros(c.At)
	return bson.A{
		bson.M{"created_at": bson.M{"$lt": at}},
		bson.M{"created_at": at, "_id": bson.M{"$lte": c.ID}},
	}
}

type receiptDocument struct {
	UserID string `bson:"user_id"`
	ReadAt int64  `bson:"read_at"`
}

type messageDocument struct {
	ID             string            `bson:"_id"`
	ConversationID string            `bson:"conversation_id"`
	SenderID       string            `bson:"sender_id"`
	SenderRole     string            `bson:"sender_role"`
	Body           string            `bson:"body"`
	CreatedAt      int64             `bson:"created_at"`
	ReadBy         []receiptDocument `bson:"read_by"`
}

func newMessageDocument(m *chat.Message) messageDocument {
	receipts := make([]receiptDocument, 0, len(m.ReadBy))
	for _, r := range m.ReadBy {
		receipts = append(receipts, receiptDocument{UserID: r.UserID, ReadAt: micros(r.ReadAt)})
	}
	return messageDocument{
		ID:             string(m.ID),
		ConversationID: string(m.ConversationID),
		SenderID:       m.SenderID,
		SenderRole:     string(m.SenderRole),
		Body:           m.Body,
		CreatedAt:      micros(m.CreatedAt),
		ReadBy:         receipts,
	}
}

func (d messageDocument) toDomain() chat.Message {
	var receipts []chat.ReadReceipt
	for _, r := range d.ReadBy {
		receipts = append(receipts, chat.ReadReceipt{UserID: r.UserID, ReadAt: fromMicros(r.ReadAt)})
	}
	return chat.Message{
		ID:             chat.MessageID(d.ID),
		ConversationID: chat.ConversationID(d.ConversationID),
		SenderID:       d.SenderID,
		SenderRole:     chat.Role(d.SenderRole),
		Body:           d.Body,
		CreatedAt:      fromMicros(d.CreatedAt),
		ReadBy:         receipts,
	}
}

var _ chat.MessageRepository = (*MessageRepository)(nil)
