package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainchat "carchat/internal/domain/chat"
)

const messagesCollection = "chat_messages"

// MessageRepository must be used inside a unit so the message insert and the conversation
// summary update commit together.
type MessageRepository struct {
	col           *mongo.Collection
	conversations *ConversationRepository
}

func NewMessageRepository(db *mongo.Database, conversations *ConversationRepository) *MessageRepository {
	return &MessageRepository{col: db.Collection(messagesCollection), conversations: conversations}
}

func (r *MessageRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}},
		{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "is_read", Value: 1}, {Key: "sender_id", Value: 1}}},
	})
	return err
}

func (r *MessageRepository) Append(ctx context.Context, msg *domainchat.Message) (*domainchat.Conversation, error) {
	conv, err := r.conversations.ByID(ctx, msg.ConversationID)
	if err != nil {
		return nil, err
	}
	expected := conv.Version
	msg.CreatedAt = conv.NextMessageTime(msg.CreatedAt, msg.ID)
	if err := conv.ApplyMessage(msg); err != nil {
		return nil, err
	}
	if _, err := r.col.InsertOne(ctx, messageToDocument(msg)); err != nil {
		return nil, classify(err)
	}
	if err := r.conversations.saveSummary(ctx, conv, expected); err != nil {
		return nil, err
	}
	return conv, nil
}

func (r *MessageRepository) List(ctx context.Context, id domainchat.ConversationID, req domainchat.PageRequest) (domainchat.MessagePage, error) {
	backward := req.Direction == domainchat.Backward
	order, cmp := 1, "$gt"
	if backward {
		order, cmp = -1, "$lt"
	}
	filter := bson.M{"conversation_id": string(id)}
	if !req.After.IsZero() {
		filter["$or"] = bson.A{
			bson.M{"created_at": bson.M{cmp: req.After.At}},
			bson.M{"created_at": req.After.At, "_id": bson.M{cmp: req.After.ID}},
		}
	}
	limit := domainchat.NormalizeLimit(req.Limit)
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: order}, {Key: "_id", Value: order}}).
		SetLimit(int64(limit + 1))
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return domainchat.MessagePage{}, classify(err)
	}
	var docs []messageDocument
	if err := cur.All(ctx, &docs); err != nil {
		return domainchat.MessagePage{}, classify(err)
	}

	hasMore := len(docs) > limit
	if hasMore {
		docs = docs[:limit]
	}
	items := make([]*domainchat.Message, len(docs))
	for i, d := range docs {
		if backward {
			items[len(docs)-1-i] = d.toDomain()
		} else {
			items[i] = d.toDomain()
		}
	}
	return domainchat.BuildPage(items, req.Direction, hasMore), nil
}

func (r *MessageRepository) MarkRead(ctx context.Context, id domainchat.ConversationID, reader string, at time.Time) (int, error) {
	conv, err := r.conversations.ByID(ctx, id)
	if err != nil {
		return 0, err
	}
	expected := conv.Version
	if err := conv.ResetUnread(reader); err != nil {
		return 0, err
	}
	res, err := r.col.UpdateMany(ctx,
		bson.M{"conversation_id": string(id), "is_read": false, "sender_id": bson.M{"$ne": reader}},
		bson.M{"$set": bson.M{"is_read": true, "read_at": at}},
	)
	if err != nil {
		return 0, classify(err)
	}
	if err := r.conversations.saveSummary(ctx, conv, expected); err != nil {
		return 0, err
	}
	return int(res.ModifiedCount), nil
}

var _ domainchat.MessageRepository = (*MessageRepository)(nil)
