package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainchat "carchat/internal/domain/chat"
)

const conversationsCollection = "chat_conversations"

// ConversationRepository keeps one document per conversation. The unique dedup_key index is
// what makes concurrent ensure calls converge on a single row.
type ConversationRepository struct {
	col *mongo.Collection
}

func NewConversationRepository(db *mongo.Database) *ConversationRepository {
	return &ConversationRepository{col: db.Collection(conversationsCollection)}
}

func (r *ConversationRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "dedup_key", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "participants", Value: 1}, {Key: "last_activity", Value: -1}, {Key: "_id", Value: -1}}},
	})
	return err
}

func (r *ConversationRepository) Create(ctx context.Context, conv *domainchat.Conversation) error {
	_, err := r.col.InsertOne(ctx, conversationToDocument(conv))
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return domainchat.ErrDuplicateConversation
	}
	return classify(err)
}

func (r *ConversationRepository) ByID(ctx context.Context, id domainchat.ConversationID) (*domainchat.Conversation, error) {
	return r.findOne(ctx, bson.M{"_id": string(id)})
}

func (r *ConversationRepository) ByDedupKey(ctx context.Context, key domainchat.DedupKey) (*domainchat.Conversation, error) {
	return r.findOne(ctx, bson.M{"dedup_key": key.String()})
}

func (r *ConversationRepository) findOne(ctx context.Context, filter bson.M) (*domainchat.Conversation, error) {
	var doc conversationDocument
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainchat.ErrConversationNotFound
		}
		return nil, classify(err)
	}
	return doc.toDomain(), nil
}

func (r *ConversationRepository) ListByParticipant(ctx context.Context, participant string, req domainchat.ConversationPageRequest) (domainchat.ConversationPage, error) {
	filter := bson.M{"participants": participant}
	if !req.Before.IsZero() {
		filter["$or"] = bson.A{
			bson.M{"last_activity": bson.M{"$lt": req.Before.At}},
			bson.M{"last_activity": req.Before.At, "_id": bson.M{"$lt": req.Before.ID}},
		}
	}
	limit := domainchat.NormalizeLimit(req.Limit)
	opts := options.Find().
		SetSort(bson.D{{Key: "last_activity", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit + 1))
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return domainchat.ConversationPage{}, classify(err)
	}
	var docs []conversationDocument
	if err := cur.All(ctx, &docs); err != nil {
		return domainchat.ConversationPage{}, classify(err)
	}

	hasMore := len(docs) > limit
	if hasMore {
		docs = docs[:limit]
	}
	page := domainchat.ConversationPage{Items: make([]*domainchat.Conversation, 0, len(docs))}
	for _, d := range docs {
		page.Items = append(page.Items, d.toDomain())
	}
	if hasMore && len(page.Items) > 0 {
		page.Next = domainchat.EncodeCursor(domainchat.ActivityPosition(page.Items[len(page.Items)-1]))
	}
	return page, nil
}

// saveSummary writes the denormalized fields guarded by the version read earlier in the unit.
func (r *ConversationRepository) saveSummary(ctx context.Context, conv *domainchat.Conversation, expected int64) error {
	doc := conversationToDocument(conv)
	set := bson.M{
		"last_message_id":      doc.LastMessageID,
		"last_sender_id":       doc.LastSenderID,
		"last_message_preview": doc.LastMessagePreview,
		"last_activity":        doc.LastActivity,
		"unread_count_a":       doc.UnreadCountA,
		"unread_count_b":       doc.UnreadCountB,
		"version":              doc.Version,
	}
	if doc.LastMessageAt != nil {
		set["last_message_at"] = *doc.LastMessageAt
	}
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": doc.ID, "version": expected}, bson.M{"$set": set})
	if err != nil {
		return classify(err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: conversation %s changed concurrently", domainchat.ErrTransientStore, conv.ID)
	}
	return nil
}

var _ domainchat.ConversationRepository = (*ConversationRepository)(nil)
