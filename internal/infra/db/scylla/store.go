package scylla

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gocql/gocql"

	domainchat "carchat/internal/domain/chat"
)

var errSessionMissing = errors.New("scylla: session not initialized")

// Store implements both chat repositories over one session. Every call is atomic
// on its own: dedup through a lightweight transaction on conversation_keys, appends and read
// marks through conditional batches guarded by the partition version.
type Store struct {
	session *gocql.Session
	logger  *slog.Logger
}

func NewStore(session *gocql.Session, logger *slog.Logger) *Store {
	return &Store{session: session, logger: logger}
}

func (s *Store) Ping(ctx context.Context) error {
	if s.session == nil {
		return errSessionMissing
	}
	return s.session.Query(`SELECT release_version FROM system.local`).WithContext(ctx).Exec()
}

func (s *Store) Close() {
	if s.session != nil {
		s.session.Close()
	}
}

func (s *Store) Create(ctx context.Context, conv *domainchat.Conversation) error {
	if s.session == nil {
		return errSessionMissing
	}
	existing := map[string]any{}
	applied, err := s.session.
		Query(`INSERT INTO conversation_keys (dedup_key, conversation_id) VALUES (?, ?) IF NOT EXISTS`, conv.DedupKey().String(), string(conv.ID)).
		WithContext(ctx).
		SerialConsistency(gocql.LocalSerial).
		MapScanCAS(existing)
	if err != nil {
		return classify(err)
	}
	if !applied {
		return s.repairClaimed(ctx, conv, claimedID(existing))
	}
	return s.writeTimeline(ctx, conv, conv.ID)
}

// repairClaimed handles a key that is already taken. When the holder never wrote its
// conversation row (its write failed or its caller went away after the claim), the row is
// written now under the holder's id. The caller still gets ErrDuplicateConversation and
// fetches the conversation by key.
func (s *Store) repairClaimed(ctx context.Context, conv *domainchat.Conversation, claimed domainchat.ConversationID) error {
	if claimed == "" {
		return domainchat.ErrDuplicateConversation
	}
	_, err := s.ByID(ctx, claimed)
	if err == nil {
		return domainchat.ErrDuplicateConversation
	}
	if !errors.Is(err, domainchat.ErrConversationNotFound) {
		return err
	}
	if s.logger != nil {
		s.logger.Warn("conversation key claimed without row, repairing", "conversation_id", string(claimed), "dedup_key", conv.DedupKey().String())
	}
	if err := s.writeTimeline(ctx, conv, claimed); err != nil {
		return err
	}
	return domainchat.ErrDuplicateConversation
}

// writeTimeline materializes the conversation row under id. The row insert is conditional so
// a repair racing the original writer leaves exactly one row; the participant index is an
// idempotent upsert.
func (s *Store) writeTimeline(ctx context.Context, conv *domainchat.Conversation, id domainchat.ConversationID) error {
	_, err := s.session.
		Query(`INSERT INTO conversation_timeline (conversation_id, dedup_key, kind, participant_a, participant_b,
	listing_kind, listing_id, created_at, unread_count_a, unread_count_b, version) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) IF NOT EXISTS`,
			string(id), conv.DedupKey().String(), string(conv.Kind), conv.ParticipantA, conv.ParticipantB,
			string(conv.Listing.Kind), conv.Listing.ID, conv.CreatedAt, 0, 0, int64(0)).
		WithContext(ctx).
		SerialConsistency(gocql.LocalSerial).
		MapScanCAS(map[string]any{})
	if err != nil {
		return classify(err)
	}

	batch := s.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	for _, participant := range []string{conv.ParticipantA, conv.ParticipantB} {
		batch.Query(`INSERT INTO conversations_by_participant (participant, conversation_id) VALUES (?, ?)`, participant, string(id))
	}
	if err := s.session.ExecuteBatch(batch); err != nil {
		return classify(err)
	}
	return nil
}

func claimedID(existing map[string]any) domainchat.ConversationID {
	id, _ := existing["conversation_id"].(string)
	return domainchat.ConversationID(id)
}

func (s *Store) ByID(ctx context.Context, id domainchat.ConversationID) (*domainchat.Conversation, error) {
	if s.session == nil {
		return nil, errSessionMissing
	}
	var row summaryRow
	err := s.session.
		Query(`SELECT `+summaryColumns+` FROM conversation_timeline WHERE conversation_id = ? LIMIT 1`, string(id)).
		WithContext(ctx).
		Scan(row.dest()...)
	if errors.Is(err, gocql.ErrNotFound) {
		return nil, domainchat.ErrConversationNotFound
	}
	if err != nil {
		return nil, classify(err)
	}
	if row.Kind == "" {
		return nil, domainchat.ErrConversationNotFound
	}
	return row.toDomain(), nil
}

// ByDedupKey misses while the winning insert has claimed the key but not yet written its row.
func (s *Store) ByDedupKey(ctx context.Context, key domainchat.DedupKey) (*domainchat.Conversation, error) {
	if s.session == nil {
		return nil, errSessionMissing
	}
	var id string
	err := s.session.
		Query(`SELECT conversation_id FROM conversation_keys WHERE dedup_key = ?`, key.String()).
		WithContext(ctx).
		Consistency(gocql.LocalQuorum).
		Scan(&id)
	if errors.Is(err, gocql.ErrNotFound) {
		return nil, domainchat.ErrConversationNotFound
	}
	if err != nil {
		return nil, classify(err)
	}
	return s.ByID(ctx, domainchat.ConversationID(id))
}

func (s *Store) ListByParticipant(ctx context.Context, participant string, req domainchat.ConversationPageRequest) (domainchat.ConversationPage, error) {
	if s.session == nil {
		return domainchat.ConversationPage{}, errSessionMissing
	}
	iter := s.session.
		Query(`SELECT conversation_id FROM conversations_by_participant WHERE participant = ?`, participant).
		WithContext(ctx).
		Iter()
	var (
		id  string
		ids []string
	)
	for iter.Scan(&id) {
		ids = append(ids, id)
	}
	if err := iter.Close(); err != nil {
		return domainchat.ConversationPage{}, classify(err)
	}

	items := make([]*domainchat.Conversation, 0, len(ids))
	for _, id := range ids {
		conv, err := s.ByID(ctx, domainchat.ConversationID(id))
		if errors.Is(err, domainchat.ErrConversationNotFound) {
			continue
		}
		if err != nil {
			return domainchat.ConversationPage{}, err
		}
		items = append(items, conv)
	}
	domainchat.SortByActivity(items)
	return domainchat.WindowConversations(items, req), nil
}

func (s *Store) Append(ctx context.Context, msg *domainchat.Message) (*domainchat.Conversation, error) {
	conv, err := s.ByID(ctx, msg.ConversationID)
	if err != nil {
		return nil, err
	}
	expected := conv.Version
	msg.CreatedAt = conv.NextMessageTime(msg.CreatedAt, msg.ID)
	if err := conv.ApplyMessage(msg); err != nil {
		return nil, err
	}

	batch := s.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.SerialConsistency(gocql.LocalSerial)
	batch.Query(`INSERT INTO conversation_timeline (conversation_id, message_at, message_id, sender_id, body, media_url, is_read)
	VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(msg.ConversationID), msg.CreatedAt, string(msg.ID), msg.SenderID, msg.Body, msg.MediaURL, false)
	batch.Query(`UPDATE conversation_timeline SET last_message_at = ?, last_message_id = ?, last_sender_id = ?,
	last_message_preview = ?, unread_count_a = ?, unread_count_b = ?, version = ? WHERE conversation_id = ? IF version = ?`,
		conv.LastMessageAt, string(conv.LastMessageID), conv.LastSenderID, conv.LastMessagePreview,
		conv.UnreadCountA, conv.UnreadCountB, conv.Version, string(conv.ID), expected)
	if err := s.executeGuarded(batch); err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *Store) List(ctx context.Context, id domainchat.ConversationID, req domainchat.PageRequest) (domainchat.MessagePage, error) {
	if s.session == nil {
		return domainchat.MessagePage{}, errSessionMissing
	}
	if _, err := s.ByID(ctx, id); err != nil {
		return domainchat.MessagePage{}, err
	}
	backward := req.Direction == domainchat.Backward
	order, cmp := "ASC", ">"
	if backward {
		order, cmp = "DESC", "<"
	}
	limit := domainchat.NormalizeLimit(req.Limit)
	stmt := `SELECT ` + messageColumns + ` FROM conversation_timeline WHERE conversation_id = ?`
	args := []any{string(id)}
	if !req.After.IsZero() {
		stmt += fmt.Sprintf(` AND (message_at, message_id) %s (?, ?)`, cmp)
		args = append(args, req.After.At, req.After.ID)
	}
	stmt += fmt.Sprintf(` ORDER BY message_at %s, message_id %s LIMIT ?`, order, order)
	args = append(args, limit+1)

	iter := s.session.Query(stmt, args...).WithContext(ctx).Iter()
	var (
		row  messageRow
		rows []*domainchat.Message
	)
	for iter.Scan(row.dest()...) {
		// a partition with no messages yields one row of static columns only
		if row.ID == "" {
			continue
		}
		rows = append(rows, row.toDomain())
		row = messageRow{}
	}
	if err := iter.Close(); err != nil {
		return domainchat.MessagePage{}, classify(err)
	}

	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}
	if backward {
		for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
			rows[i], rows[j] = rows[j], rows[i]
		}
	}
	return domainchat.BuildPage(rows, req.Direction, hasMore), nil
}

func (s *Store) MarkRead(ctx context.Context, id domainchat.ConversationID, reader string, at time.Time) (int, error) {
	conv, err := s.ByID(ctx, id)
	if err != nil {
		return 0, err
	}
	expected := conv.Version
	if err := conv.ResetUnread(reader); err != nil {
		return 0, err
	}

	iter := s.session.
		Query(`SELECT message_at, message_id, sender_id, is_read FROM conversation_timeline WHERE conversation_id = ?`, string(id)).
		WithContext(ctx).
		Iter()
	type key struct {
		at time.Time
		id string
	}
	var (
		msgAt  time.Time
		msgID  string
		sender string
		isRead bool
		unread []key
	)
	for iter.Scan(&msgAt, &msgID, &sender, &isRead) {
		if msgID != "" && !isRead && sender != reader {
			unread = append(unread, key{at: msgAt, id: msgID})
		}
	}
	if err := iter.Close(); err != nil {
		return 0, classify(err)
	}

	markRead := func(b *gocql.Batch, k key) {
		b.Query(`UPDATE conversation_timeline SET is_read = true, read_at = ? WHERE conversation_id = ? AND message_at = ? AND message_id = ?`,
			nullableTime(at), string(id), k.at, k.id)
	}
	// Leading chunks go out as plain single-partition batches; the last one rides with the
	// version-guarded counter reset.
	head, tail := splitReadChunks(len(unread), markReadChunk)
	for _, chunk := range head {
		b := s.session.NewBatch(gocql.UnloggedBatch).WithContext(ctx)
		for _, k := range unread[chunk[0]:chunk[1]] {
			markRead(b, k)
		}
		if err := s.session.ExecuteBatch(b); err != nil {
			return 0, classify(err)
		}
	}
	batch := s.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.SerialConsistency(gocql.LocalSerial)
	for _, k := range unread[tail:] {
		markRead(batch, k)
	}
	batch.Query(`UPDATE conversation_timeline SET unread_count_a = ?, unread_count_b = ?, version = ? WHERE conversation_id = ? IF version = ?`,
		conv.UnreadCountA, conv.UnreadCountB, conv.Version, string(id), expected)
	if err := s.executeGuarded(batch); err != nil {
		return 0, err
	}
	return len(unread), nil
}

// markReadChunk bounds the statements per batch, well under the default batch size fail threshold.
const markReadChunk = 100

// splitReadChunks returns the [from, to) ranges written before the guarded batch and the index
// where the guarded batch's own share starts. The guarded share holds at most size rows.
func splitReadChunks(n, size int) ([][2]int, int) {
	if size <= 0 || n <= size {
		return nil, 0
	}
	tail := n - size
	var head [][2]int
	for from := 0; from < tail; from += size {
		to := from + size
		if to > tail {
			to = tail
		}
		head = append(head, [2]int{from, to})
	}
	return head, tail
}

// executeGuarded runs a conditional batch and reports a lost version race as transient.
func (s *Store) executeGuarded(batch *gocql.Batch) error {
	current := map[string]any{}
	applied, iter, err := s.session.MapExecuteBatchCAS(batch, current)
	if iter != nil {
		_ = iter.Close()
	}
	if err != nil {
		return classify(err)
	}
	if !applied {
		if s.logger != nil {
			s.logger.Debug("conditional batch not applied", "current_version", current["version"])
		}
		return errVersionMoved
	}
	return nil
}

var (
	_ domainchat.ConversationRepository = (*Store)(nil)
	_ domainchat.MessageRepository      = (*Store)(nil)
)
