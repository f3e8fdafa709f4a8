package memory

import (
	"context"
	"sync"
	"time"

	domainchat "carchat/internal/domain/chat"
)

// ChatStore keeps conversations and their messages in memory. The store lock guards the
// indexes only; appends and read-state changes serialize on the conversation entry.
type ChatStore struct {
	mu            sync.RWMutex
	conversations map[domainchat.ConversationID]*conversationEntry
	byKey         map[domainchat.DedupKey]domainchat.ConversationID
	byParticipant map[string][]domainchat.ConversationID
}

type conversationEntry struct {
	mu       sync.Mutex
	conv     *domainchat.Conversation
	messages []*domainchat.Message
}

func NewChatStore() *ChatStore {
	return &ChatStore{
		conversations: make(map[domainchat.ConversationID]*conversationEntry),
		byKey:         make(map[domainchat.DedupKey]domainchat.ConversationID),
		byParticipant: make(map[string][]domainchat.ConversationID),
	}
}

// ConversationRepository is the ChatStore view used for conversation rows.
type ConversationRepository struct {
	store *ChatStore
}

// MessageRepository is the ChatStore view used for messages.
type MessageRepository struct {
	store *ChatStore
}

func (s *ChatStore) Conversations() *ConversationRepository {
	return &ConversationRepository{store: s}
}

func (s *ChatStore) Messages() *MessageRepository {
	return &MessageRepository{store: s}
}

func (s *ChatStore) entry(id domainchat.ConversationID) (*conversationEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.conversations[id]
	if !ok {
		return nil, domainchat.ErrConversationNotFound
	}
	return e, nil
}

func (r *ConversationRepository) Create(ctx context.Context, conv *domainchat.Conversation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	key := conv.DedupKey()
	if _, taken := s.byKey[key]; taken {
		return domainchat.ErrDuplicateConversation
	}
	if _, taken := s.conversations[conv.ID]; taken {
		return domainchat.ErrDuplicateConversation
	}
	s.conversations[conv.ID] = &conversationEntry{conv: conv.Clone()}
	s.byKey[key] = conv.ID
	s.byParticipant[conv.ParticipantA] = append(s.byParticipant[conv.ParticipantA], conv.ID)
	s.byParticipant[conv.ParticipantB] = append(s.byParticipant[conv.ParticipantB], conv.ID)
	return nil
}

func (r *ConversationRepository) ByID(ctx context.Context, id domainchat.ConversationID) (*domainchat.Conversation, error) {
	e, err := r.store.entry(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conv.Clone(), nil
}

func (r *ConversationRepository) ByDedupKey(ctx context.Context, key domainchat.DedupKey) (*domainchat.Conversation, error) {
	r.store.mu.RLock()
	id, ok := r.store.byKey[key]
	r.store.mu.RUnlock()
	if !ok {
		return nil, domainchat.ErrConversationNotFound
	}
	return r.ByID(ctx, id)
}

func (r *ConversationRepository) ListByParticipant(ctx context.Context, participant string, req domainchat.ConversationPageRequest) (domainchat.ConversationPage, error) {
	r.store.mu.RLock()
	ids := append([]domainchat.ConversationID(nil), r.store.byParticipant[participant]...)
	entries := make([]*conversationEntry, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, r.store.conversations[id])
	}
	r.store.mu.RUnlock()

	items := make([]*domainchat.Conversation, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		items = append(items, e.conv.Clone())
		e.mu.Unlock()
	}
	domainchat.SortByActivity(items)
	return domainchat.WindowConversations(items, req), nil
}

func (r *MessageRepository) Append(ctx context.Context, msg *domainchat.Message) (*domainchat.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, err := r.store.entry(msg.ConversationID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.conv.Clone()
	msg.CreatedAt = next.NextMessageTime(msg.CreatedAt, msg.ID)
	if err := next.ApplyMessage(msg); err != nil {
		return nil, err
	}
	stored := *msg
	e.messages = insertSorted(e.messages, &stored)
	e.conv = next
	return next.Clone(), nil
}

func (r *MessageRepository) List(ctx context.Context, id domainchat.ConversationID, req domainchat.PageRequest) (domainchat.MessagePage, error) {
	e, err := r.store.entry(id)
	if err != nil {
		return domainchat.MessagePage{}, err
	}
	e.mu.Lock()
	page := domainchat.Window(e.messages, req)
	items := make([]*domainchat.Message, 0, len(page.Items))
	for _, m := range page.Items {
		cp := *m
		items = append(items, &cp)
	}
	e.mu.Unlock()
	page.Items = items
	return page, nil
}

func (r *MessageRepository) MarkRead(ctx context.Context, id domainchat.ConversationID, reader string, at time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	e, err := r.store.entry(id)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.conv.IsParticipant(reader) {
		return 0, domainchat.ErrNotAParticipant
	}
	n := 0
	for _, m := range e.messages {
		if m.SenderID == reader || m.IsRead {
			continue
		}
		m.IsRead = true
		m.ReadAt = at
		n++
	}
	next := e.conv.Clone()
	if err := next.ResetUnread(reader); err != nil {
		return 0, err
	}
	e.conv = next
	return n, nil
}

// insertSorted keeps messages ordered by (CreatedAt, ID); appends almost always land at the end.
func insertSorted(msgs []*domainchat.Message, msg *domainchat.Message) []*domainchat.Message {
	i := len(msgs)
	for i > 0 && msg.Before(msgs[i-1]) {
		i--
	}
	msgs = append(msgs, nil)
	copy(msgs[i+1:], msgs[i:])
	msgs[i] = msg
	return msgs
}

var (
	_ domainchat.ConversationRepository = (*ConversationRepository)(nil)
	_ domainchat.MessageRepository      = (*MessageRepository)(nil)
)
