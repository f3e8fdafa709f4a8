package memory

import (
	"context"
	"errors"
	"sync"

	"carchat/internal/app/uow"
	domainchat "carchat/internal/domain/chat"
)

// Factory wires the in-memory chat store into a unit-of-work boundary.
type Factory struct {
	Store *ChatStore
}

// ErrFactoryMisconfigured indicates a missing store.
var ErrFactoryMisconfigured = errors.New("memory: unit of work factory misconfigured")

// Begin starts a lightweight unit. Repository calls apply immediately and atomically on
// their own; the unit only holds outbox records back until commit.
func (f Factory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	if f.Store == nil {
		return nil, ErrFactoryMisconfigured
	}
	return &Unit{
		conversations: f.Store.Conversations(),
		messages:      f.Store.Messages(),
	}, nil
}

// Unit is a uow.UnitOfWork backed by in-memory stores.
type Unit struct {
	conversations *ConversationRepository
	messages      *MessageRepository

	mu          sync.Mutex
	afterCommit []func()
	done        bool
}

func (u *Unit) Conversations() domainchat.ConversationRepository {
	return u.conversations
}

func (u *Unit) Messages() domainchat.MessageRepository {
	return u.messages
}

func (u *Unit) AfterCommit(fn func()) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.afterCommit = append(u.afterCommit, fn)
}

func (u *Unit) Commit(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.done {
		return nil
	}
	u.done = true
	for _, fn := range u.afterCommit {
		fn()
	}
	u.afterCommit = nil
	return nil
}

func (u *Unit) Rollback(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.done = true
	u.afterCommit = nil
	return nil
}

var (
	_ uow.UoWFactory    = Factory{}
	_ uow.AfterCommitter = (*Unit)(nil)
)
