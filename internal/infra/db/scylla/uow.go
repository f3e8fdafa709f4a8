package scylla

import (
	"context"
	"errors"
	"sync"

	"carchat/internal/app/uow"
	domainchat "carchat/internal/domain/chat"
)

var ErrFactoryMisconfigured = errors.New("scylla: unit of work factory misconfigured")

// Factory hands out units over the store. Scylla has no multi-statement transactions, so
// every repository call commits on its own and a unit only defers post-commit work.
type Factory struct {
	Store *Store
}

func (f Factory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	if f.Store == nil {
		return nil, ErrFactoryMisconfigured
	}
	return &Unit{store: f.Store}, nil
}

type Unit struct {
	store *Store

	mu          sync.Mutex
	afterCommit []func()
	done        bool
}

func (u *Unit) Conversations() domainchat.ConversationRepository { return u.store }

func (u *Unit) Messages() domainchat.MessageRepository { return u.store }

func (u *Unit) AfterCommit(fn func()) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.afterCommit = append(u.afterCommit, fn)
}

func (u *Unit) Commit(ctx context.Context) error {
	u.mu.Lock()
	pending := u.afterCommit
	already := u.done
	u.done = true
	u.afterCommit = nil
	u.mu.Unlock()
	if already {
		return nil
	}
	for _, fn := range pending {
		fn()
	}
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
