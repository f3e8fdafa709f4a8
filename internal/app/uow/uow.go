package uow

import (
	"context"

	domainchat "carchat/internal/domain/chat"
)

// UnitOfWork coordinates repositories inside a transaction boundary.
type UnitOfWork interface {
	Conversations() domainchat.ConversationRepository
	Messages() domainchat.MessageRepository

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// UoWFactory starts unit of work instances.
type UoWFactory interface {
	Begin(ctx context.Context, opts TxOptions) (UnitOfWork, error)
}

// TxOptions configure transaction boundaries.
type TxOptions struct {
	ReadOnly bool
}

// Begin starts a unit and returns the context repositories must be called with.
func Begin(ctx context.Context, factory UoWFactory, opts TxOptions) (UnitOfWork, context.Context, error) {
	if factory == nil {
		return nil, ctx, ErrUnitOfWorkMissing
	}
	unit, err := factory.Begin(ctx, opts)
	if err != nil {
		return nil, ctx, err
	}
	execCtx := ctx
	if injector, ok := unit.(interface {
		InjectContext(context.Context) context.Context
	}); ok {
		execCtx = injector.InjectContext(ctx)
	}
	return unit, ContextWithUnitOfWork(execCtx, unit), nil
}

// AfterCommitter is implemented by units that can defer work until a successful commit.
// Deferred functions are dropped on rollback.
type AfterCommitter interface {
	AfterCommit(fn func())
}
