package support

import (
	"context"

	"carchat/internal/app/uow"
)

// BeginReadOnlyUnit reuses the unit already in ctx or opens a read-only one.
// The returned cleanup is nil when nothing was opened.
func BeginReadOnlyUnit(ctx context.Context, factory uow.UoWFactory) (uow.UnitOfWork, context.Context, func(), error) {
	if unit, ok := uow.FromContext(ctx); ok {
		return unit, ctx, nil, nil
	}
	unit, execCtx, err := uow.Begin(ctx, factory, uow.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, ctx, nil, err
	}
	cleanup := func() {
		_ = unit.Rollback(execCtx)
	}
	return unit, execCtx, cleanup, nil
}

// UnitFromContext returns the unit opened by the transaction middleware, or opens a managed one.
// commit is nil when the caller does not own the unit.
func UnitFromContext(ctx context.Context, factory uow.UoWFactory) (unit uow.UnitOfWork, execCtx context.Context, commit func() error, cleanup func(), err error) {
	if unit, ok := uow.FromContext(ctx); ok {
		return unit, ctx, nil, func() {}, nil
	}
	unit, execCtx, err = uow.Begin(ctx, factory, uow.TxOptions{})
	if err != nil {
		return nil, ctx, nil, nil, err
	}
	committed := false
	commit = func() error {
		if err := unit.Commit(execCtx); err != nil {
			return err
		}
		committed = true
		return nil
	}
	cleanup = func() {
		if !committed {
			_ = unit.Rollback(execCtx)
		}
	}
	return unit, execCtx, commit, cleanup, nil
}
