package chat

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"carchat/internal/app/commands"
	"carchat/internal/app/dto"
	"carchat/internal/app/outbox"
	"carchat/internal/app/uow"
	domainchat "carchat/internal/domain/chat"
	"carchat/internal/domain/listings"
)

const ensureConversationKey = "chat.conversation.ensure"

// DefaultConflictBackoff bounds how long a dedup conflict is chased before giving up.
var DefaultConflictBackoff = []time.Duration{10 * time.Millisecond, 50 * time.Millisecond, 200 * time.Millisecond}

type EnsureConversationCommand struct {
	InitiatorID  string
	Kind         domainchat.Kind
	DealershipID string
	SellerUserID string
	Listing      listings.Ref
}

func (c EnsureConversationCommand) Key() string { return ensureConversationKey }

func (c EnsureConversationCommand) ActorID() string { return c.InitiatorID }

// ManagesOwnTransaction: a unique-key violation aborts the transaction it happens in, so
// every insert attempt gets its own unit and the refetch runs outside of it.
func (c EnsureConversationCommand) ManagesOwnTransaction() bool { return true }

// EnsureConversationHandler is the conversation registry: it returns the single conversation
// for a dedup key, creating it when absent.
type EnsureConversationHandler struct {
	UoWFactory uow.UoWFactory
	Outbox     outbox.Outbox
	Encoder    outbox.EventEncoder
	Resolver   *ContextResolver
	// Backoff holds the waits between conflict resolution attempts.
	Backoff []time.Duration
	Hooks   Hooks
	Logger  *slog.Logger
	Now     func() time.Time
}

func (h *EnsureConversationHandler) Handle(ctx context.Context, cmd EnsureConversationCommand) (*dto.Conversation, error) {
	draft, err := domainchat.Start(domainchat.StartParams{
		Kind:         cmd.Kind,
		ParticipantA: cmd.InitiatorID,
		Counterparty: domainchat.Counterparty{
			DealershipID: cmd.DealershipID,
			SellerUserID: cmd.SellerUserID,
		},
		Listing: cmd.Listing,
		Now:     now(h.Now),
	})
	if err != nil {
		return nil, err
	}

	conv, created, err := h.insertOrFetch(ctx, draft)
	if err != nil {
		return nil, err
	}
	hooks(h.Hooks).ConversationEnsured(created)
	if h.Logger != nil {
		h.Logger.Debug("conversation ensured", "conversation_id", conv.ID, "created", created, "dedup_key", conv.DedupKey().String())
	}

	out := dto.MapConversation(conv, draft.ParticipantA, h.Resolver.ResolveOrNil(ctx, conv.Listing))
	out.Created = created
	return &out, nil
}

// insertOrFetch is the only idempotency mechanism: insert, and on a unique-key violation read
// the row that won. A miss on that read means the winner is not visible yet, so it is retried.
func (h *EnsureConversationHandler) insertOrFetch(ctx context.Context, draft *domainchat.Conversation) (*domainchat.Conversation, bool, error) {
	backoff := h.Backoff
	if backoff == nil {
		backoff = DefaultConflictBackoff
	}
	key := draft.DedupKey()
	for attempt := 0; ; attempt++ {
		err := h.insert(ctx, draft)
		if err == nil {
			return draft, true, nil
		}
		if !errors.Is(err, domainchat.ErrDuplicateConversation) && !domainchat.IsRetryable(err) {
			return nil, false, err
		}

		existing, lookupErr := h.lookup(ctx, key)
		if lookupErr == nil {
			return existing, false, nil
		}
		if !errors.Is(lookupErr, domainchat.ErrConversationNotFound) && !domainchat.IsRetryable(lookupErr) {
			return nil, false, lookupErr
		}

		if attempt >= len(backoff) {
			if h.Logger != nil {
				h.Logger.Warn("conversation dedup conflict unresolved", "dedup_key", key.String(), "attempts", attempt+1, "error", err)
			}
			return nil, false, domainchat.ErrConflictRetryExhausted
		}
		hooks(h.Hooks).ConflictRetried()
		timer := time.NewTimer(backoff[attempt])
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, false, ctx.Err()
		case <-timer.C:
		}
	}
}

func (h *EnsureConversationHandler) insert(ctx context.Context, draft *domainchat.Conversation) error {
	unit, execCtx, err := uow.Begin(ctx, h.UoWFactory, uow.TxOptions{})
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = unit.Rollback(execCtx)
		}
	}()

	if err := unit.Conversations().Create(execCtx, draft); err != nil {
		return err
	}
	draft.MarkStarted()
	if err := outbox.RecordDomainEvents(execCtx, h.Outbox, encoder(h.Encoder), draft.Drain()); err != nil {
		return err
	}
	if err := unit.Commit(execCtx); err != nil {
		return err
	}
	committed = true
	return nil
}

func (h *EnsureConversationHandler) lookup(ctx context.Context, key domainchat.DedupKey) (*domainchat.Conversation, error) {
	unit, execCtx, err := uow.Begin(ctx, h.UoWFactory, uow.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer unit.Rollback(execCtx)
	return unit.Conversations().ByDedupKey(execCtx, key)
}

var _ commands.Handler[EnsureConversationCommand, *dto.Conversation] = (*EnsureConversationHandler)(nil)
