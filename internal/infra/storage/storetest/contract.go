// Package storetest holds the behaviour every chat store must share. Each backend runs
// RunRepositoryContract from its own tests; networked backends skip when unconfigured.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carchat/internal/app/uow"
	domainchat "carchat/internal/domain/chat"
	"carchat/internal/domain/listings"
)

// RunRepositoryContract exercises the conversation and message repositories behind factory.
// Every call goes through a unit of work, the way command handlers use them.
func RunRepositoryContract(t *testing.T, factory uow.UoWFactory) {
	t.Run("dedup key admits one conversation", func(t *testing.T) { dedupKeyIsUnique(t, factory) })
	t.Run("concurrent creates converge", func(t *testing.T) { concurrentCreatesConverge(t, factory) })
	t.Run("append moves summary and recipient counter", func(t *testing.T) { appendUpdatesSummary(t, factory) })
	t.Run("append keeps created_at monotonic", func(t *testing.T) { appendKeepsOrder(t, factory) })
	t.Run("append out of build order stays reachable", func(t *testing.T) { appendOutOfBuildOrder(t, factory) })
	t.Run("mark read transitions once", func(t *testing.T) { markReadTransitionsOnce(t, factory) })
	t.Run("list pages both directions", func(t *testing.T) { listPagesBothDirections(t, factory) })
	t.Run("concurrent appends stay ordered", func(t *testing.T) { concurrentAppendsStayOrdered(t, factory) })
	t.Run("list by participant newest first", func(t *testing.T) { listByParticipantNewestFirst(t, factory) })
}

type parties struct {
	user   string
	dealer string
}

func newParties() parties {
	suffix := uuid.NewString()[:8]
	return parties{user: "u-" + suffix, dealer: "d-" + suffix}
}

func (p parties) start(t *testing.T, listingID string) *domainchat.Conversation {
	t.Helper()
	conv, err := domainchat.Start(domainchat.StartParams{
		Kind:         domainchat.KindUserDealer,
		ParticipantA: p.user,
		Counterparty: domainchat.Counterparty{DealershipID: p.dealer},
		Listing:      listings.SaleRef(listingID),
	})
	require.NoError(t, err)
	return conv
}

// Within runs fn in a fresh unit and commits it, repeating on retryable failures the way the
// retry middleware does.
func Within(ctx context.Context, factory uow.UoWFactory, fn func(ctx context.Context, unit uow.UnitOfWork) error) error {
	var err error
	for attempt := 0; attempt < 50; attempt++ {
		err = once(ctx, factory, fn)
		if err == nil || !domainchat.IsRetryable(err) {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * time.Millisecond)
	}
	return err
}

func once(ctx context.Context, factory uow.UoWFactory, fn func(ctx context.Context, unit uow.UnitOfWork) error) error {
	unit, execCtx, err := uow.Begin(ctx, factory, uow.TxOptions{})
	if err != nil {
		return err
	}
	if err := fn(execCtx, unit); err != nil {
		_ = unit.Rollback(execCtx)
		return err
	}
	return unit.Commit(execCtx)
}

func create(t *testing.T, factory uow.UoWFactory, conv *domainchat.Conversation) {
	t.Helper()
	require.NoError(t, Within(context.Background(), factory, func(ctx context.Context, unit uow.UnitOfWork) error {
		return unit.Conversations().Create(ctx, conv)
	}))
}

func byID(t *testing.T, factory uow.UoWFactory, id domainchat.ConversationID) *domainchat.Conversation {
	t.Helper()
	var conv *domainchat.Conversation
	require.NoError(t, Within(context.Background(), factory, func(ctx context.Context, unit uow.UnitOfWork) error {
		var err error
		conv, err = unit.Conversations().ByID(ctx, id)
		return err
	}))
	return conv
}

func appendMsg(factory uow.UoWFactory, msg *domainchat.Message) (*domainchat.Conversation, error) {
	var conv *domainchat.Conversation
	err := Within(context.Background(), factory, func(ctx context.Context, unit uow.UnitOfWork) error {
		var err error
		conv, err = unit.Messages().Append(ctx, msg)
		return err
	})
	return conv, err
}

func send(t *testing.T, factory uow.UoWFactory, conv domainchat.ConversationID, sender, body string, at time.Time) *domainchat.Message {
	t.Helper()
	msg, err := domainchat.NewMessage(domainchat.NewMessageParams{ConversationID: conv, SenderID: sender, Body: body, CreatedAt: at})
	require.NoError(t, err)
	_, err = appendMsg(factory, msg)
	require.NoError(t, err)
	return msg
}

func list(t *testing.T, factory uow.UoWFactory, conv domainchat.ConversationID, req domainchat.PageRequest) domainchat.MessagePage {
	t.Helper()
	var page domainchat.MessagePage
	require.NoError(t, Within(context.Background(), factory, func(ctx context.Context, unit uow.UnitOfWork) error {
		var err error
		page, err = unit.Messages().List(ctx, conv, req)
		return err
	}))
	return page
}

func markRead(factory uow.UoWFactory, conv domainchat.ConversationID, reader string) (int, error) {
	n := 0
	err := Within(context.Background(), factory, func(ctx context.Context, unit uow.UnitOfWork) error {
		var err error
		n, err = unit.Messages().MarkRead(ctx, conv, reader, time.Now().UTC())
		return err
	})
	return n, err
}

func dedupKeyIsUnique(t *testing.T, factory uow.UoWFactory) {
	p := newParties()
	conv := p.start(t, "7")
	create(t, factory, conv)

	twin := p.start(t, "7")
	err := Within(context.Background(), factory, func(ctx context.Context, unit uow.UnitOfWork) error {
		return unit.Conversations().Create(ctx, twin)
	})
	require.ErrorIs(t, err, domainchat.ErrDuplicateConversation)

	var found *domainchat.Conversation
	require.NoError(t, Within(context.Background(), factory, func(ctx context.Context, unit uow.UnitOfWork) error {
		found, err = unit.Conversations().ByDedupKey(ctx, twin.DedupKey())
		return err
	}))
	assert.Equal(t, conv.ID, found.ID)

	other := p.start(t, "9")
	create(t, factory, other)
	assert.NotEqual(t, conv.ID, other.ID, "another listing is another conversation")

	err = Within(context.Background(), factory, func(ctx context.Context, unit uow.UnitOfWork) error {
		_, err := unit.Conversations().ByID(ctx, domainchat.ConversationID("missing-"+uuid.NewString()))
		return err
	})
	require.ErrorIs(t, err, domainchat.ErrConversationNotFound)
}

func concurrentCreatesConverge(t *testing.T, factory uow.UoWFactory) {
	p := newParties()
	const callers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []domainchat.ConversationID
		dupes   int
	)
	for i := 0; i < callers; i++ {
		conv := p.start(t, "7")
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := Within(context.Background(), factory, func(ctx context.Context, unit uow.UnitOfWork) error {
				return unit.Conversations().Create(ctx, conv)
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, conv.ID)
			case assert.ErrorIs(t, err, domainchat.ErrDuplicateConversation):
				dupes++
			}
		}()
	}
	wg.Wait()
	require.Len(t, winners, 1)
	assert.Equal(t, callers-1, dupes)

	var found *domainchat.Conversation
	require.NoError(t, Within(context.Background(), factory, func(ctx context.Context, unit uow.UnitOfWork) error {
		var err error
		found, err = unit.Conversations().ByDedupKey(ctx, p.start(t, "7").DedupKey())
		return err
	}))
	assert.Equal(t, winners[0], found.ID)
}

func appendUpdatesSummary(t *testing.T, factory uow.UoWFactory) {
	p := newParties()
	conv := p.start(t, "7")
	create(t, factory, conv)

	msg, err := domainchat.NewMessage(domainchat.NewMessageParams{ConversationID: conv.ID, SenderID: p.user, Body: "hi", CreatedAt: time.Now()})
	require.NoError(t, err)
	updated, err := appendMsg(factory, msg)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.UnreadFor(p.dealer))
	assert.Equal(t, 0, updated.UnreadFor(p.user))
	assert.Equal(t, "hi", updated.LastMessagePreview)
	assert.True(t, msg.CreatedAt.Equal(updated.LastMessageAt))

	stored := byID(t, factory, conv.ID)
	assert.Equal(t, 1, stored.UnreadFor(p.dealer))
	assert.Equal(t, msg.ID, stored.LastMessageID)

	stranger, err := domainchat.NewMessage(domainchat.NewMessageParams{ConversationID: conv.ID, SenderID: "stranger", Body: "hey"})
	require.NoError(t, err)
	_, err = appendMsg(factory, stranger)
	require.ErrorIs(t, err, domainchat.ErrNotAParticipant)

	missing, err := domainchat.NewMessage(domainchat.NewMessageParams{ConversationID: "missing-" + domainchat.ConversationID(uuid.NewString()), SenderID: p.user, Body: "hey"})
	require.NoError(t, err)
	_, err = appendMsg(factory, missing)
	require.ErrorIs(t, err, domainchat.ErrConversationNotFound)
}

func appendKeepsOrder(t *testing.T, factory uow.UoWFactory) {
	p := newParties()
	conv := p.start(t, "7")
	create(t, factory, conv)
	base := time.Now().UTC().Truncate(time.Millisecond)

	first := send(t, factory, conv.ID, p.user, "first", base)
	skewed := send(t, factory, conv.ID, p.dealer, "from a slow clock", base.Add(-time.Minute))
	assert.True(t, first.Before(skewed))

	page := list(t, factory, conv.ID, domainchat.PageRequest{})
	require.Len(t, page.Items, 2)
	assert.Equal(t, first.ID, page.Items[0].ID)
	assert.Equal(t, skewed.ID, page.Items[1].ID)
}

func appendOutOfBuildOrder(t *testing.T, factory uow.UoWFactory) {
	p := newParties()
	conv := p.start(t, "7")
	create(t, factory, conv)
	base := time.Now().UTC().Truncate(time.Millisecond)

	early, err := domainchat.NewMessage(domainchat.NewMessageParams{ConversationID: conv.ID, SenderID: p.user, Body: "built first", CreatedAt: base})
	require.NoError(t, err)
	late, err := domainchat.NewMessage(domainchat.NewMessageParams{ConversationID: conv.ID, SenderID: p.dealer, Body: "built second", CreatedAt: base.Add(3 * time.Millisecond)})
	require.NoError(t, err)
	require.True(t, early.ID < late.ID)

	_, err = appendMsg(factory, late)
	require.NoError(t, err)
	page := list(t, factory, conv.ID, domainchat.PageRequest{})
	require.Len(t, page.Items, 1)
	cursor := domainchat.PositionOf(page.Items[0])

	_, err = appendMsg(factory, early)
	require.NoError(t, err)
	assert.True(t, late.Before(early), "a message stored later sorts after everything already stored")

	newer := list(t, factory, conv.ID, domainchat.PageRequest{After: cursor})
	require.Len(t, newer.Items, 1)
	assert.Equal(t, early.ID, newer.Items[0].ID)
}

func markReadTransitionsOnce(t *testing.T, factory uow.UoWFactory) {
	p := newParties()
	conv := p.start(t, "7")
	create(t, factory, conv)
	now := time.Now()
	send(t, factory, conv.ID, p.user, "one", now)
	send(t, factory, conv.ID, p.user, "two", now)
	send(t, factory, conv.ID, p.dealer, "reply", now)

	n, err := markRead(factory, conv.ID, p.dealer)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = markRead(factory, conv.ID, p.dealer)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	stored := byID(t, factory, conv.ID)
	assert.Equal(t, 0, stored.UnreadFor(p.dealer))
	assert.Equal(t, 1, stored.UnreadFor(p.user), "the other side keeps its counter")

	page := list(t, factory, conv.ID, domainchat.PageRequest{})
	for _, m := range page.Items {
		assert.Equal(t, m.SenderID == p.user, m.IsRead, m.Body)
	}

	_, err = markRead(factory, conv.ID, "stranger")
	require.ErrorIs(t, err, domainchat.ErrNotAParticipant)
}

func listPagesBothDirections(t *testing.T, factory uow.UoWFactory) {
	p := newParties()
	conv := p.start(t, "7")
	create(t, factory, conv)
	base := time.Now().UTC()
	var sent []domainchat.MessageID
	for i := 0; i < 5; i++ {
		sent = append(sent, send(t, factory, conv.ID, p.user, fmt.Sprintf("m%d", i), base).ID)
	}

	var forward []domainchat.MessageID
	req := domainchat.PageRequest{Limit: 2}
	for i := 0; i < 5; i++ {
		page := list(t, factory, conv.ID, req)
		for _, m := range page.Items {
			forward = append(forward, m.ID)
		}
		if page.Next == "" {
			break
		}
		pos, err := domainchat.DecodeCursor(page.Next)
		require.NoError(t, err)
		again := list(t, factory, conv.ID, domainchat.PageRequest{After: pos, Limit: 2})
		next := list(t, factory, conv.ID, domainchat.PageRequest{After: pos, Limit: 2})
		assert.Equal(t, ids(again.Items), ids(next.Items), "a cursor replays the same page")
		req.After = pos
	}
	assert.Equal(t, sent, forward)

	newest := list(t, factory, conv.ID, domainchat.PageRequest{Limit: 2, Direction: domainchat.Backward})
	assert.Equal(t, sent[3:], ids(newest.Items))
	require.NotEmpty(t, newest.Next)
	pos, err := domainchat.DecodeCursor(newest.Next)
	require.NoError(t, err)
	older := list(t, factory, conv.ID, domainchat.PageRequest{After: pos, Limit: 2, Direction: domainchat.Backward})
	assert.Equal(t, sent[1:3], ids(older.Items))
}

func concurrentAppendsStayOrdered(t *testing.T, factory uow.UoWFactory) {
	p := newParties()
	conv := p.start(t, "7")
	create(t, factory, conv)
	const writers, perWriter = 4, 10

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		sender := p.user
		if w%2 == 1 {
			sender = p.dealer
		}
		wg.Add(1)
		go func(w int, sender string) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				msg, err := domainchat.NewMessage(domainchat.NewMessageParams{
					ConversationID: conv.ID,
					SenderID:       sender,
					Body:           fmt.Sprintf("w%d-%d", w, i),
					CreatedAt:      time.Now(),
				})
				if err != nil {
					t.Error(err)
					return
				}
				if _, err := appendMsg(factory, msg); err != nil {
					t.Error(err)
				}
			}
		}(w, sender)
	}
	wg.Wait()

	page := list(t, factory, conv.ID, domainchat.PageRequest{Limit: domainchat.MaxPageLimit})
	require.Len(t, page.Items, writers*perWriter)
	for i := 1; i < len(page.Items); i++ {
		assert.True(t, page.Items[i-1].Before(page.Items[i]), "index %d out of order", i)
	}

	stored := byID(t, factory, conv.ID)
	assert.Equal(t, writers*perWriter/2, stored.UnreadFor(p.user))
	assert.Equal(t, writers*perWriter/2, stored.UnreadFor(p.dealer))
}

func listByParticipantNewestFirst(t *testing.T, factory uow.UoWFactory) {
	p := newParties()
	older := p.start(t, "7")
	create(t, factory, older)
	newer := p.start(t, "9")
	create(t, factory, newer)
	send(t, factory, older.ID, p.dealer, "bump", time.Now().Add(time.Hour))

	listPage := func(req domainchat.ConversationPageRequest) domainchat.ConversationPage {
		var page domainchat.ConversationPage
		require.NoError(t, Within(context.Background(), factory, func(ctx context.Context, unit uow.UnitOfWork) error {
			var err error
			page, err = unit.Conversations().ListByParticipant(ctx, p.user, req)
			return err
		}))
		return page
	}

	page := listPage(domainchat.ConversationPageRequest{Limit: 1})
	require.Len(t, page.Items, 1)
	assert.Equal(t, older.ID, page.Items[0].ID)
	require.NotEmpty(t, page.Next)

	pos, err := domainchat.DecodeCursor(page.Next)
	require.NoError(t, err)
	rest := listPage(domainchat.ConversationPageRequest{Before: pos, Limit: 1})
	require.Len(t, rest.Items, 1)
	assert.Equal(t, newer.ID, rest.Items[0].ID)
	assert.Empty(t, rest.Next)
}

func ids(msgs []*domainchat.Message) []domainchat.MessageID {
	out := make([]domainchat.MessageID, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}
