package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carchat/internal/app/commands"
	"carchat/internal/app/dto"
	"carchat/internal/app/uow"
	domainchat "carchat/internal/domain/chat"
	"carchat/internal/domain/listings"
)

func TestEnsureConversationConcurrentCallersShareOneRow(t *testing.T) {
	h := newHarness(t)
	const callers = 32

	var wg sync.WaitGroup
	ids := make([]string, callers)
	created := make([]bool, callers)
	errs := make([]error, callers)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			res, err := commands.Dispatch[EnsureConversationCommand, *dto.Conversation](context.Background(), h.commands, dealerChat("u1", "7"))
			errs[i] = err
			if res != nil {
				ids[i] = res.ID
				created[i] = res.Created
			}
		}(i)
	}
	close(start)
	wg.Wait()

	createdCount := 0
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
		if created[i] {
			createdCount++
		}
	}
	assert.Equal(t, 1, createdCount)
	assert.Len(t, h.published.named(domainchat.EventConversationStarted), 1)
}

func TestEnsureConversationIsIdempotentSequentially(t *testing.T) {
	h := newHarness(t)
	first := h.mustEnsure(t, dealerChat("u1", "7"))
	second := h.mustEnsure(t, dealerChat("u1", "7"))

	assert.True(t, first.Created)
	assert.False(t, second.Created)
	assert.Equal(t, first.ID, second.ID)
}

func TestEnsureConversationListingIsPartOfTheKey(t *testing.T) {
	h := newHarness(t)
	car7 := h.mustEnsure(t, dealerChat("u1", "7"))
	car9 := h.mustEnsure(t, dealerChat("u1", "9"))
	none := h.mustEnsure(t, EnsureConversationCommand{InitiatorID: "u1", Kind: domainchat.KindUserDealer, DealershipID: "42"})

	assert.NotEqual(t, car7.ID, car9.ID)
	assert.NotEqual(t, car7.ID, none.ID)
	assert.Nil(t, none.Listing)
	assert.Nil(t, none.Context)
}

func TestEnsureConversationValidation(t *testing.T) {
	h := newHarness(t)
	cases := []struct {
		name string
		cmd  EnsureConversationCommand
		err  error
	}{
		{"self chat", EnsureConversationCommand{InitiatorID: "u1", Kind: domainchat.KindUserUser, SellerUserID: "u1"}, domainchat.ErrSelfChatRejected},
		{"dealer missing", EnsureConversationCommand{InitiatorID: "u1", Kind: domainchat.KindUserDealer}, domainchat.ErrInvalidParticipants},
		{"seller missing", EnsureConversationCommand{InitiatorID: "u1", Kind: domainchat.KindUserUser, DealershipID: "42"}, domainchat.ErrInvalidParticipants},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.ensure(t, tc.cmd)
			require.ErrorIs(t, err, tc.err)
		})
	}
	assert.Empty(t, h.published.named(domainchat.EventConversationStarted))
}

func TestEnsureConversationCarriesContext(t *testing.T) {
	h := newHarness(t)
	conv := h.mustEnsure(t, dealerChat("u1", "7"))
	require.NotNil(t, conv.Context)
	assert.Equal(t, "2019 Toyota Camry", conv.Context.Title)
	assert.Equal(t, "sale", conv.Context.Kind)
	assert.Equal(t, "available", conv.Context.Status)
	assert.Equal(t, []string{"camry.jpg"}, conv.Context.Images)
}

func TestEnsureConversationSurvivesDeletedListing(t *testing.T) {
	h := newHarness(t)
	conv := h.mustEnsure(t, dealerChat("u1", "7"))
	h.catalog.Delete(listings.SaleRef("7"))

	again := h.mustEnsure(t, dealerChat("u1", "7"))
	assert.Equal(t, conv.ID, again.ID)
	assert.Nil(t, again.Context)
	require.NotNil(t, again.Listing)
	assert.Equal(t, "7", again.Listing.ID)
}

// conflictRepo reports every insert as a duplicate while the winner never becomes visible.
type conflictRepo struct {
	domainchat.ConversationRepository
	lookups int
}

func (r *conflictRepo) Create(context.Context, *domainchat.Conversation) error {
	return domainchat.ErrDuplicateConversation
}

func (r *conflictRepo) ByDedupKey(context.Context, domainchat.DedupKey) (*domainchat.Conversation, error) {
	r.lookups++
	return nil, domainchat.ErrConversationNotFound
}

type stubUnit struct {
	conversations domainchat.ConversationRepository
}

func (u stubUnit) Conversations() domainchat.ConversationRepository { return u.conversations }
func (u stubUnit) Messages() domainchat.MessageRepository           { return nil }
func (u stubUnit) Commit(context.Context) error                     { return nil }
func (u stubUnit) Rollback(context.Context) error                   { return nil }

type stubFactory struct {
	unit stubUnit
}

func (f stubFactory) Begin(context.Context, uow.TxOptions) (uow.UnitOfWork, error) {
	return f.unit, nil
}

func TestEnsureConversationGivesUpAfterBoundedAttempts(t *testing.T) {
	repo := &conflictRepo{}
	handler := &EnsureConversationHandler{
		UoWFactory: stubFactory{unit: stubUnit{conversations: repo}},
		Backoff:    []time.Duration{time.Millisecond, time.Millisecond},
	}
	_, err := handler.Handle(context.Background(), dealerChat("u1", "7"))
	require.ErrorIs(t, err, domainchat.ErrConflictRetryExhausted)
	assert.Equal(t, 3, repo.lookups)
	assert.False(t, domainchat.IsRetryable(err))
}
