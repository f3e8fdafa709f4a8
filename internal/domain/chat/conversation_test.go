package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carchat/internal/domain/listings"
)

func TestStartValidatesParticipants(t *testing.T) {
	cases := []struct {
		name   string
		params StartParams
		err    error
	}{
		{
			name:   "dealer kind without dealership",
			params: StartParams{Kind: KindUserDealer, ParticipantA: "u1", Counterparty: Counterparty{SellerUserID: "u2"}},
			err:    ErrInvalidParticipants,
		},
		{
			name:   "user kind without seller",
			params: StartParams{Kind: KindUserUser, ParticipantA: "u1", Counterparty: Counterparty{DealershipID: "d1"}},
			err:    ErrInvalidParticipants,
		},
		{
			name:   "both counterparties",
			params: StartParams{Kind: KindUserDealer, ParticipantA: "u1", Counterparty: Counterparty{DealershipID: "d1", SellerUserID: "u2"}},
			err:    ErrInvalidParticipants,
		},
		{
			name:   "neither counterparty",
			params: StartParams{Kind: KindUserUser, ParticipantA: "u1"},
			err:    ErrInvalidParticipants,
		},
		{
			name:   "missing initiator",
			params: StartParams{Kind: KindUserUser, Counterparty: Counterparty{SellerUserID: "u2"}},
			err:    ErrInvalidParticipants,
		},
		{
			name:   "unknown kind",
			params: StartParams{Kind: "group", ParticipantA: "u1", Counterparty: Counterparty{SellerUserID: "u2"}},
			err:    ErrInvalidParticipants,
		},
		{
			name:   "self chat",
			params: StartParams{Kind: KindUserUser, ParticipantA: "u1", Counterparty: Counterparty{SellerUserID: "u1"}},
			err:    ErrSelfChatRejected,
		},
		{
			name:   "malformed listing",
			params: StartParams{Kind: KindUserUser, ParticipantA: "u1", Counterparty: Counterparty{SellerUserID: "u2"}, Listing: listings.Ref{Kind: listings.KindSale}},
			err:    ErrInvalidParticipants,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Start(tc.params)
			require.ErrorIs(t, err, tc.err)
			assert.True(t, IsValidation(err))
			assert.False(t, IsRetryable(err))
		})
	}
}

func TestStartBuildsConversation(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 123456789, time.UTC)
	conv, err := Start(StartParams{
		Kind:         KindUserDealer,
		ParticipantA: " u1 ",
		Counterparty: Counterparty{DealershipID: "42"},
		Listing:      listings.SaleRef("7"),
		Now:          now,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, conv.ID)
	assert.Equal(t, "u1", conv.ParticipantA)
	assert.Equal(t, "42", conv.ParticipantB)
	assert.Equal(t, now.Truncate(time.Millisecond), conv.CreatedAt)
	assert.Empty(t, conv.PendingEvents(), "events are recorded only after the row is created")
	assert.Equal(t, "user_dealer|u1|42|sale:7", conv.DedupKey().String())
}

func TestDedupKeyDistinguishesListings(t *testing.T) {
	base := StartParams{Kind: KindUserDealer, ParticipantA: "u1", Counterparty: Counterparty{DealershipID: "42"}}
	withCar7 := base
	withCar7.Listing = listings.SaleRef("7")
	withCar9 := base
	withCar9.Listing = listings.SaleRef("9")
	withRental7 := base
	withRental7.Listing = listings.RentalRef("7")

	a, err := Start(withCar7)
	require.NoError(t, err)
	b, err := Start(withCar9)
	require.NoError(t, err)
	c, err := Start(withRental7)
	require.NoError(t, err)
	d, err := Start(base)
	require.NoError(t, err)

	keys := map[DedupKey]struct{}{a.DedupKey(): {}, b.DedupKey(): {}, c.DedupKey(): {}, d.DedupKey(): {}}
	assert.Len(t, keys, 4)
}

func TestApplyMessageBumpsRecipientOnly(t *testing.T) {
	conv := mustConversation(t)
	msg, err := NewMessage(NewMessageParams{ConversationID: conv.ID, SenderID: "u1", Body: "hi", CreatedAt: time.Now()})
	require.NoError(t, err)

	require.NoError(t, conv.ApplyMessage(msg))
	assert.Equal(t, 0, conv.UnreadFor("u1"))
	assert.Equal(t, 1, conv.UnreadFor("42"))
	assert.Equal(t, "hi", conv.LastMessagePreview)
	assert.Equal(t, msg.ID, conv.LastMessageID)

	reply, err := NewMessage(NewMessageParams{ConversationID: conv.ID, SenderID: "42", Body: "hello", CreatedAt: time.Now()})
	require.NoError(t, err)
	require.NoError(t, conv.ApplyMessage(reply))
	assert.Equal(t, 1, conv.UnreadFor("u1"))
	assert.Equal(t, 1, conv.UnreadFor("42"))

	require.NoError(t, conv.ResetUnread("42"))
	assert.Equal(t, 0, conv.UnreadFor("42"))
	assert.Equal(t, 1, conv.UnreadFor("u1"))
}

func TestApplyMessageRejectsStranger(t *testing.T) {
	conv := mustConversation(t)
	msg, err := NewMessage(NewMessageParams{ConversationID: conv.ID, SenderID: "intruder", Body: "hi"})
	require.NoError(t, err)
	require.ErrorIs(t, conv.ApplyMessage(msg), ErrNotAParticipant)
	require.ErrorIs(t, conv.ResetUnread("intruder"), ErrNotAParticipant)
	_, err = conv.Other("intruder")
	require.ErrorIs(t, err, ErrNotAParticipant)
}

func TestNextMessageTimeNeverGoesBack(t *testing.T) {
	conv := mustConversation(t)
	last := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	conv.LastMessageAt = last
	conv.LastMessageID = "m05"

	assert.Equal(t, last, conv.NextMessageTime(last.Add(-time.Second), "m09"))
	later := last.Add(time.Second)
	assert.Equal(t, later, conv.NextMessageTime(later, "m01"))
}

func TestNextMessageTimeBreaksTiesAfterLastMessage(t *testing.T) {
	conv := mustConversation(t)
	last := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, last, conv.NextMessageTime(last, "m01"), "first message keeps its own time")

	conv.LastMessageAt = last
	conv.LastMessageID = "m05"
	cases := []struct {
		name string
		at   time.Time
		id   MessageID
		want time.Time
	}{
		{name: "tie with higher id", at: last, id: "m09", want: last},
		{name: "tie with lower id", at: last, id: "m01", want: last.Add(time.Millisecond)},
		{name: "tie with same id", at: last, id: "m05", want: last.Add(time.Millisecond)},
		{name: "clamped with lower id", at: last.Add(-time.Minute), id: "m01", want: last.Add(time.Millisecond)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := conv.NextMessageTime(tc.at, tc.id)
			assert.Equal(t, tc.want, got)
			placed := &Message{ID: tc.id, CreatedAt: got}
			prev := &Message{ID: conv.LastMessageID, CreatedAt: conv.LastMessageAt}
			assert.True(t, prev.Before(placed))
		})
	}
}

func mustConversation(t *testing.T) *Conversation {
	t.Helper()
	conv, err := Start(StartParams{
		Kind:         KindUserDealer,
		ParticipantA: "u1",
		Counterparty: Counterparty{DealershipID: "42"},
		Listing:      listings.SaleRef("7"),
	})
	require.NoError(t, err)
	return conv
}
