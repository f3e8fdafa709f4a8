package scylla

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gocql/gocql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carchat/internal/app/uow"
	domainchat "carchat/internal/domain/chat"
	"carchat/internal/domain/listings"
)

func TestClassifyMarksDriverTimeoutsTransient(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		transient bool
	}{
		{"write timeout", &gocql.RequestErrWriteTimeout{}, true},
		{"read timeout", &gocql.RequestErrReadTimeout{}, true},
		{"unavailable", &gocql.RequestErrUnavailable{}, true},
		{"no response", gocql.ErrTimeoutNoResponse, true},
		{"no connections", gocql.ErrNoConnections, true},
		{"syntax", errors.New("line 1:0 no viable alternative"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := classify(tc.err)
			assert.Equal(t, tc.transient, domainchat.IsRetryable(err))
		})
	}
	assert.NoError(t, classify(nil))
	assert.True(t, domainchat.IsRetryable(errVersionMoved))
}

func TestSummaryRowMapping(t *testing.T) {
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.FixedZone("x", 3600))
	row := summaryRow{
		ID: "c1", Kind: string(domainchat.KindUserDealer), ParticipantA: "u1", ParticipantB: "42",
		ListingKind: "sale", ListingID: "7", CreatedAt: created, UnreadCountB: 2, Version: 5,
	}
	conv := row.toDomain()
	assert.Equal(t, listings.SaleRef("7"), conv.Listing)
	assert.Equal(t, time.UTC, conv.CreatedAt.Location())
	assert.True(t, conv.LastMessageAt.IsZero())
	assert.Equal(t, 2, conv.UnreadFor("42"))
	assert.Equal(t, int64(5), conv.Version)

	row.ListingKind, row.ListingID = "", ""
	assert.True(t, row.toDomain().Listing.IsZero())
}

func TestMessageRowMapping(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	msg := messageRow{ConversationID: "c1", At: at, ID: "m1", SenderID: "u1", MediaURL: "a.jpg"}.toDomain()
	assert.Equal(t, domainchat.MessageID("m1"), msg.ID)
	assert.False(t, msg.IsRead)
	assert.True(t, msg.ReadAt.IsZero())
	assert.Nil(t, nullableTime(time.Time{}))
	assert.Equal(t, at, nullableTime(at))
}

func TestUnitRunsDeferredWorkOnlyOnCommit(t *testing.T) {
	factory := Factory{Store: NewStore(nil, nil)}
	ctx := context.Background()

	committed, err := factory.Begin(ctx, uow.TxOptions{})
	require.NoError(t, err)
	ran := 0
	committed.(uow.AfterCommitter).AfterCommit(func() { ran++ })
	require.NoError(t, committed.Commit(ctx))
	require.NoError(t, committed.Commit(ctx))
	assert.Equal(t, 1, ran)

	rolledBack, err := factory.Begin(ctx, uow.TxOptions{})
	require.NoError(t, err)
	rolledBack.(uow.AfterCommitter).AfterCommit(func() { ran++ })
	require.NoError(t, rolledBack.Rollback(ctx))
	require.NoError(t, rolledBack.Commit(ctx))
	assert.Equal(t, 1, ran)

	_, err = Factory{}.Begin(ctx, uow.TxOptions{})
	assert.ErrorIs(t, err, ErrFactoryMisconfigured)
}

func TestStoreWithoutSession(t *testing.T) {
	s := NewStore(nil, nil)
	_, err := s.ByID(context.Background(), "c1")
	assert.ErrorIs(t, err, errSessionMissing)
	assert.ErrorIs(t, s.Ping(context.Background()), errSessionMissing)
}

func TestSplitReadChunks(t *testing.T) {
	cases := []struct {
		name string
		n    int
		head [][2]int
		tail int
	}{
		{name: "nothing unread", n: 0, tail: 0},
		{name: "fits the guarded batch", n: 100, tail: 0},
		{name: "one leading chunk", n: 150, head: [][2]int{{0, 50}}, tail: 50},
		{name: "several leading chunks", n: 330, head: [][2]int{{0, 100}, {100, 200}, {200, 230}}, tail: 230},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			head, tail := splitReadChunks(tc.n, markReadChunk)
			assert.Equal(t, tc.head, head)
			assert.Equal(t, tc.tail, tail)
			covered := tail
			for _, c := range head {
				assert.LessOrEqual(t, c[1]-c[0], markReadChunk)
				covered -= c[1] - c[0]
			}
			assert.Zero(t, covered, "every row before the guarded share is in exactly one chunk")
			assert.LessOrEqual(t, tc.n-tail, markReadChunk, "the guarded batch stays bounded")
		})
	}
}

func TestClaimedID(t *testing.T) {
	assert.Equal(t, domainchat.ConversationID("c1"), claimedID(map[string]any{"conversation_id": "c1"}))
	assert.Empty(t, claimedID(map[string]any{}))
	assert.Empty(t, claimedID(map[string]any{"conversation_id": 42}))
}
