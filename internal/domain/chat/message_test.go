package chat

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessageRequiresContent(t *testing.T) {
	_, err := NewMessage(NewMessageParams{SenderID: "u1"})
	require.ErrorIs(t, err, ErrEmptyMessage)

	_, err = NewMessage(NewMessageParams{SenderID: "u1", Body: "   ", MediaURL: "\t"})
	require.ErrorIs(t, err, ErrEmptyMessage)

	msg, err := NewMessage(NewMessageParams{SenderID: "u1", MediaURL: "https://cdn.example.com/a.jpg"})
	require.NoError(t, err)
	assert.Equal(t, "[attachment]", msg.Preview())
	assert.False(t, msg.IsRead)
}

func TestPreviewTruncates(t *testing.T) {
	long := strings.Repeat("é", PreviewLimit+20)
	msg, err := NewMessage(NewMessageParams{SenderID: "u1", Body: long})
	require.NoError(t, err)
	preview := msg.Preview()
	assert.Equal(t, PreviewLimit, len([]rune(preview)))
	assert.True(t, strings.HasSuffix(preview, "…"))

	short, err := NewMessage(NewMessageParams{SenderID: "u1", Body: "is it\n still   available?"})
	require.NoError(t, err)
	assert.Equal(t, "is it still available?", short.Preview())
}

func TestMessageOrderingTieBreaksOnID(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	a := &Message{ID: "a", CreatedAt: at}
	b := &Message{ID: "b", CreatedAt: at}
	c := &Message{ID: "0", CreatedAt: at.Add(time.Millisecond)}

	assert.True(t, a.Before(b))
	assert.False(t, b.Before(a))
	assert.True(t, b.Before(c))
	assert.False(t, a.Before(a))
}
