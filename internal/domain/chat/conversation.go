package chat

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"carchat/internal/domain/listings"
	"carchat/internal/domain/shared/events"
)

type ConversationID string

// Kind discriminates what the counterparty is.
type Kind string

const (
	KindUserDealer Kind = "user_dealer"
	KindUserUser   Kind = "user_user"
)

func (k Kind) Valid() bool {
	return k == KindUserDealer || k == KindUserUser
}

// Side names one of the two participant slots.
type Side int

const (
	SideNone Side = iota
	SideA
	SideB
)

// Counterparty is who the initiator wants to talk to: a dealership or a private seller, never both.
type Counterparty struct {
	DealershipID string
	SellerUserID string
}

// Resolve validates the counterparty against the conversation kind and returns participant B.
func (c Counterparty) Resolve(kind Kind) (string, error) {
	dealer := strings.TrimSpace(c.DealershipID)
	seller := strings.TrimSpace(c.SellerUserID)
	if dealer != "" && seller != "" {
		return "", ErrInvalidParticipants
	}
	switch kind {
	case KindUserDealer:
		if dealer == "" {
			return "", ErrInvalidParticipants
		}
		return dealer, nil
	case KindUserUser:
		if seller == "" {
			return "", ErrInvalidParticipants
		}
		return seller, nil
	default:
		return "", ErrInvalidParticipants
	}
}

// DedupKey identifies the one conversation allowed per (kind, participants, listing).
type DedupKey struct {
	Kind         Kind
	ParticipantA string
	ParticipantB string
	Listing      listings.Ref
}

func (k DedupKey) String() string {
	return strings.Join([]string{string(k.Kind), k.ParticipantA, k.ParticipantB, k.Listing.String()}, "|")
}

// Conversation is the aggregate owning a thread of messages between two participants.
type Conversation struct {
	ID                 ConversationID
	Kind               Kind
	ParticipantA       string
	ParticipantB       string
	Listing            listings.Ref
	CreatedAt          time.Time
	LastMessageAt      time.Time
	LastMessageID      MessageID
	LastSenderID       string
	LastMessagePreview string
	UnreadCountA       int
	UnreadCountB       int
	Version            int64
	events.EventRecorder
}

type StartParams struct {
	ID           ConversationID
	Kind         Kind
	ParticipantA string
	Counterparty Counterparty
	Listing      listings.Ref
	Now          time.Time
}

// Start validates the participants and builds a conversation that has not been persisted yet.
func Start(params StartParams) (*Conversation, error) {
	if !params.Kind.Valid() {
		return nil, ErrInvalidParticipants
	}
	initiator := strings.TrimSpace(params.ParticipantA)
	if initiator == "" {
		return nil, ErrInvalidParticipants
	}
	counterparty, err := params.Counterparty.Resolve(params.Kind)
	if err != nil {
		return nil, err
	}
	if initiator == counterparty {
		if params.Kind == KindUserUser {
			return nil, ErrSelfChatRejected
		}
		return nil, ErrInvalidParticipants
	}
	if !params.Listing.Valid() {
		return nil, ErrInvalidParticipants
	}
	id := params.ID
	if id == "" {
		id = NewConversationID()
	}
	now := params.Now
	if now.IsZero() {
		now = time.Now()
	}
	conv := &Conversation{
		ID:           id,
		Kind:         params.Kind,
		ParticipantA: initiator,
		ParticipantB: counterparty,
		Listing:      params.Listing,
		CreatedAt:    Millis(now),
	}
	return conv, nil
}

// MarkStarted records the creation event; called only by the registry after a successful insert.
func (c *Conversation) MarkStarted() {
	c.Record(ConversationStarted{
		ConversationID: c.ID,
		Kind:           c.Kind,
		ParticipantA:   c.ParticipantA,
		ParticipantB:   c.ParticipantB,
		Listing:        c.Listing.String(),
		At:             c.CreatedAt,
	})
}

func (c *Conversation) DedupKey() DedupKey {
	return DedupKey{Kind: c.Kind, ParticipantA: c.ParticipantA, ParticipantB: c.ParticipantB, Listing: c.Listing}
}

// SideOf returns the slot a participant occupies, or SideNone.
func (c *Conversation) SideOf(participant string) Side {
	switch participant {
	case "":
		return SideNone
	case c.ParticipantA:
		return SideA
	case c.ParticipantB:
		return SideB
	default:
		return SideNone
	}
}

func (c *Conversation) IsParticipant(participant string) bool {
	return c.SideOf(participant) != SideNone
}

// Other returns the participant opposite to the given one.
func (c *Conversation) Other(participant string) (string, error) {
	switch c.SideOf(participant) {
	case SideA:
		return c.ParticipantB, nil
	case SideB:
		return c.ParticipantA, nil
	default:
		return "", ErrNotAParticipant
	}
}

// UnreadFor returns the unread counter of a participant.
func (c *Conversation) UnreadFor(participant string) int {
	switch c.SideOf(participant) {
	case SideA:
		return c.UnreadCountA
	case SideB:
		return c.UnreadCountB
	default:
		return 0
	}
}

// NextMessageTime places a message with the given id strictly after the last stored one.
// A clock behind the conversation is clamped forward, and a tie that would sort the id lower
// moves one millisecond on.
func (c *Conversation) NextMessageTime(now time.Time, id MessageID) time.Time {
	now = Millis(now)
	if c.LastMessageID == "" {
		return now
	}
	if now.Before(c.LastMessageAt) {
		now = c.LastMessageAt
	}
	if now.Equal(c.LastMessageAt) && id <= c.LastMessageID {
		now = now.Add(time.Millisecond)
	}
	return now
}

// ApplyMessage updates the denormalized summary and bumps the recipient's unread counter.
func (c *Conversation) ApplyMessage(msg *Message) error {
	side := c.SideOf(msg.SenderID)
	if side == SideNone {
		return ErrNotAParticipant
	}
	c.LastMessageAt = msg.CreatedAt
	c.LastMessageID = msg.ID
	c.LastSenderID = msg.SenderID
	c.LastMessagePreview = msg.Preview()
	if side == SideA {
		c.UnreadCountB++
	} else {
		c.UnreadCountA++
	}
	c.Version++
	return nil
}

// ResetUnread zeroes the reader's counter.
func (c *Conversation) ResetUnread(reader string) error {
	switch c.SideOf(reader) {
	case SideA:
		c.UnreadCountA = 0
	case SideB:
		c.UnreadCountB = 0
	default:
		return ErrNotAParticipant
	}
	c.Version++
	return nil
}

// LastActivity is the sort key for conversation lists.
func (c *Conversation) LastActivity() time.Time {
	if !c.LastMessageAt.IsZero() {
		return c.LastMessageAt
	}
	return c.CreatedAt
}

// Clone copies the conversation without its pending events.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	cp := *c
	cp.EventRecorder = events.EventRecorder{}
	return &cp
}

// NewConversationID returns a time-ordered identifier.
func NewConversationID() ConversationID {
	return ConversationID(newID())
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Millis truncates to the precision every backing store keeps.
func Millis(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
