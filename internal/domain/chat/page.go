package chat

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 200
)

// Direction selects which side of the cursor a page is read from.
type Direction string

const (
	// Forward reads the oldest messages after the cursor.
	Forward Direction = "forward"
	// Backward reads the newest messages before the cursor. Items are still returned oldest first.
	Backward Direction = "backward"
)

func ParseDirection(raw string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(raw))) {
	case "", Forward:
		return Forward, nil
	case Backward:
		return Backward, nil
	default:
		return "", fmt.Errorf("%w: direction %q", ErrInvalidCursor, raw)
	}
}

// Position is a point in the (CreatedAt, ID) total order.
type Position struct {
	At time.Time
	ID string
}

func PositionOf(m *Message) Position {
	return Position{At: m.CreatedAt, ID: string(m.ID)}
}

func (p Position) IsZero() bool {
	return p.At.IsZero() && p.ID == ""
}

func (p Position) Before(other Position) bool {
	if !p.At.Equal(other.At) {
		return p.At.Before(other.At)
	}
	return p.ID < other.ID
}

func (p Position) After(other Position) bool {
	return other.Before(p)
}

// Cursor is the opaque wire form of a Position.
type Cursor string

func EncodeCursor(p Position) Cursor {
	if p.IsZero() {
		return ""
	}
	raw := strconv.FormatInt(p.At.UnixMilli(), 10) + ":" + p.ID
	return Cursor(base64.RawURLEncoding.EncodeToString([]byte(raw)))
}

// DecodeCursor parses a cursor; the empty cursor means "from the edge".
func DecodeCursor(c Cursor) (Position, error) {
	if c == "" {
		return Position{}, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(string(c))
	if err != nil {
		return Position{}, ErrInvalidCursor
	}
	millis, id, ok := strings.Cut(string(raw), ":")
	if !ok || id == "" {
		return Position{}, ErrInvalidCursor
	}
	ms, err := strconv.ParseInt(millis, 10, 64)
	if err != nil || ms < 0 {
		return Position{}, ErrInvalidCursor
	}
	return Position{At: time.UnixMilli(ms).UTC(), ID: id}, nil
}

// PageRequest is a normalized pagination request.
type PageRequest struct {
	After     Position
	Limit     int
	Direction Direction
}

func NewPageRequest(cursor Cursor, limit int, direction Direction) (PageRequest, error) {
	pos, err := DecodeCursor(cursor)
	if err != nil {
		return PageRequest{}, err
	}
	if direction == "" {
		direction = Forward
	}
	if direction != Forward && direction != Backward {
		return PageRequest{}, ErrInvalidCursor
	}
	return PageRequest{After: pos, Limit: NormalizeLimit(limit), Direction: direction}, nil
}

func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultPageLimit
	case limit > MaxPageLimit:
		return MaxPageLimit
	default:
		return limit
	}
}

// MessagePage is one slice of a conversation, always ordered oldest first.
type MessagePage struct {
	Items []*Message
	// Next continues in the same direction; empty when the edge has been reached.
	Next Cursor
}

// Window applies a page request to messages already sorted ascending.
// Stores that cannot push the filter down to the database use it directly.
func Window(sorted []*Message, req PageRequest) MessagePage {
	limit := NormalizeLimit(req.Limit)
	var selected []*Message
	hasMore := false
	if req.Direction == Backward {
		end := len(sorted)
		if !req.After.IsZero() {
			end = 0
			for end < len(sorted) && PositionOf(sorted[end]).Before(req.After) {
				end++
			}
		}
		start := end - limit
		if start < 0 {
			start = 0
		}
		hasMore = start > 0
		selected = sorted[start:end]
	} else {
		start := 0
		if !req.After.IsZero() {
			for start < len(sorted) && !PositionOf(sorted[start]).After(req.After) {
				start++
			}
		}
		end := start + limit
		if end > len(sorted) {
			end = len(sorted)
		}
		hasMore = end < len(sorted)
		selected = sorted[start:end]
	}
	return BuildPage(selected, req.Direction, hasMore)
}

// BuildPage assembles a page from ascending items and computes the continuation cursor.
func BuildPage(items []*Message, direction Direction, hasMore bool) MessagePage {
	page := MessagePage{Items: items}
	if page.Items == nil {
		page.Items = []*Message{}
	}
	if !hasMore || len(items) == 0 {
		return page
	}
	if direction == Backward {
		page.Next = EncodeCursor(PositionOf(items[0]))
	} else {
		page.Next = EncodeCursor(PositionOf(items[len(items)-1]))
	}
	return page
}
