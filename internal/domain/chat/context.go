package chat

import "carchat/internal/domain/listings"

// Normalized listing statuses. Sale listings use all three, rental ones only available/unavailable.
const (
	ContextAvailable   = "available"
	ContextPending     = "pending"
	ContextSold        = "sold"
	ContextUnavailable = "unavailable"
)

// ConversationContext is the read-only projection of a listing rendered in a conversation header.
// It is computed per request and never stored.
type ConversationContext struct {
	Kind   listings.Kind
	Title  string
	Images []string
	Price  float64
	Status string
}

// CoverImage returns the first image, or "".
func (c *ConversationContext) CoverImage() string {
	if c == nil || len(c.Images) == 0 {
		return ""
	}
	return c.Images[0]
}
