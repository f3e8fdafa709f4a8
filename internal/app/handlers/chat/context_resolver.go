package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	domainchat "carchat/internal/domain/chat"
	"carchat/internal/domain/listings"
)

// ContextResolver turns a listing reference into the normalized header shown with a conversation.
// Nothing downstream of Resolve branches on the listing kind.
type ContextResolver struct {
	Catalog listings.Catalog
	Logger  *slog.Logger
}

// Resolve returns nil, nil when the reference is empty or the listing no longer exists.
func (r *ContextResolver) Resolve(ctx context.Context, ref listings.Ref) (*domainchat.ConversationContext, error) {
	if r == nil || r.Catalog == nil || ref.IsZero() {
		return nil, nil
	}
	switch ref.Kind {
	case listings.KindSale:
		car, err := r.Catalog.CarByID(ctx, ref.ID)
		if err != nil {
			return missingAsNil(err, ref)
		}
		return saleContext(car), nil
	case listings.KindRental:
		car, err := r.Catalog.RentalCarByID(ctx, ref.ID)
		if err != nil {
			return missingAsNil(err, ref)
		}
		return rentalContext(car), nil
	default:
		return nil, fmt.Errorf("%w: %q", listings.ErrUnknownRefKind, ref.Kind)
	}
}

// ResolveOrNil is used on read paths: a failing catalog degrades to "listing unavailable".
func (r *ContextResolver) ResolveOrNil(ctx context.Context, ref listings.Ref) *domainchat.ConversationContext {
	resolved, err := r.Resolve(ctx, ref)
	if err != nil {
		if r.Logger != nil {
			r.Logger.Warn("conversation context unavailable", "listing", ref.String(), "error", err)
		}
		return nil
	}
	return resolved
}

func missingAsNil(err error, ref listings.Ref) (*domainchat.ConversationContext, error) {
	if errors.Is(err, listings.ErrNotFound) {
		return nil, nil
	}
	return nil, fmt.Errorf("resolve %s: %w", ref, err)
}

func saleContext(car *listings.Car) *domainchat.ConversationContext {
	if car == nil {
		return nil
	}
	status := domainchat.ContextUnavailable
	switch listings.SaleStatus(strings.ToLower(string(car.Status))) {
	case listings.SaleAvailable:
		status = domainchat.ContextAvailable
	case listings.SalePending:
		status = domainchat.ContextPending
	case listings.SaleSold:
		status = domainchat.ContextSold
	}
	return &domainchat.ConversationContext{
		Kind:   listings.KindSale,
		Title:  listings.Title(car.Year, car.Make, car.Model),
		Images: cleanImages(car.Images),
		Price:  car.Price,
		Status: status,
	}
}

func rentalContext(car *listings.RentalCar) *domainchat.ConversationContext {
	if car == nil {
		return nil
	}
	status := domainchat.ContextUnavailable
	if listings.RentalStatus(strings.ToLower(string(car.Status))) == listings.RentalAvailable {
		status = domainchat.ContextAvailable
	}
	return &domainchat.ConversationContext{
		Kind:   listings.KindRental,
		Title:  listings.Title(car.Year, car.Make, car.Model),
		Images: cleanImages(car.Images),
		Price:  car.PricePerDay,
		Status: status,
	}
}

// cleanImages maps a null image list to an empty one and drops blanks.
func cleanImages(images []string) []string {
	out := make([]string, 0, len(images))
	for _, img := range images {
		if s := strings.TrimSpace(img); s != "" {
			out = append(out, s)
		}
	}
	return out
}
