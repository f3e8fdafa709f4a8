package listings

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrNotFound       = errors.New("listings: listing not found")
	ErrInvalidRef     = errors.New("listings: invalid listing reference")
	ErrUnknownRefKind = errors.New("listings: unknown listing kind")
)

// Kind tells which catalog a listing lives in.
type Kind string

const (
	KindSale   Kind = "sale"
	KindRental Kind = "rental"
)

// Ref points at a sale car or a rental car. The zero value means "no listing".
type Ref struct {
	Kind Kind
	ID   string
}

// SaleRef references a car listed for sale.
func SaleRef(id string) Ref {
	return Ref{Kind: KindSale, ID: strings.TrimSpace(id)}
}

// RentalRef references a car listed for rent.
func RentalRef(id string) Ref {
	return Ref{Kind: KindRental, ID: strings.TrimSpace(id)}
}

// ParseRef builds a Ref from loosely typed input. Empty kind and id yield the zero Ref.
func ParseRef(kind, id string) (Ref, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	id = strings.TrimSpace(id)
	if kind == "" && id == "" {
		return Ref{}, nil
	}
	if id == "" {
		return Ref{}, ErrInvalidRef
	}
	switch Kind(kind) {
	case KindSale:
		return SaleRef(id), nil
	case KindRental:
		return RentalRef(id), nil
	default:
		return Ref{}, fmt.Errorf("%w: %q", ErrUnknownRefKind, kind)
	}
}

func (r Ref) IsZero() bool {
	return r.Kind == "" && r.ID == ""
}

// Valid reports whether a non-zero Ref is well formed.
func (r Ref) Valid() bool {
	if r.IsZero() {
		return true
	}
	return (r.Kind == KindSale || r.Kind == KindRental) && r.ID != ""
}

// String renders the reference as "sale:7", "rental:9" or "-" for none.
func (r Ref) String() string {
	if r.IsZero() {
		return "-"
	}
	return string(r.Kind) + ":" + r.ID
}

type SaleStatus string

const (
	SaleAvailable SaleStatus = "available"
	SalePending   SaleStatus = "pending"
	SaleSold      SaleStatus = "sold"
)

type RentalStatus string

const (
	RentalAvailable   RentalStatus = "available"
	RentalUnavailable RentalStatus = "unavailable"
)

// Car is a vehicle listed for sale by a dealership or a private seller.
type Car struct {
	ID           string
	Make         string
	Model        string
	Year         int
	Price        float64
	Images       []string
	Status       SaleStatus
	DealershipID string
	SellerID     string
}

// RentalCar is a vehicle offered for rent. Price is the daily rate.
type RentalCar struct {
	ID           string
	Make         string
	Model        string
	Year         int
	PricePerDay  float64
	Images       []string
	Status       RentalStatus
	DealershipID string
}

// Catalog is the listing lookup port. Both lookups return ErrNotFound for missing listings.
type Catalog interface {
	CarByID(ctx context.Context, id string) (*Car, error)
	RentalCarByID(ctx context.Context, id string) (*RentalCar, error)
}

// Title composes the display title shared by both listing schemas.
func Title(year int, brand, model string) string {
	parts := make([]string, 0, 3)
	if year > 0 {
		parts = append(parts, strconv.Itoa(year))
	}
	if s := strings.TrimSpace(brand); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(model); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, " ")
}
