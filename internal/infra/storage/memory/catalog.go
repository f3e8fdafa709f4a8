package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"carchat/internal/domain/listings"
)

// Catalog is an in-memory listing lookup, filled from fixtures in dev setups and tests.
type Catalog struct {
	mu      sync.RWMutex
	cars    map[string]listings.Car
	rentals map[string]listings.RentalCar
}

func NewCatalog() *Catalog {
	return &Catalog{
		cars:    make(map[string]listings.Car),
		rentals: make(map[string]listings.RentalCar),
	}
}

func (c *Catalog) PutCar(car listings.Car) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cars[car.ID] = car
}

func (c *Catalog) PutRentalCar(car listings.RentalCar) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rentals[car.ID] = car
}

// Delete removes a listing of either kind.
func (c *Catalog) Delete(ref listings.Ref) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch ref.Kind {
	case listings.KindSale:
		delete(c.cars, ref.ID)
	case listings.KindRental:
		delete(c.rentals, ref.ID)
	}
}

func (c *Catalog) CarByID(ctx context.Context, id string) (*listings.Car, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	car, ok := c.cars[id]
	if !ok {
		return nil, listings.ErrNotFound
	}
	car.Images = append([]string(nil), car.Images...)
	return &car, nil
}

func (c *Catalog) RentalCarByID(ctx context.Context, id string) (*listings.RentalCar, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	car, ok := c.rentals[id]
	if !ok {
		return nil, listings.ErrNotFound
	}
	car.Images = append([]string(nil), car.Images...)
	return &car, nil
}

// ListingFixtures is the JSON document accepted by LoadFixtures.
type ListingFixtures struct {
	Cars       []carFixture    `json:"cars"`
	RentalCars []rentalFixture `json:"rental_cars"`
}

type carFixture struct {
	ID           string   `json:"id"`
	Make         string   `json:"make"`
	Model        string   `json:"model"`
	Year         int      `json:"year"`
	Price        float64  `json:"price"`
	Images       []string `json:"images"`
	Status       string   `json:"status"`
	DealershipID string   `json:"dealership_id"`
	SellerID     string   `json:"seller_id"`
}

type rentalFixture struct {
	ID           string   `json:"id"`
	Make         string   `json:"make"`
	Model        string   `json:"model"`
	Year         int      `json:"year"`
	PricePerDay  float64  `json:"price_per_day"`
	Images       []string `json:"images"`
	Status       string   `json:"status"`
	DealershipID string   `json:"dealership_id"`
}

// LoadFixtures imports listings from path. A missing file is not an error; it returns 0.
func (c *Catalog) LoadFixtures(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read fixtures: %w", err)
	}
	if len(data) == 0 {
		return 0, nil
	}
	var fixtures ListingFixtures
	if err := json.Unmarshal(data, &fixtures); err != nil {
		return 0, fmt.Errorf("decode fixtures: %w", err)
	}
	n := 0
	for _, fx := range fixtures.Cars {
		if fx.ID == "" {
			continue
		}
		c.PutCar(listings.Car{
			ID:           fx.ID,
			Make:         fx.Make,
			Model:        fx.Model,
			Year:         fx.Year,
			Price:        fx.Price,
			Images:       fx.Images,
			Status:       listings.SaleStatus(fx.Status),
			DealershipID: fx.DealershipID,
			SellerID:     fx.SellerID,
		})
		n++
	}
	for _, fx := range fixtures.RentalCars {
		if fx.ID == "" {
			continue
		}
		c.PutRentalCar(listings.RentalCar{
			ID:           fx.ID,
			Make:         fx.Make,
			Model:        fx.Model,
			Year:         fx.Year,
			PricePerDay:  fx.PricePerDay,
			Images:       fx.Images,
			Status:       listings.RentalStatus(fx.Status),
			DealershipID: fx.DealershipID,
		})
		n++
	}
	return n, nil
}

var _ listings.Catalog = (*Catalog)(nil)
