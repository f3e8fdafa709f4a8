package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"carchat/internal/domain/listings"
)

// NewPool opens a small pool for catalog lookups and checks it answers.
func NewPool(ctx context.Context, dsn string, logger *slog.Logger) (*pgxpool.Pool, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres: dsn is required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnIdleTime = 5 * time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(connectCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: open pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	if logger != nil {
		logger.Info("postgres catalog connected", "host", cfg.ConnConfig.Host, "database", cfg.ConnConfig.Database)
	}
	return pool, nil
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Catalog reads listings from the marketplace tables. It never writes.
type Catalog struct {
	db rowQuerier
}

func NewCatalog(db rowQuerier) *Catalog {
	return &Catalog{db: db}
}

const carQuery = `
SELECT id::text, make, model, year, price::float8, COALESCE(images, '{}'), status,
       COALESCE(dealership_id::text, ''), COALESCE(seller_id::text, '')
FROM cars
WHERE id::text = $1`

const rentalCarQuery = `
SELECT id::text, make, model, year, price_per_day::float8, COALESCE(images, '{}'), status,
       COALESCE(dealership_id::text, '')
FROM rental_cars
WHERE id::text = $1`

func (c *Catalog) CarByID(ctx context.Context, id string) (*listings.Car, error) {
	var (
		car    listings.Car
		status string
	)
	err := c.db.QueryRow(ctx, carQuery, id).Scan(
		&car.ID, &car.Make, &car.Model, &car.Year, &car.Price, &car.Images, &status,
		&car.DealershipID, &car.SellerID,
	)
	if err != nil {
		return nil, translate(err, "car", id)
	}
	car.Status = listings.SaleStatus(status)
	return &car, nil
}

func (c *Catalog) RentalCarByID(ctx context.Context, id string) (*listings.RentalCar, error) {
	var (
		car    listings.RentalCar
		status string
	)
	err := c.db.QueryRow(ctx, rentalCarQuery, id).Scan(
		&car.ID, &car.Make, &car.Model, &car.Year, &car.PricePerDay, &car.Images, &status,
		&car.DealershipID,
	)
	if err != nil {
		return nil, translate(err, "rental car", id)
	}
	car.Status = listings.RentalStatus(status)
	return &car, nil
}

func translate(err error, what, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return listings.ErrNotFound
	}
	return fmt.Errorf("postgres: load %s %s: %w", what, id, err)
}

var _ listings.Catalog = (*Catalog)(nil)
