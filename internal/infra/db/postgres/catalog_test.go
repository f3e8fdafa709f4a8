package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carchat/internal/domain/listings"
)

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = r.values[i].(string)
		case *int:
			*p = r.values[i].(int)
		case *float64:
			*p = r.values[i].(float64)
		case *[]string:
			*p = r.values[i].([]string)
		}
	}
	return nil
}

type fakeDB struct {
	row   fakeRow
	query string
	args  []any
}

func (db *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	db.query, db.args = sql, args
	return db.row
}

func TestCarByIDScansRow(t *testing.T) {
	db := &fakeDB{row: fakeRow{values: []any{"7", "Toyota", "Camry", 2019, 18500.0, []string{"a.jpg"}, "pending", "42", ""}}}
	car, err := NewCatalog(db).CarByID(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, listings.SalePending, car.Status)
	assert.Equal(t, "42", car.DealershipID)
	assert.Equal(t, []string{"a.jpg"}, car.Images)
	assert.Contains(t, db.query, "FROM cars")
	assert.Equal(t, []any{"7"}, db.args)
}

func TestRentalCarByIDScansRow(t *testing.T) {
	db := &fakeDB{row: fakeRow{values: []any{"r1", "Kia", "Rio", 2022, 45.0, []string{}, "available", "42"}}}
	car, err := NewCatalog(db).RentalCarByID(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, listings.RentalAvailable, car.Status)
	assert.Equal(t, 45.0, car.PricePerDay)
	assert.Contains(t, db.query, "FROM rental_cars")
}

func TestCatalogTranslatesErrors(t *testing.T) {
	missing := NewCatalog(&fakeDB{row: fakeRow{err: pgx.ErrNoRows}})
	_, err := missing.CarByID(context.Background(), "404")
	assert.ErrorIs(t, err, listings.ErrNotFound)
	_, err = missing.RentalCarByID(context.Background(), "404")
	assert.ErrorIs(t, err, listings.ErrNotFound)

	down := errors.New("connection refused")
	_, err = NewCatalog(&fakeDB{row: fakeRow{err: down}}).CarByID(context.Background(), "7")
	assert.ErrorIs(t, err, down)
	assert.NotErrorIs(t, err, listings.ErrNotFound)
}
