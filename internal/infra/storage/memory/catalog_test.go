package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carchat/internal/domain/listings"
)

func TestCatalogLoadFixtures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "listings.json")
	doc := `{
		"cars": [{"id": "7", "make": "Toyota", "model": "Camry", "year": 2019, "price": 18500, "images": ["a.jpg"], "status": "pending", "dealership_id": "42"}],
		"rental_cars": [{"id": "r1", "make": "Kia", "model": "Rio", "year": 2022, "price_per_day": 45, "images": null, "status": "available"}]
	}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	catalog := NewCatalog()
	n, err := catalog.LoadFixtures(path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	car, err := catalog.CarByID(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, listings.SalePending, car.Status)
	assert.Equal(t, "42", car.DealershipID)

	rental, err := catalog.RentalCarByID(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, 45.0, rental.PricePerDay)
	assert.Empty(t, rental.Images)

	catalog.Delete(listings.SaleRef("7"))
	_, err = catalog.CarByID(context.Background(), "7")
	require.ErrorIs(t, err, listings.ErrNotFound)
}

func TestCatalogMissingFixturesFile(t *testing.T) {
	n, err := NewCatalog().LoadFixtures(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Zero(t, n)
}
