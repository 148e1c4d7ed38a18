package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcosevegrand/dealpulse/internal/tracking"
)

var now = time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC)

func seeded(t *testing.T) *MemoryStore {
	t.Helper()
	s := NewMemoryStore()
	require.NoError(t, s.Seed(context.Background(),
		tracking.TrackedProduct{ID: "fresh", URL: "https://a.example.com/1", LastChecked: now.Add(-time.Hour)},
		tracking.TrackedProduct{ID: "old", URL: "https://a.example.com/2", LastChecked: now.Add(-48 * time.Hour)},
		tracking.TrackedProduct{ID: "new", URL: "https://a.example.com/3"},
	))
	return s
}

func TestMemoryStore_ListStaleProducts(t *testing.T) {
	s := seeded(t)

	stale, err := s.ListStaleProducts(context.Background(), now.Add(-23*time.Hour))
	require.NoError(t, err)
	require.Len(t, stale, 2)
	assert.Equal(t, "new", stale[0].ID)
	assert.Equal(t, "old", stale[1].ID)
}

func TestMemoryStore_UpdateProductCheck(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	price := decimal.RequireFromString("12.50")
	require.NoError(t, s.UpdateProductCheck(ctx, "new", &price, now))

	p, err := s.GetProduct(ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, now, p.LastChecked)
	require.NotNil(t, p.CurrentPrice)
	assert.Equal(t, "12.50", p.CurrentPrice.StringFixed(2))

	// nil price keeps the known price
	later := now.Add(time.Hour)
	require.NoError(t, s.UpdateProductCheck(ctx, "new", nil, later))
	p, err = s.GetProduct(ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, later, p.LastChecked)
	assert.Equal(t, "12.50", p.CurrentPrice.StringFixed(2))

	err = s.UpdateProductCheck(ctx, "missing", nil, now)
	assert.ErrorIs(t, err, tracking.ErrNotFound)
}

func TestMemoryStore_Observations(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	require.NoError(t, s.AppendObservation(ctx, "old", decimal.RequireFromString("3.00"), "EUR", now))
	require.NoError(t, s.AppendObservation(ctx, "old", decimal.RequireFromString("1.00"), "EUR", now.Add(-2*time.Hour)))
	require.NoError(t, s.AppendObservation(ctx, "old", decimal.RequireFromString("2.00"), "EUR", now))
	require.NoError(t, s.AppendObservation(ctx, "old", decimal.RequireFromString("9.00"), "EUR", now.Add(-72*time.Hour)))

	got, err := s.ListObservations(ctx, "old", now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "1", got[0].Price.String())
	assert.Equal(t, "3", got[1].Price.String())
	assert.Equal(t, "2", got[2].Price.String())
	assert.Less(t, got[1].Seq, got[2].Seq)

	p, err := s.GetProduct(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, "EUR", p.Currency)

	err = s.AppendObservation(ctx, "missing", decimal.NewFromInt(1), "EUR", now)
	assert.ErrorIs(t, err, tracking.ErrNotFound)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	price := decimal.RequireFromString("5.00")
	require.NoError(t, s.UpdateProductCheck(ctx, "fresh", &price, now))

	all, err := s.ListProducts(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	all[0].Name = "mutated"
	*all[0].CurrentPrice = decimal.NewFromInt(99)

	p, err := s.GetProduct(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, "", p.Name)
	assert.Equal(t, "5.00", p.CurrentPrice.StringFixed(2))
}

func TestMemoryStore_UpdateProductName(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	require.NoError(t, s.UpdateProductName(ctx, "new", "Renamed"))
	p, err := s.GetProduct(ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", p.Name)
}

func TestLoadSeedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "products.yaml")
	content := `products:
  - id: kettle
    url: shop.example.com/kettle/
    name: Acme Kettle
    recipient: ana@example.com
  - id: blender
    url: https://www.bestbuy.com/site/blender
    recipient: ana@example.com
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	products, err := LoadSeedFile(path)
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "https://shop.example.com/kettle", products[0].URL)
	assert.Equal(t, "Acme Kettle", products[0].Name)
	assert.True(t, products[1].NeverChecked())

	s := NewMemoryStore()
	require.NoError(t, s.Seed(context.Background(), products...))
	all, err := s.ListProducts(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestLoadSeedFile_Invalid(t *testing.T) {
	tests := map[string]string{
		"missing id":   "products:\n  - url: https://a.example.com/x\n",
		"duplicate id": "products:\n  - id: a\n    url: https://a.example.com/x\n  - id: a\n    url: https://a.example.com/y\n",
		"bad url":      "products:\n  - id: a\n    url: ftp://a.example.com/x\n",
		"bad yaml":     "products: [",
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "products.yaml")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
			_, err := LoadSeedFile(path)
			assert.Error(t, err)
		})
	}
}
