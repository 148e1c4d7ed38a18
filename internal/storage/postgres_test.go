package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcosevegrand/dealpulse/internal/tracking"
)

func openTestPostgres(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("DEALPULSE_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("DEALPULSE_TEST_PG_DSN not set")
	}

	s, err := OpenPostgres(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func testID(t *testing.T) string {
	t.Helper()
	id, err := uuid.NewV4()
	require.NoError(t, err)
	return id.String()
}

func TestPostgresStore_RoundTrip(t *testing.T) {
	s := openTestPostgres(t)
	ctx := context.Background()
	id := testID(t)

	t.Cleanup(func() {
		_, _ = s.db.Exec(context.Background(), `DELETE FROM tracked_products WHERE id = $1`, id)
	})

	require.NoError(t, s.Seed(ctx, tracking.TrackedProduct{ID: id, URL: "https://shop.example.com/" + id, Recipient: "ana@example.com"}))

	stale, err := s.ListStaleProducts(ctx, time.Now())
	require.NoError(t, err)
	assert.Contains(t, productIDs(stale), id)

	checkedAt := time.Now().UTC().Truncate(time.Microsecond)
	price := decimal.RequireFromString("1299.99")
	require.NoError(t, s.AppendObservation(ctx, id, price, "USD", checkedAt))
	require.NoError(t, s.UpdateProductCheck(ctx, id, &price, checkedAt))
	require.NoError(t, s.UpdateProductCheck(ctx, id, nil, checkedAt.Add(time.Minute)))
	require.NoError(t, s.UpdateProductName(ctx, id, "Laptop"))

	stale, err = s.ListStaleProducts(ctx, checkedAt)
	require.NoError(t, err)
	assert.NotContains(t, productIDs(stale), id)

	all, err := s.ListProducts(ctx)
	require.NoError(t, err)
	var got *tracking.TrackedProduct
	for i := range all {
		if all[i].ID == id {
			got = &all[i]
		}
	}
	require.NotNil(t, got)
	assert.Equal(t, "Laptop", got.Name)
	assert.Equal(t, "USD", got.Currency)
	require.NotNil(t, got.CurrentPrice)
	assert.True(t, price.Equal(*got.CurrentPrice))
	assert.True(t, checkedAt.Add(time.Minute).Equal(got.LastChecked))

	one, err := s.GetProduct(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Laptop", one.Name)

	_, err = s.GetProduct(ctx, testID(t))
	assert.ErrorIs(t, err, tracking.ErrNotFound)

	observations, err := s.ListObservations(ctx, id, checkedAt.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, observations, 1)
	assert.True(t, price.Equal(observations[0].Price))
	assert.True(t, checkedAt.Equal(observations[0].ObservedAt))
}

func TestPostgresStore_NotFound(t *testing.T) {
	s := openTestPostgres(t)
	ctx := context.Background()
	id := testID(t)

	err := s.UpdateProductCheck(ctx, id, nil, time.Now())
	assert.ErrorIs(t, err, tracking.ErrNotFound)

	err = s.AppendObservation(ctx, id, decimal.NewFromInt(1), "USD", time.Now())
	assert.ErrorIs(t, err, tracking.ErrNotFound)
}

func productIDs(products []tracking.TrackedProduct) []string {
	ids := make([]string, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
	}
	return ids
}
