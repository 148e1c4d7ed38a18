package tracking

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned by stores for unknown product IDs
var ErrNotFound = errors.New("product not found")

// Store is the storage contract the engine consumes. Implementations must
// make UpdateProductCheck atomic per product and AppendObservation
// append-only.
type Store interface {
	// ListStaleProducts returns products last checked before cutoff,
	// including products never checked.
	ListStaleProducts(ctx context.Context, cutoff time.Time) ([]TrackedProduct, error)

	// ListProducts returns every tracked product.
	ListProducts(ctx context.Context) ([]TrackedProduct, error)

	AppendObservation(ctx context.Context, productID string, price decimal.Decimal, currency string, observedAt time.Time) error

	// UpdateProductCheck sets the last-checked time. A nil price keeps the
	// current known price.
	UpdateProductCheck(ctx context.Context, productID string, newPrice *decimal.Decimal, checkedAt time.Time) error

	// ListObservations returns observations at or after since, oldest first.
	ListObservations(ctx context.Context, productID string, since time.Time) ([]PriceObservation, error)
}

// NameUpdater is implemented by stores that can rename a product when the
// retailer page reports a different name.
type NameUpdater interface {
	UpdateProductName(ctx context.Context, productID, name string) error
}

// Notifier receives alert decisions. Delivery is the implementation's
// concern; the engine only logs a returned error.
type Notifier interface {
	Emit(ctx context.Context, decision AlertDecision, recipient string) error
}

// Marker records which decisions have already been emitted.
type Marker interface {
	// Mark returns true the first time key is seen.
	Mark(ctx context.Context, key string) (bool, error)
}

// Flusher is implemented by notifiers that buffer decisions until the end of
// a batch.
type Flusher interface {
	Flush(ctx context.Context) error
}
