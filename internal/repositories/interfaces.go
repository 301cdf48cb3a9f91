package repositories

import (
	"context"

	"github.com/herbie65/alloygator-nl-sub001/internal/domain"
)

// RepositoryError categorises low-level persistence failures for services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// OrderRepository persists order records in the document store.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	// Update writes the order conditionally on the stored version matching
	// order.Version and bumps the version by one. A mismatch yields a
	// conflict RepositoryError.
	Update(ctx context.Context, order domain.Order) (domain.Order, error)
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	ListByStatus(ctx context.Context, status domain.OrderStatus, limit int) ([]domain.Order, error)
}

// CounterRepository issues strictly increasing sequence values scoped per
// calendar year. Implementations must make the increment atomic.
type CounterRepository interface {
	NextForYear(ctx context.Context, name string, year int) (int64, error)
}

// InvoiceArchive persists rendered invoice documents and returns the
// publicly addressable path.
type InvoiceArchive interface {
	Store(ctx context.Context, objectPath string, pdf []byte) (string, error)
}
