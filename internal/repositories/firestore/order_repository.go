package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/herbie65/alloygator-nl-sub001/internal/domain"
	pfirestore "github.com/herbie65/alloygator-nl-sub001/internal/platform/firestore"
)

const ordersCollection = "orders"

// OrderRepository persists orders in Firestore. Status values are normalised
// on every read so legacy documents surface canonical statuses only.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.Collection[domain.Order]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider: provider,
		orders:   pfirestore.NewCollection[domain.Order](provider, ordersCollection),
	}, nil
}

// Insert creates a new order document, failing when the ID already exists.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if order.Version == 0 {
		order.Version = 1
	}
	normalizeInPlace(&order)
	return r.orders.Create(ctx, order.ID, order)
}

// Update writes the order conditionally on the stored version matching
// order.Version and bumps the version by one. A concurrent writer that got
// there first surfaces as a conflict error.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) (domain.Order, error) {
	expected := order.Version

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.orders.DocumentRef(ctx, order.ID)
		if err != nil {
			return err
		}

		snapshot, err := tx.Get(ref)
		if err != nil {
			return err
		}

		var stored domain.Order
		if err := snapshot.DataTo(&stored); err != nil {
			return err
		}
		if stored.Version != expected {
			return status.Errorf(codes.FailedPrecondition,
				"order %s modified concurrently: stored version %d, expected %d", order.ID, stored.Version, expected)
		}

		order.Version = expected + 1
		order.UpdatedAt = time.Now().UTC()
		return tx.Set(ref, order)
	})
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.update", err)
	}
	return order, nil
}

// FindByID fetches a single order by document ID.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	order := doc.Data
	order.ID = doc.ID
	normalizeInPlace(&order)
	return order, nil
}

// ListByStatus returns up to limit orders carrying the canonical status.
func (r *OrderRepository) ListByStatus(ctx context.Context, status domain.OrderStatus, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	docs, err := r.orders.List(ctx, func(query firestore.Query) firestore.Query {
		return query.
			Where("status", "==", string(status)).
			OrderBy("createdAt", firestore.Desc).
			Limit(limit)
	})
	if err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		order := doc.Data
		order.ID = doc.ID
		normalizeInPlace(&order)
		orders = append(orders, order)
	}
	return orders, nil
}

// normalizeInPlace folds legacy status aliases into their canonical values.
// Unrecognised values are left untouched so they stay visible in logs.
func normalizeInPlace(order *domain.Order) {
	if canonical, ok := domain.NormalizeOrderStatus(string(order.Status)); ok {
		order.Status = canonical
	}
	if canonical, ok := domain.NormalizePaymentStatus(string(order.PaymentStatus)); ok {
		order.PaymentStatus = canonical
	}
}
