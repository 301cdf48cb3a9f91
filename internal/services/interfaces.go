package services

import (
	"context"
	"time"

	"github.com/herbie65/alloygator-nl-sub001/internal/domain"
)

// OrderService drives the order status state machine.
type OrderService interface {
	// GetOrder loads a single order with statuses normalised.
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	// UpdateStatus moves the order to the target status. Persistence failures
	// leave the stored order untouched and surface a typed error; workflow
	// side effects (invoice generation, notifications) never fail the call.
	UpdateStatus(ctx context.Context, orderID string, target string) (domain.Order, error)
	// MarkAsPaid settles a cash/pin pickup order at the counter: payment
	// status paid and order status processing in one persisted update.
	MarkAsPaid(ctx context.Context, orderID string) (domain.Order, error)
	// NotifyCreated dispatches the order confirmation to the customer and the
	// new-order notification to the admin inbox, both best effort.
	NotifyCreated(ctx context.Context, orderID string) error
}

// InvoiceService generates invoices at most once per order.
type InvoiceService interface {
	// EnsureInvoice allocates a number, renders and stores the PDF, and
	// merges the invoice fields onto the order. An order that already
	// carries an invoice is returned unchanged.
	EnsureInvoice(ctx context.Context, orderID string) (domain.Order, error)
}

// SequenceService issues formatted invoice numbers, strictly increasing
// within a calendar year.
type SequenceService interface {
	NextInvoiceNumber(ctx context.Context) (string, error)
}

// InvoiceRenderer turns an order into a finished PDF document.
type InvoiceRenderer interface {
	Render(order domain.Order) ([]byte, error)
}

// OrderNotifier is the best-effort mail boundary. Returned errors are logged
// by callers and never fail the primary operation.
type OrderNotifier interface {
	SendOrderConfirmation(ctx context.Context, order domain.Order) error
	SendAdminOrderNotification(ctx context.Context, order domain.Order) error
	SendStatusUpdate(ctx context.Context, order domain.Order, previous domain.OrderStatus) error
	SendPaymentConfirmation(ctx context.Context, order domain.Order) error
	SendInvoice(ctx context.Context, order domain.Order, pdf []byte) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	OrderNumber    string
	PreviousStatus string
	CurrentStatus  string
	OccurredAt     time.Time
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}
