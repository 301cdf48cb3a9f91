package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/herbie65/alloygator-nl-sub001/internal/domain"
	"github.com/herbie65/alloygator-nl-sub001/internal/platform/requestctx"
	"github.com/herbie65/alloygator-nl-sub001/internal/repositories"
)

const (
	orderEventStatusChanged = "order.status.changed"
	orderEventPaid          = "order.paid"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates an invalid status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates a concurrent modification was detected.
	ErrOrderConflict = errors.New("order: conflict")
)

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders   repositories.OrderRepository
	Invoices InvoiceService
	Notifier OrderNotifier
	Events   OrderEventPublisher
	Clock    func() time.Time
}

type orderService struct {
	orders   repositories.OrderRepository
	invoices InvoiceService
	notifier OrderNotifier
	events   OrderEventPublisher
	clock    func() time.Time
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	return &orderService{
		orders:   deps.Orders,
		invoices: deps.Invoices,
		notifier: deps.Notifier,
		events:   deps.Events,
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) UpdateStatus(ctx context.Context, orderID string, rawTarget string) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	target, ok := domain.NormalizeOrderStatus(rawTarget)
	if !ok {
		return domain.Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, rawTarget)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}

	if order.Status == target {
		return domain.Order{}, fmt.Errorf("%w: order %s already has status %s", ErrOrderInvalidState, orderID, target)
	}
	if !order.Status.CanTransition(target) {
		return domain.Order{}, fmt.Errorf("%w: %s -> %s", ErrOrderInvalidState, order.Status, target)
	}

	// The mutation happens on a copy: a failed write leaves every previously
	// loaded view of the order intact.
	previous := order.Status
	updated := order
	updated.Status = target
	updated.UpdatedAt = s.clock()

	persisted, err := s.orders.Update(ctx, updated)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}

	// Workflow side effects are peripheral: their failure is logged and never
	// propagates to the caller of the transition.
	if previous == domain.OrderStatusNew && target == domain.OrderStatusProcessing {
		persisted = s.ensureInvoicePeripheral(ctx, persisted)
	}
	s.notifyStatusChange(ctx, persisted, previous)
	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        persisted.ID,
		OrderNumber:    persisted.OrderNumber,
		PreviousStatus: string(previous),
		CurrentStatus:  string(persisted.Status),
		OccurredAt:     s.clock(),
	})

	return persisted, nil
}

func (s *orderService) MarkAsPaid(ctx context.Context, orderID string) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}

	if !order.EligibleForDirectPayment() {
		return domain.Order{}, fmt.Errorf("%w: order %s is not a cash/pin pickup order", ErrOrderInvalidState, orderID)
	}
	if order.PaymentStatus == domain.PaymentStatusPaid {
		return domain.Order{}, fmt.Errorf("%w: order %s is already paid", ErrOrderInvalidState, orderID)
	}
	if order.Status.IsTerminal() {
		return domain.Order{}, fmt.Errorf("%w: order %s is %s", ErrOrderInvalidState, orderID, order.Status)
	}

	// Payment status and order status move together in a single write, so a
	// failure reverts both at once.
	previous := order.Status
	updated := order
	updated.PaymentStatus = domain.PaymentStatusPaid
	if updated.Status == domain.OrderStatusNew {
		updated.Status = domain.OrderStatusProcessing
	}
	updated.UpdatedAt = s.clock()

	persisted, err := s.orders.Update(ctx, updated)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}

	persisted = s.ensureInvoicePeripheral(ctx, persisted)

	if s.notifier != nil {
		if err := s.notifier.SendPaymentConfirmation(ctx, persisted); err != nil {
			s.logger(ctx).Warn("order.notify.payment_confirmation.failed",
				zap.String("orderId", persisted.ID), zap.Error(err))
		}
	}
	if previous != persisted.Status {
		s.notifyStatusChange(ctx, persisted, previous)
	}
	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventPaid,
		OrderID:        persisted.ID,
		OrderNumber:    persisted.OrderNumber,
		PreviousStatus: string(previous),
		CurrentStatus:  string(persisted.Status),
		OccurredAt:     s.clock(),
	})

	return persisted, nil
}

func (s *orderService) NotifyCreated(ctx context.Context, orderID string) error {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if s.notifier == nil {
		return nil
	}
	if err := s.notifier.SendOrderConfirmation(ctx, order); err != nil {
		s.logger(ctx).Warn("order.notify.confirmation.failed",
			zap.String("orderId", order.ID), zap.Error(err))
	}
	if err := s.notifier.SendAdminOrderNotification(ctx, order); err != nil {
		s.logger(ctx).Warn("order.notify.admin.failed",
			zap.String("orderId", order.ID), zap.Error(err))
	}
	return nil
}

// ensureInvoicePeripheral runs the invoice orchestrator as a peripheral
// effect: an allocation or persistence error is logged, not surfaced, and the
// freshest order view wins.
func (s *orderService) ensureInvoicePeripheral(ctx context.Context, order domain.Order) domain.Order {
	if s.invoices == nil {
		return order
	}
	refreshed, err := s.invoices.EnsureInvoice(ctx, order.ID)
	if err != nil {
		s.logger(ctx).Error("order.invoice.ensure.failed",
			zap.String("orderId", order.ID), zap.Error(err))
		return order
	}
	return refreshed
}

func (s *orderService) notifyStatusChange(ctx context.Context, order domain.Order, previous domain.OrderStatus) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendStatusUpdate(ctx, order, previous); err != nil {
		s.logger(ctx).Warn("order.notify.status_update.failed",
			zap.String("orderId", order.ID), zap.Error(err))
	}
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx).Warn("order.event.publish.failed",
			zap.String("type", event.Type),
			zap.String("orderId", event.OrderID),
			zap.Error(err))
	}
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}
	return err
}

func (s *orderService) logger(ctx context.Context) *zap.Logger {
	return requestctx.Logger(ctx)
}
