package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/herbie65/alloygator-nl-sub001/internal/domain"
)

type repoError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e repoError) Error() string       { return "repository error" }
func (e repoError) IsNotFound() bool    { return e.notFound }
func (e repoError) IsConflict() bool    { return e.conflict }
func (e repoError) IsUnavailable() bool { return e.unavailable }

type stubOrderRepository struct {
	mu          sync.Mutex
	insertFn    func(context.Context, domain.Order) error
	updateFn    func(context.Context, domain.Order) (domain.Order, error)
	findFn      func(context.Context, string) (domain.Order, error)
	listFn      func(context.Context, domain.OrderStatus, int) ([]domain.Order, error)
	updateCalls []domain.Order
}

func (s *stubOrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, order)
	}
	return nil
}

func (s *stubOrderRepository) Update(ctx context.Context, order domain.Order) (domain.Order, error) {
	s.mu.Lock()
	s.updateCalls = append(s.updateCalls, order)
	s.mu.Unlock()
	if s.updateFn != nil {
		return s.updateFn(ctx, order)
	}
	return order, nil
}

func (s *stubOrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findFn != nil {
		return s.findFn(ctx, orderID)
	}
	return domain.Order{}, repoError{notFound: true}
}

func (s *stubOrderRepository) ListByStatus(ctx context.Context, status domain.OrderStatus, limit int) ([]domain.Order, error) {
	if s.listFn != nil {
		return s.listFn(ctx, status, limit)
	}
	return nil, nil
}

type stubNotifier struct {
	mu            sync.Mutex
	confirmations []string
	adminNotices  []string
	statusUpdates []string
	payments      []string
	invoices      []string
	err           error
}

func (s *stubNotifier) record(bucket *[]string, ref string) error {
	s.mu.Lock()
	*bucket = append(*bucket, ref)
	s.mu.Unlock()
	return s.err
}

func (s *stubNotifier) SendOrderConfirmation(ctx context.Context, order domain.Order) error {
	return s.record(&s.confirmations, order.ID)
}

func (s *stubNotifier) SendAdminOrderNotification(ctx context.Context, order domain.Order) error {
	return s.record(&s.adminNotices, order.ID)
}

func (s *stubNotifier) SendStatusUpdate(ctx context.Context, order domain.Order, previous domain.OrderStatus) error {
	return s.record(&s.statusUpdates, order.ID+":"+string(previous)+"->"+string(order.Status))
}

func (s *stubNotifier) SendPaymentConfirmation(ctx context.Context, order domain.Order) error {
	return s.record(&s.payments, order.ID)
}

func (s *stubNotifier) SendInvoice(ctx context.Context, order domain.Order, pdf []byte) error {
	return s.record(&s.invoices, order.ID)
}

type stubEventPublisher struct {
	mu     sync.Mutex
	events []OrderEvent
	err    error
}

func (s *stubEventPublisher) PublishOrderEvent(ctx context.Context, event OrderEvent) error {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
	return s.err
}

type stubInvoiceOrchestrator struct {
	ensureFn func(context.Context, string) (domain.Order, error)
	calls    []string
}

func (s *stubInvoiceOrchestrator) EnsureInvoice(ctx context.Context, orderID string) (domain.Order, error) {
	s.calls = append(s.calls, orderID)
	if s.ensureFn != nil {
		return s.ensureFn(ctx, orderID)
	}
	return domain.Order{}, errors.New("not implemented")
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func baseOrder() domain.Order {
	return domain.Order{
		ID:            "ord-1",
		OrderNumber:   "AG-2025-00042",
		Status:        domain.OrderStatusNew,
		PaymentStatus: domain.PaymentStatusOpen,
		PaymentMethod: domain.PaymentMethodIdeal,
		Items: []domain.OrderItem{
			{Name: "AlloyGator set zwart", UnitPrice: 119.95, Quantity: 1},
		},
		Subtotal:  119.95,
		VATAmount: 25.19,
		Total:     145.14,
		Customer:  domain.Customer{Name: "J. de Vries", Email: "jdevries@example.com"},
		CreatedAt: time.Date(2025, 1, 1, 9, 30, 0, 0, time.UTC),
		Version:   1,
	}
}

func newTestOrderService(t *testing.T, deps OrderServiceDeps) OrderService {
	t.Helper()
	if deps.Clock == nil {
		deps.Clock = fixedClock(time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC))
	}
	svc, err := NewOrderService(deps)
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}
	return svc
}

func TestUpdateStatusNormalisesDutchAlias(t *testing.T) {
	stored := baseOrder()
	stored.Status = domain.OrderStatusProcessing
	repo := &stubOrderRepository{
		findFn: func(ctx context.Context, orderID string) (domain.Order, error) {
			return stored, nil
		},
	}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: repo})

	updated, err := svc.UpdateStatus(context.Background(), "ord-1", "verzonden")
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if updated.Status != domain.OrderStatusShipped {
		t.Fatalf("expected shipped, got %s", updated.Status)
	}
	if len(repo.updateCalls) != 1 {
		t.Fatalf("expected one persisted update, got %d", len(repo.updateCalls))
	}
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	svc := newTestOrderService(t, OrderServiceDeps{Orders: &stubOrderRepository{}})

	_, err := svc.UpdateStatus(context.Background(), "ord-1", "teleported")
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestUpdateStatusRejectsNoOpAndIllegalTransitions(t *testing.T) {
	cases := []struct {
		name   string
		stored domain.OrderStatus
		target string
	}{
		{"same status", domain.OrderStatusProcessing, "processing"},
		{"backwards", domain.OrderStatusShipped, "processing"},
		{"out of terminal", domain.OrderStatusCompleted, "processing"},
		{"cancel terminal", domain.OrderStatusCancelled, "completed"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stored := baseOrder()
			stored.Status = tc.stored
			repo := &stubOrderRepository{
				findFn: func(ctx context.Context, orderID string) (domain.Order, error) {
					return stored, nil
				},
			}
			svc := newTestOrderService(t, OrderServiceDeps{Orders: repo})

			_, err := svc.UpdateStatus(context.Background(), "ord-1", tc.target)
			if !errors.Is(err, ErrOrderInvalidState) {
				t.Fatalf("expected invalid state, got %v", err)
			}
			if len(repo.updateCalls) != 0 {
				t.Fatalf("expected no persisted update, got %d", len(repo.updateCalls))
			}
		})
	}
}

func TestUpdateStatusPersistFailureSkipsSideEffects(t *testing.T) {
	stored := baseOrder()
	repo := &stubOrderRepository{
		findFn: func(ctx context.Context, orderID string) (domain.Order, error) {
			return stored, nil
		},
		updateFn: func(ctx context.Context, order domain.Order) (domain.Order, error) {
			return domain.Order{}, repoError{unavailable: true}
		},
	}
	notifier := &stubNotifier{}
	publisher := &stubEventPublisher{}
	invoices := &stubInvoiceOrchestrator{}
	svc := newTestOrderService(t, OrderServiceDeps{
		Orders:   repo,
		Invoices: invoices,
		Notifier: notifier,
		Events:   publisher,
	})

	_, err := svc.UpdateStatus(context.Background(), "ord-1", "processing")
	if err == nil {
		t.Fatal("expected error from failed persist")
	}
	if len(invoices.calls) != 0 || len(notifier.statusUpdates) != 0 || len(publisher.events) != 0 {
		t.Fatal("expected no side effects after failed persist")
	}
}

func TestUpdateStatusNewToProcessingTriggersInvoice(t *testing.T) {
	stored := baseOrder()
	withInvoice := stored
	withInvoice.Status = domain.OrderStatusProcessing
	withInvoice.InvoiceNumber = "2025-00007"

	repo := &stubOrderRepository{
		findFn: func(ctx context.Context, orderID string) (domain.Order, error) {
			return stored, nil
		},
	}
	invoices := &stubInvoiceOrchestrator{
		ensureFn: func(ctx context.Context, orderID string) (domain.Order, error) {
			return withInvoice, nil
		},
	}
	notifier := &stubNotifier{}
	publisher := &stubEventPublisher{}
	svc := newTestOrderService(t, OrderServiceDeps{
		Orders:   repo,
		Invoices: invoices,
		Notifier: notifier,
		Events:   publisher,
	})

	updated, err := svc.UpdateStatus(context.Background(), "ord-1", "processing")
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if len(invoices.calls) != 1 || invoices.calls[0] != "ord-1" {
		t.Fatalf("expected invoice orchestrator call, got %v", invoices.calls)
	}
	if updated.InvoiceNumber != "2025-00007" {
		t.Fatalf("expected refreshed order with invoice, got %#v", updated)
	}
	if len(publisher.events) != 1 || publisher.events[0].Type != "order.status.changed" {
		t.Fatalf("unexpected events %#v", publisher.events)
	}
}

func TestUpdateStatusInvoiceFailureDoesNotFailTransition(t *testing.T) {
	stored := baseOrder()
	repo := &stubOrderRepository{
		findFn: func(ctx context.Context, orderID string) (domain.Order, error) {
			return stored, nil
		},
	}
	invoices := &stubInvoiceOrchestrator{
		ensureFn: func(ctx context.Context, orderID string) (domain.Order, error) {
			return domain.Order{}, errors.New("renderer exploded")
		},
	}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: repo, Invoices: invoices})

	updated, err := svc.UpdateStatus(context.Background(), "ord-1", "processing")
	if err != nil {
		t.Fatalf("transition must survive invoice failure, got %v", err)
	}
	if updated.Status != domain.OrderStatusProcessing {
		t.Fatalf("expected processing, got %s", updated.Status)
	}
}

func TestUpdateStatusMapsRepositoryErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"not found", repoError{notFound: true}, ErrOrderNotFound},
		{"version conflict", repoError{conflict: true}, ErrOrderConflict},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stored := baseOrder()
			repo := &stubOrderRepository{
				findFn: func(ctx context.Context, orderID string) (domain.Order, error) {
					return stored, nil
				},
				updateFn: func(ctx context.Context, order domain.Order) (domain.Order, error) {
					return domain.Order{}, tc.err
				},
			}
			svc := newTestOrderService(t, OrderServiceDeps{Orders: repo})

			_, err := svc.UpdateStatus(context.Background(), "ord-1", "processing")
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestMarkAsPaidSettlesPickupOrder(t *testing.T) {
	stored := baseOrder()
	stored.PaymentMethod = domain.PaymentMethodCash
	stored.ShippingMethod = domain.ShippingMethodPickup

	repo := &stubOrderRepository{
		findFn: func(ctx context.Context, orderID string) (domain.Order, error) {
			return stored, nil
		},
	}
	notifier := &stubNotifier{}
	publisher := &stubEventPublisher{}
	svc := newTestOrderService(t, OrderServiceDeps{
		Orders:   repo,
		Notifier: notifier,
		Events:   publisher,
	})

	updated, err := svc.MarkAsPaid(context.Background(), "ord-1")
	if err != nil {
		t.Fatalf("mark as paid: %v", err)
	}
	if updated.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("expected paid, got %s", updated.PaymentStatus)
	}
	if updated.Status != domain.OrderStatusProcessing {
		t.Fatalf("expected processing, got %s", updated.Status)
	}
	if len(repo.updateCalls) != 1 {
		t.Fatalf("payment and status must land in one write, got %d", len(repo.updateCalls))
	}
	if len(notifier.payments) != 1 {
		t.Fatalf("expected payment confirmation, got %v", notifier.payments)
	}
	if len(publisher.events) != 1 || publisher.events[0].Type != "order.paid" {
		t.Fatalf("unexpected events %#v", publisher.events)
	}
}

func TestMarkAsPaidRejectsIneligibleOrders(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*domain.Order)
		message string
	}{
		{"online payment", func(o *domain.Order) {
			o.PaymentMethod = domain.PaymentMethodIdeal
			o.ShippingMethod = domain.ShippingMethodPickup
		}, "cash/pin"},
		{"shipped delivery", func(o *domain.Order) {
			o.PaymentMethod = domain.PaymentMethodCash
			o.ShippingMethod = "PostNL"
		}, "cash/pin"},
		{"already paid", func(o *domain.Order) {
			o.PaymentMethod = domain.PaymentMethodPin
			o.ShippingMethod = domain.ShippingMethodPickup
			o.PaymentStatus = domain.PaymentStatusPaid
		}, "already paid"},
		{"cancelled order", func(o *domain.Order) {
			o.PaymentMethod = domain.PaymentMethodCash
			o.ShippingMethod = domain.ShippingMethodPickup
			o.Status = domain.OrderStatusCancelled
		}, "cancelled"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stored := baseOrder()
			tc.mutate(&stored)
			repo := &stubOrderRepository{
				findFn: func(ctx context.Context, orderID string) (domain.Order, error) {
					return stored, nil
				},
			}
			svc := newTestOrderService(t, OrderServiceDeps{Orders: repo})

			_, err := svc.MarkAsPaid(context.Background(), "ord-1")
			if !errors.Is(err, ErrOrderInvalidState) {
				t.Fatalf("expected invalid state, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.message) {
				t.Fatalf("expected %q in error, got %v", tc.message, err)
			}
			if len(repo.updateCalls) != 0 {
				t.Fatal("expected no write for rejected settlement")
			}
		})
	}
}

func TestMarkAsPaidPersistFailureRevertsNothing(t *testing.T) {
	stored := baseOrder()
	stored.PaymentMethod = domain.PaymentMethodPin
	stored.ShippingMethod = domain.ShippingMethodPickup

	repo := &stubOrderRepository{
		findFn: func(ctx context.Context, orderID string) (domain.Order, error) {
			return stored, nil
		},
		updateFn: func(ctx context.Context, order domain.Order) (domain.Order, error) {
			return domain.Order{}, repoError{unavailable: true}
		},
	}
	notifier := &stubNotifier{}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: repo, Notifier: notifier})

	_, err := svc.MarkAsPaid(context.Background(), "ord-1")
	if err == nil {
		t.Fatal("expected persistence error")
	}
	if len(notifier.payments) != 0 {
		t.Fatal("expected no payment confirmation after failed persist")
	}
	if stored.PaymentStatus != domain.PaymentStatusOpen {
		t.Fatal("stored order must stay untouched")
	}
}

func TestNotifyCreatedSendsCustomerAndAdminMail(t *testing.T) {
	stored := baseOrder()
	repo := &stubOrderRepository{
		findFn: func(ctx context.Context, orderID string) (domain.Order, error) {
			return stored, nil
		},
	}
	notifier := &stubNotifier{}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: repo, Notifier: notifier})

	if err := svc.NotifyCreated(context.Background(), "ord-1"); err != nil {
		t.Fatalf("notify created: %v", err)
	}
	if len(notifier.confirmations) != 1 || len(notifier.adminNotices) != 1 {
		t.Fatalf("expected both mails, got %v / %v", notifier.confirmations, notifier.adminNotices)
	}
}

func TestNotifyCreatedSwallowsMailFailures(t *testing.T) {
	stored := baseOrder()
	repo := &stubOrderRepository{
		findFn: func(ctx context.Context, orderID string) (domain.Order, error) {
			return stored, nil
		},
	}
	notifier := &stubNotifier{err: errors.New("smtp down")}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: repo, Notifier: notifier})

	if err := svc.NotifyCreated(context.Background(), "ord-1"); err != nil {
		t.Fatalf("mail failure must not propagate, got %v", err)
	}
}

func TestGetOrderRequiresID(t *testing.T) {
	svc := newTestOrderService(t, OrderServiceDeps{Orders: &stubOrderRepository{}})

	_, err := svc.GetOrder(context.Background(), "  ")
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
