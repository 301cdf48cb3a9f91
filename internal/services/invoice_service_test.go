package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/herbie65/alloygator-nl-sub001/internal/domain"
)

type stubRenderer struct {
	renderFn func(domain.Order) ([]byte, error)
	calls    []domain.Order
}

func (s *stubRenderer) Render(order domain.Order) ([]byte, error) {
	s.calls = append(s.calls, order)
	if s.renderFn != nil {
		return s.renderFn(order)
	}
	return []byte("%PDF-stub"), nil
}

type stubSequence struct {
	mu     sync.Mutex
	nextFn func(context.Context) (string, error)
	calls  int
}

func (s *stubSequence) NextInvoiceNumber(ctx context.Context) (string, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.nextFn != nil {
		return s.nextFn(ctx)
	}
	return "2025-00007", nil
}

type stubArchive struct {
	storeFn func(context.Context, string, []byte) (string, error)
	paths   []string
}

func (s *stubArchive) Store(ctx context.Context, objectPath string, pdf []byte) (string, error) {
	s.paths = append(s.paths, objectPath)
	if s.storeFn != nil {
		return s.storeFn(ctx, objectPath, pdf)
	}
	return "/" + objectPath, nil
}

func newTestInvoiceService(t *testing.T, deps InvoiceServiceDeps) InvoiceService {
	t.Helper()
	if deps.Clock == nil {
		deps.Clock = fixedClock(time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC))
	}
	svc, err := NewInvoiceService(deps)
	if err != nil {
		t.Fatalf("new invoice service: %v", err)
	}
	return svc
}

func TestEnsureInvoiceHappyPath(t *testing.T) {
	stored := baseOrder()
	repo := &stubOrderRepository{
		findFn: func(ctx context.Context, orderID string) (domain.Order, error) {
			return stored, nil
		},
	}
	renderer := &stubRenderer{}
	sequence := &stubSequence{}
	archive := &stubArchive{}
	svc := newTestInvoiceService(t, InvoiceServiceDeps{
		Orders:   repo,
		Sequence: sequence,
		Renderer: renderer,
		Archive:  archive,
	})

	updated, err := svc.EnsureInvoice(context.Background(), "ord-1")
	if err != nil {
		t.Fatalf("ensure invoice: %v", err)
	}
	if updated.InvoiceNumber != "2025-00007" {
		t.Fatalf("expected invoice number, got %q", updated.InvoiceNumber)
	}
	if updated.InvoiceURL != "/invoices/factuur-2025-00007.pdf" {
		t.Fatalf("unexpected invoice url %q", updated.InvoiceURL)
	}
	if len(archive.paths) != 1 || archive.paths[0] != "invoices/factuur-2025-00007.pdf" {
		t.Fatalf("unexpected archive paths %v", archive.paths)
	}
	// Probe render without a number, then the real render with it.
	if len(renderer.calls) != 2 {
		t.Fatalf("expected two renders, got %d", len(renderer.calls))
	}
	if renderer.calls[0].InvoiceNumber != "" || renderer.calls[1].InvoiceNumber != "2025-00007" {
		t.Fatalf("unexpected render inputs %q / %q", renderer.calls[0].InvoiceNumber, renderer.calls[1].InvoiceNumber)
	}
}

func TestEnsureInvoiceIsIdempotent(t *testing.T) {
	stored := baseOrder()
	stored.InvoiceNumber = "2025-00003"
	stored.InvoiceURL = "/invoices/factuur-2025-00003.pdf"

	repo := &stubOrderRepository{
		findFn: func(ctx context.Context, orderID string) (domain.Order, error) {
			return stored, nil
		},
	}
	renderer := &stubRenderer{}
	sequence := &stubSequence{}
	svc := newTestInvoiceService(t, InvoiceServiceDeps{
		Orders:   repo,
		Sequence: sequence,
		Renderer: renderer,
		Archive:  &stubArchive{},
	})

	for i := 0; i < 3; i++ {
		order, err := svc.EnsureInvoice(context.Background(), "ord-1")
		if err != nil {
			t.Fatalf("ensure invoice run %d: %v", i, err)
		}
		if order.InvoiceNumber != "2025-00003" {
			t.Fatalf("run %d: expected existing number kept, got %q", i, order.InvoiceNumber)
		}
	}
	if sequence.calls != 0 {
		t.Fatalf("expected no sequence allocation, got %d", sequence.calls)
	}
	if len(renderer.calls) != 0 {
		t.Fatalf("expected no renders, got %d", len(renderer.calls))
	}
	if len(repo.updateCalls) != 0 {
		t.Fatalf("expected no writes, got %d", len(repo.updateCalls))
	}
}

func TestEnsureInvoiceProbeFailureSpendsNoNumber(t *testing.T) {
	stored := baseOrder()
	repo := &stubOrderRepository{
		findFn: func(ctx context.Context, orderID string) (domain.Order, error) {
			return stored, nil
		},
	}
	renderer := &stubRenderer{
		renderFn: func(domain.Order) ([]byte, error) {
			return nil, errors.New("layout exploded")
		},
	}
	sequence := &stubSequence{}
	svc := newTestInvoiceService(t, InvoiceServiceDeps{
		Orders:   repo,
		Sequence: sequence,
		Renderer: renderer,
		Archive:  &stubArchive{},
	})

	_, err := svc.EnsureInvoice(context.Background(), "ord-1")
	if !errors.Is(err, ErrInvoiceRenderFailed) {
		t.Fatalf("expected render failure, got %v", err)
	}
	if sequence.calls != 0 {
		t.Fatalf("a failing renderer must not burn a number, got %d allocations", sequence.calls)
	}
}

func TestEnsureInvoiceStoreFailureLeavesOrderUntouched(t *testing.T) {
	stored := baseOrder()
	repo := &stubOrderRepository{
		findFn: func(ctx context.Context, orderID string) (domain.Order, error) {
			return stored, nil
		},
	}
	archive := &stubArchive{
		storeFn: func(context.Context, string, []byte) (string, error) {
			return "", errors.New("bucket unavailable")
		},
	}
	svc := newTestInvoiceService(t, InvoiceServiceDeps{
		Orders:   repo,
		Sequence: &stubSequence{},
		Renderer: &stubRenderer{},
		Archive:  archive,
	})

	_, err := svc.EnsureInvoice(context.Background(), "ord-1")
	if err == nil {
		t.Fatal("expected store failure to propagate")
	}
	if len(repo.updateCalls) != 0 {
		t.Fatal("a failed upload must not merge invoice fields onto the order")
	}
	if stored.InvoiceNumber != "" {
		t.Fatal("stored order must stay untouched")
	}
}

func TestEnsureInvoiceRejectsInconsistentTotals(t *testing.T) {
	stored := baseOrder()
	stored.Total = 999.99

	repo := &stubOrderRepository{
		findFn: func(ctx context.Context, orderID string) (domain.Order, error) {
			return stored, nil
		},
	}
	sequence := &stubSequence{}
	svc := newTestInvoiceService(t, InvoiceServiceDeps{
		Orders:   repo,
		Sequence: sequence,
		Renderer: &stubRenderer{},
		Archive:  &stubArchive{},
	})

	_, err := svc.EnsureInvoice(context.Background(), "ord-1")
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if sequence.calls != 0 {
		t.Fatal("inconsistent totals must not reach allocation")
	}
}

func TestEnsureInvoiceDeliversAndRecordsSentDate(t *testing.T) {
	stored := baseOrder()
	repo := &stubOrderRepository{
		findFn: func(ctx context.Context, orderID string) (domain.Order, error) {
			return stored, nil
		},
	}
	notifier := &stubNotifier{}
	svc := newTestInvoiceService(t, InvoiceServiceDeps{
		Orders:   repo,
		Sequence: &stubSequence{},
		Renderer: &stubRenderer{},
		Archive:  &stubArchive{},
		Notifier: notifier,
	})

	updated, err := svc.EnsureInvoice(context.Background(), "ord-1")
	if err != nil {
		t.Fatalf("ensure invoice: %v", err)
	}
	if len(notifier.invoices) != 1 {
		t.Fatalf("expected invoice delivery, got %v", notifier.invoices)
	}
	if updated.InvoiceSentAt == nil {
		t.Fatal("expected sent date recorded")
	}
	// Invoice merge plus sent-date write.
	if len(repo.updateCalls) != 2 {
		t.Fatalf("expected two writes, got %d", len(repo.updateCalls))
	}
}

func TestEnsureInvoiceDeliveryFailureKeepsInvoice(t *testing.T) {
	stored := baseOrder()
	repo := &stubOrderRepository{
		findFn: func(ctx context.Context, orderID string) (domain.Order, error) {
			return stored, nil
		},
	}
	notifier := &stubNotifier{err: errors.New("smtp down")}
	svc := newTestInvoiceService(t, InvoiceServiceDeps{
		Orders:   repo,
		Sequence: &stubSequence{},
		Renderer: &stubRenderer{},
		Archive:  &stubArchive{},
		Notifier: notifier,
	})

	updated, err := svc.EnsureInvoice(context.Background(), "ord-1")
	if err != nil {
		t.Fatalf("delivery failure must not fail allocation, got %v", err)
	}
	if updated.InvoiceNumber != "2025-00007" {
		t.Fatalf("expected invoice kept, got %q", updated.InvoiceNumber)
	}
	if updated.InvoiceSentAt != nil {
		t.Fatal("expected no sent date after failed delivery")
	}
}

func TestEnsureInvoiceNotFound(t *testing.T) {
	repo := &stubOrderRepository{}
	svc := newTestInvoiceService(t, InvoiceServiceDeps{
		Orders:   repo,
		Sequence: &stubSequence{},
		Renderer: &stubRenderer{},
		Archive:  &stubArchive{},
	})

	_, err := svc.EnsureInvoice(context.Background(), "missing")
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
