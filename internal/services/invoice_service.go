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
	"github.com/herbie65/alloygator-nl-sub001/internal/platform/storage"
	"github.com/herbie65/alloygator-nl-sub001/internal/repositories"
)

// ErrInvoiceRenderFailed marks renderer failures. The sequence is only
// advanced after a successful probe render, so a failing renderer never
// spends an invoice number.
var ErrInvoiceRenderFailed = errors.New("invoice: render failed")

// InvoiceServiceDeps bundles collaborators for the invoice orchestrator.
type InvoiceServiceDeps struct {
	Orders   repositories.OrderRepository
	Sequence SequenceService
	Renderer InvoiceRenderer
	Archive  repositories.InvoiceArchive
	Notifier OrderNotifier
	// PathPrefix is the object path prefix for stored invoices, "invoices"
	// by default.
	PathPrefix string
	Clock      func() time.Time
}

type invoiceService struct {
	orders     repositories.OrderRepository
	sequence   SequenceService
	renderer   InvoiceRenderer
	archive    repositories.InvoiceArchive
	notifier   OrderNotifier
	pathPrefix string
	clock      func() time.Time
}

// NewInvoiceService wires the idempotent invoice orchestrator.
func NewInvoiceService(deps InvoiceServiceDeps) (InvoiceService, error) {
	if deps.Orders == nil {
		return nil, errors.New("invoice service: order repository is required")
	}
	if deps.Sequence == nil {
		return nil, errors.New("invoice service: sequence service is required")
	}
	if deps.Renderer == nil {
		return nil, errors.New("invoice service: renderer is required")
	}
	if deps.Archive == nil {
		return nil, errors.New("invoice service: archive is required")
	}

	prefix := strings.Trim(strings.TrimSpace(deps.PathPrefix), "/")
	if prefix == "" {
		prefix = "invoices"
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	return &invoiceService{
		orders:     deps.Orders,
		sequence:   deps.Sequence,
		renderer:   deps.Renderer,
		archive:    deps.Archive,
		notifier:   deps.Notifier,
		pathPrefix: prefix,
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

func (s *invoiceService) EnsureInvoice(ctx context.Context, orderID string) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}

	// Fast path: an order never receives a second invoice number, no matter
	// how often the orchestrator runs.
	if order.HasInvoice() {
		return order, nil
	}

	if !domain.TotalsConsistent(order) {
		return domain.Order{}, fmt.Errorf("%w: order %s totals do not add up", ErrOrderInvalidInput, orderID)
	}

	// Probe render before touching the sequence. A broken renderer must not
	// burn a number that can never be reissued.
	if _, err := s.renderer.Render(order); err != nil {
		return domain.Order{}, fmt.Errorf("%w: %v", ErrInvoiceRenderFailed, err)
	}

	number, err := s.sequence.NextInvoiceNumber(ctx)
	if err != nil {
		return domain.Order{}, fmt.Errorf("invoice: allocate number: %w", err)
	}

	order.InvoiceNumber = number
	pdf, err := s.renderer.Render(order)
	if err != nil {
		// The number is spent; gaps are accepted, reuse is not.
		return domain.Order{}, fmt.Errorf("%w: %v", ErrInvoiceRenderFailed, err)
	}

	objectPath, err := storage.BuildInvoicePath(storage.InvoicePathParams{
		Prefix:        s.pathPrefix,
		InvoiceNumber: number,
		OrderNumber:   order.OrderNumber,
	})
	if err != nil {
		return domain.Order{}, fmt.Errorf("invoice: build path: %w", err)
	}

	url, err := s.archive.Store(ctx, objectPath, pdf)
	if err != nil {
		return domain.Order{}, fmt.Errorf("invoice: store document: %w", err)
	}

	order.InvoiceURL = url
	order.UpdatedAt = s.clock()

	persisted, err := s.orders.Update(ctx, order)
	if err != nil {
		// The next attempt re-enters allocation; the unrecorded number stays
		// unused.
		return domain.Order{}, s.mapRepositoryError(err)
	}

	persisted = s.deliverInvoice(ctx, persisted, pdf)
	return persisted, nil
}

// deliverInvoice emails the document to customer and admin and records the
// sent date. Everything here is best effort: a delivery failure never undoes
// the allocation.
func (s *invoiceService) deliverInvoice(ctx context.Context, order domain.Order, pdf []byte) domain.Order {
	if s.notifier == nil {
		return order
	}

	if err := s.notifier.SendInvoice(ctx, order, pdf); err != nil {
		s.logger(ctx).Warn("invoice.deliver.failed",
			zap.String("orderId", order.ID),
			zap.String("invoiceNumber", order.InvoiceNumber),
			zap.Error(err))
		return order
	}

	now := s.clock()
	order.InvoiceSentAt = &now
	persisted, err := s.orders.Update(ctx, order)
	if err != nil {
		s.logger(ctx).Warn("invoice.sent_date.persist.failed",
			zap.String("orderId", order.ID), zap.Error(err))
		return order
	}
	return persisted
}

func (s *invoiceService) mapRepositoryError(err error) error {
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
			return fmt.Errorf("invoice: repository unavailable: %w", err)
		}
	}
	return err
}

func (s *invoiceService) logger(ctx context.Context) *zap.Logger {
	return requestctx.Logger(ctx)
}
