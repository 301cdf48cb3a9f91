package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/herbie65/alloygator-nl-sub001/internal/domain"
	"github.com/herbie65/alloygator-nl-sub001/internal/platform/httpx"
	"github.com/herbie65/alloygator-nl-sub001/internal/platform/requestctx"
	"github.com/herbie65/alloygator-nl-sub001/internal/services"
)

const maxStatusBodySize = 4 * 1024

var (
	errEmptyBody    = errors.New("request body is required")
	errBodyTooLarge = errors.New("request body too large")
)

type updateStatusRequest struct {
	Status string `json:"status"`
}

// OrderHandlers exposes the order workflow endpoints.
type OrderHandlers struct {
	orders   services.OrderService
	invoices services.InvoiceService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(orders services.OrderService, invoices services.InvoiceService) *OrderHandlers {
	return &OrderHandlers{
		orders:   orders,
		invoices: invoices,
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}/status", h.updateStatus)
	r.Post("/{orderID}:markPaid", h.markPaid)
	r.Post("/{orderID}/invoice", h.ensureInvoice)
	r.Post("/{orderID}:notifyCreated", h.notifyCreated)
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, orderID, ok := h.requireOrderID(ctx, w, r)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, orderID, ok := h.requireOrderID(ctx, w, r)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxStatusBodySize)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		}
		return
	}

	var req updateStatusRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}
	if strings.TrimSpace(req.Status) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.UpdateStatus(ctx, orderID, req.Status)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) markPaid(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, orderID, ok := h.requireOrderID(ctx, w, r)
	if !ok {
		return
	}

	order, err := h.orders.MarkAsPaid(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) ensureInvoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, orderID, ok := h.requireOrderID(ctx, w, r)
	if !ok {
		return
	}
	if h.invoices == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invoice_service_unavailable", "invoice service unavailable", http.StatusServiceUnavailable))
		return
	}

	order, err := h.invoices.EnsureInvoice(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) notifyCreated(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, orderID, ok := h.requireOrderID(ctx, w, r)
	if !ok {
		return
	}

	if err := h.orders.NotifyCreated(ctx, orderID); err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// requireOrderID resolves the path parameter and scopes the context logger to
// the order so service-side log lines carry the order ID.
func (h *OrderHandlers) requireOrderID(ctx context.Context, w http.ResponseWriter, r *http.Request) (context.Context, string, bool) {
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return ctx, "", false
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return ctx, "", false
	}
	return requestctx.WithOrder(ctx, orderID), orderID, true
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput), errors.Is(err, services.ErrSequenceInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrInvoiceRenderFailed):
		httpx.WriteError(ctx, w, httpx.NewError("invoice_render_failed", "failed to render invoice", http.StatusUnprocessableEntity))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderPayload struct {
	ID               string             `json:"id"`
	OrderNumber      string             `json:"order_number"`
	Status           string             `json:"status"`
	PaymentStatus    string             `json:"payment_status"`
	PaymentMethod    string             `json:"payment_method,omitempty"`
	ShippingMethod   string             `json:"shipping_method,omitempty"`
	Items            []orderItemPayload `json:"items"`
	Subtotal         float64            `json:"subtotal"`
	VATAmount        float64            `json:"vat_amount"`
	ShippingCost     float64            `json:"shipping_cost"`
	Total            float64            `json:"total"`
	Customer         customerPayload    `json:"customer"`
	InvoiceNumber    string             `json:"invoice_number,omitempty"`
	InvoiceURL       string             `json:"invoice_url,omitempty"`
	InvoiceSentAt    string             `json:"invoice_sent_at,omitempty"`
	DueAt            string             `json:"due_at,omitempty"`
	PaymentTermsDays int                `json:"payment_terms_days,omitempty"`
	CreatedAt        string             `json:"created_at"`
	UpdatedAt        string             `json:"updated_at,omitempty"`
	Version          int64              `json:"version"`
}

type orderItemPayload struct {
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unit_price"`
	Quantity  int     `json:"quantity"`
}

type customerPayload struct {
	Name     string `json:"name"`
	Company  string `json:"company,omitempty"`
	Email    string `json:"email,omitempty"`
	Address  string `json:"address,omitempty"`
	PostCode string `json:"post_code,omitempty"`
	City     string `json:"city,omitempty"`
	Country  string `json:"country,omitempty"`
}

func buildOrderPayload(order domain.Order) orderPayload {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemPayload{
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		})
	}

	payload := orderPayload{
		ID:               order.ID,
		OrderNumber:      order.OrderNumber,
		Status:           string(order.Status),
		PaymentStatus:    string(order.PaymentStatus),
		PaymentMethod:    order.PaymentMethod,
		ShippingMethod:   order.ShippingMethod,
		Items:            items,
		Subtotal:         order.Subtotal,
		VATAmount:        order.VATAmount,
		ShippingCost:     order.ShippingCost,
		Total:            order.Total,
		InvoiceNumber:    order.InvoiceNumber,
		InvoiceURL:       order.InvoiceURL,
		PaymentTermsDays: order.PaymentTermsDays,
		CreatedAt:        formatTimestamp(order.CreatedAt),
		UpdatedAt:        formatTimestamp(order.UpdatedAt),
		Version:          order.Version,
		Customer: customerPayload{
			Name:     order.Customer.Name,
			Company:  order.Customer.Company,
			Email:    order.Customer.Email,
			Address:  order.Customer.Address,
			PostCode: order.Customer.PostCode,
			City:     order.Customer.City,
			Country:  order.Customer.Country,
		},
	}
	if order.DueAt != nil {
		payload.DueAt = formatTimestamp(*order.DueAt)
	}
	if order.InvoiceSentAt != nil {
		payload.InvoiceSentAt = formatTimestamp(*order.InvoiceSentAt)
	}
	return payload
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
