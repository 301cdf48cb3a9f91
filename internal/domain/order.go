package domain

import (
	"strings"
	"time"
)

// OrderStatus is the canonical fulfillment status of an order.
type OrderStatus string

const (
	OrderStatusNew        OrderStatus = "new"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// PaymentStatus tracks the payment sub-state, orthogonal to OrderStatus.
type PaymentStatus string

const (
	PaymentStatusOpen   PaymentStatus = "open"
	PaymentStatusPaid   PaymentStatus = "paid"
	PaymentStatusFailed PaymentStatus = "failed"
)

// Payment methods accepted by the shop.
const (
	PaymentMethodCash    = "cash"
	PaymentMethodPin     = "pin"
	PaymentMethodIdeal   = "ideal"
	PaymentMethodInvoice = "invoice"
)

// ShippingMethodPickup marks orders collected at the counter instead of shipped.
const ShippingMethodPickup = "afhalen"

// DefaultPaymentTermDays applies when an invoice order carries no explicit term.
const DefaultPaymentTermDays = 14

// Historical records mix Dutch statuses with the English aliases the old
// storefront wrote. Everything funnels through one table at the read boundary.
var orderStatusAliases = map[string]OrderStatus{
	"new":            OrderStatusNew,
	"nieuw":          OrderStatusNew,
	"pending":        OrderStatusNew,
	"processing":     OrderStatusProcessing,
	"in_behandeling": OrderStatusProcessing,
	"verwerken":      OrderStatusProcessing,
	"shipped":        OrderStatusShipped,
	"verzonden":      OrderStatusShipped,
	"completed":      OrderStatusCompleted,
	"afgerond":       OrderStatusCompleted,
	"delivered":      OrderStatusCompleted,
	"cancelled":      OrderStatusCancelled,
	"canceled":       OrderStatusCancelled,
	"geannuleerd":    OrderStatusCancelled,
}

var paymentStatusAliases = map[string]PaymentStatus{
	"open":    PaymentStatusOpen,
	"paid":    PaymentStatusPaid,
	"betaald": PaymentStatusPaid,
	"failed":  PaymentStatusFailed,
	"mislukt": PaymentStatusFailed,
}

// NormalizeOrderStatus maps raw stored values, including legacy aliases, to the
// canonical status. The second return reports whether the value was recognised.
func NormalizeOrderStatus(raw string) (OrderStatus, bool) {
	status, ok := orderStatusAliases[strings.ToLower(strings.TrimSpace(raw))]
	return status, ok
}

// NormalizePaymentStatus maps raw stored payment values to the canonical status.
func NormalizePaymentStatus(raw string) (PaymentStatus, bool) {
	status, ok := paymentStatusAliases[strings.ToLower(strings.TrimSpace(raw))]
	return status, ok
}

// IsTerminal reports whether no further transitions may leave the status.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

var orderStatusTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusNew:        {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusCompleted, OrderStatusCancelled},
}

// CanTransition reports whether the status may move to target. Statuses only
// advance forward; cancellation is reachable from every non-terminal state.
func (s OrderStatus) CanTransition(target OrderStatus) bool {
	if s.IsTerminal() {
		return false
	}
	for _, candidate := range orderStatusTransitions[s] {
		if candidate == target {
			return true
		}
	}
	return false
}

// OrderItem is a single invoice line on an order.
type OrderItem struct {
	Name        string  `firestore:"name"`
	UnitPrice   float64 `firestore:"unitPrice"`
	Quantity    int     `firestore:"quantity"`
	VATCategory string  `firestore:"vatCategory,omitempty"`
}

// Customer is the embedded snapshot taken at checkout. Shipping fields are
// optional and fall back to the billing fields when blank.
type Customer struct {
	Name      string `firestore:"name,omitempty"`
	Company   string `firestore:"company,omitempty"`
	Email     string `firestore:"email,omitempty"`
	Address   string `firestore:"address,omitempty"`
	PostCode  string `firestore:"postCode,omitempty"`
	City      string `firestore:"city,omitempty"`
	Country   string `firestore:"country,omitempty"`
	VATNumber string `firestore:"vatNumber,omitempty"`

	ShippingName     string `firestore:"shippingName,omitempty"`
	ShippingAddress  string `firestore:"shippingAddress,omitempty"`
	ShippingPostCode string `firestore:"shippingPostCode,omitempty"`
	ShippingCity     string `firestore:"shippingCity,omitempty"`
	ShippingCountry  string `firestore:"shippingCountry,omitempty"`
}

// Order is the canonical order record. All monetary amounts are EUR and
// pre-rounded to two decimals when the order is written.
type Order struct {
	ID               string        `firestore:"-"`
	OrderNumber      string        `firestore:"orderNumber"`
	Status           OrderStatus   `firestore:"status"`
	PaymentStatus    PaymentStatus `firestore:"paymentStatus"`
	PaymentMethod    string        `firestore:"paymentMethod,omitempty"`
	PaymentTermsDays int           `firestore:"paymentTermsDays,omitempty"`
	DueAt            *time.Time    `firestore:"dueAt,omitempty"`
	ShippingMethod   string        `firestore:"shippingMethod,omitempty"`

	Items        []OrderItem `firestore:"items"`
	Subtotal     float64     `firestore:"subtotal"`
	VATAmount    float64     `firestore:"vatAmount"`
	ShippingCost float64     `firestore:"shippingCost"`
	Total        float64     `firestore:"total"`

	Customer Customer `firestore:"customer"`

	DealerGroup       string  `firestore:"dealerGroup,omitempty"`
	DealerDiscountPct float64 `firestore:"dealerDiscountPct,omitempty"`

	InvoiceNumber string     `firestore:"invoiceNumber,omitempty"`
	InvoiceURL    string     `firestore:"invoiceUrl,omitempty"`
	InvoiceSentAt *time.Time `firestore:"invoiceSentDate,omitempty"`

	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`

	// Version guards against lost updates on the last-write-wins store.
	Version int64 `firestore:"version"`
}

// HasInvoice reports whether an invoice number and document were already issued.
func (o Order) HasInvoice() bool {
	return strings.TrimSpace(o.InvoiceNumber) != "" && strings.TrimSpace(o.InvoiceURL) != ""
}

// DueDate resolves the payment due date: the explicit dueAt when present,
// otherwise createdAt plus the payment term (14 days when unset).
func (o Order) DueDate() time.Time {
	if o.DueAt != nil && !o.DueAt.IsZero() {
		return *o.DueAt
	}
	days := o.PaymentTermsDays
	if days <= 0 {
		days = DefaultPaymentTermDays
	}
	return o.CreatedAt.AddDate(0, 0, days)
}

// RequiresDueDateNote reports whether the rendered invoice must carry the
// payment-term note: on-account orders that have not been paid yet.
func (o Order) RequiresDueDateNote() bool {
	return o.PaymentMethod == PaymentMethodInvoice && o.PaymentStatus != PaymentStatusPaid
}

// EligibleForDirectPayment reports whether the order may be settled at the
// counter: cash or pin orders collected locally.
func (o Order) EligibleForDirectPayment() bool {
	if o.PaymentMethod != PaymentMethodCash && o.PaymentMethod != PaymentMethodPin {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(o.ShippingMethod), ShippingMethodPickup)
}

// ShippingRecipient returns the shipping address fields, falling back to the
// billing snapshot where the explicit shipping fields are blank.
func (c Customer) ShippingRecipient() (name, address, postCode, city, country string) {
	name = fallback(c.ShippingName, c.Name)
	address = fallback(c.ShippingAddress, c.Address)
	postCode = fallback(c.ShippingPostCode, c.PostCode)
	city = fallback(c.ShippingCity, c.City)
	country = fallback(c.ShippingCountry, c.Country)
	return
}

func fallback(primary, secondary string) string {
	if strings.TrimSpace(primary) != "" {
		return primary
	}
	return secondary
}
