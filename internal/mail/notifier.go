// Package mail sends transactional order mail over SMTP. Every send is best
// effort from the caller's point of view; errors are returned for logging
// but must never fail the operation that triggered them.
package mail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	gomail "gopkg.in/gomail.v2"

	"github.com/herbie65/alloygator-nl-sub001/internal/domain"
	"github.com/herbie65/alloygator-nl-sub001/internal/invoice"
)

// ErrNotifierInvalidInput indicates a send was requested without the data it
// needs, such as a recipient address.
var ErrNotifierInvalidInput = errors.New("mail: invalid input")

// Dialer sends assembled messages. *gomail.Dialer satisfies it.
type Dialer interface {
	DialAndSend(messages ...*gomail.Message) error
}

// NotifierDeps wires the notifier.
type NotifierDeps struct {
	Dialer      Dialer
	FromAddress string
	FromName    string
	AdminEmail  string
}

// Notifier delivers the order mail flow: confirmation, admin alert, status
// updates, payment confirmation and invoice delivery.
type Notifier struct {
	dialer      Dialer
	fromAddress string
	fromName    string
	adminEmail  string
}

// NewDialer builds the SMTP dialer from transport settings.
func NewDialer(host string, port int, username, password string) *gomail.Dialer {
	return gomail.NewDialer(host, port, username, password)
}

// NewNotifier constructs a Notifier.
func NewNotifier(deps NotifierDeps) (*Notifier, error) {
	if deps.Dialer == nil {
		return nil, fmt.Errorf("mail: dialer is required")
	}
	if strings.TrimSpace(deps.FromAddress) == "" {
		return nil, fmt.Errorf("mail: from address is required")
	}
	return &Notifier{
		dialer:      deps.Dialer,
		fromAddress: deps.FromAddress,
		fromName:    deps.FromName,
		adminEmail:  deps.AdminEmail,
	}, nil
}

// SendOrderConfirmation mails the customer that the order was received.
func (n *Notifier) SendOrderConfirmation(ctx context.Context, order domain.Order) error {
	subject := fmt.Sprintf("Bevestiging van uw bestelling %s", order.OrderNumber)
	return n.send(ctx, order.Customer.Email, subject, confirmationBody(order), nil, "")
}

// SendAdminOrderNotification alerts the back office about a new order.
func (n *Notifier) SendAdminOrderNotification(ctx context.Context, order domain.Order) error {
	subject := fmt.Sprintf("Nieuwe bestelling %s", order.OrderNumber)
	return n.send(ctx, n.adminEmail, subject, adminBody(order), nil, "")
}

// SendStatusUpdate mails the customer that the order moved to a new status.
func (n *Notifier) SendStatusUpdate(ctx context.Context, order domain.Order, previous domain.OrderStatus) error {
	subject := fmt.Sprintf("Status van uw bestelling %s", order.OrderNumber)
	return n.send(ctx, order.Customer.Email, subject, statusBody(order, previous), nil, "")
}

// SendPaymentConfirmation mails the customer that payment was received.
func (n *Notifier) SendPaymentConfirmation(ctx context.Context, order domain.Order) error {
	subject := fmt.Sprintf("Betaling ontvangen voor bestelling %s", order.OrderNumber)
	return n.send(ctx, order.Customer.Email, subject, paymentBody(order), nil, "")
}

// SendInvoice mails the invoice PDF to the customer with a copy to the admin
// inbox when one is configured.
func (n *Notifier) SendInvoice(ctx context.Context, order domain.Order, pdf []byte) error {
	if len(pdf) == 0 {
		return fmt.Errorf("%w: empty invoice document", ErrNotifierInvalidInput)
	}
	subject := fmt.Sprintf("Factuur %s", invoiceReference(order))
	attachment := fmt.Sprintf("factuur-%s.pdf", invoiceReference(order))
	if err := n.send(ctx, order.Customer.Email, subject, invoiceBody(order), pdf, attachment); err != nil {
		return err
	}
	if strings.TrimSpace(n.adminEmail) == "" || strings.EqualFold(n.adminEmail, order.Customer.Email) {
		return nil
	}
	return n.send(ctx, n.adminEmail, subject, invoiceBody(order), pdf, attachment)
}

func (n *Notifier) send(ctx context.Context, to, subject, body string, attachment []byte, attachmentName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("%w: no recipient address", ErrNotifierInvalidInput)
	}

	m := gomail.NewMessage()
	m.SetAddressHeader("From", n.fromAddress, n.fromName)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)
	if len(attachment) > 0 {
		m.Attach(attachmentName, gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := io.Copy(w, bytes.NewReader(attachment))
			return err
		}))
	}

	if err := n.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("mail: send %q to %s: %w", subject, to, err)
	}
	return nil
}

func invoiceReference(order domain.Order) string {
	if strings.TrimSpace(order.InvoiceNumber) != "" {
		return order.InvoiceNumber
	}
	return order.OrderNumber
}

func confirmationBody(order domain.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Beste %s,\n\n", salutation(order.Customer))
	fmt.Fprintf(&b, "Bedankt voor uw bestelling %s van %s.\n\n", order.OrderNumber, order.CreatedAt.Format("02-01-2006"))
	writeOrderLines(&b, order)
	b.WriteString("\nWij gaan direct voor u aan de slag.\n\n")
	b.WriteString(signature)
	return b.String()
}

func adminBody(order domain.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Nieuwe bestelling %s van %s.\n\n", order.OrderNumber, order.Customer.Name)
	writeOrderLines(&b, order)
	fmt.Fprintf(&b, "\nBetaalwijze: %s\n", order.PaymentMethod)
	fmt.Fprintf(&b, "Verzendwijze: %s\n", order.ShippingMethod)
	return b.String()
}

func statusBody(order domain.Order, previous domain.OrderStatus) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Beste %s,\n\n", salutation(order.Customer))
	fmt.Fprintf(&b, "De status van uw bestelling %s is gewijzigd van %s naar %s.\n\n",
		order.OrderNumber, statusLabel(previous), statusLabel(order.Status))
	if order.Status == domain.OrderStatusShipped {
		b.WriteString("Uw bestelling is onderweg.\n\n")
	}
	b.WriteString(signature)
	return b.String()
}

func paymentBody(order domain.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Beste %s,\n\n", salutation(order.Customer))
	fmt.Fprintf(&b, "Wij hebben uw betaling van %s voor bestelling %s ontvangen.\n\n",
		invoice.FormatAmount(order.Total), order.OrderNumber)
	b.WriteString(signature)
	return b.String()
}

func invoiceBody(order domain.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Beste %s,\n\n", salutation(order.Customer))
	fmt.Fprintf(&b, "In de bijlage vindt u factuur %s voor bestelling %s.\n\n",
		invoiceReference(order), order.OrderNumber)
	if order.RequiresDueDateNote() {
		fmt.Fprintf(&b, "%s.\n\n", invoice.DueDateNote(order))
	}
	b.WriteString(signature)
	return b.String()
}

func writeOrderLines(b *strings.Builder, order domain.Order) {
	for _, item := range order.Items {
		fmt.Fprintf(b, "  %dx %s  %s\n", item.Quantity, item.Name, invoice.FormatAmount(item.UnitPrice))
	}
	fmt.Fprintf(b, "\nTotaal: %s\n", invoice.FormatAmount(order.Total))
}

func salutation(c domain.Customer) string {
	if strings.TrimSpace(c.Name) != "" {
		return c.Name
	}
	return "klant"
}

func statusLabel(s domain.OrderStatus) string {
	switch s {
	case domain.OrderStatusNew:
		return "nieuw"
	case domain.OrderStatusProcessing:
		return "in behandeling"
	case domain.OrderStatusShipped:
		return "verzonden"
	case domain.OrderStatusCompleted:
		return "afgerond"
	case domain.OrderStatusCancelled:
		return "geannuleerd"
	default:
		return string(s)
	}
}

const signature = "Met vriendelijke groet,\nAlloyGator Nederland"
