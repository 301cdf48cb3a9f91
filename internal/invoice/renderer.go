package invoice

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/herbie65/alloygator-nl-sub001/internal/domain"
)

// Fixed A4 geometry in points and the layout anchors of the invoice page.
const (
	pageWidth  = 595.28
	pageHeight = 841.89

	marginLeft  = 40.0
	marginRight = 555.0

	titleY      = 90.0
	headerY     = 130.0
	lineHeight  = 12.0
	addressY    = 210.0
	addressColX = 320.0

	priceColX    = 460.0
	quantityColX = 540.0
)

const invoiceTitle = "FACTUUR"

// Renderer produces the fixed-layout invoice PDF for an order. It is a pure
// transform: the same order yields the same document.
type Renderer struct {
	templatePath string
}

// Option customises the renderer.
type Option func(*Renderer)

// WithTemplate sets the full-bleed background template image. A missing or
// unreadable file is skipped silently; rendering never fails because of it.
func WithTemplate(path string) Option {
	return func(r *Renderer) {
		r.templatePath = strings.TrimSpace(path)
	}
}

// NewRenderer constructs a Renderer.
func NewRenderer(opts ...Option) *Renderer {
	r := &Renderer{}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Render lays out the invoice for the order and returns the PDF bytes.
// Amounts are pre-rounded upstream; this function only formats them.
func (r *Renderer) Render(order domain.Order) ([]byte, error) {
	pdf := gofpdf.New("P", "pt", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	r.drawBackground(pdf)

	// Title, centered by font metrics.
	pdf.SetFont("Helvetica", "B", 20)
	title := tr(invoiceTitle)
	pdf.Text((pageWidth-pdf.GetStringWidth(title))/2, titleY, title)

	// Header metadata block.
	pdf.SetFont("Helvetica", "", 10)
	y := headerY
	for _, line := range headerLines(order) {
		pdf.Text(marginLeft, y, tr(line))
		y += lineHeight
	}

	// Billing left, shipping right; the lower cursor wins.
	y = addressY
	yLeft := drawLines(pdf, tr, marginLeft, y, billingLines(order.Customer))
	yRight := drawLines(pdf, tr, addressColX, y, shippingLines(order.Customer))
	if yRight > yLeft {
		y = yRight
	} else {
		y = yLeft
	}

	y += 2 * lineHeight
	pdf.Text(marginLeft, y, tr(fmt.Sprintf("Betaalwijze: %s", paymentMethodLabel(order.PaymentMethod))))
	y += lineHeight
	pdf.Text(marginLeft, y, tr(fmt.Sprintf("Verzendwijze: %s", shippingMethodLabel(order.ShippingMethod))))

	y = r.drawItemsTable(pdf, tr, y+2*lineHeight, order.Items)
	y = r.drawTotals(pdf, tr, y+lineHeight, order)

	if order.RequiresDueDateNote() {
		note := tr(DueDateNote(order))
		pdf.SetFont("Helvetica", "I", 10)
		pdf.Text((pageWidth-pdf.GetStringWidth(note))/2, y+2*lineHeight, note)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("invoice: render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// DueDateNote returns the payment-term note printed on unpaid on-account
// invoices, e.g. "Gelieve te betalen voor 15-01-2025".
func DueDateNote(order domain.Order) string {
	return fmt.Sprintf("Gelieve te betalen voor %s", order.DueDate().Format("02-01-2006"))
}

// FormatAmount renders a monetary value the way the invoice does: a euro
// sign and two decimals, no thousands separators.
func FormatAmount(value float64) string {
	return fmt.Sprintf("€%.2f", value)
}

func (r *Renderer) drawBackground(pdf *gofpdf.Fpdf) {
	if r.templatePath == "" {
		return
	}
	data, err := os.ReadFile(r.templatePath)
	if err != nil {
		return
	}
	imageType := strings.TrimPrefix(strings.ToLower(filepath.Ext(r.templatePath)), ".")
	if imageType == "jpeg" {
		imageType = "jpg"
	}
	opts := gofpdf.ImageOptions{ImageType: imageType, ReadDpi: true}
	pdf.RegisterImageOptionsReader("invoice-template", opts, bytes.NewReader(data))
	if pdf.Err() {
		// A corrupt template must not fail the invoice.
		pdf.ClearError()
		return
	}
	pdf.ImageOptions("invoice-template", 0, 0, pageWidth, pageHeight, false, opts, 0, "")
	if pdf.Err() {
		pdf.ClearError()
	}
}

func (r *Renderer) drawItemsTable(pdf *gofpdf.Fpdf, tr func(string) string, y float64, items []domain.OrderItem) float64 {
	pdf.SetFont("Helvetica", "B", 10)
	pdf.Line(marginLeft, y-9, marginRight, y-9)
	pdf.Text(marginLeft, y, tr("Product"))
	textRightAligned(pdf, priceColX, y, tr("prijs"))
	textRightAligned(pdf, quantityColX, y, tr("Aantal"))
	y += lineHeight / 2
	pdf.Line(marginLeft, y, marginRight, y)
	y += lineHeight

	pdf.SetFont("Helvetica", "", 10)
	for _, item := range items {
		pdf.Text(marginLeft, y, tr(item.Name))
		textRightAligned(pdf, priceColX, y, tr(FormatAmount(item.UnitPrice)))
		textRightAligned(pdf, quantityColX, y, fmt.Sprintf("%d", item.Quantity))
		y += lineHeight
	}

	pdf.Line(marginLeft, y, marginRight, y)
	return y + lineHeight
}

func (r *Renderer) drawTotals(pdf *gofpdf.Fpdf, tr func(string) string, y float64, order domain.Order) float64 {
	labelX := priceColX - 60

	pdf.SetFont("Helvetica", "", 10)
	pdf.Text(labelX, y, tr("Subtotaal"))
	textRightAligned(pdf, marginRight, y, tr(FormatAmount(order.Subtotal)))
	y += lineHeight

	if order.ShippingCost > 0 {
		pdf.Text(labelX, y, tr("Verzendkosten"))
		textRightAligned(pdf, marginRight, y, tr(FormatAmount(order.ShippingCost)))
		y += lineHeight
	}

	pdf.Text(labelX, y, tr("BTW"))
	textRightAligned(pdf, marginRight, y, tr(FormatAmount(order.VATAmount)))
	y += lineHeight / 2
	pdf.Line(labelX, y, marginRight, y)
	y += lineHeight

	pdf.SetFont("Helvetica", "B", 10)
	pdf.Text(labelX, y, tr("Totaal"))
	textRightAligned(pdf, marginRight, y, tr(FormatAmount(order.Total)))
	return y + lineHeight
}

func headerLines(order domain.Order) []string {
	return []string{
		fmt.Sprintf("Factuurnummer: %s", order.InvoiceNumber),
		fmt.Sprintf("Factuurdatum: %s", order.UpdatedAt.Format("02-01-2006")),
		fmt.Sprintf("Ordernummer: %s", order.OrderNumber),
		fmt.Sprintf("Orderdatum: %s", order.CreatedAt.Format("02-01-2006")),
	}
}

func billingLines(c domain.Customer) []string {
	lines := []string{
		c.Name,
		c.Company,
		c.Address,
		strings.TrimSpace(c.PostCode + " " + c.City),
		c.Country,
	}
	if strings.TrimSpace(c.VATNumber) != "" {
		lines = append(lines, fmt.Sprintf("BTW-nummer: %s", c.VATNumber))
	}
	return lines
}

func shippingLines(c domain.Customer) []string {
	name, address, postCode, city, country := c.ShippingRecipient()
	return []string{
		name,
		address,
		strings.TrimSpace(postCode + " " + city),
		country,
	}
}

func paymentMethodLabel(method string) string {
	switch method {
	case domain.PaymentMethodCash:
		return "Contant"
	case domain.PaymentMethodPin:
		return "PIN"
	case domain.PaymentMethodIdeal:
		return "iDEAL"
	case domain.PaymentMethodInvoice:
		return "Op rekening"
	default:
		return method
	}
}

func shippingMethodLabel(method string) string {
	if strings.EqualFold(strings.TrimSpace(method), domain.ShippingMethodPickup) {
		return "Afhalen"
	}
	if strings.TrimSpace(method) == "" {
		return "Verzending"
	}
	return method
}

// drawLines prints non-empty-adjusted lines top-down and returns the cursor
// after the last line. Blank fields still occupy their line so the block
// height stays predictable.
func drawLines(pdf *gofpdf.Fpdf, tr func(string) string, x, y float64, lines []string) float64 {
	pdf.SetFont("Helvetica", "", 10)
	for _, line := range lines {
		pdf.Text(x, y, tr(line))
		y += lineHeight
	}
	return y
}

func textRightAligned(pdf *gofpdf.Fpdf, rightEdge, y float64, text string) {
	pdf.Text(rightEdge-pdf.GetStringWidth(text), y, text)
}
