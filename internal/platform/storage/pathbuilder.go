package storage

import (
	"fmt"
	"strings"
)

// InvoicePathParams provide the identifiers used to compose the object key of
// a rendered invoice.
type InvoicePathParams struct {
	Prefix        string
	InvoiceNumber string
	OrderNumber   string
}

// BuildInvoicePath resolves the storage object path for an invoice document:
// {prefix}/factuur-{invoiceNumber}.pdf, falling back to the order number when
// no invoice number is available yet.
func BuildInvoicePath(params InvoicePathParams) (string, error) {
	prefix := strings.Trim(strings.TrimSpace(params.Prefix), "/")
	if prefix == "" {
		prefix = "invoices"
	}

	reference := strings.TrimSpace(params.InvoiceNumber)
	if reference == "" {
		reference = strings.TrimSpace(params.OrderNumber)
	}
	reference, err := validateSegment("invoice reference", reference)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s/factuur-%s.pdf", prefix, reference), nil
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", name)
	}
	return value, nil
}
