package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/herbie65/alloygator-nl-sub001/internal/repositories"
)

// ErrSequenceInvalidInput indicates the sequence could not be advanced due to
// caller-supplied parameters.
var ErrSequenceInvalidInput = errors.New("sequence: invalid input")

// SequenceServiceDeps bundles collaborators for the sequence service.
type SequenceServiceDeps struct {
	Counters repositories.CounterRepository
	// Name identifies the counter document, "invoices" by default.
	Name  string
	Clock func() time.Time
}

type sequenceService struct {
	counters repositories.CounterRepository
	name     string
	clock    func() time.Time
}

// NewSequenceService constructs the invoice number generator.
func NewSequenceService(deps SequenceServiceDeps) (SequenceService, error) {
	if deps.Counters == nil {
		return nil, errors.New("sequence service: counter repository is required")
	}

	name := strings.TrimSpace(deps.Name)
	if name == "" {
		name = "invoices"
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	return &sequenceService{
		counters: deps.Counters,
		name:     name,
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

// NextInvoiceNumber allocates the next number for the current year, formatted
// as {year}-{5-digit zero-padded sequence}, e.g. 2025-00042.
func (s *sequenceService) NextInvoiceNumber(ctx context.Context) (string, error) {
	year := s.clock().Year()

	seq, err := s.counters.NextForYear(ctx, s.name, year)
	if err != nil {
		if repositories.IsCounterInvalidInput(err) {
			return "", fmt.Errorf("%w: %v", ErrSequenceInvalidInput, err)
		}
		return "", err
	}

	return fmt.Sprintf("%d-%05d", year, seq), nil
}
