package firestore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/herbie65/alloygator-nl-sub001/internal/platform/firestore"
	"github.com/herbie65/alloygator-nl-sub001/internal/repositories"
)

const countersCollection = "counters"

// counterDocument holds one per-year last-issued value per sequence name.
// Values only ever grow; a new year simply adds a new map key.
type counterDocument struct {
	Years     map[string]int64 `firestore:"years"`
	UpdatedAt time.Time        `firestore:"updatedAt"`
}

// CounterRepository implements repositories.CounterRepository backed by
// Firestore transactions, making concurrent increments serialisable.
type CounterRepository struct {
	provider *pfirestore.Provider
	counters *pfirestore.Collection[counterDocument]
}

// NewCounterRepository constructs a Firestore-backed counter repository.
func NewCounterRepository(provider *pfirestore.Provider) (*CounterRepository, error) {
	if provider == nil {
		return nil, errors.New("counter repository requires firestore provider")
	}
	return &CounterRepository{
		provider: provider,
		counters: pfirestore.NewCollection[counterDocument](provider, countersCollection),
	}, nil
}

// NextForYear atomically increments the named counter for the given year and
// returns the issued value. The first call of a year issues 1.
func (r *CounterRepository) NextForYear(ctx context.Context, name string, year int) (int64, error) {
	if r == nil || r.provider == nil {
		return 0, errors.New("counter repository not initialised")
	}
	id := strings.TrimSpace(name)
	if id == "" {
		return 0, repositories.NewCounterError(repositories.CounterErrorInvalidInput, "sequence name is required", nil)
	}
	if year < 2000 || year > 9999 {
		return 0, repositories.NewCounterError(repositories.CounterErrorInvalidInput, fmt.Sprintf("implausible year %d", year), nil)
	}

	yearKey := strconv.Itoa(year)
	now := time.Now().UTC()
	var issued int64

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.counters.DocumentRef(ctx, id)
		if err != nil {
			return err
		}

		snapshot, err := tx.Get(ref)
		switch status.Code(err) {
		case codes.NotFound:
			doc := counterDocument{
				Years:     map[string]int64{yearKey: 1},
				UpdatedAt: now,
			}
			if err := tx.Create(ref, doc); err != nil {
				return err
			}
			issued = 1
			return nil
		case codes.OK:
			// proceed
		default:
			return err
		}

		var doc counterDocument
		if err := snapshot.DataTo(&doc); err != nil {
			return fmt.Errorf("firestore counters decode %s: %w", id, err)
		}
		if doc.Years == nil {
			doc.Years = map[string]int64{}
		}

		doc.Years[yearKey]++
		doc.UpdatedAt = now

		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		issued = doc.Years[yearKey]
		return nil
	})
	if err != nil {
		var counterErr *repositories.CounterError
		if errors.As(err, &counterErr) {
			return 0, counterErr
		}
		return 0, pfirestore.WrapError("counters.next", err)
	}
	return issued, nil
}
