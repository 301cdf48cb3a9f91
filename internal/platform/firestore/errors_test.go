package firestore

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestWrapErrorNil(t *testing.T) {
	if err := WrapError("op", nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestWrapErrorContextPassthrough(t *testing.T) {
	if err := WrapError("op", context.Canceled); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := WrapError("op", status.Error(codes.DeadlineExceeded, "deadline")); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
}

func TestWrapErrorClassifiesGRPCCodes(t *testing.T) {
	cases := []struct {
		name        string
		code        codes.Code
		notFound    bool
		conflict    bool
		unavailable bool
	}{
		{"not found", codes.NotFound, true, false, false},
		{"already exists", codes.AlreadyExists, false, true, false},
		{"failed precondition", codes.FailedPrecondition, false, true, false},
		{"aborted", codes.Aborted, false, true, false},
		{"unavailable", codes.Unavailable, false, false, true},
		{"resource exhausted", codes.ResourceExhausted, false, false, true},
		{"unknown", codes.Unknown, false, false, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wrapped := WrapError("orders.get", status.Error(tc.code, tc.name))

			var repoErr *Error
			if !errors.As(wrapped, &repoErr) {
				t.Fatalf("expected *Error, got %T", wrapped)
			}
			if repoErr.IsNotFound() != tc.notFound {
				t.Fatalf("IsNotFound = %v", repoErr.IsNotFound())
			}
			if repoErr.IsConflict() != tc.conflict {
				t.Fatalf("IsConflict = %v", repoErr.IsConflict())
			}
			if repoErr.IsUnavailable() != tc.unavailable {
				t.Fatalf("IsUnavailable = %v", repoErr.IsUnavailable())
			}
		})
	}
}

func TestWrapErrorKeepsExistingWrap(t *testing.T) {
	inner := WrapError("orders.get", status.Error(codes.NotFound, "missing"))
	outer := WrapError("orders.update", inner)

	var repoErr *Error
	if !errors.As(outer, &repoErr) {
		t.Fatalf("expected *Error, got %T", outer)
	}
	if !repoErr.IsNotFound() {
		t.Fatal("classification must survive rewrapping")
	}
}
