package grpcserver

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/and161185/cems/internal/errs"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestToStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"not found", fmt.Errorf("event 1: %w", errs.ErrNotFound), codes.NotFound},
		{"forbidden", fmt.Errorf("%w: user 2", errs.ErrForbidden), codes.PermissionDenied},
		{"invalid", errs.Invalid("title failed required"), codes.InvalidArgument},
		{"exists", errs.ErrAlreadyExists, codes.AlreadyExists},
		{"unauthorized", errs.ErrUnauthorized, codes.Unauthenticated},
		{"rate limited", errs.ErrRateLimited, codes.ResourceExhausted},
		{"canceled", context.Canceled, codes.Canceled},
		{"persistence", fmt.Errorf("%w: conn reset", errs.ErrPersistence), codes.Internal},
		{"passthrough", status.Error(codes.Unavailable, "down"), codes.Unavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := status.Code(toStatus(tc.err)); got != tc.want {
				t.Fatalf("code: got %v want %v", got, tc.want)
			}
		})
	}

	if toStatus(nil) != nil {
		t.Fatalf("nil must stay nil")
	}
	st, _ := status.FromError(toStatus(errors.New("pq: secret detail")))
	if st.Message() != "internal" {
		t.Fatalf("internal cause leaked: %q", st.Message())
	}
}
