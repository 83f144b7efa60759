package handler

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rl1809/retail-ledger/internal/config"
	"github.com/rl1809/retail-ledger/internal/core/domain"
)

func TestStatusFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"nil", nil, codes.OK},
		{"insufficient stock", &domain.InsufficientStockError{ProductID: "a"}, codes.FailedPrecondition},
		{"transfer state", &domain.InvalidTransferStateError{TransferID: "t"}, codes.FailedPrecondition},
		{"order state", &domain.InvalidOrderStateError{OrderID: "o"}, codes.FailedPrecondition},
		{"invalid product", &domain.InvalidProductError{ProductID: "a"}, codes.InvalidArgument},
		{"payment mismatch", &domain.PaymentMismatchError{}, codes.InvalidArgument},
		{"invalid argument", domain.InvalidArgument("bad"), codes.InvalidArgument},
		{"not found", domain.NotFound("sale", "s"), codes.NotFound},
		{"duplicate", fmt.Errorf("%w: sku", domain.ErrDuplicate), codes.AlreadyExists},
		{"no tenant", domain.ErrNoTenant, codes.Unauthenticated},
		{"deadline", fmt.Errorf("lock keys: %w", context.DeadlineExceeded), codes.DeadlineExceeded},
		{"persistence", domain.Persistence("op", errors.New("tcp reset")), codes.Internal},
		{"status passthrough", status.Error(codes.ResourceExhausted, "slow down"), codes.ResourceExhausted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusFromError(tt.err).Code(); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestStatusFromError_HidesInternalDetail(t *testing.T) {
	st := StatusFromError(domain.Persistence("op", errors.New("password=hunter2")))
	if st.Message() != "internal error" {
		t.Errorf("expected generic message, got %q", st.Message())
	}
}

func TestActorInterceptor(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(
		MetadataTenant, "tenant-1",
		MetadataActor, "user-9",
		MetadataRole, "manager",
	))

	var got domain.Actor
	_, err := ActorInterceptor()(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/ledger/Test"},
		func(ctx context.Context, req any) (any, error) {
			var err error
			got, err = domain.ActorFrom(ctx)
			return nil, err
		})
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if got.TenantID != "tenant-1" || got.ActorID != "user-9" || got.Role != "manager" {
		t.Errorf("unexpected actor %+v", got)
	}
}

func TestErrorInterceptor(t *testing.T) {
	intercept := ErrorInterceptor(config.NopLogger())
	info := &grpc.UnaryServerInfo{FullMethod: "/ledger/Test"}

	_, err := intercept(context.Background(), nil, info, func(context.Context, any) (any, error) {
		return nil, &domain.InsufficientStockError{ProductID: "a"}
	})
	if status.Code(err) != codes.FailedPrecondition {
		t.Errorf("expected FailedPrecondition, got %v", err)
	}

	resp, err := intercept(context.Background(), nil, info, func(context.Context, any) (any, error) {
		return "ok", nil
	})
	if err != nil || resp != "ok" {
		t.Errorf("expected passthrough, got %v, %v", resp, err)
	}
}
