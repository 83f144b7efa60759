package handler

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rl1809/retail-ledger/internal/core/domain"
)

// Metadata keys carrying the identity resolved by the gateway.
const (
	MetadataTenant = "x-tenant-id"
	MetadataActor  = "x-actor-id"
	MetadataRole   = "x-role"
)

// StatusFromError maps ledger failures to gRPC status codes.
func StatusFromError(err error) *status.Status {
	if err == nil {
		return status.New(codes.OK, "")
	}
	if s, ok := status.FromError(err); ok && s.Code() != codes.Unknown {
		return s
	}

	var code codes.Code
	switch {
	case errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrInvalidTransferState),
		errors.Is(err, domain.ErrInvalidOrderState):
		code = codes.FailedPrecondition
	case errors.Is(err, domain.ErrInvalidProduct),
		errors.Is(err, domain.ErrInvalidLocation),
		errors.Is(err, domain.ErrPaymentMismatch),
		errors.Is(err, domain.ErrInvalidArgument):
		code = codes.InvalidArgument
	case errors.Is(err, domain.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, domain.ErrDuplicate):
		code = codes.AlreadyExists
	case errors.Is(err, domain.ErrNoTenant):
		code = codes.Unauthenticated
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	default:
		code = codes.Internal
	}

	msg := err.Error()
	if code == codes.Internal {
		// Backend details stay in the logs.
		msg = "internal error"
	}
	return status.New(code, msg)
}

// ActorInterceptor lifts the caller identity from metadata into the context.
func ActorInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, ok := metadata.FromIncomingContext(ctx)
		if ok {
			ctx = domain.WithActor(ctx, domain.Actor{
				TenantID: first(md.Get(MetadataTenant)),
				ActorID:  first(md.Get(MetadataActor)),
				Role:     first(md.Get(MetadataRole)),
			})
		}
		return handler(ctx, req)
	}
}

// ErrorInterceptor converts returned errors to status errors and logs the
// ones that are not the caller's fault.
func ErrorInterceptor(logger *logrus.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		if err == nil {
			return resp, nil
		}

		st := StatusFromError(err)
		if st.Code() == codes.Internal {
			logger.WithFields(logrus.Fields{
				"module": "grpc",
				"method": info.FullMethod,
			}).Error(err.Error())
		}
		return resp, st.Err()
	}
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
