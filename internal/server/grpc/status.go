package grpc

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/pgElephant/ramd/internal/common"
)

// toStatus maps domain errors to gRPC status errors. Messages are fixed
// strings; error detail stays in the logs and the audit trail.
func toStatus(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, common.ErrValidation):
		return status.Error(codes.InvalidArgument, "invalid request")
	case errors.Is(err, common.ErrUserExists):
		return status.Error(codes.AlreadyExists, "user already exists")
	case errors.Is(err, common.ErrNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, common.ErrCapacity):
		return status.Error(codes.ResourceExhausted, "capacity exceeded")
	case errors.Is(err, common.ErrRateLimited):
		return status.Error(codes.ResourceExhausted, "rate limit exceeded")
	case errors.Is(err, common.ErrTooManyConnections):
		return status.Error(codes.ResourceExhausted, "too many connections")
	case errors.Is(err, common.ErrUnauthorized),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired):
		return status.Error(codes.Unauthenticated, "unauthenticated")
	case errors.Is(err, common.ErrForbidden):
		return status.Error(codes.PermissionDenied, "permission denied")
	case errors.Is(err, common.ErrClosed):
		return status.Error(codes.Unavailable, "unavailable")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "canceled")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	default:
		return status.Error(codes.Internal, "internal error")
	}
}
