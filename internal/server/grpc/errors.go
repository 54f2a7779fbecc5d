package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/voicemfa/internal/common"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// toStatus maps the service error taxonomy onto gRPC codes. Messages stay
// generic; a biometric rejection carries its kind in the message and as a
// Struct detail.
func (s *GRPCServer) toStatus(ctx context.Context, method string, err error) error {
	var rej *common.BiometricRejection
	switch {
	case errors.As(err, &rej):
		st := status.New(codes.PermissionDenied, common.ErrBiometricRejection.Error()+": "+string(rej.Kind))
		detail, _ := structpb.NewStruct(map[string]any{"kind": string(rej.Kind)})
		if withDetail, derr := st.WithDetails(detail); derr == nil {
			st = withDetail
		}
		return st.Err()
	case errors.Is(err, common.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrCredentials):
		return status.Error(codes.Unauthenticated, common.ErrCredentials.Error())
	case errors.Is(err, common.ErrAuth):
		return status.Error(codes.Unauthenticated, common.ErrAuth.Error())
	case errors.Is(err, common.ErrChallenge):
		return status.Error(codes.FailedPrecondition, common.ErrChallenge.Error())
	case errors.Is(err, common.ErrForbidden):
		return status.Error(codes.PermissionDenied, common.ErrForbidden.Error())
	case errors.Is(err, common.ErrProcessing):
		return status.Error(codes.Unavailable, common.ErrProcessing.Error())
	case errors.Is(err, common.ErrRateLimited):
		return status.Error(codes.ResourceExhausted, common.ErrRateLimited.Error())
	case errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.NotFound, common.ErrorNotFound.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	s.logger.Error(ctx, "request failed", "method", method, "error", err)
	return status.Error(codes.Internal, "internal error")
}

// RejectionKind extracts the biometric rejection kind from a status error
// returned by this service.
func RejectionKind(err error) (common.RejectionKind, bool) {
	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.PermissionDenied {
		return "", false
	}
	for _, d := range st.Details() {
		if m, ok := d.(*structpb.Struct); ok {
			if kind := m.GetFields()["kind"].GetStringValue(); kind != "" {
				return common.RejectionKind(kind), true
			}
		}
	}
	return "", false
}
