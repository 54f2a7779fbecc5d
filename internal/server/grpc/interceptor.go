package grpc

import (
	"context"
	"net"
	"runtime/debug"

	"github.com/dmitrijs2005/voicemfa/internal/common"
	"github.com/dmitrijs2005/voicemfa/internal/server/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

type ctxKey string

const sessionKey ctxKey = "session"

// protected lists the methods that need a session token. Enrollment methods
// read one when present, to allow admin enrollment.
var protected = map[string]bool{
	FullMethod(MethodClockOut):       true,
	FullMethod(MethodToday):          true,
	FullMethod(MethodListAttendance): true,
	FullMethod(MethodListTasks):      true,
	FullMethod(MethodCompleteTask):   true,
	FullMethod(MethodAssignTask):     true,
}

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	var accessToken string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(common.AccessTokenHeaderName); len(values) > 0 {
			accessToken = values[0]
		}
	}

	if accessToken == "" {
		if protected[info.FullMethod] {
			return nil, status.Error(codes.Unauthenticated, "missing token")
		}
		return handler(ctx, req)
	}

	sess, err := s.auth.VerifySession(accessToken)
	if err != nil {
		s.logger.Info(ctx, "session rejected", "method", info.FullMethod, "error", err)
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}
	return handler(context.WithValue(ctx, sessionKey, sess), req)
}

// recoverInterceptor turns a handler panic into codes.Internal.
func (s *GRPCServer) recoverInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(ctx, "handler panic", "method", info.FullMethod, "panic", r, "stack", string(debug.Stack()))
			resp, err = nil, status.Error(codes.Internal, "internal error")
		}
	}()
	return handler(ctx, req)
}

// SessionFromContext returns the verified session attached by the
// interceptor.
func SessionFromContext(ctx context.Context) (*auth.Session, bool) {
	sess, ok := ctx.Value(sessionKey).(*auth.Session)
	return sess, ok
}

// sourceAddress is the caller's host as seen by the transport. It keys the
// rate limiter and the audit trail.
func sourceAddress(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}
	addr := p.Addr.String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
