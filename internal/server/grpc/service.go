package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name. Every method takes
// and returns a google.protobuf.Struct; audio travels as base64 strings.
const ServiceName = "voicemfa.v1.VoiceMFA"

// Method names.
const (
	MethodPing             = "Ping"
	MethodRequestChallenge = "RequestChallenge"
	MethodLogin            = "Login"
	MethodEnroll           = "Enroll"
	MethodEnrollInit       = "EnrollInit"
	MethodEnrollUpload     = "EnrollUpload"
	MethodEnrollFinalize   = "EnrollFinalize"
	MethodClockOut         = "ClockOut"
	MethodToday            = "Today"
	MethodListAttendance   = "ListAttendance"
	MethodListTasks        = "ListTasks"
	MethodCompleteTask     = "CompleteTask"
	MethodAssignTask       = "AssignTask"
)

// FullMethod returns the "/service/method" path of name.
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// handlerSet is the method set the service descriptor dispatches to.
type handlerSet interface {
	Ping(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RequestChallenge(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Login(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Enroll(context.Context, *structpb.Struct) (*structpb.Struct, error)
	EnrollInit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	EnrollUpload(context.Context, *structpb.Struct) (*structpb.Struct, error)
	EnrollFinalize(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ClockOut(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Today(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListAttendance(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListTasks(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CompleteTask(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AssignTask(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryFunc func(handlerSet, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, fn unaryFunc) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			h := srv.(handlerSet)
			if interceptor == nil {
				return fn(h, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return fn(h, ctx, req.(*structpb.Struct))
			})
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*handlerSet)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodPing, handlerSet.Ping),
		unary(MethodRequestChallenge, handlerSet.RequestChallenge),
		unary(MethodLogin, handlerSet.Login),
		unary(MethodEnroll, handlerSet.Enroll),
		unary(MethodEnrollInit, handlerSet.EnrollInit),
		unary(MethodEnrollUpload, handlerSet.EnrollUpload),
		unary(MethodEnrollFinalize, handlerSet.EnrollFinalize),
		unary(MethodClockOut, handlerSet.ClockOut),
		unary(MethodToday, handlerSet.Today),
		unary(MethodListAttendance, handlerSet.ListAttendance),
		unary(MethodListTasks, handlerSet.ListTasks),
		unary(MethodCompleteTask, handlerSet.CompleteTask),
		unary(MethodAssignTask, handlerSet.AssignTask),
	},
	Streams: []grpc.StreamDesc{},
}
