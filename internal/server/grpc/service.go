package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pgElephant/ramd/internal/server/security"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "ramd.v1.ControlPlane"

// ControlPlane method names.
const (
	MethodSwitchover    = "Switchover"
	MethodFailover      = "Failover"
	MethodChangeConfig  = "ChangeConfig"
	MethodSetParameter  = "SetParameter"
	MethodBackup        = "Backup"
	MethodAddUser       = "AddUser"
	MethodSetRole       = "SetRole"
	MethodSetUserActive = "SetUserActive"
	MethodLogin         = "Login"
	MethodGetAuditLog   = "GetAuditLog"
	MethodGetStatus     = "GetStatus"
)

// FullMethod returns the wire path of a ControlPlane method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// methodActions maps each gated method to the action the gatekeeper checks.
var methodActions = map[string]string{
	FullMethod(MethodSwitchover):    security.ActionSwitchover,
	FullMethod(MethodFailover):      security.ActionFailover,
	FullMethod(MethodChangeConfig):  security.ActionConfigChange,
	FullMethod(MethodSetParameter):  security.ActionParameterChange,
	FullMethod(MethodBackup):        security.ActionBackup,
	FullMethod(MethodAddUser):       security.ActionAddUser,
	FullMethod(MethodSetRole):       security.ActionSetRole,
	FullMethod(MethodSetUserActive): security.ActionSetUserActive,
	FullMethod(MethodLogin):         security.ActionLogin,
	FullMethod(MethodGetAuditLog):   security.ActionAuditRead,
	FullMethod(MethodGetStatus):     security.ActionView,
}

// ControlPlaneServer is the server API of ramd.v1.ControlPlane. Requests
// and responses are google.protobuf.Struct messages.
type ControlPlaneServer interface {
	Switchover(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Failover(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ChangeConfig(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetParameter(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Backup(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AddUser(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetRole(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetUserActive(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Login(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetAuditLog(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(ControlPlaneServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call unaryCall) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ControlPlaneServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ControlPlaneServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ControlPlaneServiceDesc describes ramd.v1.ControlPlane for grpc.Server.
var ControlPlaneServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ControlPlaneServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: MethodSwitchover, Handler: unaryHandler(MethodSwitchover, ControlPlaneServer.Switchover)},
		{MethodName: MethodFailover, Handler: unaryHandler(MethodFailover, ControlPlaneServer.Failover)},
		{MethodName: MethodChangeConfig, Handler: unaryHandler(MethodChangeConfig, ControlPlaneServer.ChangeConfig)},
		{MethodName: MethodSetParameter, Handler: unaryHandler(MethodSetParameter, ControlPlaneServer.SetParameter)},
		{MethodName: MethodBackup, Handler: unaryHandler(MethodBackup, ControlPlaneServer.Backup)},
		{MethodName: MethodAddUser, Handler: unaryHandler(MethodAddUser, ControlPlaneServer.AddUser)},
		{MethodName: MethodSetRole, Handler: unaryHandler(MethodSetRole, ControlPlaneServer.SetRole)},
		{MethodName: MethodSetUserActive, Handler: unaryHandler(MethodSetUserActive, ControlPlaneServer.SetUserActive)},
		{MethodName: MethodLogin, Handler: unaryHandler(MethodLogin, ControlPlaneServer.Login)},
		{MethodName: MethodGetAuditLog, Handler: unaryHandler(MethodGetAuditLog, ControlPlaneServer.GetAuditLog)},
		{MethodName: MethodGetStatus, Handler: unaryHandler(MethodGetStatus, ControlPlaneServer.GetStatus)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ramd/v1/control_plane.proto",
}

// RegisterControlPlaneServer registers srv on s.
func RegisterControlPlaneServer(s grpc.ServiceRegistrar, srv ControlPlaneServer) {
	s.RegisterService(&ControlPlaneServiceDesc, srv)
}
