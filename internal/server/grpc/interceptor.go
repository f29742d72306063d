package grpc

import (
	"context"
	"net"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pgElephant/ramd/internal/common"
	"github.com/pgElephant/ramd/internal/server/security"
)

const (
	// DefaultResource is checked when a request names no resource.
	DefaultResource = "cluster"
	// MaxResourceLength bounds the resource recorded in the audit trail.
	MaxResourceLength = 256
	// MaxFieldLength bounds every string field of a request.
	MaxFieldLength = 4096

	unknownClient = "unknown"
)

type ctxKey string

const clientIPKey ctxKey = "clientIP"

// ClientIPFromContext returns the client address stored by the interceptor.
func ClientIPFromContext(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey).(string); ok {
		return ip
	}
	return unknownClient
}

func clientIP(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return unknownClient
	}
	addr := p.Addr.String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	if addr == "" {
		return unknownClient
	}
	return addr
}

// accessToken reads "authorization: Bearer <t>" or, failing that,
// "access_token" metadata.
func accessToken(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, v := range md.Get(common.AuthorizationHeaderName) {
		if len(v) > 7 && strings.EqualFold(v[:7], "bearer ") {
			return strings.TrimSpace(v[7:])
		}
	}
	if values := md.Get(common.AccessTokenHeaderName); len(values) > 0 {
		return values[0]
	}
	return ""
}

// validFields reports whether every string in s, including nested ones,
// passes input validation.
func (s *GRPCServer) validFields(v *structpb.Value) bool {
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		ok, _ := s.gk.ValidateAndSanitize(k.StringValue, MaxFieldLength)
		return ok
	case *structpb.Value_StructValue:
		for key, f := range k.StructValue.GetFields() {
			if ok, _ := s.gk.ValidateAndSanitize(key, MaxFieldLength); !ok {
				return false
			}
			if !s.validFields(f) {
				return false
			}
		}
	case *structpb.Value_ListValue:
		for _, f := range k.ListValue.GetValues() {
			if !s.validFields(f) {
				return false
			}
		}
	}
	return true
}

func (s *GRPCServer) resource(req *structpb.Struct) string {
	raw := req.GetFields()["resource"].GetStringValue()
	if raw == "" {
		return DefaultResource
	}
	_, clean := s.gk.ValidateAndSanitize(raw, MaxResourceLength)
	if clean == "" {
		return DefaultResource
	}
	return clean
}

func (s *GRPCServer) authInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	action, gated := methodActions[info.FullMethod]
	if !gated {
		return handler(ctx, req)
	}

	in, ok := req.(*structpb.Struct)
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "invalid request")
	}

	ip := clientIP(ctx)
	ctx = context.WithValue(ctx, clientIPKey, ip)
	token := accessToken(ctx)
	resource := s.resource(in)

	// Fields are validated before any of them reach the gate.
	if !s.validFields(structpb.NewStructValue(in)) {
		err := s.gk.Reject(ctx, ip, token, action, resource)
		s.logger.Debug(ctx, "request rejected", "method", info.FullMethod, "client_ip", ip, "error", err)
		return nil, toStatus(err)
	}

	if action != security.ActionLogin {
		if err := s.gk.Check(ctx, ip, token, action, resource); err != nil {
			s.logger.Debug(ctx, "request denied", "method", info.FullMethod, "client_ip", ip, "error", err)
			return nil, toStatus(err)
		}
	}

	return handler(ctx, req)
}
