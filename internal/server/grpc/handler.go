package grpc

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pgElephant/ramd/internal/server/models"
	"github.com/pgElephant/ramd/internal/server/security"
)

// DefaultAuditEntries is returned by GetAuditLog when max_entries is unset.
const DefaultAuditEntries = 100

func stringField(req *structpb.Struct, name string) string {
	return req.GetFields()[name].GetStringValue()
}

func newStruct(fields map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Error(codes.Internal, "internal error")
	}
	return out, nil
}

// params flattens the scalar fields of req for the operations backend.
func params(req *structpb.Struct) map[string]string {
	out := make(map[string]string, len(req.GetFields()))
	for k, v := range req.GetFields() {
		switch x := v.GetKind().(type) {
		case *structpb.Value_StringValue:
			out[k] = x.StringValue
		case *structpb.Value_NumberValue:
			out[k] = fmt.Sprint(x.NumberValue)
		case *structpb.Value_BoolValue:
			out[k] = fmt.Sprint(x.BoolValue)
		}
	}
	delete(out, "resource")
	return out
}

func (s *GRPCServer) submit(ctx context.Context, kind string, req *structpb.Struct) (*structpb.Struct, error) {
	op := Operation{Kind: kind, Resource: s.resource(req), Params: params(req)}
	id, err := s.ops.Submit(ctx, op)
	if err != nil {
		s.logger.Error(ctx, "operation failed", "kind", kind, "error", err)
		return nil, toStatus(err)
	}
	return newStruct(map[string]any{"operation_id": id, "kind": kind, "status": "accepted"})
}

func (s *GRPCServer) Switchover(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.submit(ctx, security.ActionSwitchover, req)
}

func (s *GRPCServer) Failover(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.submit(ctx, security.ActionFailover, req)
}

func (s *GRPCServer) ChangeConfig(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.submit(ctx, security.ActionConfigChange, req)
}

func (s *GRPCServer) SetParameter(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if stringField(req, "name") == "" {
		return nil, status.Error(codes.InvalidArgument, "invalid request")
	}
	return s.submit(ctx, security.ActionParameterChange, req)
}

func (s *GRPCServer) Backup(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.submit(ctx, security.ActionBackup, req)
}

func (s *GRPCServer) AddUser(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	username := stringField(req, "username")
	role, err := models.ParseRole(stringField(req, "role"))
	if err != nil {
		return nil, toStatus(err)
	}

	token, err := s.gk.AddUser(ctx, username, stringField(req, "password"), role)
	if err != nil {
		return nil, toStatus(err)
	}

	s.logger.Info(ctx, "user added", "username", username, "role", role.String())
	return newStruct(map[string]any{"username": username, "role": role.String(), "token": token})
}

func (s *GRPCServer) SetRole(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	username := stringField(req, "username")
	role, err := models.ParseRole(stringField(req, "role"))
	if err != nil {
		return nil, toStatus(err)
	}
	if err := s.gk.SetRole(ctx, username, role); err != nil {
		return nil, toStatus(err)
	}
	return newStruct(map[string]any{"username": username, "role": role.String()})
}

func (s *GRPCServer) SetUserActive(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	username := stringField(req, "username")
	v, ok := req.GetFields()["active"]
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "invalid request")
	}
	if _, isBool := v.GetKind().(*structpb.Value_BoolValue); !isBool {
		return nil, status.Error(codes.InvalidArgument, "invalid request")
	}
	active := v.GetBoolValue()

	if err := s.gk.SetUserActive(ctx, username, active); err != nil {
		return nil, toStatus(err)
	}
	return newStruct(map[string]any{"username": username, "active": active})
}

func (s *GRPCServer) Login(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	token, err := s.gk.Login(ctx, ClientIPFromContext(ctx), stringField(req, "username"), stringField(req, "password"))
	if err != nil {
		return nil, toStatus(err)
	}
	return newStruct(map[string]any{"token": token})
}

func (s *GRPCServer) GetAuditLog(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	n := DefaultAuditEntries
	if v, ok := req.GetFields()["max_entries"]; ok {
		n = int(v.GetNumberValue())
	}
	if n <= 0 || n > security.AuditCapacity {
		return nil, status.Error(codes.InvalidArgument, "invalid request")
	}

	var (
		entries []models.AuditEntry
		count   int
	)
	if req.GetFields()["durable"].GetBoolValue() {
		if s.history == nil {
			return nil, status.Error(codes.FailedPrecondition, "durable audit log not configured")
		}
		var err error
		entries, err = s.history.Recent(ctx, n)
		if err != nil {
			s.logger.Error(ctx, "durable audit read failed", "error", err)
			return nil, toStatus(err)
		}
		count = len(entries)
	} else {
		entries, count = s.gk.GetAuditLog(n)
	}

	list := make([]any, 0, count)
	for _, e := range entries {
		list = append(list, auditEntryFields(e))
	}
	return newStruct(map[string]any{"entries": list, "count": count})
}

func auditEntryFields(e models.AuditEntry) map[string]any {
	return map[string]any{
		"id":        e.ID,
		"timestamp": e.Timestamp.UTC().Format(time.RFC3339Nano),
		"client_ip": e.ClientIP,
		"username":  e.Username,
		"action":    e.Action,
		"resource":  e.Resource,
		"result":    string(e.Result),
		"details":   e.Details,
	}
}

func (s *GRPCServer) GetStatus(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	st := s.gk.GetStatus()
	return newStruct(map[string]any{
		"auth_enabled":               st.AuthEnabled,
		"ssl_enabled":                st.SSLEnabled,
		"rate_limiting_enabled":      st.RateLimitingEnabled,
		"audit_enabled":              st.AuditEnabled,
		"input_validation_enabled":   st.InputValidationEnabled,
		"session_management_enabled": st.SessionManagementEnabled,
		"user_count":                 st.UserCount,
		"active_connections":         st.ActiveConnections,
		"blocked_ip_count":           st.BlockedIPCount,
		"tracked_ip_count":           st.TrackedIPCount,
		"audit_entries":              st.AuditEntries,
	})
}
