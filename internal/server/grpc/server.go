package grpc

import (
	"context"
	"crypto/tls"
	"errors"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/pgElephant/ramd/internal/logging"
	"github.com/pgElephant/ramd/internal/server/models"
)

// Gatekeeper is the part of security.Gatekeeper the server depends on.
type Gatekeeper interface {
	Check(ctx context.Context, clientIP, token, action, resource string) error
	Reject(ctx context.Context, clientIP, token, action, resource string) error
	ValidateAndSanitize(input string, maxLength int) (bool, string)
	AddUser(ctx context.Context, username, password string, role models.Role) (string, error)
	SetRole(ctx context.Context, username string, role models.Role) error
	SetUserActive(ctx context.Context, username string, active bool) error
	Login(ctx context.Context, clientIP, username, password string) (string, error)
	GetAuditLog(maxEntries int) ([]models.AuditEntry, int)
	GetStatus() models.Status
	OpenConnection() (func(), error)
}

// AuditHistory reads audit entries from durable storage.
type AuditHistory interface {
	Recent(ctx context.Context, limit int) ([]models.AuditEntry, error)
}

type GRPCServer struct {
	address        string
	logger         logging.Logger
	gk             Gatekeeper
	ops            Operations
	tlsConfig      *tls.Config
	maxRecvMsgSize int
	history        AuditHistory
}

type ServerOption func(*GRPCServer)

// WithTLS serves over TLS. A nil config leaves the server in plaintext.
func WithTLS(cfg *tls.Config) ServerOption {
	return func(s *GRPCServer) { s.tlsConfig = cfg }
}

// WithMaxRecvMsgSize caps the size of a single request message.
func WithMaxRecvMsgSize(n int) ServerOption {
	return func(s *GRPCServer) { s.maxRecvMsgSize = n }
}

// WithAuditHistory lets GetAuditLog serve durable entries on request.
func WithAuditHistory(h AuditHistory) ServerOption {
	return func(s *GRPCServer) { s.history = h }
}

func NewGRPCServer(a string, l logging.Logger, gk Gatekeeper, ops Operations, opts ...ServerOption) (*GRPCServer, error) {
	if gk == nil {
		return nil, errors.New("gatekeeper is required")
	}
	if ops == nil {
		ops = NewLoggingOperations(l)
	}
	s := &GRPCServer{
		address: a,
		logger:  l.With("module", "grpc_server"),
		gk:      gk,
		ops:     ops,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *GRPCServer) serverOptions() []grpc.ServerOption {
	opts := []grpc.ServerOption{grpc.ChainUnaryInterceptor(s.authInterceptor)}
	if s.tlsConfig != nil {
		opts = append(opts, grpc.Creds(credentials.NewTLS(s.tlsConfig)))
	}
	if s.maxRecvMsgSize > 0 {
		opts = append(opts, grpc.MaxRecvMsgSize(s.maxRecvMsgSize))
	}
	return opts
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is cancelled, then stops
// gracefully.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {

	srv := grpc.NewServer(s.serverOptions()...)
	RegisterControlPlaneServer(srv, s)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
		case <-done:
			return
		}
		s.logger.Info(ctx, "Stopping gRPC server...")
		hs.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String(), "tls", s.tlsConfig != nil)

	// starts accepting incoming connections
	if err := srv.Serve(newLimitListener(lis, s.gk.OpenConnection, s.logger)); err != nil {
		return err
	}

	return nil
}
