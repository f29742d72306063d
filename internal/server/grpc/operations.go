package grpc

import (
	"context"

	"github.com/google/uuid"

	"github.com/pgElephant/ramd/internal/logging"
)

// Operation is a cluster-changing request that passed the gatekeeper.
type Operation struct {
	Kind     string
	Resource string
	Params   map[string]string
}

// Operations executes authorized cluster operations. The failover and
// switchover state machines live behind this interface.
type Operations interface {
	Submit(ctx context.Context, op Operation) (string, error)
}

// LoggingOperations accepts every operation and only logs it. It is used
// when ramd runs as a standalone gatekeeper.
type LoggingOperations struct {
	logger logging.Logger
}

func NewLoggingOperations(l logging.Logger) *LoggingOperations {
	return &LoggingOperations{logger: l.With("module", "operations")}
}

func (o *LoggingOperations) Submit(ctx context.Context, op Operation) (string, error) {
	id := uuid.NewString()
	o.logger.Info(ctx, "operation accepted", "id", id, "kind", op.Kind, "resource", op.Resource, "params", len(op.Params))
	return id, nil
}
