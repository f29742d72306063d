package auditentries

import (
	"context"
	"time"

	"github.com/pgElephant/ramd/internal/server/models"
)

// Repository persists audit entries beyond the in-memory trail.
type Repository interface {
	Insert(ctx context.Context, entry models.AuditEntry) error
	ListRecent(ctx context.Context, limit int) ([]models.AuditEntry, error)
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}
