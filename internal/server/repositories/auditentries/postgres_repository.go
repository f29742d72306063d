package auditentries

import (
	"context"
	"fmt"
	"time"

	"github.com/pgElephant/ramd/internal/dbx"
	"github.com/pgElephant/ramd/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Insert stores entry. Re-delivered entries (same ID) are ignored.
func (r *PostgresRepository) Insert(ctx context.Context, e models.AuditEntry) error {
	query :=
		`INSERT INTO audit_entries (id, ts, client_ip, username, action, resource, result, details)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO NOTHING
		 `

	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.Timestamp, e.ClientIP, e.Username, e.Action, e.Resource, string(e.Result), e.Details)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

// ListRecent returns up to limit entries, most recent first.
func (r *PostgresRepository) ListRecent(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	query :=
		`SELECT id, ts, client_ip, username, action, resource, result, details
		 FROM audit_entries
		 ORDER BY ts DESC
		 LIMIT $1
		 `

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []models.AuditEntry
	for rows.Next() {
		var (
			e      models.AuditEntry
			result string
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.ClientIP, &e.Username, &e.Action, &e.Resource, &result, &e.Details); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		e.Result = models.AuditResult(result)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return out, nil
}

// DeleteOlderThan removes entries recorded before the cutoff.
func (r *PostgresRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM audit_entries WHERE ts < $1`

	res, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
