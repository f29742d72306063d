package auditlog

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/pgElephant/ramd/internal/dbx"
	"github.com/pgElephant/ramd/internal/filex"
	"github.com/pgElephant/ramd/internal/server/models"
	"github.com/pgElephant/ramd/internal/server/repositories/repomanager"
)

// Sink is a durable destination for audit entries.
type Sink interface {
	Write(ctx context.Context, entries []models.AuditEntry) error
	Close() error
}

// FileSink appends entries as JSON lines.
type FileSink struct {
	mu  sync.Mutex
	f   *os.File
	buf *bufio.Writer
	enc *json.Encoder
}

// NewFileSink opens path for appending, creating it with mode 0600.
func NewFileSink(path string) (*FileSink, error) {
	f, err := filex.OpenAppend(path)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	buf := bufio.NewWriter(f)
	return &FileSink{f: f, buf: buf, enc: json.NewEncoder(buf)}, nil
}

func (s *FileSink) Write(_ context.Context, entries []models.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		if err := s.enc.Encode(e); err != nil {
			return fmt.Errorf("encode audit entry: %w", err)
		}
	}
	if err := s.buf.Flush(); err != nil {
		return fmt.Errorf("flush audit log: %w", err)
	}
	return s.f.Sync()
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	flushErr := s.buf.Flush()
	return errors.Join(flushErr, s.f.Close())
}

// PostgresSink stores entries in the audit_entries table, one transaction
// per batch.
type PostgresSink struct {
	db    *sql.DB
	repos repomanager.RepositoryManager
}

func NewPostgresSink(db *sql.DB, repos repomanager.RepositoryManager) *PostgresSink {
	return &PostgresSink{db: db, repos: repos}
}

func (s *PostgresSink) Write(ctx context.Context, entries []models.AuditEntry) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.AuditEntries(tx)
		for _, e := range entries {
			if err := repo.Insert(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})
}

// Recent returns up to limit stored entries, newest first.
func (s *PostgresSink) Recent(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	return s.repos.AuditEntries(s.db).ListRecent(ctx, limit)
}

// Prune deletes stored entries older than before.
func (s *PostgresSink) Prune(ctx context.Context, before time.Time) (int64, error) {
	return s.repos.AuditEntries(s.db).DeleteOlderThan(ctx, before)
}

func (s *PostgresSink) Close() error {
	return s.db.Close()
}

// MultiSink writes every batch to each of its sinks.
type MultiSink []Sink

func (m MultiSink) Write(ctx context.Context, entries []models.AuditEntry) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, entries); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
