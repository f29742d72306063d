package auditlog

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgElephant/ramd/internal/server/models"
	"github.com/pgElephant/ramd/internal/server/repositories/repomanager"
)

func TestFileSink_AppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "ramd-audit.jsonl")

	s, err := NewFileSink(path)
	require.NoError(t, err)

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	batch := []models.AuditEntry{
		{ID: "a", Timestamp: ts, ClientIP: "10.0.0.1", Username: "alice", Action: "view", Resource: "cluster", Result: models.ResultSuccess},
		{ID: "b", Timestamp: ts, ClientIP: "10.0.0.2", Username: "anonymous", Action: "failover", Resource: "cluster", Result: models.ResultFailure, Details: "invalid token"},
	}
	require.NoError(t, s.Write(context.Background(), batch))
	require.NoError(t, s.Close())

	// Reopening appends.
	s, err = NewFileSink(path)
	require.NoError(t, err)
	require.NoError(t, s.Write(context.Background(), batch[:1]))
	require.NoError(t, s.Close())

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var got []models.AuditEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e models.AuditEntry
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		got = append(got, e)
	}
	require.NoError(t, sc.Err())
	require.Len(t, got, 3)
	for i, want := range []models.AuditEntry{batch[0], batch[1], batch[0]} {
		assert.Equal(t, want.ID, got[i].ID)
		assert.True(t, want.Timestamp.Equal(got[i].Timestamp))
		assert.Equal(t, want.Username, got[i].Username)
		assert.Equal(t, want.Result, got[i].Result)
		assert.Equal(t, want.Details, got[i].Details)
	}
}

func TestFileSink_OpenError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	_, err := NewFileSink(filepath.Join(blocker, "audit.jsonl"))
	assert.Error(t, err)
}

func TestPostgresSink_WritesBatchInOneTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO audit_entries`).WithArgs("a", sqlmock.AnyArg(), "10.0.0.1", "alice", "view", "cluster", "success", "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO audit_entries`).WithArgs("b", sqlmock.AnyArg(), "10.0.0.2", "anonymous", "view", "cluster", "failure", "invalid token").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectClose()

	s := NewPostgresSink(db, repomanager.NewPostgresRepositoryManager())
	err = s.Write(context.Background(), []models.AuditEntry{
		{ID: "a", ClientIP: "10.0.0.1", Username: "alice", Action: "view", Resource: "cluster", Result: models.ResultSuccess},
		{ID: "b", ClientIP: "10.0.0.2", Username: "anonymous", Action: "view", Resource: "cluster", Result: models.ResultFailure, Details: "invalid token"},
	})
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSink_RollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO audit_entries`).WillReturnError(errors.New("constraint"))
	mock.ExpectRollback()

	s := NewPostgresSink(db, repomanager.NewPostgresRepositoryManager())
	err = s.Write(context.Background(), []models.AuditEntry{{ID: "a", Result: models.ResultSuccess}})
	require.ErrorContains(t, err, "constraint")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSink_Prune(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cutoff := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(`DELETE FROM audit_entries`).WithArgs(cutoff).WillReturnResult(sqlmock.NewResult(0, 7))

	s := NewPostgresSink(db, repomanager.NewPostgresRepositoryManager())
	n, err := s.Prune(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	require.NoError(t, mock.ExpectationsWereMet())
}
