package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/testgenai/testgen/pkg/apperrors"
	"github.com/testgenai/testgen/pkg/models"
)

func newMockCheckpointRepo(t *testing.T) (*CheckpointRepository, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })
	db := sqlx.NewDb(mockDB, "pgx")
	return NewCheckpointRepository(db), mock
}

func TestCheckpointRepository_Upsert(t *testing.T) {
	repo, mock := newMockCheckpointRepo(t)
	cp := &models.Checkpoint{ID: "c1", RequestID: "r1", Version: models.CurrentCheckpointVersion, LastStage: "generation", Payload: []byte(`{}`)}

	mock.ExpectExec("INSERT INTO checkpoints").WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Upsert(context.Background(), cp)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckpointRepository_GetByRequest_NotFound(t *testing.T) {
	repo, mock := newMockCheckpointRepo(t)
	mock.ExpectQuery("SELECT \\* FROM checkpoints WHERE request_id = \\$1").
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "request_id", "version", "last_stage", "payload", "retry_count", "updated_at"}))

	_, err := repo.GetByRequest(context.Background(), "r1")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCheckpointRepository_GetByRequest_Found(t *testing.T) {
	repo, mock := newMockCheckpointRepo(t)
	rows := sqlmock.NewRows([]string{"id", "request_id", "version", "last_stage", "payload", "retry_count", "updated_at"}).
		AddRow("c1", "r1", 2, "validation", []byte(`{"step":1}`), 1, time.Now())
	mock.ExpectQuery("SELECT \\* FROM checkpoints WHERE request_id = \\$1").WithArgs("r1").WillReturnRows(rows)

	cp, err := repo.GetByRequest(context.Background(), "r1")
	require.NoError(t, err)
	require.Equal(t, "validation", cp.LastStage)
	require.Equal(t, 2, cp.Version)
}
