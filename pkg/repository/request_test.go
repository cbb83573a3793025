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

func newMockRepo(t *testing.T) (*RequestRepository, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })
	db := sqlx.NewDb(mockDB, "pgx")
	return NewRequestRepository(db), mock
}

func requestColumns() []string {
	return []string{
		"id", "owner", "url", "requirements", "test_type", "status", "result_summary",
		"error_code", "error_message", "retry_count", "max_retries", "started_at",
		"completed_at", "duration_seconds", "workflow_checkpoint_id", "created_at",
	}
}

func TestRequestRepository_Create(t *testing.T) {
	repo, mock := newMockRepo(t)
	req := &models.Request{
		ID:           "r1",
		URL:          "https://example.com",
		Requirements: []string{"req one"},
		TestType:     models.TestTypeUI,
		CreatedAt:    time.Now(),
	}

	mock.ExpectExec("INSERT INTO requests").WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Create(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, models.DefaultMaxRetries, req.MaxRetries)
	require.Equal(t, models.StatusPending, req.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepository_Get_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("SELECT \\* FROM requests WHERE id = \\$1").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(requestColumns()))

	_, err := repo.Get(context.Background(), "missing")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRequestRepository_Get_Found(t *testing.T) {
	repo, mock := newMockRepo(t)
	rows := sqlmock.NewRows(requestColumns()).AddRow(
		"r1", nil, "https://example.com", []byte(`["req one"]`), "ui", "pending", nil,
		nil, nil, 0, 3, nil, nil, nil, nil, time.Now(),
	)
	mock.ExpectQuery("SELECT \\* FROM requests WHERE id = \\$1").WithArgs("r1").WillReturnRows(rows)

	got, err := repo.Get(context.Background(), "r1")
	require.NoError(t, err)
	require.Equal(t, "r1", got.ID)
	require.Equal(t, []string{"req one"}, got.Requirements)
	require.Equal(t, models.StatusPending, got.Status)
}

func TestRequestRepository_UpdateStatus_RejectsNonForwardTransition(t *testing.T) {
	repo, mock := newMockRepo(t)
	rows := sqlmock.NewRows(requestColumns()).AddRow(
		"r1", nil, "https://example.com", []byte(`[]`), "ui", "completed", nil,
		nil, nil, 0, 3, nil, nil, nil, nil, time.Now(),
	)
	mock.ExpectQuery("SELECT \\* FROM requests WHERE id = \\$1").WithArgs("r1").WillReturnRows(rows)

	err := repo.UpdateStatus(context.Background(), "r1", models.StatusGeneration, nil, nil)
	require.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestRequestRepository_UpdateStatus_AllowsForwardStep(t *testing.T) {
	repo, mock := newMockRepo(t)
	rows := sqlmock.NewRows(requestColumns()).AddRow(
		"r1", nil, "https://example.com", []byte(`[]`), "ui", "pending", nil,
		nil, nil, 0, 3, nil, nil, nil, nil, time.Now(),
	)
	mock.ExpectQuery("SELECT \\* FROM requests WHERE id = \\$1").WithArgs("r1").WillReturnRows(rows)
	mock.ExpectExec("UPDATE requests SET").WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateStatus(context.Background(), "r1", models.StatusReconnaissance, nil, nil)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepository_ClaimNextPending_NoRowsAvailable(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM requests").WillReturnRows(sqlmock.NewRows(requestColumns()))
	mock.ExpectRollback()

	_, err := repo.ClaimNextPending(context.Background())
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}
