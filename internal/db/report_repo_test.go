package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"vaxingest/internal/report"
	"vaxingest/internal/types"
)

var reportDate = time.Date(2021, time.May, 1, 0, 0, 0, 0, time.UTC)

func TestReportRepository_EnsureSchema(t *testing.T) {
	db := new(mockDBTX)
	repo := NewReportRepository(db)

	db.On("Exec", mock.Anything, sqlContaining("pg_advisory_xact_lock"), []any{schemaLockKey}).
		Return(pgconn.NewCommandTag("SELECT 1"), nil).Once()
	db.On("Exec", mock.Anything, sqlContaining("CREATE TABLE IF NOT EXISTS Sites"), mock.Anything).
		Return(pgconn.NewCommandTag("CREATE TABLE"), nil).Once()
	db.On("Exec", mock.Anything, sqlContaining("CREATE TABLE IF NOT EXISTS Data"), mock.Anything).
		Return(pgconn.NewCommandTag("CREATE TABLE"), nil).Once()

	require.NoError(t, repo.EnsureSchema(context.Background()))
	db.AssertExpectations(t)
}

func TestReportRepository_EnsureSchema_Error(t *testing.T) {
	db := new(mockDBTX)
	repo := NewReportRepository(db)

	db.On("Exec", mock.Anything, sqlContaining("pg_advisory_xact_lock"), mock.Anything).
		Return(pgconn.NewCommandTag("SELECT 1"), nil)
	db.On("Exec", mock.Anything, sqlContaining("Sites"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("permission denied"))

	err := repo.EnsureSchema(context.Background())
	assert.Equal(t, types.ErrCodeInternalDB, types.CodeOf(err))
	db.AssertNotCalled(t, "Exec", mock.Anything, sqlContaining("CREATE TABLE IF NOT EXISTS Data"), mock.Anything)
}

func TestReportRepository_EnsureSchema_LockError(t *testing.T) {
	db := new(mockDBTX)
	db.On("Exec", mock.Anything, sqlContaining("pg_advisory_xact_lock"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("lock timeout"))

	err := NewReportRepository(db).EnsureSchema(context.Background())
	assert.Equal(t, types.ErrCodeInternalDB, types.CodeOf(err))
	db.AssertNotCalled(t, "Exec", mock.Anything, sqlContaining("CREATE TABLE"), mock.Anything)
}

func TestReportRepository_DataExists(t *testing.T) {
	tests := []struct {
		name  string
		count int
		want  bool
	}{
		{"absent", 0, false},
		{"present", 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := new(mockDBTX)
			db.On("QueryRow", mock.Anything, sqlContaining("FROM Data"), []any{7, reportDate}).
				Return(intRow(tt.count))

			got, err := NewReportRepository(db).DataExists(context.Background(), 7, reportDate)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReportRepository_DataExists_ErrorPropagates(t *testing.T) {
	db := new(mockDBTX)
	db.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).
		Return(&mockRow{scanErr: errors.New("connection reset")})

	exists, err := NewReportRepository(db).DataExists(context.Background(), 7, reportDate)
	assert.False(t, exists)
	assert.Equal(t, types.ErrCodeInternalDB, types.CodeOf(err))
}

func TestReportRepository_InsertSite(t *testing.T) {
	site := report.Site{ID: report.IntOf(7), Name: "Clinic A", ZipCode: "02139"}

	db := new(mockDBTX)
	db.On("Exec", mock.Anything, sqlContaining("ON CONFLICT (SiteId) DO NOTHING"), []any{7, "Clinic A", "02139"}).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil).Once()
	db.On("Exec", mock.Anything, sqlContaining("ON CONFLICT (SiteId) DO NOTHING"), []any{7, "Clinic A", "02139"}).
		Return(pgconn.NewCommandTag("INSERT 0 0"), nil).Once()

	repo := NewReportRepository(db)
	created, err := repo.InsertSite(context.Background(), site)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.InsertSite(context.Background(), site)
	require.NoError(t, err)
	assert.False(t, created, "existing site is left alone")
	db.AssertExpectations(t)
}

func TestReportRepository_UpdateData(t *testing.T) {
	db := new(mockDBTX)
	db.On("Exec", mock.Anything, sqlContaining("UPDATE Data"), []any{95, 60, 7, reportDate}).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	n, err := NewReportRepository(db).UpdateData(context.Background(), 7, reportDate,
		report.Sums{FirstShot: 95, SecondShot: 60})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestReportRepository_UpsertData(t *testing.T) {
	db := new(mockDBTX)
	db.On("QueryRow", mock.Anything, sqlContaining("ON CONFLICT (SiteId, Date) DO UPDATE"), []any{7, reportDate, 90, 60}).
		Return(boolRow(true))

	inserted, err := NewReportRepository(db).UpsertData(context.Background(), 7, reportDate,
		report.Sums{FirstShot: 90, SecondShot: 60})
	require.NoError(t, err)
	assert.True(t, inserted)
}

func TestReportRepository_UpsertData_UniqueViolation(t *testing.T) {
	db := new(mockDBTX)
	db.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).
		Return(&mockRow{scanErr: &pgconn.PgError{Code: "23505"}})

	_, err := NewReportRepository(db).UpsertData(context.Background(), 7, reportDate, report.Sums{})
	assert.Equal(t, types.ErrCodeConflictDuplicateReport, types.CodeOf(err))
}
