package device_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbagrid/bbagrid/internal/device"
	"github.com/bbagrid/bbagrid/internal/grid"
	"github.com/bbagrid/bbagrid/internal/poll"
)

func newMockRepo(t *testing.T) (*device.PostgresRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return device.NewPostgresRepository(mock), mock
}

func TestPostgresRepository_GetNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("FROM devices WHERE id").
		WithArgs("dev_missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.Get(context.Background(), "dev_missing")
	assert.ErrorIs(t, err, device.ErrDeviceNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_Create(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO devices").
		WithArgs("dev_1", "walker", "BACKGROUND", now, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.Create(context.Background(), &device.Device{
		ID:        "dev_1",
		Name:      "walker",
		Mode:      poll.ModeBackground,
		CreatedAt: now,
		UpdatedAt: now,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_UpdateMissing(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec("UPDATE devices SET").
		WithArgs("dev_1", "walker", "FOREGROUND", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.Update(context.Background(), &device.Device{ID: "dev_1", Name: "walker", Mode: poll.ModeForeground, UpdatedAt: now})
	assert.ErrorIs(t, err, device.ErrDeviceNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_Delete(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("DELETE FROM devices").
		WithArgs("dev_1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("DELETE FROM devices").
		WithArgs("dev_1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.NoError(t, repo.Delete(context.Background(), "dev_1"))
	assert.ErrorIs(t, repo.Delete(context.Background(), "dev_1"), device.ErrDeviceNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_FixesUnknownDevice(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("dev_missing").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	_, err := repo.Fixes(context.Background(), "dev_missing", 10)
	assert.ErrorIs(t, err, device.ErrDeviceNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

var deviceRowColumns = []string{
	"id", "name", "mode", "last_lat", "last_lon", "last_accuracy", "last_altitude",
	"last_block_row", "last_block_col", "last_fix_at", "created_at", "updated_at",
}

func ptr[T any](v T) *T { return &v }

func TestPostgresRepository_AppendFix(t *testing.T) {
	t0 := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	created := t0.Add(-time.Hour)
	fix := &device.Fix{Lat: 35.962, Lon: -106.385, Block: &grid.BlockID{Row: 1, Col: 1}, RecordedAt: t0}

	t.Run("first fix becomes last fix", func(t *testing.T) {
		repo, mock := newMockRepo(t)

		mock.ExpectBegin()
		mock.ExpectQuery("FROM devices WHERE id = \\$1 FOR UPDATE").
			WithArgs("dev_1").
			WillReturnRows(pgxmock.NewRows(deviceRowColumns).AddRow(
				"dev_1", "walker", "FOREGROUND",
				(*float64)(nil), (*float64)(nil), (*float64)(nil), (*float64)(nil),
				(*int)(nil), (*int)(nil), (*time.Time)(nil), created, created))
		mock.ExpectExec("UPDATE devices SET").
			WithArgs("dev_1", fix.Lat, fix.Lon, (*float64)(nil), (*float64)(nil), ptr(1), ptr(1), t0).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec("INSERT INTO device_fixes").
			WithArgs("dev_1", fix.Lat, fix.Lon, (*float64)(nil), (*float64)(nil), ptr(1), ptr(1), t0).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		appended, err := repo.AppendFix(context.Background(), "dev_1", fix)
		require.NoError(t, err)
		assert.True(t, appended.Latest)
		assert.Nil(t, appended.Previous)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("late fix is only inserted", func(t *testing.T) {
		repo, mock := newMockRepo(t)

		mock.ExpectBegin()
		mock.ExpectQuery("FOR UPDATE").
			WithArgs("dev_1").
			WillReturnRows(pgxmock.NewRows(deviceRowColumns).AddRow(
				"dev_1", "walker", "FOREGROUND",
				ptr(35.962), ptr(-106.357), (*float64)(nil), (*float64)(nil),
				ptr(1), ptr(2), ptr(t0.Add(time.Minute)), created, t0.Add(time.Minute)))
		mock.ExpectExec("INSERT INTO device_fixes").
			WithArgs("dev_1", fix.Lat, fix.Lon, (*float64)(nil), (*float64)(nil), ptr(1), ptr(1), t0).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		appended, err := repo.AppendFix(context.Background(), "dev_1", fix)
		require.NoError(t, err)
		assert.False(t, appended.Latest)
		assert.Equal(t, &grid.BlockID{Row: 1, Col: 2}, appended.PreviousBlock())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown device", func(t *testing.T) {
		repo, mock := newMockRepo(t)

		mock.ExpectBegin()
		mock.ExpectQuery("FOR UPDATE").
			WithArgs("dev_missing").
			WillReturnError(pgx.ErrNoRows)
		mock.ExpectRollback()

		_, err := repo.AppendFix(context.Background(), "dev_missing", fix)
		assert.ErrorIs(t, err, device.ErrDeviceNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresRepository_FixesOrderedByRecordedAt(t *testing.T) {
	repo, mock := newMockRepo(t)
	t0 := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("dev_1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("ORDER BY recorded_at DESC").
		WithArgs("dev_1", 2).
		WillReturnRows(pgxmock.NewRows([]string{"lat", "lon", "accuracy", "altitude", "block_row", "block_col", "recorded_at"}).
			AddRow(35.962, -106.357, (*float64)(nil), (*float64)(nil), ptr(1), ptr(2), t0.Add(time.Minute)).
			AddRow(35.962, -106.385, (*float64)(nil), (*float64)(nil), ptr(1), ptr(1), t0))

	fixes, err := repo.Fixes(context.Background(), "dev_1", 2)
	require.NoError(t, err)
	require.Len(t, fixes, 2)
	assert.Equal(t, t0, fixes[0].RecordedAt, "oldest first")
	assert.Equal(t, "12", fixes[1].Block.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}
