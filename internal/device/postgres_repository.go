package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bbagrid/bbagrid/internal/database"
	"github.com/bbagrid/bbagrid/internal/grid"
	"github.com/bbagrid/bbagrid/internal/poll"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool database.Pool
}

// NewPostgresRepository creates a new PostgreSQL device repository.
func NewPostgresRepository(pool database.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const deviceColumns = `id, name, mode, last_lat, last_lon, last_accuracy, last_altitude,
	last_block_row, last_block_col, last_fix_at, created_at, updated_at`

// Get retrieves a device by ID.
func (r *PostgresRepository) Get(ctx context.Context, deviceID string) (*Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE id = $1`

	device, err := scanDevice(r.pool.QueryRow(ctx, query, deviceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, err
	}
	return device, nil
}

// scanDevice scans a single device row. The last fix columns are nullable.
func scanDevice(row pgx.Row) (*Device, error) {
	var (
		device             Device
		mode               string
		lat, lon           *float64
		accuracy, altitude *float64
		blockRow, blockCol *int
		fixAt              *time.Time
	)

	err := row.Scan(
		&device.ID,
		&device.Name,
		&mode,
		&lat,
		&lon,
		&accuracy,
		&altitude,
		&blockRow,
		&blockCol,
		&fixAt,
		&device.CreatedAt,
		&device.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	device.Mode = poll.Mode(mode)
	if lat != nil && lon != nil && fixAt != nil {
		device.LastFix = &Fix{
			Lat:        *lat,
			Lon:        *lon,
			Accuracy:   accuracy,
			Altitude:   altitude,
			Block:      blockID(blockRow, blockCol),
			RecordedAt: *fixAt,
		}
	}
	return &device, nil
}

func blockID(row, col *int) *grid.BlockID {
	if row == nil || col == nil {
		return nil
	}
	return &grid.BlockID{Row: *row, Col: *col}
}

func blockColumns(id *grid.BlockID) (row, col *int) {
	if id == nil {
		return nil, nil
	}
	return &id.Row, &id.Col
}

// List retrieves devices ordered by creation time, newest first.
func (r *PostgresRepository) List(ctx context.Context, opts ListOptions) (*ListResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	fetchLimit := limit + 1

	var (
		rows pgx.Rows
		err  error
	)
	if opts.Cursor == "" {
		rows, err = r.pool.Query(ctx, `
			SELECT `+deviceColumns+`
			FROM devices
			ORDER BY created_at DESC, id DESC
			LIMIT $1
		`, fetchLimit)
	} else {
		rows, err = r.pool.Query(ctx, `
			SELECT `+deviceColumns+`
			FROM devices
			WHERE (created_at, id) < (SELECT created_at, id FROM devices WHERE id = $1)
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		`, opts.Cursor, fetchLimit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []*Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, device)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := &ListResult{
		Items: devices,
	}

	if len(devices) > limit {
		result.Items = devices[:limit]
		result.NextCursor = devices[limit-1].ID
	}

	return result, nil
}

// Create creates a new device.
func (r *PostgresRepository) Create(ctx context.Context, device *Device) error {
	query := `
		INSERT INTO devices (id, name, mode, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.pool.Exec(ctx, query,
		device.ID,
		device.Name,
		string(device.Mode),
		device.CreatedAt,
		device.UpdatedAt,
	)
	return err
}

// Update updates an existing device's name and mode.
func (r *PostgresRepository) Update(ctx context.Context, device *Device) error {
	query := `
		UPDATE devices SET
			name = $2,
			mode = $3,
			updated_at = $4
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query,
		device.ID,
		device.Name,
		string(device.Mode),
		device.UpdatedAt,
	)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return ErrDeviceNotFound
	}

	return nil
}

// Delete deletes a device. Fixes are removed by the foreign key cascade.
func (r *PostgresRepository) Delete(ctx context.Context, deviceID string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM devices WHERE id = $1`, deviceID)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return ErrDeviceNotFound
	}

	return nil
}

// AppendFix stores a fix and makes it the device's last fix unless it was
// taken before the current one. The device row is locked for the
// transaction so concurrent appends see each other's fixes in order.
func (r *PostgresRepository) AppendFix(ctx context.Context, deviceID string, fix *Fix) (*Appended, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := scanDevice(tx.QueryRow(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE id = $1 FOR UPDATE`, deviceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, err
	}

	appended := &Appended{Previous: current.LastFix}
	row, col := blockColumns(fix.Block)

	if supersedes(fix, current.LastFix) {
		result, err := tx.Exec(ctx, `
			UPDATE devices SET
				last_lat = $2,
				last_lon = $3,
				last_accuracy = $4,
				last_altitude = $5,
				last_block_row = $6,
				last_block_col = $7,
				last_fix_at = $8,
				updated_at = $8
			WHERE id = $1 AND (last_fix_at IS NULL OR last_fix_at <= $8)
		`, deviceID, fix.Lat, fix.Lon, fix.Accuracy, fix.Altitude, row, col, fix.RecordedAt)
		if err != nil {
			return nil, err
		}
		appended.Latest = result.RowsAffected() > 0
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO device_fixes (device_id, lat, lon, accuracy, altitude, block_row, block_col, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, deviceID, fix.Lat, fix.Lon, fix.Accuracy, fix.Altitude, row, col, fix.RecordedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return appended, nil
}

// Fixes returns up to limit of the most recently taken fixes, oldest first.
func (r *PostgresRepository) Fixes(ctx context.Context, deviceID string, limit int) ([]*Fix, error) {
	if limit <= 0 {
		limit = DefaultFixRetention
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM devices WHERE id = $1)`, deviceID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrDeviceNotFound
	}

	rows, err := r.pool.Query(ctx, `
		SELECT lat, lon, accuracy, altitude, block_row, block_col, recorded_at
		FROM device_fixes
		WHERE device_id = $1
		ORDER BY recorded_at DESC, id DESC
		LIMIT $2
	`, deviceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fixes []*Fix
	for rows.Next() {
		var (
			fix                Fix
			blockRow, blockCol *int
		)
		if err := rows.Scan(&fix.Lat, &fix.Lon, &fix.Accuracy, &fix.Altitude, &blockRow, &blockCol, &fix.RecordedAt); err != nil {
			return nil, err
		}
		fix.Block = blockID(blockRow, blockCol)
		fixes = append(fixes, &fix)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(fixes)-1; i < j; i, j = i+1, j-1 {
		fixes[i], fixes[j] = fixes[j], fixes[i]
	}
	return fixes, nil
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
