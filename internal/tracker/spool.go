package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/bbagrid/bbagrid/internal/locator"
)

// DefaultSpoolMax caps the number of spooled fixes.
const DefaultSpoolMax = 10000

// SpooledFix is a fix waiting for delivery.
type SpooledFix struct {
	ID  int64
	Fix locator.Fix
}

// Spool is a SQLite-backed FIFO of undelivered fixes.
type Spool struct {
	db  *sql.DB
	max int
}

// OpenSpool opens or creates the spool at path. ":memory:" is accepted.
func OpenSpool(ctx context.Context, path string, max int) (*Spool, error) {
	if max <= 0 {
		max = DefaultSpoolMax
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open spool: %w", err)
	}
	// SQLite serialises writers; one connection also keeps ":memory:" shared.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS spooled_fixes (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			lat         REAL NOT NULL,
			lon         REAL NOT NULL,
			accuracy    REAL,
			altitude    REAL,
			recorded_at INTEGER NOT NULL
		)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create spool table: %w", err)
	}

	return &Spool{db: db, max: max}, nil
}

// Push appends fix, dropping the oldest entries beyond the cap.
func (s *Spool) Push(ctx context.Context, fix locator.Fix) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO spooled_fixes (lat, lon, accuracy, altitude, recorded_at) VALUES (?, ?, ?, ?, ?)`,
		fix.Lat, fix.Lon, nullFloat(fix.Accuracy), nullFloat(fix.Altitude), fix.RecordedAt.UnixNano(),
	); err != nil {
		return fmt.Errorf("spool fix: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM spooled_fixes
		WHERE id NOT IN (SELECT id FROM spooled_fixes ORDER BY id DESC LIMIT ?)`, s.max); err != nil {
		return fmt.Errorf("trim spool: %w", err)
	}
	return nil
}

// Peek returns up to limit of the oldest fixes without removing them.
func (s *Spool) Peek(ctx context.Context, limit int) ([]SpooledFix, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, lat, lon, accuracy, altitude, recorded_at FROM spooled_fixes ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("read spool: %w", err)
	}
	defer rows.Close()

	var out []SpooledFix
	for rows.Next() {
		var (
			sf                 SpooledFix
			accuracy, altitude sql.NullFloat64
			recordedAt         int64
		)
		if err := rows.Scan(&sf.ID, &sf.Fix.Lat, &sf.Fix.Lon, &accuracy, &altitude, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan spool: %w", err)
		}
		sf.Fix.Accuracy = floatPtr(accuracy)
		sf.Fix.Altitude = floatPtr(altitude)
		sf.Fix.RecordedAt = time.Unix(0, recordedAt).UTC()
		out = append(out, sf)
	}
	return out, rows.Err()
}

// Remove deletes a delivered fix.
func (s *Spool) Remove(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM spooled_fixes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("remove spooled fix: %w", err)
	}
	return nil
}

// Len returns the number of spooled fixes.
func (s *Spool) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM spooled_fixes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count spool: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *Spool) Close() error {
	return s.db.Close()
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
