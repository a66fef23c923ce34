package featureflags

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bbagrid/bbagrid/internal/database"
)

// PostgresRepository stores flags in the feature_flags table as JSONB.
type PostgresRepository struct {
	pool database.Pool
}

func NewPostgresRepository(pool database.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const listFlagsSQL = `SELECT key, value, updated_at FROM feature_flags ORDER BY key`

func (r *PostgresRepository) List(ctx context.Context) ([]Flag, error) {
	rows, err := r.pool.Query(ctx, listFlagsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing flags: %w", err)
	}

	flags, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Flag, error) {
		var (
			f   Flag
			raw []byte
		)
		if err := row.Scan(&f.Key, &raw, &f.UpdatedAt); err != nil {
			return Flag{}, err
		}
		if err := json.Unmarshal(raw, &f.Value); err != nil {
			return Flag{}, fmt.Errorf("flag %s: %w", f.Key, err)
		}
		return f, nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing flags: %w", err)
	}
	return flags, nil
}

// upsertFlagsSQL writes a whole batch in one statement, so it is atomic
// without an explicit transaction.
const upsertFlagsSQL = `
INSERT INTO feature_flags (key, value, updated_at)
SELECT k, v::jsonb, $3 FROM unnest($1::text[], $2::text[]) AS u(k, v)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`

func (r *PostgresRepository) Upsert(ctx context.Context, flags ...Flag) error {
	if len(flags) == 0 {
		return nil
	}

	keys := make([]string, len(flags))
	values := make([]string, len(flags))
	at := flags[0].UpdatedAt
	for i, f := range flags {
		raw, err := json.Marshal(f.Value)
		if err != nil {
			return fmt.Errorf("flag %s: %w", f.Key, err)
		}
		keys[i], values[i] = f.Key, string(raw)
		if f.UpdatedAt.After(at) {
			at = f.UpdatedAt
		}
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	if _, err := r.pool.Exec(ctx, upsertFlagsSQL, keys, values, at); err != nil {
		return fmt.Errorf("upserting flags: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, key string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM feature_flags WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("deleting flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFlagNotFound
	}
	return nil
}

var _ Repository = (*PostgresRepository)(nil)
