package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/termsheet-validation/backend/internal/storage/models"
	"github.com/termsheet-validation/backend/internal/validation"
	"github.com/termsheet-validation/backend/internal/versioning"
)

var (
	_ versioning.Store       = (*Store)(nil)
	_ validation.RunRecorder = (*Store)(nil)
)

type Store struct {
	pool *Pool
}

func NewStore(pool *Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) SnapshotIDs(ctx context.Context, tradeID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT snapshot_id FROM trade_versions WHERE trade_id = $1 ORDER BY version`, tradeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan snapshots: %w", err)
	}
	return ids, nil
}

func (s *Store) Latest(ctx context.Context, tradeID string) (*versioning.Snapshot, error) {
	query := `
		SELECT v.trade_id, v.version, v.snapshot_id, v.source, v.data::text, v.created_at
		FROM trade_latest l
		JOIN trade_versions v ON v.trade_id = l.trade_id AND v.version = l.version
		WHERE l.trade_id = $1
	`
	return scanSnapshot(s.pool.QueryRow(ctx, query, tradeID))
}

func (s *Store) Append(ctx context.Context, snap *versioning.Snapshot, diff *versioning.Diff) error {
	row, err := models.NewTradeVersion(snap)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO trade_versions (trade_id, version, snapshot_id, source, data, created_at) VALUES ($1, $2, $3, $4, $5::jsonb, $6)`,
		row.TradeID, row.Version, row.SnapshotID, row.Source, row.Data, row.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return versioning.ErrDuplicateVersion
		}
		return fmt.Errorf("failed to insert version: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO trade_latest (trade_id, version, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (trade_id) DO UPDATE SET version = EXCLUDED.version, updated_at = EXCLUDED.updated_at
	`, row.TradeID, row.Version, row.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to move latest pointer: %w", err)
	}

	if diff != nil {
		d, err := models.NewTradeDiff(diff)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO trade_diffs (trade_id, from_version, version, added, removed, modified, created_at)
			VALUES ($1, $2, $3, $4::jsonb, $5::jsonb, $6::jsonb, $7)
			ON CONFLICT (trade_id) DO UPDATE SET
				from_version = EXCLUDED.from_version,
				version = EXCLUDED.version,
				added = EXCLUDED.added,
				removed = EXCLUDED.removed,
				modified = EXCLUDED.modified,
				created_at = EXCLUDED.created_at
		`, d.TradeID, d.FromVersion, d.Version, d.Added, d.Removed, d.Modified, d.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to store diff: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit version: %w", err)
	}
	return nil
}

func (s *Store) Version(ctx context.Context, tradeID string, version int) (*versioning.Snapshot, error) {
	query := `SELECT trade_id, version, snapshot_id, source, data::text, created_at FROM trade_versions WHERE trade_id = $1 AND version = $2`
	return scanSnapshot(s.pool.QueryRow(ctx, query, tradeID, version))
}

func (s *Store) Versions(ctx context.Context, tradeID string) ([]*versioning.Snapshot, error) {
	query := `SELECT trade_id, version, snapshot_id, source, data::text, created_at FROM trade_versions WHERE trade_id = $1 ORDER BY version`

	rows, err := s.pool.Query(ctx, query, tradeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	var snapshots []*versioning.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate versions: %w", err)
	}
	if len(snapshots) == 0 {
		return nil, versioning.ErrNotFound
	}
	return snapshots, nil
}

func (s *Store) Diff(ctx context.Context, tradeID string) (*versioning.Diff, error) {
	query := `SELECT trade_id, from_version, version, added::text, removed::text, modified::text, created_at FROM trade_diffs WHERE trade_id = $1`

	var row models.TradeDiff
	err := s.pool.QueryRow(ctx, query, tradeID).Scan(
		&row.TradeID,
		&row.FromVersion,
		&row.Version,
		&row.Added,
		&row.Removed,
		&row.Modified,
		&row.CreatedAt,
	)
	if isNotFoundError(err) {
		return nil, versioning.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get diff: %w", err)
	}
	return row.Diff()
}

func (s *Store) TradeIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT trade_id FROM trade_latest ORDER BY trade_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan trades: %w", err)
	}
	return ids, nil
}

func (s *Store) RecordRun(ctx context.Context, run validation.Run) error {
	row := models.NewValidationRun(run)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO validation_runs (id, trade_id, derivative_type, valid, anomaly_count, status, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		row.ID, row.TradeID, row.DerivativeType, row.Valid, row.AnomalyCount, row.Status, row.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert validation run: %w", err)
	}
	return nil
}

func (s *Store) RunStats(ctx context.Context) (*validation.Stats, error) {
	query := `
		SELECT derivative_type,
			COUNT(*)::int,
			COUNT(*) FILTER (WHERE valid)::int,
			COUNT(*) FILTER (WHERE status = 404)::int
		FROM validation_runs
		GROUP BY derivative_type
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate validation runs: %w", err)
	}
	defer rows.Close()

	var byType []validation.TypeStats
	for rows.Next() {
		var ts validation.TypeStats
		if err := rows.Scan(&ts.Type, &ts.Total, &ts.Valid, &ts.NotFound); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		byType = append(byType, ts)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate validation runs: %w", err)
	}
	return validation.NewStats(byType), nil
}

func scanSnapshot(row pgx.Row) (*versioning.Snapshot, error) {
	var r models.TradeVersion
	err := row.Scan(&r.TradeID, &r.Version, &r.SnapshotID, &r.Source, &r.Data, &r.CreatedAt)
	if isNotFoundError(err) {
		return nil, versioning.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan snapshot: %w", err)
	}
	return r.Snapshot()
}
