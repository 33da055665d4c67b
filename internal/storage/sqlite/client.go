package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/termsheet-validation/backend/internal/storage/models"
	"github.com/termsheet-validation/backend/internal/validation"
	"github.com/termsheet-validation/backend/internal/versioning"
	"github.com/termsheet-validation/backend/pkg/logger"
)

var (
	_ versioning.Store       = (*Client)(nil)
	_ validation.RunRecorder = (*Client)(nil)
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	_, err = db.Exec("PRAGMA busy_timeout = 5000")
	if err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS trade_versions (
		trade_id TEXT NOT NULL,
		version INTEGER NOT NULL,
		snapshot_id TEXT NOT NULL,
		source TEXT,
		data TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (trade_id, version)
	);
	CREATE INDEX IF NOT EXISTS idx_versions_created ON trade_versions(created_at);

	CREATE TABLE IF NOT EXISTS trade_latest (
		trade_id TEXT PRIMARY KEY,
		version INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		FOREIGN KEY (trade_id, version) REFERENCES trade_versions(trade_id, version)
	);

	CREATE TABLE IF NOT EXISTS trade_diffs (
		trade_id TEXT PRIMARY KEY,
		from_version INTEGER NOT NULL,
		version INTEGER NOT NULL,
		added TEXT NOT NULL,
		removed TEXT NOT NULL,
		modified TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (trade_id, version) REFERENCES trade_versions(trade_id, version)
	);

	CREATE TABLE IF NOT EXISTS validation_runs (
		id TEXT PRIMARY KEY,
		trade_id TEXT NOT NULL,
		derivative_type TEXT NOT NULL,
		valid INTEGER NOT NULL,
		anomaly_count INTEGER NOT NULL,
		status INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_trade ON validation_runs(trade_id);
	CREATE INDEX IF NOT EXISTS idx_runs_type ON validation_runs(derivative_type);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) SnapshotIDs(ctx context.Context, tradeID string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT snapshot_id FROM trade_versions WHERE trade_id = ? ORDER BY version`, tradeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (c *Client) Latest(ctx context.Context, tradeID string) (*versioning.Snapshot, error) {
	query := `
		SELECT v.trade_id, v.version, v.snapshot_id, v.source, v.data, v.created_at
		FROM trade_latest l
		JOIN trade_versions v ON v.trade_id = l.trade_id AND v.version = l.version
		WHERE l.trade_id = ?
	`
	return c.scanSnapshot(c.db.QueryRowContext(ctx, query, tradeID))
}

// Append writes the version, the latest pointer and the diff in one
// transaction.
func (c *Client) Append(ctx context.Context, snap *versioning.Snapshot, diff *versioning.Diff) error {
	row, err := models.NewTradeVersion(snap)
	if err != nil {
		return err
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO trade_versions (trade_id, version, snapshot_id, source, data, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		row.TradeID, row.Version, row.SnapshotID, row.Source, row.Data, row.CreatedAt,
	)
	if err != nil {
		if isConstraintError(err) {
			return versioning.ErrDuplicateVersion
		}
		return fmt.Errorf("failed to insert version: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO trade_latest (trade_id, version, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(trade_id) DO UPDATE SET
			version = excluded.version,
			updated_at = excluded.updated_at
	`, row.TradeID, row.Version, row.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to move latest pointer: %w", err)
	}

	if diff != nil {
		d, err := models.NewTradeDiff(diff)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO trade_diffs (trade_id, from_version, version, added, removed, modified, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(trade_id) DO UPDATE SET
				from_version = excluded.from_version,
				version = excluded.version,
				added = excluded.added,
				removed = excluded.removed,
				modified = excluded.modified,
				created_at = excluded.created_at
		`, d.TradeID, d.FromVersion, d.Version, d.Added, d.Removed, d.Modified, d.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to store diff: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit version: %w", err)
	}

	logger.Debug("Trade version stored", zap.String("trade_id", snap.TradeID), zap.Int("version", snap.Version))
	return nil
}

func (c *Client) Version(ctx context.Context, tradeID string, version int) (*versioning.Snapshot, error) {
	query := `SELECT trade_id, version, snapshot_id, source, data, created_at FROM trade_versions WHERE trade_id = ? AND version = ?`
	return c.scanSnapshot(c.db.QueryRowContext(ctx, query, tradeID, version))
}

func (c *Client) Versions(ctx context.Context, tradeID string) ([]*versioning.Snapshot, error) {
	query := `SELECT trade_id, version, snapshot_id, source, data, created_at FROM trade_versions WHERE trade_id = ? ORDER BY version`

	rows, err := c.db.QueryContext(ctx, query, tradeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	var snapshots []*versioning.Snapshot
	for rows.Next() {
		snap, err := c.scanSnapshot(rows)
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

func (c *Client) Diff(ctx context.Context, tradeID string) (*versioning.Diff, error) {
	query := `SELECT trade_id, from_version, version, added, removed, modified, created_at FROM trade_diffs WHERE trade_id = ?`

	var row models.TradeDiff
	err := c.db.QueryRowContext(ctx, query, tradeID).Scan(
		&row.TradeID,
		&row.FromVersion,
		&row.Version,
		&row.Added,
		&row.Removed,
		&row.Modified,
		&row.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, versioning.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get diff: %w", err)
	}
	return row.Diff()
}

func (c *Client) TradeIDs(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT trade_id FROM trade_latest ORDER BY trade_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (c *Client) RecordRun(ctx context.Context, run validation.Run) error {
	row := models.NewValidationRun(run)

	valid := 0
	if row.Valid {
		valid = 1
	}

	_, err := c.db.ExecContext(ctx,
		`INSERT INTO validation_runs (id, trade_id, derivative_type, valid, anomaly_count, status, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		row.ID, row.TradeID, row.DerivativeType, valid, row.AnomalyCount, row.Status, row.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert validation run: %w", err)
	}
	return nil
}

func (c *Client) RunStats(ctx context.Context) (*validation.Stats, error) {
	query := `
		SELECT derivative_type,
			COUNT(*),
			COALESCE(SUM(valid), 0),
			COALESCE(SUM(CASE WHEN status = 404 THEN 1 ELSE 0 END), 0)
		FROM validation_runs
		GROUP BY derivative_type
	`

	rows, err := c.db.QueryContext(ctx, query)
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

type scanner interface {
	Scan(dest ...any) error
}

func (c *Client) scanSnapshot(s scanner) (*versioning.Snapshot, error) {
	var (
		row    models.TradeVersion
		source sql.NullString
	)
	err := s.Scan(&row.TradeID, &row.Version, &row.SnapshotID, &source, &row.Data, &row.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, versioning.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan snapshot: %w", err)
	}
	row.Source = source.String
	return row.Snapshot()
}

func isConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}
