package dataset

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added index on actions.deal_id
const currentSchemaVersion = 1

// ErrNoSnapshot is returned when the store holds no snapshots yet.
var ErrNoSnapshot = errors.New("no snapshot in store")

// Store provides durable storage for data set snapshots and the action
// log. Uses SQLite with WAL mode for concurrent read access.
type Store struct {
	db *sql.DB
}

// SnapshotInfo describes one stored snapshot without its payload.
type SnapshotInfo struct {
	ID        string
	CreatedAt time.Time
}

// ActionRecord is one persisted row of a run's action log. The engine
// converts its in-memory actions to this shape before writing; the trace
// commands read it back.
type ActionRecord struct {
	RunID      string
	Seq        int
	Type       string
	DealID     string
	Properties map[string]string
	Reason     string
}

// Open creates or opens a SQLite database at the given path, applying
// required pragmas and migrations. Idempotent.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//   - foreign key enforcement
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveSnapshot stores a data set under the given id. Duplicate ids are
// silently ignored (ON CONFLICT DO NOTHING), so retrying a download loop
// never double-writes.
func (s *Store) SaveSnapshot(ctx context.Context, id string, createdAt time.Time, ds *DataSet) error {
	payload, err := json.Marshal(ds)
	if err != nil {
		return fmt.Errorf("save snapshot: marshal: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (id, created_at, dataset)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, createdAt.UTC().Format(time.RFC3339Nano), payload)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot returns the data set stored under id.
func (s *Store) LoadSnapshot(ctx context.Context, id string) (*DataSet, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT dataset FROM snapshots WHERE id = ?
	`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load snapshot %q: %w", id, ErrNoSnapshot)
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %q: %w", id, err)
	}
	return unmarshalDataSet(payload)
}

// LoadLatest returns the most recent snapshot. Ordering ties on
// created_at break by id, which is time-ordered (UUIDv7).
func (s *Store) LoadLatest(ctx context.Context) (string, *DataSet, error) {
	var (
		id      string
		payload []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, dataset FROM snapshots
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`).Scan(&id, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil, ErrNoSnapshot
	}
	if err != nil {
		return "", nil, fmt.Errorf("load latest snapshot: %w", err)
	}
	ds, err := unmarshalDataSet(payload)
	if err != nil {
		return "", nil, err
	}
	return id, ds, nil
}

// ListSnapshots returns all snapshots, oldest first.
func (s *Store) ListSnapshots(ctx context.Context) ([]SnapshotInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at FROM snapshots
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var infos []SnapshotInfo
	for rows.Next() {
		var (
			info SnapshotInfo
			ts   string
		)
		if err := rows.Scan(&info.ID, &ts); err != nil {
			return nil, fmt.Errorf("list snapshots: scan: %w", err)
		}
		info.CreatedAt, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("list snapshots: parse created_at %q: %w", ts, err)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return infos, nil
}

// PruneSnapshots deletes all but the keep most recent snapshots and
// returns the number deleted.
func (s *Store) PruneSnapshots(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		return 0, fmt.Errorf("prune snapshots: keep must be >= 0, got %d", keep)
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM snapshots WHERE id NOT IN (
			SELECT id FROM snapshots
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: rows affected: %w", err)
	}
	return deleted, nil
}

// WriteAction appends one action-log row. Duplicate (run_id, seq) pairs
// are silently ignored so that a retried run never double-logs.
func (s *Store) WriteAction(ctx context.Context, rec ActionRecord) error {
	props, err := MarshalProperties(rec.Properties)
	if err != nil {
		return fmt.Errorf("write action: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO actions (run_id, seq, type, deal_id, properties, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`,
		rec.RunID,
		rec.Seq,
		rec.Type,
		rec.DealID,
		string(props),
		rec.Reason,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("write action: %w", err)
	}
	return nil
}

// ReadActions returns a run's action log in sequence order.
func (s *Store) ReadActions(ctx context.Context, runID string) ([]ActionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, type, deal_id, properties, reason
		FROM actions
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("read actions: %w", err)
	}
	defer rows.Close()

	var recs []ActionRecord
	for rows.Next() {
		var (
			rec   ActionRecord
			props string
		)
		if err := rows.Scan(&rec.RunID, &rec.Seq, &rec.Type, &rec.DealID, &props, &rec.Reason); err != nil {
			return nil, fmt.Errorf("read actions: scan: %w", err)
		}
		rec.Properties, err = UnmarshalProperties([]byte(props))
		if err != nil {
			return nil, fmt.Errorf("read actions: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read actions: %w", err)
	}
	return recs, nil
}

func unmarshalDataSet(payload []byte) (*DataSet, error) {
	var ds DataSet
	if err := json.Unmarshal(payload, &ds); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &ds, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// Idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
		version = 1
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// migrateToV1 adds the deal id index for databases created before the
// trace command could filter by deal.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_actions_deal
		ON actions(deal_id)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}
