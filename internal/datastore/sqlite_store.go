package datastore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/h-sim/ai-change-watcher/internal/common"
	"github.com/h-sim/ai-change-watcher/internal/models"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS target_state (
	target_id TEXT PRIMARY KEY,
	snapshot TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	etag TEXT,
	last_modified TEXT,
	last_checked TEXT NOT NULL,
	last_changed TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS change_history (
	target_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	event TEXT NOT NULL,
	PRIMARY KEY (target_id, seq)
);
CREATE TABLE IF NOT EXISTS run_history (
	run_id TEXT PRIMARY KEY,
	started_at TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	committed INTEGER NOT NULL,
	new_count INTEGER NOT NULL DEFAULT 0,
	changed_count INTEGER NOT NULL DEFAULT 0,
	unchanged_count INTEGER NOT NULL DEFAULT 0,
	fetch_error_count INTEGER NOT NULL DEFAULT 0,
	degraded_count INTEGER NOT NULL DEFAULT 0,
	error TEXT
);
`

// SQLiteStore keeps state in a single SQLite database.
type SQLiteStore struct {
	db           *sql.DB
	historyLimit int
	logger       zerolog.Logger
}

// NewSQLiteStore opens (creating if needed) the database at path and
// ensures the schema.
func NewSQLiteStore(path string, historyLimit int, logger zerolog.Logger) (*SQLiteStore, error) {
	logger = logger.With().Str("component", "SQLiteStore").Logger()
	logger.Debug().Str("db_path", path).Msg("Opening state database")

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", filepath.Dir(path), err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sql.Open failed for %s: %w", path, err)
	}
	// One connection keeps the pragmas below in force for every statement.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db, historyLimit: historyLimit, logger: logger}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	for _, stmt := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		sqliteSchema,
	} {
		if _, err := s.db.Exec(stmt); err != nil {
			s.logger.Error().Err(err).Msg("Failed to prepare state database")
			return err
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, targetID string) (*models.StateRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT target_id, snapshot, fingerprint, etag, last_modified, last_checked, last_changed
		FROM target_state WHERE target_id = ?`, targetID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load state of '%s': %w", targetID, err)
	}

	history, err := s.loadHistory(ctx, targetID)
	if err != nil {
		return nil, err
	}
	rec.History = history
	return rec, nil
}

func (s *SQLiteStore) LoadAll(ctx context.Context) ([]models.StateRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT target_id, snapshot, fingerprint, etag, last_modified, last_checked, last_changed
		FROM target_state ORDER BY target_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query state: %w", err)
	}
	var records []models.StateRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to read state row: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range records {
		history, err := s.loadHistory(ctx, records[i].TargetID)
		if err != nil {
			return nil, err
		}
		records[i].History = history
	}
	return records, nil
}

func (s *SQLiteStore) loadHistory(ctx context.Context, targetID string) ([]models.ChangeEvent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT event FROM change_history WHERE target_id = ? ORDER BY seq`, targetID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history of '%s': %w", targetID, err)
	}
	defer rows.Close()

	var history []models.ChangeEvent
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var ev models.ChangeEvent
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			return nil, fmt.Errorf("corrupt history event of '%s': %w", targetID, err)
		}
		history = append(history, ev)
	}
	return history, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.StateRecord, error) {
	var (
		rec                      models.StateRecord
		etag, lastModified       sql.NullString
		lastChecked, lastChanged string
	)
	if err := row.Scan(&rec.TargetID, &rec.Snapshot, &rec.Fingerprint, &etag, &lastModified, &lastChecked, &lastChanged); err != nil {
		return nil, err
	}
	rec.ETag = etag.String
	rec.LastModified = lastModified.String

	var err error
	if rec.LastChecked, err = parseTimestamp(lastChecked); err != nil {
		return nil, err
	}
	if rec.LastChanged, err = parseTimestamp(lastChanged); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Commit writes the batch in one transaction. It ignores cancellation of
// ctx: once started the write completes or rolls back.
func (s *SQLiteStore) Commit(ctx context.Context, batch []models.StateRecord) error {
	ctx = context.WithoutCancel(ctx)

	prepared, err := prepareBatch(batch, s.historyLimit)
	if err != nil {
		return common.NewStateCommitError(BackendSQLite, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return common.NewStateCommitError(BackendSQLite, err)
	}
	if err := s.writeBatch(ctx, tx, prepared); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error().Err(rbErr).Msg("Failed to roll back state commit")
		}
		return common.NewStateCommitError(BackendSQLite, err)
	}
	if err := tx.Commit(); err != nil {
		return common.NewStateCommitError(BackendSQLite, err)
	}

	s.logger.Info().Int("records", len(prepared)).Msg("State committed")
	return nil
}

func (s *SQLiteStore) writeBatch(ctx context.Context, tx *sql.Tx, batch []models.StateRecord) error {
	for _, rec := range batch {
		_, err := tx.ExecContext(ctx, `INSERT INTO target_state
			(target_id, snapshot, fingerprint, etag, last_modified, last_checked, last_changed)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(target_id) DO UPDATE SET
				snapshot = excluded.snapshot,
				fingerprint = excluded.fingerprint,
				etag = excluded.etag,
				last_modified = excluded.last_modified,
				last_checked = excluded.last_checked,
				last_changed = excluded.last_changed`,
			rec.TargetID, rec.Snapshot, rec.Fingerprint,
			nullString(rec.ETag), nullString(rec.LastModified),
			formatTimestamp(rec.LastChecked), formatTimestamp(rec.LastChanged))
		if err != nil {
			return fmt.Errorf("failed to write state of '%s': %w", rec.TargetID, err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM change_history WHERE target_id = ?`, rec.TargetID); err != nil {
			return fmt.Errorf("failed to reset history of '%s': %w", rec.TargetID, err)
		}
		for seq, ev := range rec.History {
			raw, err := json.Marshal(ev)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO change_history (target_id, seq, event) VALUES (?, ?, ?)`,
				rec.TargetID, seq, string(raw)); err != nil {
				return fmt.Errorf("failed to write history of '%s': %w", rec.TargetID, err)
			}
		}
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, targetIDs ...string) error {
	if len(targetIDs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, id := range targetIDs {
		for _, stmt := range []string{
			`DELETE FROM change_history WHERE target_id = ?`,
			`DELETE FROM target_state WHERE target_id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
				tx.Rollback()
				return fmt.Errorf("failed to delete state of '%s': %w", id, err)
			}
		}
	}
	return tx.Commit()
}

// RecordRun stores the summary of a run.
func (s *SQLiteStore) RecordRun(ctx context.Context, run RunSummary) error {
	_, err := s.db.ExecContext(context.WithoutCancel(ctx), `INSERT OR REPLACE INTO run_history
		(run_id, started_at, finished_at, committed, new_count, changed_count, unchanged_count, fetch_error_count, degraded_count, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, formatTimestamp(run.StartedAt), formatTimestamp(run.FinishedAt), run.Committed,
		run.Counts.New, run.Counts.Changed, run.Counts.Unchanged, run.Counts.FetchError, run.Counts.Degraded,
		nullString(run.Error))
	if err != nil {
		s.logger.Error().Err(err).Str("run_id", run.RunID).Msg("Failed to record run")
		return fmt.Errorf("failed to record run %s: %w", run.RunID, err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *SQLiteStore) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT run_id, started_at, finished_at, committed,
		new_count, changed_count, unchanged_count, fetch_error_count, degraded_count, error
		FROM run_history ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query run history: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var (
			run               RunSummary
			started, finished string
			runErr            sql.NullString
		)
		if err := rows.Scan(&run.RunID, &started, &finished, &run.Committed,
			&run.Counts.New, &run.Counts.Changed, &run.Counts.Unchanged, &run.Counts.FetchError, &run.Counts.Degraded,
			&runErr); err != nil {
			return nil, err
		}
		if run.StartedAt, err = parseTimestamp(started); err != nil {
			return nil, err
		}
		if run.FinishedAt, err = parseTimestamp(finished); err != nil {
			return nil, err
		}
		run.Error = runErr.String
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// timestampLayout has fixed width so stored timestamps sort as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}
