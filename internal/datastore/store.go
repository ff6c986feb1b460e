// Package datastore persists per-target state. Every backend commits a
// batch of records atomically: either all of them are written or none.
package datastore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/h-sim/ai-change-watcher/internal/common"
	"github.com/h-sim/ai-change-watcher/internal/config"
	"github.com/h-sim/ai-change-watcher/internal/models"
	"github.com/rs/zerolog"
)

const (
	BackendSQLite  = "sqlite"
	BackendParquet = "parquet"
)

// Store is the persisted state of all targets.
type Store interface {
	// Load returns the record of targetID, or (nil, nil) when none exists.
	Load(ctx context.Context, targetID string) (*models.StateRecord, error)
	// LoadAll returns every record sorted by target ID.
	LoadAll(ctx context.Context) ([]models.StateRecord, error)
	// Commit writes batch atomically. Failures are *common.StateCommitError.
	Commit(ctx context.Context, batch []models.StateRecord) error
	// Delete removes the records of the given targets.
	Delete(ctx context.Context, targetIDs ...string) error
	Close() error
}

// RunSummary is the bookkeeping row of one pipeline run.
type RunSummary struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Counts     models.RunCounts
	Committed  bool
	Error      string
}

// RunRecorder is implemented by backends that keep a run log.
type RunRecorder interface {
	RecordRun(ctx context.Context, run RunSummary) error
	RecentRuns(ctx context.Context, limit int) ([]RunSummary, error)
}

// Open creates the store selected by cfg.
func Open(cfg config.StorageConfig, logger zerolog.Logger) (Store, error) {
	path := cfg.ResolvedPath()
	limit := cfg.HistoryLimit
	if limit <= 0 {
		limit = models.DefaultHistoryLimit
	}

	switch cfg.BackendName() {
	case BackendSQLite:
		return NewSQLiteStore(path, limit, logger)
	case BackendParquet:
		return NewParquetStore(path, limit, cfg.CompressionCodec, logger)
	default:
		return nil, common.NewValidationError("backend", cfg.Backend, "unknown storage backend")
	}
}

// prepareBatch validates every record, bounds its history and orders the
// batch by target ID. Nothing is written when any record is invalid.
func prepareBatch(batch []models.StateRecord, historyLimit int) ([]models.StateRecord, error) {
	prepared := make([]models.StateRecord, 0, len(batch))
	seen := make(map[string]bool, len(batch))
	for i := range batch {
		rec := batch[i].Clone()
		if err := rec.Validate(); err != nil {
			return nil, err
		}
		if seen[rec.TargetID] {
			return nil, fmt.Errorf("target '%s' appears twice in batch", rec.TargetID)
		}
		seen[rec.TargetID] = true
		rec.TrimHistory(historyLimit)
		prepared = append(prepared, *rec)
	}
	sort.Slice(prepared, func(i, j int) bool { return prepared[i].TargetID < prepared[j].TargetID })
	return prepared, nil
}
