package datastore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/h-sim/ai-change-watcher/internal/common"
	"github.com/h-sim/ai-change-watcher/internal/models"
	"github.com/parquet-go/parquet-go"
	"github.com/rs/zerolog"
)

// maxStateFileSize bounds how much of a state file is read into memory.
const maxStateFileSize int64 = 512 * 1024 * 1024

// parquetStateRow is the on-disk schema of one target. Timestamps are
// Unix nanoseconds; history is stored as a JSON array.
type parquetStateRow struct {
	TargetID     string  `parquet:"target_id"`
	Snapshot     string  `parquet:"snapshot"`
	Fingerprint  string  `parquet:"fingerprint"`
	ETag         *string `parquet:"etag,optional"`
	LastModified *string `parquet:"last_modified,optional"`
	LastChecked  *int64  `parquet:"last_checked,optional"`
	LastChanged  *int64  `parquet:"last_changed,optional"`
	HistoryJSON  string  `parquet:"history_json"`
}

func toParquetRow(rec models.StateRecord) (parquetStateRow, error) {
	history, err := json.Marshal(rec.History)
	if err != nil {
		return parquetStateRow{}, err
	}
	return parquetStateRow{
		TargetID:     rec.TargetID,
		Snapshot:     rec.Snapshot,
		Fingerprint:  rec.Fingerprint,
		ETag:         optionalString(rec.ETag),
		LastModified: optionalString(rec.LastModified),
		LastChecked:  models.TimeToUnixNanoOptional(rec.LastChecked),
		LastChanged:  models.TimeToUnixNanoOptional(rec.LastChanged),
		HistoryJSON:  string(history),
	}, nil
}

func (r parquetStateRow) toRecord() (models.StateRecord, error) {
	rec := models.StateRecord{
		TargetID:    r.TargetID,
		Snapshot:    r.Snapshot,
		Fingerprint: r.Fingerprint,
		LastChecked: models.UnixNanoToTimeOptional(r.LastChecked),
		LastChanged: models.UnixNanoToTimeOptional(r.LastChanged),
	}
	if r.ETag != nil {
		rec.ETag = *r.ETag
	}
	if r.LastModified != nil {
		rec.LastModified = *r.LastModified
	}
	if r.HistoryJSON != "" && r.HistoryJSON != "null" {
		if err := json.Unmarshal([]byte(r.HistoryJSON), &rec.History); err != nil {
			return models.StateRecord{}, fmt.Errorf("corrupt history of '%s': %w", r.TargetID, err)
		}
	}
	return rec, nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// ParquetStore keeps the whole state in one Parquet file which is
// rewritten on every commit and swapped in by rename.
type ParquetStore struct {
	path         string
	historyLimit int
	codec        string
	fileManager  *common.FileManager
	encode       func(w io.Writer, rows []parquetStateRow) error
	logger       zerolog.Logger
	mu           sync.Mutex
}

// NewParquetStore creates a store backed by the file at path.
func NewParquetStore(path string, historyLimit int, codec string, logger zerolog.Logger) (*ParquetStore, error) {
	logger = logger.With().Str("component", "ParquetStore").Logger()
	fm := common.NewFileManager(logger)

	if err := fm.EnsureDirectory(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to ensure state directory for '%s': %w", path, err)
	}
	s := &ParquetStore{
		path:         path,
		historyLimit: historyLimit,
		codec:        codec,
		fileManager:  fm,
		logger:       logger,
	}
	s.encode = s.encodeRows
	return s, nil
}

func (s *ParquetStore) Close() error { return nil }

func (s *ParquetStore) Load(ctx context.Context, targetID string) (*models.StateRecord, error) {
	records, err := s.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].TargetID == targetID {
			return &records[i], nil
		}
	}
	return nil, nil
}

func (s *ParquetStore) LoadAll(ctx context.Context) ([]models.StateRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readAll()
}

func (s *ParquetStore) readAll() ([]models.StateRecord, error) {
	data, err := s.fileManager.ReadFile(s.path, maxStateFileSize)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read state file '%s': %w", s.path, err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	pqFile, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file '%s': %w", s.path, err)
	}
	reader := parquet.NewReader(pqFile)
	defer reader.Close()

	var records []models.StateRecord
	for {
		var row parquetStateRow
		if err := reader.Read(&row); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("error reading record from parquet file '%s': %w", s.path, err)
		}
		rec, err := row.toRecord()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].TargetID < records[j].TargetID })
	return records, nil
}

// Commit merges batch into the stored records and atomically replaces the
// state file.
func (s *ParquetStore) Commit(_ context.Context, batch []models.StateRecord) error {
	prepared, err := prepareBatch(batch, s.historyLimit)
	if err != nil {
		return common.NewStateCommitError(BackendParquet, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.readAll()
	if err != nil {
		return common.NewStateCommitError(BackendParquet, err)
	}
	merged := make(map[string]models.StateRecord, len(existing)+len(prepared))
	for _, rec := range existing {
		merged[rec.TargetID] = rec
	}
	for _, rec := range prepared {
		merged[rec.TargetID] = rec
	}

	if err := s.writeAll(merged); err != nil {
		return common.NewStateCommitError(BackendParquet, err)
	}
	s.logger.Info().Int("records", len(prepared)).Str("path", s.path).Msg("State committed")
	return nil
}

func (s *ParquetStore) Delete(_ context.Context, targetIDs ...string) error {
	if len(targetIDs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.readAll()
	if err != nil {
		return err
	}
	remaining := make(map[string]models.StateRecord, len(existing))
	for _, rec := range existing {
		remaining[rec.TargetID] = rec
	}
	for _, id := range targetIDs {
		delete(remaining, id)
	}
	return s.writeAll(remaining)
}

func (s *ParquetStore) writeAll(records map[string]models.StateRecord) error {
	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rows := make([]parquetStateRow, 0, len(ids))
	for _, id := range ids {
		row, err := toParquetRow(records[id])
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}

	return s.fileManager.WriteAtomic(s.path, 0644, func(w io.Writer) error {
		return s.encode(w, rows)
	})
}

func (s *ParquetStore) encodeRows(w io.Writer, rows []parquetStateRow) error {
	writer := parquet.NewGenericWriter[parquetStateRow](w, s.compressionOption())
	if _, err := writer.Write(rows); err != nil {
		return fmt.Errorf("writing parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("closing parquet writer: %w", err)
	}
	return nil
}

// compressionOption returns the compression option based on configuration
func (s *ParquetStore) compressionOption() parquet.WriterOption {
	switch strings.ToLower(s.codec) {
	case "snappy":
		return parquet.Compression(&parquet.Snappy)
	case "gzip":
		return parquet.Compression(&parquet.Gzip)
	case "none", "uncompressed":
		return parquet.Compression(&parquet.Uncompressed)
	case "zstd", "":
		return parquet.Compression(&parquet.Zstd)
	default:
		s.logger.Warn().Str("codec", s.codec).Msg("Unsupported compression codec, defaulting to zstd")
		return parquet.Compression(&parquet.Zstd)
	}
}
