package config

import (
	"path/filepath"

	"github.com/adrg/xdg"
)

// StorageConfig defines where and how target state is persisted
type StorageConfig struct {
	Backend          string `json:"backend,omitempty" yaml:"backend,omitempty" validate:"omitempty,backend"`
	Path             string `json:"path,omitempty" yaml:"path,omitempty"`
	HistoryLimit     int    `json:"history_limit,omitempty" yaml:"history_limit,omitempty" validate:"omitempty,min=1"`
	CompressionCodec string `json:"compression_codec,omitempty" yaml:"compression_codec,omitempty" validate:"omitempty,oneof=zstd snappy gzip none"`
}

// NewDefaultStorageConfig creates default storage configuration
func NewDefaultStorageConfig() StorageConfig {
	return StorageConfig{
		Backend:          DefaultStorageBackend,
		HistoryLimit:     DefaultStorageHistoryLimit,
		CompressionCodec: DefaultStorageCompressionCodec,
	}
}

// BackendName returns the configured backend or the default.
func (c StorageConfig) BackendName() string {
	if c.Backend == "" {
		return DefaultStorageBackend
	}
	return c.Backend
}

// ResolvedPath returns the state file location. An empty path resolves
// under the XDG data home.
func (c StorageConfig) ResolvedPath() string {
	if c.Path != "" {
		return c.Path
	}
	name := "state.db"
	if c.BackendName() == "parquet" {
		name = "state.parquet"
	}
	return filepath.Join(xdg.DataHome, DefaultStorageAppDir, name)
}

// StateDir is the directory holding the state file and the run lock.
func (c StorageConfig) StateDir() string {
	return filepath.Dir(c.ResolvedPath())
}
