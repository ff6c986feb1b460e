package config

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/h-sim/ai-change-watcher/internal/common"
	"github.com/h-sim/ai-change-watcher/internal/logger"
	"github.com/h-sim/ai-change-watcher/internal/models"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const maxConfigFileSize = 10 * 1024 * 1024

// GlobalConfig contains all configuration sections for the application
type GlobalConfig struct {
	LogConfig     logger.LogConfig `json:"log_config,omitempty" yaml:"log_config,omitempty"`
	FetchConfig   FetchConfig      `json:"fetch_config,omitempty" yaml:"fetch_config,omitempty"`
	StorageConfig StorageConfig    `json:"storage_config,omitempty" yaml:"storage_config,omitempty"`
	DiffConfig    DiffConfig       `json:"diff_config,omitempty" yaml:"diff_config,omitempty"`
	FeedConfig    FeedConfig       `json:"feed_config,omitempty" yaml:"feed_config,omitempty"`
	MetricsConfig MetricsConfig    `json:"metrics_config,omitempty" yaml:"metrics_config,omitempty"`
	Targets       []models.Target  `json:"targets,omitempty" yaml:"targets,omitempty" validate:"min=1,dive"`
}

// NewDefaultGlobalConfig creates a new GlobalConfig with default values
func NewDefaultGlobalConfig() *GlobalConfig {
	return &GlobalConfig{
		LogConfig:     logger.NewDefaultLogConfig(),
		FetchConfig:   NewDefaultFetchConfig(),
		StorageConfig: NewDefaultStorageConfig(),
		DiffConfig:    NewDefaultDiffConfig(),
		FeedConfig:    NewDefaultFeedConfig(),
		MetricsConfig: NewDefaultMetricsConfig(),
		Targets:       DefaultTargets(),
	}
}

// LoadGlobalConfig loads the configuration from a file or default locations.
// It determines the config file path using GetConfigPath, supports both JSON and YAML formats.
// YAML is preferred if the file extension is .yaml or .yml.
// A file without a targets key keeps the built-in target list.
func LoadGlobalConfig(providedPath string, logger zerolog.Logger) (*GlobalConfig, error) {
	cfg := NewDefaultGlobalConfig()

	filePath := GetConfigPath(providedPath)
	if filePath == "" {
		if providedPath != "" {
			return nil, common.NewValidationError("config_file", providedPath, "config file does not exist")
		}
		cfg.Normalize()
		return cfg, nil
	}

	fileManager := common.NewFileManager(logger)
	if !fileManager.FileExists(filePath) {
		return nil, common.NewValidationError("config_file", filePath, "config file does not exist")
	}

	data, err := fileManager.ReadFile(filePath, maxConfigFileSize)
	if err != nil {
		return nil, common.WrapError(err, "failed to load config file content")
	}

	// Decode targets into a fresh slice so entries never merge with the
	// defaults.
	cfg.Targets = nil
	if err := parseConfigContent(data, filePath, cfg); err != nil {
		return nil, common.WrapError(err, "failed to parse config content")
	}
	if cfg.Targets == nil {
		cfg.Targets = DefaultTargets()
	}

	cfg.Normalize()
	logger.Debug().Str("path", filePath).Int("targets", len(cfg.Targets)).Msg("Configuration loaded")
	return cfg, nil
}

// Normalize canonicalizes format aliases and trims free-form fields.
// Unknown formats are left in place for ValidateConfig to report.
func (c *GlobalConfig) Normalize() {
	for i := range c.Targets {
		t := &c.Targets[i]
		t.ID = strings.TrimSpace(t.ID)
		t.Name = strings.TrimSpace(t.Name)
		t.URL = strings.TrimSpace(t.URL)
		if f, err := models.ParseFormat(string(t.Format)); err == nil {
			t.Format = f
		}
	}
	c.FeedConfig.SiteURL = strings.TrimSpace(c.FeedConfig.SiteURL)
}

// parseConfigContent parses the config content based on file extension
func parseConfigContent(data []byte, filePath string, cfg *GlobalConfig) error {
	ext := strings.ToLower(filepath.Ext(filePath))
	if isYAMLFile(ext) {
		return parseYAMLConfig(data, filePath, cfg)
	}
	return parseJSONConfig(data, filePath, cfg)
}

// isYAMLFile checks if the file extension indicates a YAML file
func isYAMLFile(ext string) bool {
	return ext == ".yaml" || ext == ".yml"
}

func parseYAMLConfig(data []byte, filePath string, cfg *GlobalConfig) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return common.NewError("failed to unmarshal YAML from '%s': %w", filePath, err)
	}
	return nil
}

func parseJSONConfig(data []byte, filePath string, cfg *GlobalConfig) error {
	if err := json.Unmarshal(data, cfg); err != nil {
		return common.NewError("failed to unmarshal JSON from '%s': %w", filePath, err)
	}
	return nil
}
