package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/h-sim/ai-change-watcher/internal/config"
	"github.com/h-sim/ai-change-watcher/internal/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "changewatch",
		Short: "Watch AI platform documents for changes",
		Long: `changewatch fetches changelogs, news feeds and API specifications,
detects what changed since the last run and publishes RSS feeds of the changes.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}

	addPersistentFlags(rootCmd)
	rootCmd.AddCommand(
		NewRunCmd(),
		NewTargetsCmd(),
		NewStateCmd(),
		NewNormalizeCmd(),
		NewRenderCmd(),
	)
	return rootCmd
}

func addPersistentFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringP("config", "c", "", "Path to the YAML/JSON configuration file (default: search "+config.EnvConfigPath+", then ./config.yaml)")
	cmd.PersistentFlags().String("log-level", "", "Override the configured log level (debug|info|warn|error)")
}

// environment is the loaded configuration and logger shared by commands.
type environment struct {
	cfg    *config.GlobalConfig
	logger zerolog.Logger
}

// loadEnvironment reads and validates the configuration and builds the
// logger. runID groups file logs of a pipeline run and may be empty.
func loadEnvironment(cmd *cobra.Command, runID string) (*environment, error) {
	configPath, _ := cmd.Flags().GetString("config")
	levelOverride, _ := cmd.Flags().GetString("log-level")

	bootstrap := zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()}).Level(zerolog.WarnLevel)
	cfg, err := config.LoadGlobalConfig(configPath, bootstrap)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if levelOverride != "" {
		cfg.LogConfig.LogLevel = strings.ToLower(levelOverride)
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, err
	}

	log, err := buildLogger(cfg.LogConfig, runID, cmd.ErrOrStderr())
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return &environment{cfg: cfg, logger: log}, nil
}

func buildLogger(cfg logger.LogConfig, runID string, console io.Writer) (zerolog.Logger, error) {
	builder := logger.NewLoggerBuilder().
		WithConfig(cfg).
		WithConsoleOutput(console)
	if runID != "" {
		builder = builder.WithRunID(runID)
	}
	l, err := builder.Build()
	if err != nil {
		return zerolog.Logger{}, err
	}
	return *l.GetZerolog(), nil
}
