package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/h-sim/ai-change-watcher/internal/datastore"
	"github.com/h-sim/ai-change-watcher/internal/differ"
	"github.com/h-sim/ai-change-watcher/internal/feed"
	"github.com/h-sim/ai-change-watcher/internal/fetcher"
	"github.com/h-sim/ai-change-watcher/internal/metrics"
	"github.com/h-sim/ai-change-watcher/internal/models"
	"github.com/h-sim/ai-change-watcher/internal/pipeline"
	"github.com/spf13/cobra"
)

type runOptions struct {
	dryRun  bool
	noFeeds bool
}

func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one change-detection pass over all targets",
		Long: `Fetch every configured target, compare it with the stored state, commit
the new state and regenerate important.xml and all.xml.

The command fails only when the state cannot be committed, the configuration
is invalid or another run holds the lock. Unreachable targets are reported
as fetch-error events.`,
		Args: cobra.NoArgs,
		RunE: makeRunRunner(),
	}

	cmd.Flags().Bool("dry-run", false, "Detect and report changes without committing state or writing feeds")
	cmd.Flags().Bool("no-feeds", false, "Commit state but do not write feeds")
	return cmd
}

func makeRunRunner() func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		var opts runOptions
		opts.dryRun, _ = cmd.Flags().GetBool("dry-run")
		opts.noFeeds, _ = cmd.Flags().GetBool("no-feeds")

		runID := uuid.NewString()
		env, err := loadEnvironment(cmd, runID)
		if err != nil {
			return err
		}
		return runPipeline(cmd.Context(), env, runID, opts, cmd.OutOrStdout())
	}
}

func runPipeline(ctx context.Context, env *environment, runID string, opts runOptions, out io.Writer) error {
	cfg := env.cfg
	log := env.logger

	store, err := datastore.Open(cfg.StorageConfig, log)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close state store")
		}
	}()

	f, err := fetcher.NewFetcherFromConfig(cfg.FetchConfig, log)
	if err != nil {
		return err
	}
	d, err := differ.NewDiffer(log, cfg.DiffConfig)
	if err != nil {
		return err
	}
	recorder := metrics.NewRecorder()

	orchestrator, err := pipeline.NewOrchestratorBuilder(log).
		WithStore(store).
		WithFetcher(f).
		WithDiffer(d).
		WithMetrics(recorder).
		WithLock(pipeline.NewRunLock(filepath.Join(cfg.StorageConfig.StateDir(), pipeline.LockFileName))).
		WithSettings(pipeline.Settings{
			Concurrency:   cfg.FetchConfig.Concurrency(),
			TargetTimeout: cfg.FetchConfig.TargetTimeout(),
			HistoryLimit:  cfg.StorageConfig.HistoryLimit,
			DryRun:        opts.dryRun,
		}).
		WithRunIDGenerator(func() string { return runID }).
		Build()
	if err != nil {
		return err
	}

	result, runErr := orchestrator.Run(ctx, cfg.Targets)
	if result == nil {
		return runErr
	}
	printRunSummary(out, result, opts.dryRun)

	if runErr == nil && !opts.dryRun && !opts.noFeeds {
		if err := writeFeeds(ctx, env, store, result); err != nil {
			log.Error().Err(err).Msg("Failed to write feeds")
		}
	}

	if path := cfg.MetricsConfig.TextfilePath; path != "" {
		if err := recorder.WriteTextfile(path); err != nil {
			log.Error().Err(err).Str("path", path).Msg("Failed to write metrics textfile")
		}
	}
	return runErr
}

func writeFeeds(ctx context.Context, env *environment, store datastore.Store, result *models.RunResult) error {
	records, err := store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load committed history: %w", err)
	}
	return feed.NewRenderer(env.cfg.FeedConfig, env.logger).Write(feed.Collect(records, result))
}

func printRunSummary(out io.Writer, result *models.RunResult, dryRun bool) {
	counts := result.Counts()
	status := "committed"
	switch {
	case dryRun:
		status = "dry-run"
	case !result.Committed:
		status = "commit failed"
	}
	fmt.Fprintf(out, "run %s: new=%d changed=%d unchanged=%d fetch-error=%d degraded=%d important=%d (%s)\n",
		result.RunID, counts.New, counts.Changed, counts.Unchanged, counts.FetchError,
		counts.Degraded, len(result.Important()), status)

	for _, ev := range result.All() {
		headline, _, _ := strings.Cut(ev.Description, "\n")
		fmt.Fprintf(out, "  %-11s %-9s %s: %s\n", ev.Kind, ev.Severity, ev.TargetID, headline)
	}
}
