package main

import (
	"fmt"
	"strconv"

	"github.com/h-sim/ai-change-watcher/internal/datastore"
	"github.com/h-sim/ai-change-watcher/internal/models"
	"github.com/spf13/cobra"
)

const timeLayout = "2006-01-02 15:04:05Z07:00"

func NewStateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect or maintain stored target state",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}

	cmd.AddCommand(newStateShowCmd(), newStatePruneCmd())
	return cmd
}

func newStateShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Summarize stored records and recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnvironment(cmd, "")
			if err != nil {
				return err
			}
			runs, _ := cmd.Flags().GetInt("runs")

			store, err := datastore.Open(env.cfg.StorageConfig, env.logger)
			if err != nil {
				return fmt.Errorf("open state store: %w", err)
			}
			defer store.Close()

			records, err := store.LoadAll(cmd.Context())
			if err != nil {
				return fmt.Errorf("load state: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "State: %s (%s)\n\n", env.cfg.StorageConfig.ResolvedPath(), env.cfg.StorageConfig.BackendName())
			recordTable := newTable("TARGET", "FINGERPRINT", "LAST CHECKED", "LAST CHANGED", "EVENTS")
			for _, rec := range records {
				recordTable.Row(
					rec.TargetID,
					shortFingerprint(rec.Fingerprint),
					models.FormatTimeOptional(rec.LastChecked, timeLayout),
					models.FormatTimeOptional(rec.LastChanged, timeLayout),
					strconv.Itoa(len(rec.History)))
			}
			fmt.Fprintln(out, recordTable.String())

			recorder, ok := store.(datastore.RunRecorder)
			if !ok || runs <= 0 {
				return nil
			}
			summaries, err := recorder.RecentRuns(cmd.Context(), runs)
			if err != nil {
				return fmt.Errorf("load run history: %w", err)
			}
			runTable := newTable("RUN", "STARTED", "NEW", "CHANGED", "UNCHANGED", "FETCH ERRORS", "COMMITTED")
			for _, run := range summaries {
				runTable.Row(
					run.RunID,
					models.FormatTimeOptional(run.StartedAt, timeLayout),
					strconv.Itoa(run.Counts.New),
					strconv.Itoa(run.Counts.Changed),
					strconv.Itoa(run.Counts.Unchanged),
					strconv.Itoa(run.Counts.FetchError),
					strconv.FormatBool(run.Committed))
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, runTable.String())
			return nil
		},
	}

	cmd.Flags().Int("runs", 10, "Number of recent runs to list (sqlite backend only)")
	return cmd
}

func newStatePruneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete records of targets that are no longer configured",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnvironment(cmd, "")
			if err != nil {
				return err
			}
			dryRun, _ := cmd.Flags().GetBool("dry-run")

			store, err := datastore.Open(env.cfg.StorageConfig, env.logger)
			if err != nil {
				return fmt.Errorf("open state store: %w", err)
			}
			defer store.Close()

			records, err := store.LoadAll(cmd.Context())
			if err != nil {
				return fmt.Errorf("load state: %w", err)
			}
			stale := staleTargets(records, env.cfg.Targets)

			out := cmd.OutOrStdout()
			for _, id := range stale {
				fmt.Fprintf(out, "prune %s\n", id)
			}
			if dryRun || len(stale) == 0 {
				fmt.Fprintf(out, "%d record(s) to prune\n", len(stale))
				return nil
			}
			if err := store.Delete(cmd.Context(), stale...); err != nil {
				return fmt.Errorf("prune state: %w", err)
			}
			fmt.Fprintf(out, "%d record(s) pruned\n", len(stale))
			return nil
		},
	}

	cmd.Flags().Bool("dry-run", false, "List the records that would be deleted")
	return cmd
}

// staleTargets returns the IDs of records with no configured target.
func staleTargets(records []models.StateRecord, targets []models.Target) []string {
	configured := make(map[string]bool, len(targets))
	for _, t := range targets {
		configured[t.Key()] = true
	}
	var stale []string
	for _, rec := range records {
		if !configured[rec.TargetID] {
			stale = append(stale, rec.TargetID)
		}
	}
	return stale
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
