package main

import (
	"fmt"

	"github.com/h-sim/ai-change-watcher/internal/datastore"
	"github.com/h-sim/ai-change-watcher/internal/feed"
	"github.com/spf13/cobra"
)

func NewRenderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "render",
		Short: "Regenerate the feeds from stored history without fetching",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnvironment(cmd, "")
			if err != nil {
				return err
			}

			store, err := datastore.Open(env.cfg.StorageConfig, env.logger)
			if err != nil {
				return fmt.Errorf("open state store: %w", err)
			}
			defer store.Close()

			records, err := store.LoadAll(cmd.Context())
			if err != nil {
				return fmt.Errorf("load state: %w", err)
			}
			events := feed.Collect(records, nil)
			if err := feed.NewRenderer(env.cfg.FeedConfig, env.logger).Write(events); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rendered %d event(s) into %s\n", len(events), env.cfg.FeedConfig.OutputDir)
			return nil
		},
	}
}
