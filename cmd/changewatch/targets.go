package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss/v2"
	"github.com/charmbracelet/lipgloss/v2/table"
	"github.com/h-sim/ai-change-watcher/internal/models"
	"github.com/spf13/cobra"
)

func NewTargetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "targets",
		Aliases: []string{"ls"},
		Short:   "List configured targets",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnvironment(cmd, "")
			if err != nil {
				return err
			}
			asJSON, _ := cmd.Flags().GetBool("json")
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(env.cfg.Targets)
			}
			return printTargets(cmd, env.cfg.Targets)
		},
	}

	cmd.Flags().Bool("json", false, "Output in JSON format")
	return cmd
}

// newTable returns a bordered table without colors, so output stays plain
// when piped.
func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...)
}

func printTargets(cmd *cobra.Command, targets []models.Target) error {
	t := newTable("ID", "FORMAT", "IMPACT", "IMPORTANT ON", "URL")
	for _, target := range targets {
		triggers := make([]string, 0, len(target.Policy.ImportantOn))
		for _, trig := range target.Policy.ImportantOn {
			triggers = append(triggers, string(trig))
		}
		if len(triggers) == 0 {
			triggers = append(triggers, "-")
		}
		t.Row(target.Key(), string(target.Format), string(target.Impact), strings.Join(triggers, ","), target.URL)
	}
	_, err := fmt.Fprintln(cmd.OutOrStdout(), t.String())
	return err
}
