package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/h-sim/ai-change-watcher/internal/models"
	"github.com/h-sim/ai-change-watcher/internal/normalizer"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const maxNormalizeInput = 64 * 1024 * 1024

func NewNormalizeCmd() *cobra.Command {
	registry := normalizer.NewRegistry(zerolog.Nop())
	formats := make([]string, 0, 4)
	for _, f := range registry.Formats() {
		formats = append(formats, string(f))
	}

	cmd := &cobra.Command{
		Use:   "normalize FILE",
		Short: "Print the canonical text and fingerprint of a document",
		Long: `Normalize a local document the way a target of the given format would be
normalized during a run. Use - to read standard input. The canonical text is
written to stdout, the fingerprint and any degradation to stderr.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatName, _ := cmd.Flags().GetString("format")
			format, err := models.ParseFormat(formatName)
			if err != nil {
				return err
			}
			baseURL, _ := cmd.Flags().GetString("base-url")
			keepIDs, _ := cmd.Flags().GetBool("keep-ids")
			keepDates, _ := cmd.Flags().GetBool("keep-dates")
			ignore, _ := cmd.Flags().GetStringSlice("ignore")

			body, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}

			target := models.Target{ID: args[0], URL: baseURL, Format: format}
			switch format {
			case models.FormatHTML:
				target.Policy.IgnoreSelectors = ignore
			case models.FormatOpenAPI:
				target.Policy.IgnorePaths = ignore
			}
			if keepIDs {
				target.Policy.SignificantFields = append(target.Policy.SignificantFields, "id")
			}
			if keepDates {
				target.Policy.SignificantFields = append(target.Policy.SignificantFields, "date")
			}

			snap := registry.Canonicalize(target, body)
			fmt.Fprintln(cmd.OutOrStdout(), snap.Text)
			fmt.Fprintf(cmd.ErrOrStderr(), "fingerprint: %s\n", snap.Fingerprint)
			if snap.Degraded {
				fmt.Fprintf(cmd.ErrOrStderr(), "degraded: %s\n", snap.DegradedReason)
			}
			return nil
		},
	}

	cmd.Flags().StringP("format", "f", "plain", fmt.Sprintf("Document format (%s)", strings.Join(formats, "|")))
	cmd.Flags().String("base-url", "", "URL used to resolve relative links")
	cmd.Flags().StringSlice("ignore", nil, "CSS selectors (html) or dotted paths (openapi) to drop")
	cmd.Flags().Bool("keep-ids", false, "Keep feed entry ids")
	cmd.Flags().Bool("keep-dates", false, "Keep feed entry dates")
	return cmd
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		r = f
	}
	data, err := io.ReadAll(io.LimitReader(r, maxNormalizeInput+1))
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	if len(data) > maxNormalizeInput {
		return nil, fmt.Errorf("input exceeds %d bytes", maxNormalizeInput)
	}
	return data, nil
}
