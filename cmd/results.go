package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"docstress/internal/config"
	"docstress/internal/report"
	"docstress/internal/tui/history"
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Print recorded run results",
	Long: `Print the recorded per-worker results as comma separated rows. The header
is taken from the first row.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(v)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		cfg.Results = true
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("config: %w", err)
		}

		sess, err := openSession(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer sess.Close()

		if interactive, _ := cmd.Flags().GetBool("interactive"); interactive {
			return browseResults(cmd.Context(), sess, cfg)
		}
		return printResults(cmd.Context(), cmd.OutOrStdout(), sess, cfg)
	},
}

func init() {
	addConnectionFlags(resultsCmd)

	f := resultsCmd.Flags()
	f.String("run-id", "", "only show this run")
	f.String("host-filter", "", "only show rows recorded by this host")
	f.BoolP("clear", "c", false, "clear all results after printing them (not with --run-id or --host-filter)")
	f.BoolP("interactive", "i", false, "browse runs in a table")
}

func printResults(ctx context.Context, out io.Writer, sess *session, cfg config.Config) error {
	n, err := report.RenderRecords(out, sess.reporter.List(ctx, cfg.ResultsFilter()))
	if err != nil {
		return fmt.Errorf("results: %w", err)
	}
	logger.Debug("results.printed", "runs", n)

	if cfg.Clear {
		if err := sess.results.Clear(ctx); err != nil {
			return fmt.Errorf("results: clear: %w", err)
		}
		fmt.Fprintln(os.Stderr, "results cleared")
	}
	return nil
}

func browseResults(ctx context.Context, sess *session, cfg config.Config) error {
	var records []report.RunRecord
	for rec, err := range sess.reporter.List(ctx, cfg.ResultsFilter()) {
		if err != nil {
			return fmt.Errorf("results: %w", err)
		}
		records = append(records, rec)
	}

	if _, err := tea.NewProgram(history.NewModel(records), tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}
