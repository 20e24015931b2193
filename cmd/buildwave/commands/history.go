package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/buildwave/buildwave/pkg/config"
	"github.com/buildwave/buildwave/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect past build runs",
	}
	cmd.AddCommand(newHistoryListCommand())
	cmd.AddCommand(newHistoryShowCommand())
	return cmd
}

func newHistoryListCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cfg.HistoryDB == "" {
				return fmt.Errorf("history is disabled: set history_db in the config")
			}

			store, err := openHistory(cmd.Context(), cfg.HistoryDB)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(runs)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN ID\tSTATUS\tTOTAL\tOK\tFAILED\tSKIPPED\tSTARTED")
			for _, run := range runs {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
					run.ID, run.Status, run.TotalPackages,
					run.Succeeded, run.Failed, run.Skipped,
					run.StartedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")
	return cmd
}

func newHistoryShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run with its per-package results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cfg.HistoryDB == "" {
				return fmt.Errorf("history is disabled: set history_db in the config")
			}

			store, err := openHistory(cmd.Context(), cfg.HistoryDB)
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			results, err := store.ListPackageResults(cmd.Context(), run.ID)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					Run     *stores.Run                `json:"run"`
					Results []*stores.PackageResultRow `json:"results"`
				}{run, results})
			}

			fmt.Printf("run %s: %s, %d packages (%d ok, %d failed, %d skipped)\n",
				run.ID, run.Status, run.TotalPackages, run.Succeeded, run.Failed, run.Skipped)

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PACKAGE\tRESULT\tATTEMPTS\tSECONDS\tREASON")
			for _, row := range results {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
					row.Package, row.Result, row.Attempts, row.BuildTimeSeconds, row.Reason)
			}
			return w.Flush()
		},
	}
	return cmd
}
