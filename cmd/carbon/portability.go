package carbon

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/saadjs/carbon-cli/internal/service"
)

var (
	exportOut    string
	importIn     string
	importDryRun bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the active owner's history as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *appContext) error {
			owner, label, err := a.owner()
			if err != nil {
				return err
			}
			data, err := a.repo.ExportJSON(owner, label)
			if err != nil {
				return err
			}
			out := strings.TrimSpace(exportOut)
			if out == "" {
				out = service.ExportFileName(label, time.Now())
			}
			if out == "-" {
				fmt.Fprintln(cmd.OutOrStdout(), data)
				return nil
			}
			if err := os.WriteFile(out, []byte(data), 0o644); err != nil {
				return fmt.Errorf("write export file: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d records to %s\n", a.repo.TotalRecords(owner), out)
			return nil
		})
	},
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Replace the active owner's history with records from a JSON export",
	RunE: func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(importIn) == "" {
			return fmt.Errorf("--in is required")
		}
		raw, err := os.ReadFile(importIn)
		if err != nil {
			return fmt.Errorf("read import file: %w", err)
		}
		return withApp(cmd, func(ctx context.Context, a *appContext) error {
			owner, _, err := a.owner()
			if err != nil {
				return err
			}
			report, err := a.repo.ImportJSONWithOptions(ctx, string(raw), owner, service.ImportOptions{DryRun: importDryRun})
			if err != nil {
				return err
			}
			prefix := "Imported"
			if report.DryRun {
				prefix = "Dry run: would import"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d records (%.3f kg CO2e), replacing %d\n", prefix, report.Imported, report.TotalEmissions, report.Replaced)
			for _, w := range report.Warnings {
				fmt.Fprintf(cmd.OutOrStdout(), "warning: %s\n", w)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(exportCmd, importCmd)
	exportCmd.Flags().StringVar(&exportOut, "out", "", "Output file (default carbon-emissions-history-<user>-<date>.json, - for stdout)")
	importCmd.Flags().StringVar(&importIn, "in", "", "JSON file to import")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Validate and report without writing")
}
