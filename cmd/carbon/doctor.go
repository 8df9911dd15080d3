package carbon

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	doctorFix  bool
	doctorJSON bool
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the stored history bucket for foreign, duplicate or invalid records",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOwner(cmd, func(ctx context.Context, a *appContext, owner string) error {
			report, err := a.repo.RunDoctor(ctx, owner, doctorFix)
			if err != nil {
				return err
			}
			if doctorJSON {
				return printJSON(cmd, report)
			}
			out := cmd.OutOrStdout()
			if !report.BucketFound {
				fmt.Fprintln(out, "No stored history")
				return nil
			}
			fmt.Fprintf(out, "Storage: %s\n", a.store.Driver())
			fmt.Fprintf(out, "Records: %d\n", report.Records)
			if report.Unreadable {
				fmt.Fprintln(out, "Bucket: unreadable")
			}
			fmt.Fprintf(out, "Foreign owner: %d\n", report.ForeignOwner)
			fmt.Fprintf(out, "Duplicate ids: %d\n", report.DuplicateIDs)
			fmt.Fprintf(out, "Invalid category: %d\n", report.InvalidCategory)
			fmt.Fprintf(out, "Negative co2e: %d\n", report.NegativeQuantity)
			switch {
			case report.Removed > 0:
				fmt.Fprintf(out, "Removed %d records\n", report.Removed)
			case report.Healthy():
				fmt.Fprintln(out, "OK")
			case !doctorFix:
				fmt.Fprintln(out, "Run with --fix to rewrite the bucket without these records")
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().BoolVar(&doctorFix, "fix", false, "Rewrite the bucket without offending records")
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "Print JSON")
}
