package carbon

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	todayDate string
	todayJSON bool
)

var todayCmd = &cobra.Command{
	Use:   "today",
	Short: "Show emissions logged for a calendar day",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOwner(cmd, func(ctx context.Context, a *appContext, owner string) error {
			target := time.Now()
			if todayDate != "" {
				parsed, err := time.ParseInLocation("2006-01-02", todayDate, a.loc)
				if err != nil {
					return fmt.Errorf("invalid --date %q (expected YYYY-MM-DD)", todayDate)
				}
				target = parsed
			}
			status := a.repo.TodaySummary(owner, target)
			if todayJSON {
				return printJSON(cmd, status)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Date: %s\n", status.Date)
			fmt.Fprintf(out, "Total: %.3f kg CO2e (%d records)\n", status.Total, status.Count)
			for _, c := range status.Categories {
				fmt.Fprintf(out, "%s\t%.3f\t%.1f%%\n", c.CategoryLabel, c.Total, c.Percentage)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(todayCmd)
	todayCmd.Flags().StringVar(&todayDate, "date", "", "Date YYYY-MM-DD (default today)")
	todayCmd.Flags().BoolVar(&todayJSON, "json", false, "Print JSON")
}
