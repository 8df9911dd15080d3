package carbon

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/saadjs/carbon-cli/internal/model"
)

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Totals, monthly breakdowns and trends for the active owner",
}

var (
	analyticsJSON  bool
	analyticsDays  int
	analyticsLimit int
)

type analyticsSummary struct {
	TotalRecords       int                        `json:"totalRecords"`
	TotalEmissions     float64                    `json:"totalEmissions"`
	AveragePerCategory map[model.Category]float64 `json:"averagePerCategory"`
	Categories         []model.CategoryTotal      `json:"categoryTotals"`
	LastSyncedAt       string                     `json:"lastSyncedAt,omitempty"`
}

var analyticsSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Record count, total emissions and per-category averages",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOwner(cmd, func(ctx context.Context, a *appContext, owner string) error {
			s := analyticsSummary{
				TotalRecords:       a.repo.TotalRecords(owner),
				TotalEmissions:     a.repo.TotalEmissions(owner),
				AveragePerCategory: a.repo.AverageEmissionPerCategory(owner),
				Categories:         a.repo.CategoryTotals(owner),
			}
			if st := a.repo.State(); st.LastSyncedAt != nil {
				s.LastSyncedAt = st.LastSyncedAt.In(a.loc).Format("2006-01-02 15:04:05")
			}
			if analyticsJSON {
				return printJSON(cmd, s)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Records: %d\n", s.TotalRecords)
			fmt.Fprintf(out, "Total: %.3f kg CO2e\n", s.TotalEmissions)
			if s.LastSyncedAt != "" {
				fmt.Fprintf(out, "Last saved: %s\n", s.LastSyncedAt)
			}
			for _, c := range s.Categories {
				fmt.Fprintf(out, "%s\t%.3f\tavg %.3f\t%d records\n", c.CategoryLabel, c.Total, s.AveragePerCategory[c.Category], c.Count)
			}
			return nil
		})
	},
}

var analyticsCategoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "Totals per category, largest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOwner(cmd, func(ctx context.Context, a *appContext, owner string) error {
			totals := a.repo.CategoryTotals(owner)
			if analyticsJSON {
				return printJSON(cmd, totals)
			}
			if len(totals) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No records")
				return nil
			}
			for _, t := range totals {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%.3f\t%.1f%%\t%d\n", t.CategoryLabel, t.Total, t.Percentage, t.Count)
			}
			return nil
		})
	},
}

var analyticsMonthlyCmd = &cobra.Command{
	Use:   "monthly",
	Short: "Totals per calendar month, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOwner(cmd, func(ctx context.Context, a *appContext, owner string) error {
			months := a.repo.MonthlyTotals(owner)
			if analyticsJSON {
				return printJSON(cmd, months)
			}
			for _, m := range months {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %d\t%.3f\t%d\n", m.Month, m.Year, m.Total, m.Count)
			}
			return nil
		})
	},
}

var analyticsTrendCmd = &cobra.Command{
	Use:   "trend",
	Short: "Daily emissions for the last N days, including today",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOwner(cmd, func(ctx context.Context, a *appContext, owner string) error {
			days := analyticsDays
			if !cmd.Flags().Changed("days") {
				days = cfg.History.TrendDays
			}
			points := a.repo.EmissionTrend(owner, days)
			if analyticsJSON {
				return printJSON(cmd, points)
			}
			peak := 0.0
			for _, p := range points {
				if p.Emissions > peak {
					peak = p.Emissions
				}
			}
			for _, p := range points {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%10.3f\t%s\n", p.Date, p.Emissions, bar(p.Emissions, peak, 30))
			}
			return nil
		})
	},
}

var analyticsRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Most recent records",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOwner(cmd, func(ctx context.Context, a *appContext, owner string) error {
			limit := analyticsLimit
			if !cmd.Flags().Changed("limit") {
				limit = cfg.History.RecentLimit
			}
			records := a.repo.RecentRecords(owner, limit)
			if analyticsJSON {
				return printJSON(cmd, records)
			}
			for _, r := range records {
				printRecordRow(cmd, r, a.loc)
			}
			return nil
		})
	},
}

// withOwner is withApp for commands that need a signed-in owner.
func withOwner(cmd *cobra.Command, run func(ctx context.Context, a *appContext, owner string) error) error {
	return withApp(cmd, func(ctx context.Context, a *appContext) error {
		owner, _, err := a.owner()
		if err != nil {
			return err
		}
		return run(ctx, a, owner)
	})
}

func bar(v, peak float64, width int) string {
	if peak <= 0 || v <= 0 {
		return ""
	}
	n := int(v / peak * float64(width))
	if n == 0 {
		n = 1
	}
	return strings.Repeat("#", n)
}

func init() {
	rootCmd.AddCommand(analyticsCmd)
	analyticsCmd.AddCommand(analyticsSummaryCmd, analyticsCategoriesCmd, analyticsMonthlyCmd, analyticsTrendCmd, analyticsRecentCmd)
	analyticsCmd.PersistentFlags().BoolVar(&analyticsJSON, "json", false, "Print JSON")
	analyticsTrendCmd.Flags().IntVar(&analyticsDays, "days", 30, "Days before today to include (history.trend_days when unset)")
	analyticsRecentCmd.Flags().IntVar(&analyticsLimit, "limit", 10, "Records to show (history.recent_limit when unset)")
}
