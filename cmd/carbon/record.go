package carbon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/saadjs/carbon-cli/internal/estimate"
	"github.com/saadjs/carbon-cli/internal/model"
	"github.com/saadjs/carbon-cli/internal/service"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Manage emission records",
}

var (
	recordCategory string
	recordCO2e     string
	recordUnit     string
	recordLabel    string
	recordSource   string
	recordParams   []string
	recordDetails  []string
)

var recordAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a record with a known co2e value",
	RunE: func(cmd *cobra.Command, args []string) error {
		category, err := model.ParseCategory(recordCategory)
		if err != nil {
			return err
		}
		co2e, err := estimate.ParseQuantity("co2e", recordCO2e)
		if err != nil {
			return err
		}
		form, err := parseKeyValues("param", recordParams)
		if err != nil {
			return err
		}
		details, err := parseKeyValues("detail", recordDetails)
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *appContext) error {
			owner, _, err := a.owner()
			if err != nil {
				return err
			}
			id, err := a.repo.Add(ctx, model.RecordDraft{
				Category: category,
				Label:    recordLabel,
				CO2e:     co2e,
				CO2eUnit: strings.TrimSpace(recordUnit),
				FormData: formPayload(form),
				Details:  formPayload(details),
				Source:   strings.TrimSpace(recordSource),
			}, owner)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added record %s\n", id)
			return nil
		})
	},
}

var (
	recordListLimit    int
	recordListCategory string
	recordListJSON     bool
)

var recordListCmd = &cobra.Command{
	Use:   "list",
	Short: "List records, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		var category model.Category
		if recordListCategory != "" {
			c, err := model.ParseCategory(recordListCategory)
			if err != nil {
				return err
			}
			category = c
		}
		return withApp(cmd, func(ctx context.Context, a *appContext) error {
			owner, _, err := a.owner()
			if err != nil {
				return err
			}
			all := a.repo.Records(owner)
			records := make([]model.EmissionRecord, 0, len(all))
			for _, r := range all {
				if category == "" || r.Category == category {
					records = append(records, r)
				}
			}
			limit := len(records)
			if recordListLimit > 0 && recordListLimit < limit {
				limit = recordListLimit
			}
			records = service.MostRecent(records, limit)
			if recordListJSON {
				return printJSON(cmd, records)
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No records")
				return nil
			}
			for _, r := range records {
				printRecordRow(cmd, r, a.loc)
			}
			return nil
		})
	},
}

var recordShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *appContext) error {
			owner, _, err := a.owner()
			if err != nil {
				return err
			}
			r, ok := a.repo.Record(args[0], owner)
			if !ok {
				return fmt.Errorf("record %q not found", args[0])
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ID: %s\n", r.ID)
			fmt.Fprintf(out, "Date: %s\n", r.CreatedAt.In(a.loc).Format("2006-01-02 15:04"))
			fmt.Fprintf(out, "Category: %s\n", r.CategoryLabel)
			if r.Label != "" {
				fmt.Fprintf(out, "Label: %s\n", r.Label)
			}
			fmt.Fprintf(out, "CO2e: %.3f %s\n", r.CO2e, r.CO2eUnit)
			for _, g := range []struct {
				name string
				v    *float64
			}{{"CO2", r.CO2}, {"CH4", r.CH4}, {"N2O", r.N2O}} {
				if g.v != nil {
					fmt.Fprintf(out, "%s: %.4f\n", g.name, *g.v)
				}
			}
			if r.Source != "" {
				fmt.Fprintf(out, "Source: %s\n", r.Source)
			}
			if r.LCAActivity != "" {
				fmt.Fprintf(out, "LCA activity: %s\n", r.LCAActivity)
			}
			if r.FormData.Len() > 0 {
				fmt.Fprintf(out, "Inputs: %s\n", r.FormData)
			}
			if r.Details.Len() > 0 {
				fmt.Fprintf(out, "Details: %s\n", r.Details)
			}
			return nil
		})
	},
}

var recordDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete one record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *appContext) error {
			owner, _, err := a.owner()
			if err != nil {
				return err
			}
			removed, err := a.repo.Delete(ctx, args[0], owner)
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("record %q not found", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted record %s\n", args[0])
			return nil
		})
	},
}

var recordClearYes bool

var recordClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every record of the active owner",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !recordClearYes {
			return fmt.Errorf("refusing to clear history without --yes")
		}
		return withApp(cmd, func(ctx context.Context, a *appContext) error {
			owner, _, err := a.owner()
			if err != nil {
				return err
			}
			n, err := a.repo.Clear(ctx, owner)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d records\n", n)
			return nil
		})
	},
}

func printRecordRow(cmd *cobra.Command, r model.EmissionRecord, loc *time.Location) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%.3f %s\t%s\n",
		r.ID, r.CreatedAt.In(loc).Format("2006-01-02 15:04"), r.Category, r.CO2e, r.CO2eUnit, r.Label)
}

func init() {
	rootCmd.AddCommand(recordCmd)
	recordCmd.AddCommand(recordAddCmd, recordListCmd, recordShowCmd, recordDeleteCmd, recordClearCmd)

	recordAddCmd.Flags().StringVar(&recordCategory, "category", "", "Category (business-travel, intermodal-freight, cloud-cpu, cloud-storage, cloud-memory)")
	recordAddCmd.Flags().StringVar(&recordCO2e, "co2e", "", "Emission quantity")
	recordAddCmd.Flags().StringVar(&recordUnit, "unit", "kg", "Unit of the co2e value")
	recordAddCmd.Flags().StringVar(&recordLabel, "label", "", "Optional name for the record")
	recordAddCmd.Flags().StringVar(&recordSource, "source", "manual", "Where the value came from")
	recordAddCmd.Flags().StringArrayVar(&recordParams, "param", nil, "Input parameter key=value (repeatable)")
	recordAddCmd.Flags().StringArrayVar(&recordDetails, "detail", nil, "Provenance detail key=value (repeatable)")
	_ = recordAddCmd.MarkFlagRequired("category")
	_ = recordAddCmd.MarkFlagRequired("co2e")

	recordListCmd.Flags().IntVar(&recordListLimit, "limit", 0, "Maximum records to show (0 = all)")
	recordListCmd.Flags().StringVar(&recordListCategory, "category", "", "Only show this category")
	recordListCmd.Flags().BoolVar(&recordListJSON, "json", false, "Print JSON")

	recordClearCmd.Flags().BoolVar(&recordClearYes, "yes", false, "Confirm clearing all records")
}
