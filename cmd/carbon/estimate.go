package carbon

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/saadjs/carbon-cli/internal/estimate"
	"github.com/saadjs/carbon-cli/internal/model"
)

var (
	estimateParams   []string
	estimateStrategy string
	estimateSave     bool
	estimateLabel    string
	estimateJSON     bool
)

var estimateCmd = &cobra.Command{
	Use:   "estimate <category>",
	Short: "Estimate emissions for a category (remote calculator or local formula)",
	Example: `  carbon estimate cloud-cpu --param region=us_east_1 --param cpu_count=4 --param duration=24
  carbon estimate business-travel --param distance_km=850 --param return_trip=true --strategy local --save`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		category, err := model.ParseCategory(args[0])
		if err != nil {
			return err
		}
		form, err := parseKeyValues("param", estimateParams)
		if err != nil {
			return err
		}
		req, err := estimate.ParseRequest(category, form)
		if err != nil {
			return err
		}
		client, err := newClimatiqClient()
		if err != nil {
			return err
		}
		est, err := estimate.New(estimateStrategy, client)
		if err != nil {
			return err
		}

		run := func(ctx context.Context, a *appContext) error {
			res, err := est.Estimate(ctx, req)
			if err != nil {
				return err
			}
			logger.Debug("estimate computed",
				zap.String("category", string(category)),
				zap.String("strategy", est.Name()),
				zap.Float64("co2e", res.CO2e))

			var id string
			if estimateSave {
				owner, _, err := a.owner()
				if err != nil {
					return err
				}
				id, err = a.repo.Add(ctx, estimate.Draft(req, res, estimateLabel), owner)
				if err != nil {
					return err
				}
			}
			if estimateJSON {
				return printJSON(cmd, estimateOutput{
					Category: category,
					Strategy: res.Strategy,
					CO2e:     res.CO2e,
					Unit:     res.Unit,
					CO2:      res.CO2,
					CH4:      res.CH4,
					N2O:      res.N2O,
					Source:   res.Source,
					Inputs:   req.Form,
					RecordID: id,
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s): %.3f %s CO2e\n", category.Label(), res.Strategy, res.CO2e, res.Unit)
			if res.Source != "" {
				fmt.Fprintf(out, "Source: %s\n", res.Source)
			}
			if id != "" {
				fmt.Fprintf(out, "Saved record %s\n", id)
			}
			return nil
		}
		if !estimateSave {
			return run(cmd.Context(), nil)
		}
		return withApp(cmd, run)
	},
}

type estimateOutput struct {
	Category model.Category `json:"category"`
	Strategy string         `json:"strategy"`
	CO2e     float64        `json:"co2e"`
	Unit     string         `json:"co2e_unit"`
	CO2      *float64       `json:"co2,omitempty"`
	CH4      *float64       `json:"ch4,omitempty"`
	N2O      *float64       `json:"n2o,omitempty"`
	Source   string         `json:"source,omitempty"`
	Inputs   model.Payload  `json:"inputs"`
	RecordID string         `json:"recordId,omitempty"`
}

var estimateProvidersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List cloud providers and regions known to the remote calculator",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClimatiqClient()
		if err != nil {
			return err
		}
		meta, err := client.CloudMetadata(cmd.Context())
		if err != nil {
			return err
		}
		if estimateJSON {
			return printJSON(cmd, meta)
		}
		ids := make([]string, 0, len(meta.CloudProviders))
		for id := range meta.CloudProviders {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			p := meta.CloudProviders[id]
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", id, p.ProviderFullName, strings.Join(p.Regions, ","))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(estimateCmd)
	estimateCmd.AddCommand(estimateProvidersCmd)
	estimateCmd.Flags().StringArrayVarP(&estimateParams, "param", "p", nil, "Form parameter key=value (repeatable)")
	estimateCmd.Flags().StringVar(&estimateStrategy, "strategy", estimate.StrategyRemote, "Estimation strategy: remote or local")
	estimateCmd.Flags().BoolVar(&estimateSave, "save", false, "Save the result to history")
	estimateCmd.Flags().StringVar(&estimateLabel, "label", "", "Name for the saved record")
	estimateCmd.PersistentFlags().BoolVar(&estimateJSON, "json", false, "Print JSON")
}
