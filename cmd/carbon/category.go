package carbon

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/saadjs/carbon-cli/internal/estimate"
	"github.com/saadjs/carbon-cli/internal/model"
)

var categoryCmd = &cobra.Command{
	Use:   "category",
	Short: "Inspect emission categories",
}

var categoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List categories and the estimate parameters each accepts",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, c := range model.Categories() {
			fields, err := estimate.Fields(c)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", c, c.Label(), strings.Join(fields, ","))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(categoryCmd)
	categoryCmd.AddCommand(categoryListCmd)
}
