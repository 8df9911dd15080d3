package carbon

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/saadjs/carbon-cli/internal/config"
	"github.com/saadjs/carbon-cli/internal/storage"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config (if missing) and initialize the history store",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolveConfigPath()
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			def := config.DefaultConfig()
			if dbPath != "" {
				def.Storage.SQLitePath = dbPath
			}
			if err := def.Save(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote config to %s\n", path)
		}

		store, err := storage.Open(cmd.Context(), cfg.StoreConfig())
		if err != nil {
			return err
		}
		defer store.Close()

		fmt.Fprintf(cmd.OutOrStdout(), "Initialized %s history store", store.Driver())
		if store.Driver() == storage.DriverSQLite {
			fmt.Fprintf(cmd.OutOrStdout(), " at %s", cfg.Storage.SQLitePath)
		}
		fmt.Fprintln(cmd.OutOrStdout())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
