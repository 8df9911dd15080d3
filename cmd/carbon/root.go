package carbon

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/saadjs/carbon-cli/internal/config"
	"github.com/saadjs/carbon-cli/internal/logging"
)

var (
	configPath string
	dbPath     string
	userFlag   string
	verbose    bool

	cfg    *config.Config
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "carbon",
	Short: "carbon estimates and tracks greenhouse-gas emissions from your terminal",
	Long:  "carbon estimates emissions for business travel, freight and cloud workloads, and keeps a per-user history with totals, trends and JSON export.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolveConfigPath()
		if err != nil {
			return err
		}
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		if dbPath != "" {
			loaded.Storage.SQLitePath = dbPath
		}
		l, err := logging.New(loaded.Logging, verbose)
		if err != nil {
			return err
		}
		cfg = loaded
		logger = l
		logger.Debug("config loaded", zap.String("path", path), zap.String("storage", cfg.Storage.Driver))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
	SilenceUsage: true,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default <user config dir>/carbon/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to SQLite database (sqlite storage driver)")
	rootCmd.PersistentFlags().StringVar(&userFlag, "user", "", "Act as this owner id instead of the signed-in session")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func resolveConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	return config.DefaultPath()
}
