package carbon

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/saadjs/carbon-cli/internal/app"
	"github.com/saadjs/carbon-cli/internal/service"
)

var backupDir string

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Snapshot and restore the stored history bucket",
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Write the raw bucket and its checksum to the backup directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := resolveBackupDir()
		if err != nil {
			return err
		}
		return withOwner(cmd, func(ctx context.Context, a *appContext, owner string) error {
			path := filepath.Join(dir, service.BackupFileName(owner, time.Now()))
			info, err := a.repo.CreateBackup(ctx, owner, path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backup written to %s (sha256 %s)\n", info.Path, info.Checksum)
			return nil
		})
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backups, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := resolveBackupDir()
		if err != nil {
			return err
		}
		backups, err := service.ListBackups(dir)
		if err != nil {
			return err
		}
		if len(backups) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No backups")
			return nil
		}
		for _, b := range backups {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d bytes\t%s\n", b.CreatedAt.Local().Format("2006-01-02 15:04:05"), b.Path, b.SizeBytes, b.Checksum)
		}
		return nil
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <path>",
	Short: "Restore the active owner's bucket from a backup file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOwner(cmd, func(ctx context.Context, a *appContext, owner string) error {
			if err := a.repo.RestoreBackup(ctx, owner, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored %d records from %s\n", a.repo.TotalRecords(owner), args[0])
			return nil
		})
	},
}

func resolveBackupDir() (string, error) {
	if d := strings.TrimSpace(backupDir); d != "" {
		return d, nil
	}
	return app.DefaultBackupDir()
}

func init() {
	rootCmd.AddCommand(backupCmd)
	backupCmd.AddCommand(backupCreateCmd, backupListCmd, backupRestoreCmd)
	backupCmd.PersistentFlags().StringVar(&backupDir, "dir", "", "Backup directory (default <user config dir>/carbon/backups)")
}
