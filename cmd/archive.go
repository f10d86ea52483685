/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tasktrack/apiserver/config"
	"github.com/tasktrack/apiserver/internal/logging"
	"github.com/tasktrack/apiserver/internal/storage"
)

var archiveRaw bool

// archiveCmd groups commands that read account archives written on deletion.
var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Inspect archives of deleted accounts",
}

var archiveShowCmd = &cobra.Command{
	Use:   "show <key>",
	Short: "Print the account archive stored under key",
	Long: `Print the account archive stored under key, for example:

	tasktrack archive show archives/<user-id>/<unix>.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := logging.New(cfg.Log)

		archives, err := storage.Open(cmd.Context(), cfg.Storage)
		if err != nil {
			return err
		}
		if archives == nil {
			return errors.New("STORAGE_BACKEND is not set")
		}

		archive, err := archives.LoadArchive(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("load archive %s: %w", args[0], err)
		}

		if !archiveRaw {
			logger.Info("account archive",
				"bucket", archives.Bucket(),
				"user_id", archive.User.ID,
				"username", archive.User.Username,
				"email", archive.User.Email,
				"tasks", len(archive.Tasks),
				"deleted_at", archive.DeletedAt,
			)
			return nil
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(archive)
	},
}

func init() {
	rootCmd.AddCommand(archiveCmd)
	archiveCmd.AddCommand(archiveShowCmd)

	archiveShowCmd.Flags().BoolVar(&archiveRaw, "json", false, "print the full archive as JSON")
}
