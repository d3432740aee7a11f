package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/efolder-express/internal/config"
	"github.com/dharsanguruparan/efolder-express/internal/database"
	"github.com/dharsanguruparan/efolder-express/internal/doctypes"
	"github.com/dharsanguruparan/efolder-express/internal/encryption"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			target := cfg.SQLitePath
			if cfg.DatabaseDriver == config.DriverPostgres {
				target = cfg.DatabaseURL
			}
			db, err := database.Open(cmd.Context(), cfg.DatabaseDriver, target)
			if err != nil {
				return err
			}
			defer db.Close()
			return database.Migrate(db, logger)
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <request-id>",
		Short: "Print a download and its documents as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			dl, err := a.store.GetDownload(ctx, args[0])
			if err != nil {
				return err
			}
			out := struct {
				Completed        bool `json:"completed"`
				PercentCompleted int  `json:"percentCompleted"`
				Download         any  `json:"download"`
			}{dl.Completed(), dl.PercentCompleted(), dl}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}

func newArchiveCmd() *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "archive <request-id>",
		Short: "Write a completed download's zip to a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			dl, err := a.store.GetDownload(ctx, args[0])
			if err != nil {
				return err
			}
			if !dl.Completed() {
				return fmt.Errorf("download %s is %d%% complete", dl.RequestID, dl.PercentCompleted())
			}
			if err := doctypes.Populate(ctx, a.types, a.records, logger); err != nil {
				return err
			}
			if err := os.MkdirAll(outDir, 0o750); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}
			path, err := a.archiver.BuildFile(ctx, dl, outDir)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "output", "o", ".", "Directory to write the zip into")
	return cmd
}

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Print a new encryption key for EFOLDER_ENCRYPTION_KEYS",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := encryption.GenerateKey()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
}
