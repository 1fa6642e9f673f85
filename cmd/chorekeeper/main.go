package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dukerupert/chorekeeper/internal/backup"
	"github.com/dukerupert/chorekeeper/internal/config"
	"github.com/dukerupert/chorekeeper/internal/database"
	"github.com/dukerupert/chorekeeper/internal/logging"
	"github.com/dukerupert/chorekeeper/internal/store"
)

var Version = "dev"

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:          "chorekeeper",
		Short:        "Household chore tracking server",
		Version:      Version,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(importLegacyCmd())
	rootCmd.AddCommand(remapsCmd())
	rootCmd.AddCommand(usersCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(hostAdminCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app holds what every subcommand opens.
type app struct {
	cfg    *config.Config
	db     *sql.DB
	logger *slog.Logger
}

func openApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format)

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return &app{cfg: cfg, db: db, logger: logger}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

func (a *app) snapshotter() *backup.Snapshotter {
	b := a.cfg.Backup
	return backup.NewSnapshotter(backup.Config{
		Dir:        b.Dir,
		Passphrase: b.Passphrase,
		S3: backup.S3Config{
			Endpoint:  b.S3.Endpoint,
			Bucket:    b.S3.Bucket,
			Region:    b.S3.Region,
			Prefix:    b.S3.Prefix,
			AccessKey: b.S3.AccessKey,
			SecretKey: b.S3.SecretKey,
		},
	}, a.db, store.NewBackupStore(a.db), a.logger.With("component", "backup"))
}
