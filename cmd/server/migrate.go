package main

import (
	"context"
	"fmt"
	"time"

	"warehouse-service/config"
	"warehouse-service/internal/store"
	"warehouse-service/internal/util"

	"github.com/spf13/cobra"
)

// warehouse migrate
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database schema if it does not exist",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		defer util.SyncLogger()

		if cfg.Database.Driver != "postgres" {
			return fmt.Errorf("migrate requires DB_DRIVER=postgres, got %q", cfg.Database.Driver)
		}

		db, err := store.NewStore(cfg.Database.URL)
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()
		if err := db.Migrate(ctx); err != nil {
			return err
		}

		util.GetLogger().Info("Schema is up to date")
		return nil
	},
}
