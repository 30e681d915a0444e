package main

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/daveduya011/wph-task-manager/config"
	"github.com/daveduya011/wph-task-manager/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply SQL migrations and create Azure tables and queues",
	Long: `Apply the embedded SQL migrations to DB_DSN.

When STORAGE_CONNECTION_STRING is set, the tasks table and the events
queue are created as well. Existing tables and queues are left alone.`,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	driver := cfg.DBDriver
	if driver == config.DriverTables {
		driver = storage.DriverSQLite
	}
	db, err := storage.OpenSQL(ctx, driver, cfg.DBDSN)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := storage.Migrate(ctx, db.DB(), driver); err != nil {
		return fmt.Errorf("migrate %s: %w", driver, err)
	}
	log.WithField("driver", driver).Info("sql migrations applied")

	if cfg.StorageConnString == "" {
		return nil
	}
	var tables, queues []string
	if cfg.DBDriver == config.DriverTables {
		tables = append(tables, cfg.TasksTable)
	}
	if cfg.EventsQueue != "" {
		queues = append(queues, cfg.EventsQueue)
	}
	if err := storage.InitAzure(ctx, cfg.StorageConnString, tables, queues); err != nil {
		return fmt.Errorf("azure storage: %w", err)
	}
	log.WithFields(log.Fields{"tables": tables, "queues": queues}).Info("azure storage ready")
	return nil
}
