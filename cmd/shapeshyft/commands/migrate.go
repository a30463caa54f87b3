package commands

import (
	"github.com/spf13/cobra"

	"github.com/johnqh/shapeshyft-api/internal/logger"
	"github.com/johnqh/shapeshyft-api/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		logError("%v", err)
		return err
	}

	if err := store.Migrate(cfg.Database.URL); err != nil {
		logError("%v", err)
		return err
	}

	logger.Info("migrations applied")
	return nil
}
