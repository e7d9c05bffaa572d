// Package commands holds the grievancectl maintenance commands.
package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/aldoetobex/civic-grievance-backend/pkg/database"
	"github.com/aldoetobex/civic-grievance-backend/pkg/logger"
)

var (
	databaseURL string
	logLevel    string
)

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "grievancectl",
		Short: "Maintenance tasks for the civic grievance database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		FParseErrWhitelist: cobra.FParseErrWhitelist{},
	}
	root.PersistentFlags().StringVar(&databaseURL, "database-url", "", "Postgres DSN (defaults to $DATABASE_URL)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level")
	root.AddCommand(newMigrateCmd())
	return root
}

// Execute runs the root command.
func Execute() error {
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

func newLogger(cmd *cobra.Command) zerolog.Logger {
	return logger.New(logger.Config{
		Level:       logLevel,
		Environment: "dev",
		ServiceName: "grievancectl",
		Output:      cmd.ErrOrStderr(),
	})
}

func openDB() (*gorm.DB, error) {
	_ = godotenv.Load()
	dsn := databaseURL
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		return nil, errors.New("no database: pass --database-url or set DATABASE_URL")
	}
	db, err := database.Open(dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}
