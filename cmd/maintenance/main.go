package main

import (
	"fmt"
	"os"

	"github.com/apaddicto/internal/config"
	"github.com/apaddicto/internal/db"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "maintenance",
	Short: "Apaddicto operational tasks",
	Long: `Maintenance runs one-off operational tasks against the database
named by DATABASE_URL (a .env file in the working directory is honoured).

  $ maintenance migrate
  $ maintenance create-admin --email admin@example.com --password 's3cret-pass'
  $ maintenance repair-sessions
  $ maintenance seed`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" {
			return nil
		}
		cfg := config.Load()
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
		gdb, err := db.Open(cfg.DatabaseURL, true)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		db.DB = gdb
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if db.DB == nil {
			return nil
		}
		sqlDB, err := db.DB.DB()
		if err != nil {
			return nil
		}
		return sqlDB.Close()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		color.Red("✗ %v", err)
		os.Exit(1)
	}
}
