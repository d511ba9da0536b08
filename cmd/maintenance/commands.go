package main

import (
	"fmt"

	"github.com/apaddicto/internal/db"
	"github.com/apaddicto/internal/service"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	adminEmail    string
	adminPassword string
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update every table",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := db.Migrate(db.DB); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		color.Green("✓ schema up to date (%d tables)", len(db.Models()))
		return nil
	},
}

var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Create an admin account or promote an existing one",
	Long: `Create an admin account with the given email and password.

An existing account with the same email is promoted to admin and
re-activated; its password is left unchanged.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if adminEmail == "" || adminPassword == "" {
			return fmt.Errorf("--email and --password are required")
		}
		if err := db.Migrate(db.DB); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		if err := db.EnsureAdmin(db.DB, adminEmail, adminPassword); err != nil {
			return fmt.Errorf("create admin: %w", err)
		}
		color.Green("✓ admin ready: %s", db.NormalizeEmail(adminEmail))
		return nil
	},
}

var repairSessionsCmd = &cobra.Command{
	Use:   "repair-sessions",
	Short: "Renumber session elements and recompute total durations",
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := service.NewSessionService(db.DB).Repair()
		if err != nil {
			return err
		}
		color.Green("✓ checked %d sessions", report.Sessions)
		if report.Renumbered > 0 {
			color.Yellow("  renumbered elements in %d sessions", report.Renumbered)
		}
		if report.TotalsRefreshed > 0 {
			color.Yellow("  refreshed total duration of %d sessions", report.TotalsRefreshed)
		}
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load demo exercises, psycho-education content and emergency routines",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := db.Migrate(db.DB); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		report, err := seedDemoData()
		if err != nil {
			return err
		}
		color.Green("✓ seed complete")
		fmt.Printf("  exercises: %d created, %d skipped\n", report.Exercises, report.Skipped.Exercises)
		fmt.Printf("  content:   %d created, %d skipped\n", report.Content, report.Skipped.Content)
		fmt.Printf("  routines:  %d created, %d skipped\n", report.Routines, report.Skipped.Routines)
		return nil
	},
}

func init() {
	createAdminCmd.Flags().StringVar(&adminEmail, "email", "", "admin email address")
	createAdminCmd.Flags().StringVar(&adminPassword, "password", "", "admin password (used only when the account is created)")

	rootCmd.AddCommand(migrateCmd, createAdminCmd, repairSessionsCmd, seedCmd)
}
