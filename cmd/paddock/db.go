package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pitlane/paddock/pkg/store"
)

// Database commands
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the database schema",
}

var dbInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the database and apply schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		st, err := store.Open(cfg.DatabasePath)
		if err != nil {
			return fmt.Errorf("failed to open database: %v", err)
		}
		defer st.Close()

		if err := st.Migrate(); err != nil {
			return fmt.Errorf("failed to apply migrations: %v", err)
		}

		version, _, err := st.SchemaVersion()
		if err != nil {
			return err
		}

		fmt.Printf("✓ Database initialized at %s (schema version %d)\n", st.Path(), version)
		return nil
	},
}

var dbVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that the schema is present and complete",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		st, err := store.Open(cfg.DatabasePath)
		if err != nil {
			return fmt.Errorf("failed to open database: %v", err)
		}
		defer st.Close()

		if err := st.Verify(); err != nil {
			return err
		}

		version, dirty, err := st.SchemaVersion()
		if err != nil {
			return err
		}
		if dirty {
			return fmt.Errorf("schema version %d is dirty; run 'paddock db reset --yes' to rebuild", version)
		}

		size, err := st.SizeMB()
		if err != nil {
			return err
		}

		fmt.Printf("✓ Schema OK (version %d, %.1f MB)\n", version, size)
		return nil
	},
}

var dbResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Drop every table and rebuild the schema from scratch",
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			return fmt.Errorf("reset deletes all venues, pools, batches, and history; re-run with --yes to confirm")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		st, err := store.Open(cfg.DatabasePath)
		if err != nil {
			return fmt.Errorf("failed to open database: %v", err)
		}
		defer st.Close()

		if err := st.Reset(); err != nil {
			return fmt.Errorf("failed to reset database: %v", err)
		}

		fmt.Printf("✓ Database reset at %s\n", st.Path())
		return nil
	},
}

func init() {
	dbCmd.AddCommand(dbInitCmd)
	dbCmd.AddCommand(dbVerifyCmd)
	dbCmd.AddCommand(dbResetCmd)

	dbResetCmd.Flags().Bool("yes", false, "Confirm the destructive reset")
}
