package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/axellelanca/locashare/cmd"
)

// MigrateCmd creates or updates every configured schema.
var MigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Executes database migrations to create or update tables.",
	Long: `Runs GORM automatic migrations for the SQLite tables (locations, links,
clicks) and, when postgres.dsn is set, creates the PostGIS locations table
with its geography index.`,
	RunE: func(c *cobra.Command, args []string) error {
		// OpenStores migrates each backend it connects.
		stores, err := cmd.OpenStores(c.Context(), cmd.Cfg, cmd.Logger)
		if err != nil {
			return err
		}
		defer stores.Close()

		fmt.Println("Database migrations executed successfully.")
		if stores.Postgis != nil {
			fmt.Println("PostGIS schema is up to date.")
		}
		return nil
	},
}

func init() {
	cmd.RootCmd.AddCommand(MigrateCmd)
}
