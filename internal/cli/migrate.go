package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/filmgraph/backend/internal/ledger"
	"github.com/filmgraph/backend/internal/util"
	"github.com/filmgraph/backend/pkg/logger"
)

// migrateDatabase applies the run ledger migrations. Tests replace it.
var migrateDatabase = ledger.Migrate

var migrateSchemaCmd = &cobra.Command{
	Use:   "migrate-schema",
	Short: "Rename legacy film fields to the canonical schema",
	Long: `Rename legacy document keys ("Revenue (Millions)", "Votes", "Director", ...)
to the canonical film schema. Documents already in canonical form are left
untouched, so the command can be run repeatedly.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		b, err := openBackends(ctx, false)
		if err != nil {
			return err
		}
		defer b.Close()

		modified, err := b.Docs.MigrateLegacyFields(ctx)
		if err != nil {
			return err
		}
		logger.Info("[Migrate] Legacy fields renamed", "modified", modified)
		fmt.Fprintf(cmd.OutOrStdout(), "%d documents migrated\n", modified)
		return nil
	},
}

var migrateDBCmd = &cobra.Command{
	Use:   "migrate-db",
	Short: "Apply pending Postgres migrations (DATABASE_URL)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dbURL := util.GetEnv("DATABASE_URL")
		if dbURL == "" {
			return errors.New("DATABASE_URL is not set")
		}
		return migrateDatabase(dbURL)
	},
}

func init() {
	rootCmd.AddCommand(migrateSchemaCmd)
	rootCmd.AddCommand(migrateDBCmd)
}
