package cmd

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/scalarorg/ibc-tracker/pkg/db"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the transfer record indexes",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(cmd.Context(), func(ctx context.Context, dbAdapter *db.DatabaseAdapter) error {
			// NewDatabaseAdapter already ensured the indexes.
			defer dbAdapter.Close(context.Background())
			log.Info().Str("database", dbAdapter.MongoDatabase.Name()).Msg("Indexes are up to date")
			return nil
		})
	},
}
