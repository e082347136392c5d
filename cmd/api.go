package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/scalarorg/ibc-tracker/config"
	"github.com/scalarorg/ibc-tracker/internal/tracker"
	"github.com/scalarorg/ibc-tracker/pkg/db"
	"github.com/spf13/cobra"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Serve the monitoring API",
	Long:  "Serves transfer listings and dashboard statistics. The reconciliation sweeper runs alongside when enabled.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(cmd.Context(), runAPI)
	},
}

func runAPI(ctx context.Context, dbAdapter *db.DatabaseAdapter) error {
	service, err := tracker.NewService(ctx, config.GlobalConfig, dbAdapter)
	if err != nil {
		dbAdapter.Close(context.Background())
		return fmt.Errorf("failed to create tracker service: %w", err)
	}
	if err := service.Start(ctx); err != nil {
		service.Stop()
		return fmt.Errorf("failed to start tracker service: %w", err)
	}

	waitForSignal()
	log.Info().Msg("Shutting down tracker...")
	service.Stop()
	return nil
}
