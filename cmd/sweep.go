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

var sweepOnce bool

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Resolve missing base denoms of processing transfers",
	RunE: func(cmd *cobra.Command, args []string) error {
		config.GlobalConfig.Sweeper.Enabled = true
		return withDatabase(cmd.Context(), runSweep)
	},
}

func init() {
	sweepCmd.Flags().BoolVar(&sweepOnce, "once", false, "Run a single sweep and exit")
}

func runSweep(ctx context.Context, dbAdapter *db.DatabaseAdapter) error {
	service, err := tracker.NewService(ctx, config.GlobalConfig, dbAdapter)
	if err != nil {
		dbAdapter.Close(context.Background())
		return fmt.Errorf("failed to create tracker service: %w", err)
	}
	defer service.Stop()

	if sweepOnce {
		patched, err := service.Sweeper.Sweep(ctx)
		if err != nil {
			return err
		}
		log.Info().Int("patched", patched).Msg("Sweep finished")
		return nil
	}

	service.StartSweeper(ctx)
	waitForSignal()
	log.Info().Msg("Shutting down sweeper...")
	return nil
}
