package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/scalarorg/ibc-tracker/config"
	"github.com/scalarorg/ibc-tracker/pkg/db"
	"github.com/scalarorg/ibc-tracker/pkg/telemetry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	configPath string
	envFiles   []string
	rootCmd    = &cobra.Command{
		Use:   "tracker",
		Short: "IBC transfer tracker",
		Long:  "Tracks IBC transfers in MongoDB and serves monitoring queries over them.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup()
		},
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the configuration file (json or yaml)")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env", []string{".env"}, "Env files loaded before the configuration")
	rootCmd.PersistentFlags().String("log-level", "", "Overrides log.level")
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(apiCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(migrateCmd)
}

func setup() error {
	if err := config.LoadEnv(envFiles...); err != nil {
		return err
	}
	if err := config.Load(configPath); err != nil {
		return err
	}
	config.InitLogger()
	return nil
}

// withDatabase connects to MongoDB, ensures indexes and hands the adapter to fn.
func withDatabase(ctx context.Context, fn func(ctx context.Context, dbAdapter *db.DatabaseAdapter) error) error {
	shutdownTracer, err := telemetry.InitTracer(ctx, config.GlobalConfig.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Warn().Err(err).Msg("failed to flush traces")
		}
	}()

	dbAdapter, err := db.NewDatabaseAdapter(ctx, config.GlobalConfig.Mongo)
	if err != nil {
		return err
	}
	return fn(ctx, dbAdapter)
}

func waitForSignal() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
}
