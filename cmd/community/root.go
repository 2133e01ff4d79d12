package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/Luismorlan/community/app_config"
	"github.com/Luismorlan/community/bootstrap"
	"github.com/Luismorlan/community/panoptic/modules"
	"github.com/Luismorlan/community/utils/dotenv"
	"github.com/Luismorlan/community/utils/flag"
	Logger "github.com/Luismorlan/community/utils/log"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "community",
	Short: "Ingest community platforms and merge their users into one identity graph",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := dotenv.LoadDotEnvs(); err != nil {
			return err
		}
		// Flags are parsed by now, pick up the service name and debug level.
		Logger.InitLogger()
		return nil
	},
	SilenceUsage: true,
}

func init() {
	flag.AddSharedFlags(rootCmd.PersistentFlags(), flag.CLI)

	rootCmd.AddCommand(
		workerCommand(),
		serveCommand(),
		crawlCommand(),
		discoverCommand(),
		processCommand(),
		runStageCommand(),
		populateUsersCommand(),
		mergeUsersCommand(),
		migrateCommand(),
	)
}

// Execute runs the root command, SIGINT and SIGTERM cancel its context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// newApp builds the App for one command run.
func newApp(ctx context.Context) (*bootstrap.App, error) {
	config, err := app_config.ParseCommunityAppConfig(flag.AppConfigPath)
	if err != nil {
		Logger.Log.WithError(err).Warn("using default app config")
	}
	return bootstrap.NewApp(ctx, config)
}

// newInlineApp is newApp for one shot commands, jobs created by the command
// are processed before it returns.
func newInlineApp(ctx context.Context) (*bootstrap.App, *modules.InlineEnqueuer, error) {
	app, err := newApp(ctx)
	if err != nil {
		return nil, nil, err
	}
	enqueuer := modules.NewInlineEnqueuer(app.Executor)
	app.Machine.SetEnqueuer(enqueuer)
	return app, enqueuer, nil
}
