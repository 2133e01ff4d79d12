package main

import (
	"context"

	"github.com/Luismorlan/community/bootstrap"
	"github.com/Luismorlan/community/utils/flag"
	Logger "github.com/Luismorlan/community/utils/log"
	"github.com/spf13/cobra"
)

func workerCommand() *cobra.Command {
	opts := bootstrap.EngineOptions{}
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the task worker pool and the scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(cmd.Context(), flag.Worker, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.Schedule, "schedule", true, "run the periodic crawl and identity refresh")
	cmd.Flags().StringVar(&opts.AdminAddr, "admin_addr", "", "also serve the admin api on this address")
	return cmd
}

func serveCommand() *cobra.Command {
	opts := bootstrap.EngineOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the admin api next to a worker pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(cmd.Context(), flag.APIServer, opts)
		},
	}
	cmd.Flags().StringVar(&opts.AdminAddr, "addr", ":8080", "admin api address")
	cmd.Flags().BoolVar(&opts.Schedule, "schedule", false, "also run the periodic crawl and identity refresh")
	return cmd
}

// runEngine blocks until ctx is cancelled and every module shut down.
func runEngine(ctx context.Context, service string, opts bootstrap.EngineOptions) error {
	if !cmdFlagChanged("service") {
		flag.ServiceName = service
		Logger.InitLogger()
	}
	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	engine, err := bootstrap.NewEngine(ctx, app, opts)
	if err != nil {
		return err
	}

	stopped := make(chan struct{})
	go func() {
		<-ctx.Done()
		engine.Shutdown()
		close(stopped)
	}()

	Logger.Log.Info("engine starts up")
	engine.Run()
	<-stopped
	Logger.Log.Info("engine stopped execution")
	return nil
}

func cmdFlagChanged(name string) bool {
	f := rootCmd.PersistentFlags().Lookup(name)
	return f != nil && f.Changed
}
