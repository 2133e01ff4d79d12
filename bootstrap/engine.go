package bootstrap

import (
	"context"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/Luismorlan/community/panoptic"
	"github.com/Luismorlan/community/panoptic/modules"
	"github.com/Luismorlan/community/server"
	Logger "github.com/Luismorlan/community/utils/log"
)

const (
	eventBusBuffer = 100
	statsdAddr     = "127.0.0.1:8125"
)

type EngineOptions struct {
	// Run the periodic crawl and identity refresh.
	Schedule bool
	// Serve the admin api on this address, empty disables it.
	AdminAddr string
}

// NewEngine assembles the worker process: a worker pool and a reporter always,
// the scheduler and admin api on demand. Jobs created while it runs are
// published on its event bus.
func NewEngine(ctx context.Context, app *App, opts EngineOptions) (*panoptic.Engine, error) {
	ctx, cancel := context.WithCancel(ctx)
	bus := panoptic.NewEventBus(eventBusBuffer)
	dispatcher := modules.NewDispatcher(bus)
	app.Machine.SetEnqueuer(dispatcher)

	ms := []panoptic.Module{
		// Reporter reports the execution metrics to datadog for monitoring purpose.
		modules.NewReporter(modules.ReporterConfig{Name: "reporter"}, NewDogStatsdClient(), bus),
		// Worker executes pending tasks and publishes them to the reporter.
		modules.NewWorker(modules.WorkerConfig{Name: "worker", PoolSize: app.Config.WORKER_POOL_SIZE}, app.Executor, bus),
	}
	if opts.Schedule {
		scheduler, err := modules.NewScheduler(
			modules.SchedulerConfig{Name: "scheduler"},
			modules.NewSchedulerJobs(app.Config, ctx),
			modules.NewSchedulerJobDoer(dispatcher),
		)
		if err != nil {
			cancel()
			return nil, err
		}
		ms = append(ms, scheduler)
	}
	if opts.AdminAddr != "" {
		ms = append(ms, server.NewServer(server.Config{Name: "admin_api", Addr: opts.AdminAddr}, dispatcher))
	}

	return panoptic.NewEngine(ms, ctx, cancel, bus), nil
}

// NewDogStatsdClient falls back to a no-op client when the agent address
// cannot be resolved.
func NewDogStatsdClient() statsd.ClientInterface {
	client, err := statsd.New(statsdAddr)
	if err != nil {
		Logger.Log.WithError(err).Warn("statsd disabled")
		return &statsd.NoOpClient{}
	}
	return client
}
