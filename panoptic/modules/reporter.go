package modules

import (
	"context"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/Luismorlan/community/panoptic"
	Logger "github.com/Luismorlan/community/utils/log"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

type ReporterConfig struct {
	Name string
}

// Reporter's job is to listen to executed tasks and aggregate results,
// sending to Datadog for monitoring purpose.
type Reporter struct {
	Config ReporterConfig

	Statsd statsd.ClientInterface

	EventBus *gochannel.GoChannel
}

func NewReporter(config ReporterConfig, statsd statsd.ClientInterface, e *gochannel.GoChannel) *Reporter {
	return &Reporter{
		Config:   config,
		Statsd:   statsd,
		EventBus: e,
	}
}

// Report task result state to datadog.
func ReportResultState(task *panoptic.Task, client statsd.ClientInterface) {
	tags := []string{
		"type:" + string(task.Type),
		"state:" + string(task.ResultState),
	}
	if err := client.Incr(panoptic.DdogTaskStateCounter, tags, 1); err != nil {
		Logger.Log.WithError(err).Warn("cannot report result state")
	}
	if err := client.Histogram(panoptic.DdogTaskLatencyMillis, float64(task.ElapsedMillis), tags, 1); err != nil {
		Logger.Log.WithError(err).Warn("cannot report task latency")
	}
}

func (r *Reporter) ProcessExecutedTasks(ctx context.Context) error {
	messages, err := r.EventBus.Subscribe(ctx, panoptic.TopicExecutedTask)
	if err != nil {
		return err
	}

	for msg := range messages {
		task, err := panoptic.DecodeTask(msg)
		if err != nil {
			Logger.Log.WithError(err).Error("drop malformed executed task")
			continue
		}
		ReportResultState(task, r.Statsd)
	}

	return nil
}

func (r *Reporter) RunModule(ctx context.Context) error {
	return r.ProcessExecutedTasks(ctx)
}

func (r *Reporter) Name() string {
	return r.Config.Name
}

func (r *Reporter) Shutdown() {
	if err := r.Statsd.Flush(); err != nil {
		Logger.Log.WithError(err).Warn("fail to flush statsd")
	}
}
