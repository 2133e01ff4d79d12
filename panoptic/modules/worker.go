package modules

import (
	"context"
	"sync"
	"time"

	"github.com/Luismorlan/community/panoptic"
	Logger "github.com/Luismorlan/community/utils/log"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

type WorkerConfig struct {
	// Name of the worker.
	Name string
	// At most PoolSize tasks run at once.
	PoolSize int
}

// Worker pulls pending tasks off the event bus and runs them on a bounded
// pool. A failed task is logged and reported, never retried.
type Worker struct {
	Config WorkerConfig

	executor Executor

	EventBus *gochannel.GoChannel

	wg sync.WaitGroup
}

// Return a new instance of Worker.
func NewWorker(config WorkerConfig, executor Executor, e *gochannel.GoChannel) *Worker {
	if config.PoolSize <= 0 {
		config.PoolSize = 1
	}
	return &Worker{
		Config:   config,
		executor: executor,
		EventBus: e,
	}
}

// After a task is executed, publish it into the executed task topic for the
// reporter.
func (w *Worker) PublishExecutedTask(task *panoptic.Task) error {
	return panoptic.PublishTask(w.EventBus, panoptic.TopicExecutedTask, task)
}

func (w *Worker) RunModule(ctx context.Context) error {
	messages, err := w.EventBus.Subscribe(ctx, panoptic.TopicPendingTask)
	if err != nil {
		return err
	}

	slots := make(chan struct{}, w.Config.PoolSize)
	for msg := range messages {
		task, err := panoptic.DecodeTask(msg)
		if err != nil {
			Logger.Log.WithError(err).Error("drop malformed task")
			continue
		}

		slots <- struct{}{}
		w.wg.Add(1)
		go func(task *panoptic.Task) {
			defer func() {
				<-slots
				w.wg.Done()
			}()
			w.run(ctx, task)
		}(task)
	}

	w.wg.Wait()
	return nil
}

func (w *Worker) run(ctx context.Context, task *panoptic.Task) {
	log := Logger.Log.WithField("task_id", task.TaskId).WithField("type", task.Type)
	start := time.Now()
	// Work already picked up runs to completion on shutdown.
	err := w.executor.Execute(context.WithoutCancel(ctx), task)
	task.Finish(err, time.Since(start))
	if err != nil {
		log.WithError(err).Error("fail to execute task")
	} else {
		log.Info("task executed")
	}
	if err := w.PublishExecutedTask(task); err != nil {
		log.WithError(err).Error("fail to publish executed task")
	}
}

func (w *Worker) Name() string {
	return w.Config.Name
}

func (w *Worker) Shutdown() {
	w.wg.Wait()
	w.executor.Shutdown()
	Logger.Log.Infoln("Module ", w.Config.Name, " gracefully shutdown")
}
