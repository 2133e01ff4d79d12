package modules

import (
	"context"

	"github.com/Luismorlan/community/panoptic"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Dispatcher publishes tasks for workers. Delivery is at least once and there
// is no ordering across tasks.
type Dispatcher struct {
	publisher message.Publisher
}

func NewDispatcher(publisher message.Publisher) *Dispatcher {
	return &Dispatcher{publisher: publisher}
}

func (d *Dispatcher) Enqueue(ctx context.Context, task *panoptic.Task) error {
	return panoptic.PublishTask(d.publisher, panoptic.TopicPendingTask, task)
}

// EnqueueJobs publishes one process_job task per job so jobs spread over the
// worker pool.
func (d *Dispatcher) EnqueueJobs(ctx context.Context, jobIDs ...uint) error {
	for _, id := range jobIDs {
		task := panoptic.NewTask(panoptic.TaskProcessJob)
		task.Ids = []uint{id}
		if err := d.Enqueue(ctx, task); err != nil {
			return err
		}
	}
	return nil
}

// InlineEnqueuer executes tasks on the caller's goroutine, the CLI uses it
// when no worker is listening.
type InlineEnqueuer struct {
	executor Executor
}

func NewInlineEnqueuer(executor Executor) *InlineEnqueuer {
	return &InlineEnqueuer{executor: executor}
}

func (e *InlineEnqueuer) Enqueue(ctx context.Context, task *panoptic.Task) error {
	return e.executor.Execute(ctx, task)
}

func (e *InlineEnqueuer) EnqueueJobs(ctx context.Context, jobIDs ...uint) error {
	task := panoptic.NewTask(panoptic.TaskProcessJob)
	task.Ids = jobIDs
	return e.Enqueue(ctx, task)
}
