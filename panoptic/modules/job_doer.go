package modules

import (
	"context"

	"github.com/Luismorlan/community/panoptic"
	Logger "github.com/Luismorlan/community/utils/log"
)

// JobDoer execute the SchedulerJob with customized logic. We create this
// abstraction so that we could inject different JobDoer implementation into
// scheduler for the easy of testing and debugging.
type JobDoer interface {
	// Performs a SchedulerJob, return error if there's any.
	Do(ctx context.Context, job *SchedulerJob) error
}

// TaskEnqueuer is what a SchedulerJobDoer publishes through.
type TaskEnqueuer interface {
	Enqueue(ctx context.Context, task *panoptic.Task) error
}

type SchedulerJobDoer struct {
	enqueuer TaskEnqueuer
}

func NewSchedulerJobDoer(enqueuer TaskEnqueuer) *SchedulerJobDoer {
	return &SchedulerJobDoer{
		enqueuer: enqueuer,
	}
}

// Turn the SchedulerJob into tasks and enqueue them.
func (d *SchedulerJobDoer) Do(ctx context.Context, job *SchedulerJob) error {
	for _, task := range job.NewTasks() {
		if err := d.enqueuer.Enqueue(ctx, task); err != nil {
			return err
		}
	}

	job.IncrementRunCount()

	return nil
}

// Test only, print the to-be executed job
type PrinterJobDoer struct{}

func (d *PrinterJobDoer) Do(ctx context.Context, job *SchedulerJob) error {
	for _, task := range job.NewTasks() {
		Logger.Log.Infof("scheduler job %s would enqueue %s", job.Name(), task.Type)
	}

	job.IncrementRunCount()

	return nil
}
