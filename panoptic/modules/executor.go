package modules

import (
	"context"
	"fmt"
	"sort"

	"github.com/Luismorlan/community/ingest"
	"github.com/Luismorlan/community/model"
	"github.com/Luismorlan/community/panoptic"
	Logger "github.com/Luismorlan/community/utils/log"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Executor is in charge of task execution. This is the common interface
// shared by the worker and the inline enqueuer.
type Executor interface {
	Execute(ctx context.Context, task *panoptic.Task) error

	// Each executor can perform shut down logic to clean up resource.
	Shutdown()
}

// JobRunner is the part of ingest.Machine tasks drive.
type JobRunner interface {
	Process(ctx context.Context, jobID uint) error
	RunStage(ctx context.Context, jobID uint, name string) error
}

// IdentityRunner is the part of identity.Engine tasks drive.
type IdentityRunner interface {
	PopulateProject(ctx context.Context, projectID uint) error
	MergeAll(ctx context.Context) (int, error)
}

// EventSaver persists live gateway events.
type EventSaver interface {
	SaveEvent(ctx context.Context, eventName string, payload map[string]interface{}) error
}

// TaskExecutor runs every task type against the store.
type TaskExecutor struct {
	db         *gorm.DB
	jobs       JobRunner
	identity   IdentityRunner
	connectors map[model.Platform]ingest.Connector
	events     EventSaver
}

func NewTaskExecutor(db *gorm.DB, jobs JobRunner, identity IdentityRunner, connectors map[model.Platform]ingest.Connector, events EventSaver) *TaskExecutor {
	return &TaskExecutor{db: db, jobs: jobs, identity: identity, connectors: connectors, events: events}
}

func (e *TaskExecutor) Execute(ctx context.Context, task *panoptic.Task) error {
	switch task.Type {
	case panoptic.TaskProcessJob:
		return forEach(task.Ids, func(id uint) error { return e.jobs.Process(ctx, id) })
	case panoptic.TaskRunStage:
		if task.Stage == "" {
			return errors.New("run_stage task has no stage")
		}
		return forEach(task.Ids, func(id uint) error { return e.jobs.RunStage(ctx, id, task.Stage) })
	case panoptic.TaskCrawlSource:
		return e.crawl(ctx, task.Platform, task.SourceIds)
	case panoptic.TaskPopulateProjectUsers:
		ids := task.Ids
		if len(ids) == 0 {
			if err := e.db.WithContext(ctx).Model(&model.Project{}).Order("id").Pluck("id", &ids).Error; err != nil {
				return errors.Wrap(err, "fail to load projects")
			}
		}
		if err := forEach(ids, func(id uint) error { return e.identity.PopulateProject(ctx, id) }); err != nil {
			return err
		}
		if task.Merge {
			_, err := e.identity.MergeAll(ctx)
			return err
		}
		return nil
	case panoptic.TaskMergeUsers:
		_, err := e.identity.MergeAll(ctx)
		return err
	case panoptic.TaskSaveDiscordEvent:
		if e.events == nil {
			return errors.New("no discord event store configured")
		}
		return e.events.SaveEvent(ctx, task.Event, task.Payload)
	}
	return fmt.Errorf("unknown task type %q", task.Type)
}

// crawl asks the connector of platform, or of every platform when empty, to
// enqueue one job per listed source, or per known source when none is listed.
func (e *TaskExecutor) crawl(ctx context.Context, platform string, sourceIDs []int64) error {
	platforms := []model.Platform{}
	if platform == "" {
		if len(sourceIDs) > 0 {
			return errors.New("source ids need a platform")
		}
		for p := range e.connectors {
			platforms = append(platforms, p)
		}
		sort.Slice(platforms, func(i, j int) bool { return platforms[i] < platforms[j] })
	} else {
		p, err := model.ParsePlatform(platform)
		if err != nil {
			return err
		}
		platforms = append(platforms, p)
	}
	for _, p := range platforms {
		connector, ok := e.connectors[p]
		if !ok {
			return fmt.Errorf("no connector configured for %s", p)
		}
		var jobs []*model.Job
		var err error
		if len(sourceIDs) > 0 {
			jobs, err = connector.CrawlSources(ctx, sourceIDs)
		} else {
			jobs, err = connector.CrawlAll(ctx)
		}
		if err != nil {
			return errors.Wrapf(err, "fail to crawl %s sources", p)
		}
		Logger.Log.WithField("platform", p).Infof("queued %d crawl jobs", len(jobs))
	}
	return nil
}

func (e *TaskExecutor) Shutdown() {}

// forEach runs fn for every id, a failure does not stop the others. The first
// error is returned along with the failure count.
func forEach(ids []uint, fn func(id uint) error) error {
	var first error
	failed := 0
	for _, id := range ids {
		if err := fn(id); err != nil {
			Logger.Log.WithError(err).WithField("id", id).Error("task item failed")
			if first == nil {
				first = err
			}
			failed++
		}
	}
	if first != nil {
		return errors.Wrapf(first, "%d of %d items failed", failed, len(ids))
	}
	return nil
}
