package modules

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Luismorlan/community/app_config"
	"github.com/Luismorlan/community/panoptic"
)

// SchedulerJobConfig says which tasks to publish and how often.
type SchedulerJobConfig struct {
	Name             string
	Every            time.Duration
	StartImmediately bool
	// Templates of the tasks published on every run, each run gets fresh
	// task ids.
	Tasks []panoptic.Task
}

// SchedulerJob defines the jobs which scheduler manages. Scheduler periodically
// transform those SchedulerJob into tasks, and send to event bus.
// It's worth noting that SchedulerJob and ingest jobs are not the same things,
// a SchedulerJob only triggers the tasks that create ingest jobs.
// This struct is thread-safe
type SchedulerJob struct {
	m sync.RWMutex

	// The last time this job is executed.
	lastRun time.Time

	// The next time this job should be executed.
	nextRun time.Time

	config SchedulerJobConfig

	// The context of this job, which manages the lifecycle of this job.
	ctx context.Context

	// Cancel this Job and it's pending execution.
	cancel context.CancelFunc

	// How many times this job is scheduled on EventBus.
	runCount int64
}

// NewSchedulerJobs returns the periodic crawl of every source and the
// periodic identity refresh of every project. A zero interval leaves the job
// out.
func NewSchedulerJobs(config app_config.CommunityAppConfig, ctx context.Context) []*SchedulerJob {
	crawl := *panoptic.NewTask(panoptic.TaskCrawlSource)
	refresh := *panoptic.NewTask(panoptic.TaskPopulateProjectUsers)
	refresh.Merge = true
	configs := []SchedulerJobConfig{
		{
			Name:  "crawl_sources",
			Every: time.Duration(config.CRAWL_EVERY_SECOND) * time.Second,
			Tasks: []panoptic.Task{crawl},
		},
		{
			Name:  "refresh_identities",
			Every: time.Duration(config.MERGE_EVERY_SECOND) * time.Second,
			Tasks: []panoptic.Task{refresh},
		},
	}
	jobs := []*SchedulerJob{}
	for _, c := range configs {
		if c.Every <= 0 {
			continue
		}
		jobs = append(jobs, NewSchedulerJob(c, ctx))
	}
	return jobs
}

func NewSchedulerJob(config SchedulerJobConfig, ctx context.Context) *SchedulerJob {
	ctx, cancel := context.WithCancel(ctx)
	return &SchedulerJob{
		m:        sync.RWMutex{},
		lastRun:  time.Time{},
		nextRun:  time.Time{},
		config:   config,
		ctx:      ctx,
		cancel:   cancel,
		runCount: 0,
	}
}

func (j *SchedulerJob) Name() string {
	j.m.RLock()
	defer j.m.RUnlock()
	return j.config.Name
}

// Config returns a copy of the job config.
func (j *SchedulerJob) Config() SchedulerJobConfig {
	j.m.RLock()
	defer j.m.RUnlock()
	return j.config
}

func (j *SchedulerJob) SetConfig(config SchedulerJobConfig) {
	j.m.Lock()
	defer j.m.Unlock()
	j.config = config
}

// NewTasks instantiates the task templates with fresh ids.
func (j *SchedulerJob) NewTasks() []*panoptic.Task {
	j.m.RLock()
	defer j.m.RUnlock()
	res := make([]*panoptic.Task, 0, len(j.config.Tasks))
	for _, template := range j.config.Tasks {
		task := panoptic.NewTask(template.Type)
		task.Ids = append([]uint(nil), template.Ids...)
		task.Platform = template.Platform
		task.Stage = template.Stage
		task.Merge = template.Merge
		res = append(res, task)
	}
	return res
}

func (j *SchedulerJob) RefreshContext(parent context.Context) {
	// Protectively cancel this job.
	j.cancel()

	ctx, cancel := context.WithCancel(parent)
	j.ctx = ctx
	j.cancel = cancel
}

func (j *SchedulerJob) HasRunBefore() bool {
	j.m.RLock()
	defer j.m.RUnlock()

	return !j.lastRun.IsZero()
}

func (j *SchedulerJob) IncrementRunCount() {
	j.m.Lock()
	defer j.m.Unlock()
	j.runCount += 1
}

func (j *SchedulerJob) RunCount() int64 {
	j.m.RLock()
	defer j.m.RUnlock()
	return j.runCount
}

func (j *SchedulerJob) DurationTillNextRun() time.Duration {
	duration, _ := j.CalculateInterval()
	if !j.HasRunBefore() {
		if j.Config().StartImmediately {
			return 0
		}
		return duration
	}

	j.m.RLock()
	defer j.m.RUnlock()

	now := time.Now()
	return j.nextRun.Sub(now)
}

func (j *SchedulerJob) UpdateLastAndNextTime() error {
	duration, err := j.CalculateInterval()
	if err != nil {
		return err
	}

	j.m.Lock()
	defer j.m.Unlock()

	j.lastRun = time.Now()
	j.nextRun = j.lastRun.Add(duration)
	return nil
}

func (j *SchedulerJob) CalculateInterval() (time.Duration, error) {
	j.m.RLock()
	defer j.m.RUnlock()

	if j.config.Every <= 0 {
		return 0, fmt.Errorf("scheduler job %s has no interval", j.config.Name)
	}
	return j.config.Every, nil
}
