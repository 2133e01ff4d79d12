package modules

import (
	"context"
	"fmt"
	"sync"
	"time"

	Logger "github.com/Luismorlan/community/utils/log"
)

type SchedulerConfig struct {
	// Name of the scheduler.
	Name string
}

// Scheduler runs every SchedulerJob on its own interval through a JobDoer.
type Scheduler struct {
	m sync.RWMutex

	Config SchedulerConfig

	Jobs []*SchedulerJob

	doer JobDoer

	wg sync.WaitGroup
}

// Return a new instance of Scheduler.
func NewScheduler(config SchedulerConfig, jobs []*SchedulerJob, doer JobDoer) (*Scheduler, error) {
	if err := ValidateJobs(jobs); err != nil {
		return nil, err
	}
	s := &Scheduler{
		Config: config,
		doer:   doer,
	}
	s.UpsertJobs(jobs)
	return s, nil
}

// ValidateJobs rejects duplicate job names, UpsertJobs matches jobs by name.
func ValidateJobs(jobs []*SchedulerJob) error {
	seen := map[string]bool{}
	for _, job := range jobs {
		name := job.Name()
		if seen[name] {
			return fmt.Errorf("duplicate scheduler job name %s", name)
		}
		seen[name] = true
	}
	return nil
}

// UpsertJobs replaces the job set. A job whose name is already scheduled keeps
// its run times and only takes the new config, jobs missing from jobs are
// cancelled.
func (s *Scheduler) UpsertJobs(jobs []*SchedulerJob) {
	s.m.Lock()
	defer s.m.Unlock()

	existing := map[string]*SchedulerJob{}
	for _, job := range s.Jobs {
		existing[job.Name()] = job
	}
	res := make([]*SchedulerJob, 0, len(jobs))
	for _, job := range jobs {
		if old, ok := existing[job.Name()]; ok {
			old.SetConfig(job.Config())
			res = append(res, old)
			delete(existing, job.Name())
			continue
		}
		res = append(res, job)
	}
	for _, stale := range existing {
		stale.cancel()
	}
	s.Jobs = res
}

func (s *Scheduler) RunModule(ctx context.Context) error {
	s.m.RLock()
	for _, job := range s.Jobs {
		job.RefreshContext(ctx)
		s.wg.Add(1)
		go func(job *SchedulerJob) {
			defer s.wg.Done()
			s.runJob(job)
		}(job)
	}
	s.m.RUnlock()

	s.wg.Wait()
	return nil
}

// runJob loops until the job's context is cancelled.
func (s *Scheduler) runJob(job *SchedulerJob) {
	ctx := job.ctx
	for {
		timer := time.NewTimer(job.DurationTillNextRun())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		if err := s.doer.Do(ctx, job); err != nil {
			Logger.Log.WithError(err).Errorf("scheduler job %s failed", job.Name())
		}
		if err := job.UpdateLastAndNextTime(); err != nil {
			Logger.Log.WithError(err).Errorf("scheduler job %s stopped", job.Name())
			return
		}
	}
}

func (s *Scheduler) Name() string {
	return s.Config.Name
}

func (s *Scheduler) Shutdown() {
	s.m.RLock()
	defer s.m.RUnlock()
	for _, job := range s.Jobs {
		job.cancel()
	}
}
