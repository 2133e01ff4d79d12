package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Luismorlan/community/model"
	Logger "github.com/Luismorlan/community/utils/log"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Machine owns the job lifecycle: new -> running -> done. A failing stage
// leaves the job running, re-processing it is the recovery path and is safe
// because every stage is idempotent.
type Machine struct {
	db        *gorm.DB
	enqueuer  Enqueuer
	mu        sync.RWMutex
	pipelines map[model.Platform]Pipeline
}

func NewMachine(db *gorm.DB, pipelines ...Pipeline) *Machine {
	m := &Machine{db: db, pipelines: map[model.Platform]Pipeline{}}
	for _, p := range pipelines {
		m.Register(p)
	}
	return m
}

func (m *Machine) Register(p Pipeline) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pipelines[p.Platform()] = p
}

// SetEnqueuer wires the task queue AddJob publishes to.
func (m *Machine) SetEnqueuer(e Enqueuer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enqueuer = e
}

func (m *Machine) pipeline(platform model.Platform) (Pipeline, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pipelines[platform]
	if !ok {
		return nil, fmt.Errorf("no pipeline registered for platform %s", platform)
	}
	return p, nil
}

// Create persists a new job after normalizing its config.
func (m *Machine) Create(ctx context.Context, projectID uint, platform model.Platform, sourceID *int64, config map[string]interface{}) (*model.Job, error) {
	p, err := m.pipeline(platform)
	if err != nil {
		return nil, err
	}
	if config == nil {
		config = map[string]interface{}{}
	}
	normalized, err := p.NormalizeConfig(config)
	if err != nil {
		return nil, errors.Wrapf(err, "fail to normalize %s job config", platform)
	}
	bytes, err := json.Marshal(normalized)
	if err != nil {
		return nil, errors.Wrap(err, "fail to marshal job config")
	}
	job := &model.Job{
		ProjectID: projectID,
		Platform:  platform,
		SourceID:  sourceID,
		Config:    bytes,
		Status:    model.JobStatusNew,
	}
	if err := m.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, errors.Wrapf(err, "fail to create %s job for project %d", platform, projectID)
	}
	return job, nil
}

// AddJob creates a job and enqueues it for processing.
func (m *Machine) AddJob(ctx context.Context, projectID uint, platform model.Platform, sourceID *int64, config map[string]interface{}) (*model.Job, error) {
	job, err := m.Create(ctx, projectID, platform, sourceID, config)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	enqueuer := m.enqueuer
	m.mu.RUnlock()
	if enqueuer == nil {
		return job, fmt.Errorf("job %d created but no task queue is configured", job.Id)
	}
	if err := enqueuer.EnqueueJobs(ctx, job.Id); err != nil {
		return job, errors.Wrapf(err, "fail to enqueue job %d", job.Id)
	}
	return job, nil
}

// Get loads a job by id.
func (m *Machine) Get(ctx context.Context, jobID uint) (*model.Job, error) {
	job := &model.Job{}
	if err := m.db.WithContext(ctx).Take(job, jobID).Error; err != nil {
		return nil, errors.Wrapf(err, "fail to load job %d", jobID)
	}
	return job, nil
}

// Process runs every stage of the job in order. The running status is
// committed before any stage starts. Jobs in any status can be processed.
func (m *Machine) Process(ctx context.Context, jobID uint) error {
	job, err := m.Get(ctx, jobID)
	if err != nil {
		return err
	}
	log := jobLogger(job)
	log.Info("start processing job")

	if err := m.setStatus(ctx, job, model.JobStatusRunning); err != nil {
		return err
	}
	stages, err := m.stages(job)
	if err != nil {
		return err
	}
	for _, stage := range stages {
		if err := m.runStage(ctx, job, stage); err != nil {
			return err
		}
	}
	if err := m.setStatus(ctx, job, model.JobStatusDone); err != nil {
		return err
	}
	log.Info("job done")
	return nil
}

// RunStage runs a single named stage without touching the job status.
func (m *Machine) RunStage(ctx context.Context, jobID uint, name string) error {
	job, err := m.Get(ctx, jobID)
	if err != nil {
		return err
	}
	stages, err := m.stages(job)
	if err != nil {
		return err
	}
	for _, stage := range stages {
		if stage.Name == name {
			return m.runStage(ctx, job, stage)
		}
	}
	return fmt.Errorf("job %d has no stage %q", jobID, name)
}

// StageNames lists the stages Process would run for the job.
func (m *Machine) StageNames(ctx context.Context, jobID uint) ([]string, error) {
	job, err := m.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	stages, err := m.stages(job)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(stages))
	for _, s := range stages {
		names = append(names, s.Name)
	}
	return names, nil
}

func (m *Machine) stages(job *model.Job) ([]Stage, error) {
	p, err := m.pipeline(job.Platform)
	if err != nil {
		return nil, err
	}
	stages, err := p.Stages(job)
	if err != nil {
		return nil, errors.Wrapf(err, "fail to resolve stages of job %d", job.Id)
	}
	return stages, nil
}

func (m *Machine) runStage(ctx context.Context, job *model.Job, stage Stage) error {
	log := jobLogger(job).WithField("stage", stage.Name)
	start := time.Now()
	log.Info("stage started")
	if err := stage.Run(ctx, job); err != nil {
		log.WithError(err).Error("stage failed")
		return errors.Wrapf(err, "stage %s of job %d failed", stage.Name, job.Id)
	}
	log.WithField("elapsed", time.Since(start).String()).Info("stage finished")
	return nil
}

func (m *Machine) setStatus(ctx context.Context, job *model.Job, status model.JobStatus) error {
	err := m.db.WithContext(context.WithoutCancel(ctx)).Model(job).Update("status", status).Error
	if err != nil {
		return errors.Wrapf(err, "fail to set job %d %s", job.Id, status)
	}
	return nil
}

func jobLogger(job *model.Job) *logrus.Entry {
	return Logger.Log.WithFields(logrus.Fields{
		"job_id":   job.Id,
		"platform": job.Platform,
	})
}
